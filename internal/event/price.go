package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// OracleQuoteUpdate carries one observed collateral price from the price
// stream. Idempotency key: quote_id (UUID from the oracle relay).
type OracleQuoteUpdate struct {
	QuoteID   uuid.UUID // Idempotency key
	Price     *big.Int  // Fixed-point, 8 decimals
	Sequence  int64     // Source sequence from the oracle relay
	Timestamp time.Time // Versioned input timestamp (NOT wall-clock)
}

func (q *OracleQuoteUpdate) IdempotencyKey() string {
	return q.QuoteID.String()
}

func (q *OracleQuoteUpdate) EventType() EventType {
	return EventTypeOracleQuoteUpdate
}

func (q *OracleQuoteUpdate) Partition() string {
	return PartitionPrices
}

func (q *OracleQuoteUpdate) SourceSequence() int64 {
	return q.Sequence
}
