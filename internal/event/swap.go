package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/ledger"
)

// PoolSell swaps the caller's native units for tokens.
type PoolSell struct {
	CommandID uuid.UUID // Idempotency key
	Caller    ledger.Account
	AmountIn  *big.Int // Native units in, 18 decimals
	MinOut    *big.Int // Minimum tokens out
	Sequence  int64
	Timestamp time.Time
}

func (s *PoolSell) IdempotencyKey() string {
	return s.CommandID.String()
}

func (s *PoolSell) EventType() EventType {
	return EventTypePoolSell
}

func (s *PoolSell) Partition() string {
	return PartitionAPI
}

func (s *PoolSell) SourceSequence() int64 {
	return s.Sequence
}

// PoolBuy swaps the caller's tokens for native units. The caller must have
// approved the pool account beforehand.
type PoolBuy struct {
	CommandID uuid.UUID
	Caller    ledger.Account
	AmountIn  *big.Int // Tokens in, 18 decimals
	MinOut    *big.Int // Minimum native units out
	Sequence  int64
	Timestamp time.Time
}

func (b *PoolBuy) IdempotencyKey() string {
	return b.CommandID.String()
}

func (b *PoolBuy) EventType() EventType {
	return EventTypePoolBuy
}

func (b *PoolBuy) Partition() string {
	return PartitionAPI
}

func (b *PoolBuy) SourceSequence() int64 {
	return b.Sequence
}
