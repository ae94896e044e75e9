package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// NativeDeposit credits native units to a user account when a confirmed
// inbound transfer lands on the deposit stream. Idempotency key:
// deposit_id (UUID from the settlement bridge).
type NativeDeposit struct {
	DepositID uuid.UUID // Idempotency key
	UserID    uuid.UUID
	Amount    *big.Int // Fixed-point, 18 decimals
	Sequence  int64    // Source sequence from the settlement bridge
	Timestamp time.Time
}

func (d *NativeDeposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *NativeDeposit) EventType() EventType {
	return EventTypeNativeDeposit
}

func (d *NativeDeposit) Partition() string {
	return PartitionDeposits
}

func (d *NativeDeposit) SourceSequence() int64 {
	return d.Sequence
}
