package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/ledger"
)

// PositionDeposit opens a collateral position for the caller.
// Idempotency key: command_id (UUID assigned by the API gateway).
type PositionDeposit struct {
	CommandID  uuid.UUID // Idempotency key
	Caller     ledger.Account
	Collateral *big.Int // Fixed-point, 18 decimals
	Tier       uint8
	Sequence   int64 // Gateway command sequence
	Timestamp  time.Time
}

func (p *PositionDeposit) IdempotencyKey() string {
	return p.CommandID.String()
}

func (p *PositionDeposit) EventType() EventType {
	return EventTypePositionDeposit
}

func (p *PositionDeposit) Partition() string {
	return PartitionAPI
}

func (p *PositionDeposit) SourceSequence() int64 {
	return p.Sequence
}

// PositionWithdraw closes the caller's open position.
type PositionWithdraw struct {
	CommandID  uuid.UUID
	Caller     ledger.Account
	PositionID uint64
	Sequence   int64
	Timestamp  time.Time
}

func (p *PositionWithdraw) IdempotencyKey() string {
	return p.CommandID.String()
}

func (p *PositionWithdraw) EventType() EventType {
	return EventTypePositionWithdraw
}

func (p *PositionWithdraw) Partition() string {
	return PartitionAPI
}

func (p *PositionWithdraw) SourceSequence() int64 {
	return p.Sequence
}

// PositionLiquidate forecloses a matured position. Any caller may send it.
type PositionLiquidate struct {
	CommandID  uuid.UUID
	Caller     ledger.Account
	PositionID uint64
	Sequence   int64
	Timestamp  time.Time
}

func (p *PositionLiquidate) IdempotencyKey() string {
	return p.CommandID.String()
}

func (p *PositionLiquidate) EventType() EventType {
	return EventTypePositionLiquidate
}

func (p *PositionLiquidate) Partition() string {
	return PartitionAPI
}

func (p *PositionLiquidate) SourceSequence() int64 {
	return p.Sequence
}
