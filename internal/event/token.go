package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/ledger"
)

// TokenTransfer moves tokens between accounts at the caller's request.
type TokenTransfer struct {
	CommandID uuid.UUID // Idempotency key
	Caller    ledger.Account
	To        ledger.Account
	Amount    *big.Int
	Sequence  int64
	Timestamp time.Time
}

func (t *TokenTransfer) IdempotencyKey() string {
	return t.CommandID.String()
}

func (t *TokenTransfer) EventType() EventType {
	return EventTypeTokenTransfer
}

func (t *TokenTransfer) Partition() string {
	return PartitionAPI
}

func (t *TokenTransfer) SourceSequence() int64 {
	return t.Sequence
}

// TokenApprove sets the amount a spender may move from the caller.
type TokenApprove struct {
	CommandID uuid.UUID
	Caller    ledger.Account
	Spender   ledger.Account
	Amount    *big.Int
	Sequence  int64
	Timestamp time.Time
}

func (a *TokenApprove) IdempotencyKey() string {
	return a.CommandID.String()
}

func (a *TokenApprove) EventType() EventType {
	return EventTypeTokenApprove
}

func (a *TokenApprove) Partition() string {
	return PartitionAPI
}

func (a *TokenApprove) SourceSequence() int64 {
	return a.Sequence
}

// TokenBurn destroys tokens held by an account. Authority-gated; the core
// rejects it for any other caller.
type TokenBurn struct {
	CommandID uuid.UUID
	Caller    ledger.Account
	From      ledger.Account
	Amount    *big.Int
	Sequence  int64
	Timestamp time.Time
}

func (b *TokenBurn) IdempotencyKey() string {
	return b.CommandID.String()
}

func (b *TokenBurn) EventType() EventType {
	return EventTypeTokenBurn
}

func (b *TokenBurn) Partition() string {
	return PartitionAPI
}

func (b *TokenBurn) SourceSequence() int64 {
	return b.Sequence
}

// Rebase replaces the token scale factor. Authority-gated.
type Rebase struct {
	CommandID uuid.UUID
	Caller    ledger.Account
	NewScale  *big.Int
	Sequence  int64
	Timestamp time.Time
}

func (r *Rebase) IdempotencyKey() string {
	return r.CommandID.String()
}

func (r *Rebase) EventType() EventType {
	return EventTypeRebase
}

func (r *Rebase) Partition() string {
	return PartitionAPI
}

func (r *Rebase) SourceSequence() int64 {
	return r.Sequence
}
