package event

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/ledger"
)

// EffectKind represents the purpose of an effect entry
type EffectKind int32

const (
	EffectKindNativeCredit EffectKind = iota
	EffectKindNativeTransfer
	EffectKindTokenMint
	EffectKindTokenBurn
	EffectKindTokenTransfer
	EffectKindApproval
	EffectKindQuoteRecorded
	EffectKindPositionOpened
	EffectKindPositionClosed
	EffectKindPositionLiquidated
	EffectKindSwapExecuted
	EffectKindRebaseApplied
)

func (k EffectKind) String() string {
	switch k {
	case EffectKindNativeCredit:
		return "NativeCredit"
	case EffectKindNativeTransfer:
		return "NativeTransfer"
	case EffectKindTokenMint:
		return "TokenMint"
	case EffectKindTokenBurn:
		return "TokenBurn"
	case EffectKindTokenTransfer:
		return "TokenTransfer"
	case EffectKindApproval:
		return "Approval"
	case EffectKindQuoteRecorded:
		return "QuoteRecorded"
	case EffectKindPositionOpened:
		return "PositionOpened"
	case EffectKindPositionClosed:
		return "PositionClosed"
	case EffectKindPositionLiquidated:
		return "PositionLiquidated"
	case EffectKindSwapExecuted:
		return "SwapExecuted"
	case EffectKindRebaseApplied:
		return "RebaseApplied"
	default:
		return "Unknown"
	}
}

// EffectKindFromString is the inverse of String, for rows read back from
// the effects table.
func EffectKindFromString(s string) EffectKind {
	switch s {
	case "NativeCredit":
		return EffectKindNativeCredit
	case "NativeTransfer":
		return EffectKindNativeTransfer
	case "TokenMint":
		return EffectKindTokenMint
	case "TokenBurn":
		return EffectKindTokenBurn
	case "TokenTransfer":
		return EffectKindTokenTransfer
	case "Approval":
		return EffectKindApproval
	case "QuoteRecorded":
		return EffectKindQuoteRecorded
	case "PositionOpened":
		return EffectKindPositionOpened
	case "PositionClosed":
		return EffectKindPositionClosed
	case "PositionLiquidated":
		return EffectKindPositionLiquidated
	case "SwapExecuted":
		return EffectKindSwapExecuted
	case "RebaseApplied":
		return EffectKindRebaseApplied
	default:
		return EffectKind(-1)
	}
}

// Effect records one state change produced by applying an event. The list
// of effects for an event fully describes its ledger impact, feeds the
// state-hash digest and drives the read-model projections.
type Effect struct {
	EffectID uuid.UUID  // Unique identifier
	EventRef string     // Idempotency key of source event
	Sequence int64      // Global event sequence
	Kind     EffectKind // Entry type

	// Accounts touched. From is empty for mints, credits and quotes; To is
	// empty for burns.
	From ledger.Account
	To   ledger.Account

	// Amount moved, minted or burned. Nil when the kind carries none.
	Amount *big.Int

	// Swap output for SwapExecuted entries.
	AmountOut *big.Int

	// Position context for lifecycle entries.
	PositionID uint64
	Tier       uint8

	// New scale for RebaseApplied; price for QuoteRecorded.
	Scale *big.Int
	Price *big.Int
}
