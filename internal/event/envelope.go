package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeOracleQuoteUpdate
	EventTypeNativeDeposit
	EventTypePositionDeposit
	EventTypePositionWithdraw
	EventTypePositionLiquidate
	EventTypePoolSell
	EventTypePoolBuy
	EventTypeTokenTransfer
	EventTypeTokenApprove
	EventTypeTokenBurn
	EventTypeRebase
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// Ordering partition the source sequence belongs to
	Partition string

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the ordering partition of the source stream
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeOracleQuoteUpdate:
		return "OracleQuoteUpdate"
	case EventTypeNativeDeposit:
		return "NativeDeposit"
	case EventTypePositionDeposit:
		return "PositionDeposit"
	case EventTypePositionWithdraw:
		return "PositionWithdraw"
	case EventTypePositionLiquidate:
		return "PositionLiquidate"
	case EventTypePoolSell:
		return "PoolSell"
	case EventTypePoolBuy:
		return "PoolBuy"
	case EventTypeTokenTransfer:
		return "TokenTransfer"
	case EventTypeTokenApprove:
		return "TokenApprove"
	case EventTypeTokenBurn:
		return "TokenBurn"
	case EventTypeRebase:
		return "Rebase"
	default:
		return "Unknown"
	}
}

// EventTypeFromString is the inverse of String, for rows read back from
// the event log.
func EventTypeFromString(s string) EventType {
	switch s {
	case "OracleQuoteUpdate":
		return EventTypeOracleQuoteUpdate
	case "NativeDeposit":
		return EventTypeNativeDeposit
	case "PositionDeposit":
		return EventTypePositionDeposit
	case "PositionWithdraw":
		return EventTypePositionWithdraw
	case "PositionLiquidate":
		return EventTypePositionLiquidate
	case "PoolSell":
		return EventTypePoolSell
	case "PoolBuy":
		return EventTypePoolBuy
	case "TokenTransfer":
		return EventTypeTokenTransfer
	case "TokenApprove":
		return EventTypeTokenApprove
	case "TokenBurn":
		return EventTypeTokenBurn
	case "Rebase":
		return EventTypeRebase
	default:
		return EventTypeUnknown
	}
}

// Ordering partitions. Oracle quotes and chain deposits arrive on their own
// upstream streams; operator commands and user commands are sequenced by the
// API gateway.
const (
	PartitionPrices   = "prices"
	PartitionDeposits = "deposits"
	PartitionAPI      = "api"
)
