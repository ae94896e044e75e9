package query

import "time"

// BalanceResponse holds an account's projected balances in both assets.
// Amounts are base-unit decimal strings. AsOfSequence is the projection
// watermark at query time.
type BalanceResponse struct {
	Account      string `json:"account"`
	Native       string `json:"native"`
	Token        string `json:"token"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PositionRecord is a projected position for API queries.
type PositionRecord struct {
	PositionID     uint64 `json:"position_id"`
	Owner          string `json:"owner"`
	Tier           uint8  `json:"tier"`
	Collateral     string `json:"collateral"`
	Debt           string `json:"debt"`
	Status         string `json:"status"`
	Payout         string `json:"payout,omitempty"`
	OpenedSequence int64  `json:"opened_sequence"`
	ClosedSequence int64  `json:"closed_sequence,omitempty"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// SwapRecord is one executed pool swap.
type SwapRecord struct {
	Sequence   int64     `json:"sequence"`
	Trader     string    `json:"trader"`
	Direction  string    `json:"direction"`
	AmountIn   string    `json:"amount_in"`
	AmountOut  string    `json:"amount_out"`
	ExecutedAt time.Time `json:"executed_at"`
}

// QuoteRecord is one accepted oracle quote.
type QuoteRecord struct {
	Sequence   int64     `json:"sequence"`
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// EffectRecord is one ledger effect touching an account.
type EffectRecord struct {
	Sequence   int64  `json:"sequence"`
	EventType  string `json:"event_type"`
	Kind       string `json:"kind"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Amount     string `json:"amount"`
	AmountOut  string `json:"amount_out,omitempty"`
	PositionID uint64 `json:"position_id,omitempty"`
}

// EventRecord is one row of the event log.
type EventRecord struct {
	Sequence       int64     `json:"sequence"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	Partition      string    `json:"partition"`
	SourceSequence int64     `json:"source_sequence"`
	Timestamp      time.Time `json:"timestamp"`
	StateHash      string    `json:"state_hash"`
	PrevHash       string    `json:"prev_hash"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool             `json:"is_healthy"`
	HashChainBreaks  []int64          `json:"hash_chain_breaks,omitempty"`
	NegativeBalances []AccountBalance `json:"negative_balances,omitempty"`
}

// AccountBalance pairs an account/asset with a balance, used for
// integrity findings.
type AccountBalance struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}
