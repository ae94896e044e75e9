package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/event"
	"github.com/govm-net/StabuLink/internal/fixedpoint"
)

// ParseRawEvent converts a RawEvent into a typed event.Event. The shell
// validates and converts every inbound message before it reaches the
// engine.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "OracleQuoteUpdate":
		return parseOracleQuote(raw.Data)
	case "NativeDeposit":
		return parseNativeDeposit(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Amounts travel
// as decimal strings in base units.

type oracleQuoteJSON struct {
	QuoteID     string `json:"quote_id"`
	Price       string `json:"price"` // 8 decimals
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOracleQuote(data []byte) (*event.OracleQuoteUpdate, error) {
	var j oracleQuoteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OracleQuoteUpdate: %w", err)
	}

	quoteID, err := uuid.Parse(j.QuoteID)
	if err != nil {
		return nil, fmt.Errorf("parse quote_id: %w", err)
	}
	price, err := fixedpoint.Parse(j.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}

	return &event.OracleQuoteUpdate{
		QuoteID:   quoteID,
		Price:     price,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type nativeDepositJSON struct {
	DepositID   string `json:"deposit_id"`
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"` // 18 decimals
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseNativeDeposit(data []byte) (*event.NativeDeposit, error) {
	var j nativeDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NativeDeposit: %w", err)
	}

	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := fixedpoint.Parse(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	return &event.NativeDeposit{
		DepositID: depositID,
		UserID:    userID,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
