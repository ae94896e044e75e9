package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/govm-net/StabuLink/internal/event"
	"github.com/govm-net/StabuLink/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseOracleQuote(t *testing.T) {
	payload := map[string]interface{}{
		"quote_id":     "550e8400-e29b-41d4-a716-446655440000",
		"price":        "30000000000",
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "OracleQuoteUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	q, ok := evt.(*event.OracleQuoteUpdate)
	if !ok {
		t.Fatalf("expected *event.OracleQuoteUpdate, got %T", evt)
	}

	if q.Price.String() != "30000000000" {
		t.Errorf("price: got %s, want 30000000000", q.Price)
	}
	if q.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", q.Sequence)
	}
	if got := q.Timestamp.UnixMicro(); got != 1700000000000000 {
		t.Errorf("timestamp: got %d, want 1700000000000000", got)
	}
	if q.EventType() != event.EventTypeOracleQuoteUpdate {
		t.Errorf("event type: got %v, want OracleQuoteUpdate", q.EventType())
	}
	if q.Partition() != event.PartitionPrices {
		t.Errorf("partition: got %s, want %s", q.Partition(), event.PartitionPrices)
	}
}

func TestParseNativeDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":       "2000000000000000",
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "NativeDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	d, ok := evt.(*event.NativeDeposit)
	if !ok {
		t.Fatalf("expected *event.NativeDeposit, got %T", evt)
	}

	if d.Amount.String() != "2000000000000000" {
		t.Errorf("amount: got %s, want 2000000000000000", d.Amount)
	}
	if d.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", d.Sequence)
	}
	if d.Partition() != event.PartitionDeposits {
		t.Errorf("partition: got %s, want %s", d.Partition(), event.PartitionDeposits)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "OracleQuoteUpdate")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"quote_id":     "not-a-uuid",
		"price":        "1",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "OracleQuoteUpdate")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseNegativeAmount_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":       "-5",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "NativeDeposit")
	if err == nil {
		t.Fatal("expected error for negative amount")
	}
}
