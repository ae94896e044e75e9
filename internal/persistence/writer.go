package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/govm-net/StabuLink/internal/event"
	"github.com/govm-net/StabuLink/internal/fixedpoint"
)

// EventLogWriter writes events and effects to Postgres using multi-row
// INSERT with ON CONFLICT DO NOTHING, so replays after a crash are
// idempotent.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Partition      string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// EffectRow represents a row in event_log.effects. Amounts are stored as
// NUMERIC(78,0) and travel as decimal strings.
type EffectRow struct {
	EffectID    string
	EventRef    string
	Sequence    int64
	Kind        string
	FromAccount string
	ToAccount   string
	Amount      string
	AmountOut   string
	PositionID  int64
	Tier        int16
	Scale       string
	Price       string
}

// CoreOutput mirrors core.CoreOutput to avoid an import cycle. The
// orchestrator bridges between the two with BuildOutput.
type CoreOutput struct {
	EventRow   EventRow
	EffectRows []EffectRow
}

// BuildOutput flattens an envelope and its effects into writable rows.
func BuildOutput(env *event.EventEnvelope, effects []event.Effect) CoreOutput {
	out := CoreOutput{
		EventRow: EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			Partition:      env.Partition,
			Payload:        env.Payload,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			Timestamp:      env.Timestamp,
			SourceSequence: env.SourceSequence,
		},
	}
	for _, eff := range effects {
		out.EffectRows = append(out.EffectRows, EffectRow{
			EffectID:    eff.EffectID.String(),
			EventRef:    eff.EventRef,
			Sequence:    eff.Sequence,
			Kind:        eff.Kind.String(),
			FromAccount: eff.From.String(),
			ToAccount:   eff.To.String(),
			Amount:      fixedpoint.String(eff.Amount),
			AmountOut:   fixedpoint.String(eff.AmountOut),
			PositionID:  int64(eff.PositionID),
			Tier:        int16(eff.Tier),
			Scale:       fixedpoint.String(eff.Scale),
			Price:       fixedpoint.String(eff.Price),
		})
	}
	return out
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// execer abstracts *sql.DB and *sql.Tx so batches can run transactionally.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, partition, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Partition,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteEffectBatch writes a batch of effect entries to event_log.effects.
func (w *EventLogWriter) WriteEffectBatch(ctx context.Context, ex execer, effects []EffectRow) error {
	if len(effects) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.effects
		(effect_id, event_ref, sequence, kind, from_account, to_account, amount, amount_out, position_id, tier, scale, price)
		VALUES `

	values := make([]string, 0, len(effects))
	args := make([]interface{}, 0, len(effects)*12)

	for i, e := range effects {
		base := i * 12
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11, base+12,
		))
		args = append(args,
			e.EffectID, e.EventRef, e.Sequence, e.Kind,
			e.FromAccount, e.ToAccount, e.Amount, e.AmountOut,
			e.PositionID, e.Tier, e.Scale, e.Price,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (effect_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// LoadEventsAfter streams event rows with sequence > after, in order.
// Recovery replays these through the core after a snapshot restore.
func (w *EventLogWriter) LoadEventsAfter(ctx context.Context, after int64) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition, payload, state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence > $1
		ORDER BY sequence ASC`, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MaxSequence returns the highest persisted sequence, or -1 when the log
// is empty.
func (w *EventLogWriter) MaxSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
