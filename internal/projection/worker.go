package projection

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/govm-net/StabuLink/internal/event"
	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/observability"
)

// Asset labels used in the balances projection.
const (
	AssetNative = "native"
	AssetToken  = "token"
)

// Output carries one applied event and its effects to the projection
// worker. The orchestrator bridges from core.CoreOutput.
type Output struct {
	Sequence  int64
	EventType string
	Timestamp time.Time
	Effects   []event.Effect
}

// Worker updates the read-model tables from applied events. Its input
// channel is non-blocking with drop on the core side: a lost update only
// leaves the projections behind, and Rebuild recovers them from the
// event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
		lastSeq:   -1,
	}
}

// Run processes outputs until ctx is cancelled or the channel closes.
// Outputs at or below the stored watermark are skipped, so replayed
// events never double-apply.
func (w *Worker) Run(ctx context.Context) error {
	if seq, err := loadWatermark(ctx, w.db); err != nil {
		w.log.Warn().Err(err).Msg("load watermark failed, starting fresh")
	} else {
		w.lastSeq = seq
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}
			if output.Sequence <= w.lastSeq {
				continue
			}

			start := time.Now()
			if err := w.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; a failed update
				// is recovered by Rebuild, not by stalling the core.
				w.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
				continue
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}
			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, eff := range output.Effects {
		if err := applyEffect(ctx, tx, output, eff); err != nil {
			return fmt.Errorf("effect %s: %w", eff.Kind, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func loadWatermark(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return seq, nil
}

func applyEffect(ctx context.Context, tx *sql.Tx, output Output, eff event.Effect) error {
	switch eff.Kind {
	case event.EffectKindNativeCredit:
		return adjustBalance(ctx, tx, string(eff.To), AssetNative, fixedpoint.String(eff.Amount), output.Sequence)

	case event.EffectKindNativeTransfer:
		if err := adjustBalance(ctx, tx, string(eff.From), AssetNative, "-"+fixedpoint.String(eff.Amount), output.Sequence); err != nil {
			return err
		}
		return adjustBalance(ctx, tx, string(eff.To), AssetNative, fixedpoint.String(eff.Amount), output.Sequence)

	case event.EffectKindTokenMint:
		return adjustBalance(ctx, tx, string(eff.To), AssetToken, fixedpoint.String(eff.Amount), output.Sequence)

	case event.EffectKindTokenBurn:
		return adjustBalance(ctx, tx, string(eff.From), AssetToken, "-"+fixedpoint.String(eff.Amount), output.Sequence)

	case event.EffectKindTokenTransfer:
		if err := adjustBalance(ctx, tx, string(eff.From), AssetToken, "-"+fixedpoint.String(eff.Amount), output.Sequence); err != nil {
			return err
		}
		return adjustBalance(ctx, tx, string(eff.To), AssetToken, fixedpoint.String(eff.Amount), output.Sequence)

	case event.EffectKindApproval:
		// Allowances live only in the core; not projected.
		return nil

	case event.EffectKindQuoteRecorded:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.quote_history (sequence, price, observed_at)
			VALUES ($1, $2::NUMERIC, $3)
			ON CONFLICT (sequence) DO NOTHING
		`, output.Sequence, fixedpoint.String(eff.Price), output.Timestamp)
		return err

	case event.EffectKindPositionOpened:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions
				(position_id, owner_account, tier, collateral, debt, status, opened_sequence, last_sequence)
			VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, 'open', $6, $6)
			ON CONFLICT (position_id) DO NOTHING
		`, int64(eff.PositionID), string(eff.To), int16(eff.Tier),
			fixedpoint.String(eff.Amount), fixedpoint.String(eff.AmountOut), output.Sequence)
		return err

	case event.EffectKindPositionClosed:
		return closePosition(ctx, tx, eff, "closed", output.Sequence)

	case event.EffectKindPositionLiquidated:
		return closePosition(ctx, tx, eff, "liquidated", output.Sequence)

	case event.EffectKindSwapExecuted:
		direction := "sell"
		if output.EventType == event.EventTypePoolBuy.String() {
			direction = "buy"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.swap_history
				(sequence, trader_account, direction, amount_in, amount_out, executed_at)
			VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)
			ON CONFLICT (sequence) DO NOTHING
		`, output.Sequence, string(eff.From), direction,
			fixedpoint.String(eff.Amount), fixedpoint.String(eff.AmountOut), output.Timestamp)
		return err

	case event.EffectKindRebaseApplied:
		return applyRebase(ctx, tx, fixedpoint.String(eff.Scale), output.Sequence)

	default:
		return nil
	}
}

func adjustBalance(ctx context.Context, tx *sql.Tx, account, asset, delta string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, asset, balance, last_sequence)
		VALUES ($1, $2, $3::NUMERIC, $4)
		ON CONFLICT (account, asset)
		DO UPDATE SET balance = projections.balances.balance + $3::NUMERIC, last_sequence = $4
	`, account, asset, delta, seq)
	return err
}

func closePosition(ctx context.Context, tx *sql.Tx, eff event.Effect, status string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.positions
		SET status = $2, payout = $3::NUMERIC, closed_sequence = $4, last_sequence = $4
		WHERE position_id = $1 AND status = 'open'
	`, int64(eff.PositionID), status, fixedpoint.String(eff.Amount), seq)
	return err
}

// applyRebase rescales every token balance row across the scale change,
// then records the new scale.
func applyRebase(ctx context.Context, tx *sql.Tx, newScale string, seq int64) error {
	var oldScale string
	err := tx.QueryRowContext(ctx,
		`SELECT scale::TEXT FROM projections.token_state WHERE id = 1`,
	).Scan(&oldScale)
	if err == sql.ErrNoRows {
		oldScale = fixedpoint.String(fixedpoint.UnitScale)
	} else if err != nil {
		return err
	}
	old := fixedpoint.MustParse(oldScale)
	next := fixedpoint.MustParse(newScale)

	rows, err := tx.QueryContext(ctx,
		`SELECT account, balance::TEXT FROM projections.balances WHERE asset = $1`,
		AssetToken)
	if err != nil {
		return err
	}
	type row struct {
		account string
		balance string
	}
	var balances []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.account, &r.balance); err != nil {
			rows.Close()
			return err
		}
		balances = append(balances, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range balances {
		rescaled := rescaleBalance(fixedpoint.MustParse(r.balance), old, next)
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.balances
			SET balance = $2::NUMERIC, last_sequence = $3
			WHERE account = $1 AND asset = $4
		`, r.account, fixedpoint.String(rescaled), seq, AssetToken); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.token_state (id, scale, last_sequence)
		VALUES (1, $1::NUMERIC, $2)
		ON CONFLICT (id) DO UPDATE SET scale = $1::NUMERIC, last_sequence = $2
	`, newScale, seq)
	return err
}

// rescaleBalance converts a displayed balance across a scale change.
// Displayed balances are shares × BaseScale / scale, so a balance
// recorded at oldScale becomes balance × oldScale / newScale at the new
// scale, floored the way the ledger floors.
func rescaleBalance(balance, oldScale, newScale *big.Int) *big.Int {
	return fixedpoint.MulDiv(balance, oldScale, newScale)
}

// Rebuild truncates the read models and replays every stored effect in
// sequence order through the same apply path the live worker uses.
func Rebuild(ctx context.Context, db *sql.DB) error {
	log := observability.NewLogger("projection")

	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.swap_history`,
		`TRUNCATE projections.quote_history`,
		`TRUNCATE projections.token_state`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT f.sequence, e.event_type, e.timestamp, f.kind,
		       f.from_account, f.to_account,
		       f.amount::TEXT, f.amount_out::TEXT,
		       f.position_id, f.tier, f.scale::TEXT, f.price::TEXT
		FROM event_log.effects f
		JOIN event_log.events e ON e.sequence = f.sequence
		ORDER BY f.sequence ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	var lastSeq int64
	for rows.Next() {
		var (
			seq, positionID   int64
			eventType, kind   string
			from, to          string
			amount, amountOut string
			scale, price      string
			tier              int16
			ts                time.Time
		)
		if err := rows.Scan(&seq, &eventType, &ts, &kind, &from, &to,
			&amount, &amountOut, &positionID, &tier, &scale, &price); err != nil {
			return err
		}

		eff := event.Effect{
			Kind:       event.EffectKindFromString(kind),
			From:       ledger.Account(from),
			To:         ledger.Account(to),
			Amount:     fixedpoint.MustParse(amount),
			AmountOut:  fixedpoint.MustParse(amountOut),
			PositionID: uint64(positionID),
			Tier:       uint8(tier),
			Scale:      fixedpoint.MustParse(scale),
			Price:      fixedpoint.MustParse(price),
		}
		out := Output{Sequence: seq, EventType: eventType, Timestamp: ts}
		if err := applyEffect(ctx, tx, out, eff); err != nil {
			return fmt.Errorf("rebuild at seq %d: %w", seq, err)
		}
		count++
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if count > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
			VALUES ('main', $1, NOW())
			ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
		`, lastSeq); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Int("effects", count).Int64("last_sequence", lastSeq).Msg("projection rebuild complete")
	return nil
}
