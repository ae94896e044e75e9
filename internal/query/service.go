package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Service provides read-only access to the projection tables and the
// event log. All responses carry as_of_sequence for freshness semantics.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetBalances returns an account's projected balances for both assets.
func (s *Service) GetBalances(ctx context.Context, account string) (*BalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &BalanceResponse{
		Account:      account,
		Native:       "0",
		Token:        "0",
		AsOfSequence: asOfSeq,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, balance::TEXT FROM projections.balances
		WHERE account = $1
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var asset, balance string
		if err := rows.Scan(&asset, &balance); err != nil {
			return nil, err
		}
		switch asset {
		case "native":
			resp.Native = balance
		case "token":
			resp.Token = balance
		}
	}
	return resp, rows.Err()
}

// GetPositions returns an account's positions, newest first. Closed and
// liquidated positions are included when includeClosed is set.
func (s *Service) GetPositions(ctx context.Context, owner string, includeClosed bool) ([]PositionRecord, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT position_id, owner_account, tier, collateral::TEXT, debt::TEXT,
		       status, COALESCE(payout::TEXT, ''), opened_sequence, COALESCE(closed_sequence, 0)
		FROM projections.positions
		WHERE owner_account = $1
	`
	if !includeClosed {
		q += ` AND status = 'open'`
	}
	q += ` ORDER BY position_id DESC`

	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionRecord
	for rows.Next() {
		var p PositionRecord
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PositionID, &p.Owner, &p.Tier, &p.Collateral, &p.Debt,
			&p.Status, &p.Payout, &p.OpenedSequence, &p.ClosedSequence,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetPosition returns one position by id, regardless of status.
func (s *Service) GetPosition(ctx context.Context, id uint64) (*PositionRecord, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var p PositionRecord
	p.AsOfSequence = asOfSeq
	err = s.db.QueryRowContext(ctx, `
		SELECT position_id, owner_account, tier, collateral::TEXT, debt::TEXT,
		       status, COALESCE(payout::TEXT, ''), opened_sequence, COALESCE(closed_sequence, 0)
		FROM projections.positions
		WHERE position_id = $1
	`, int64(id)).Scan(
		&p.PositionID, &p.Owner, &p.Tier, &p.Collateral, &p.Debt,
		&p.Status, &p.Payout, &p.OpenedSequence, &p.ClosedSequence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSwapHistory returns executed swaps, newest first, with cursor-based
// pagination. trader filters to one account when non-empty.
func (s *Service) GetSwapHistory(ctx context.Context, trader string, limit int, afterSequence *int64) ([]SwapRecord, error) {
	q := `
		SELECT sequence, trader_account, direction, amount_in::TEXT, amount_out::TEXT, executed_at
		FROM projections.swap_history
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if trader != "" {
		q += fmt.Sprintf(" AND trader_account = $%d", argIdx)
		args = append(args, trader)
		argIdx++
	}
	if afterSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}
	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []SwapRecord
	for rows.Next() {
		var r SwapRecord
		if err := rows.Scan(&r.Sequence, &r.Trader, &r.Direction, &r.AmountIn, &r.AmountOut, &r.ExecutedAt); err != nil {
			return nil, err
		}
		swaps = append(swaps, r)
	}
	return swaps, rows.Err()
}

// GetQuoteHistory returns accepted oracle quotes, newest first.
func (s *Service) GetQuoteHistory(ctx context.Context, limit int, afterSequence *int64) ([]QuoteRecord, error) {
	q := `
		SELECT sequence, price::TEXT, observed_at
		FROM projections.quote_history
	`
	args := []interface{}{}
	argIdx := 1

	if afterSequence != nil {
		q += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}
	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []QuoteRecord
	for rows.Next() {
		var r QuoteRecord
		if err := rows.Scan(&r.Sequence, &r.Price, &r.ObservedAt); err != nil {
			return nil, err
		}
		quotes = append(quotes, r)
	}
	return quotes, rows.Err()
}

// GetEffectHistory returns ledger effects touching an account, newest
// first, with cursor-based pagination.
func (s *Service) GetEffectHistory(ctx context.Context, account string, limit int, afterSequence *int64) ([]EffectRecord, error) {
	q := `
		SELECT f.sequence, e.event_type, f.kind, f.from_account, f.to_account,
		       f.amount::TEXT, f.amount_out::TEXT, f.position_id
		FROM event_log.effects f
		JOIN event_log.events e ON e.sequence = f.sequence
		WHERE (f.from_account = $1 OR f.to_account = $1)
	`
	args := []interface{}{account}
	argIdx := 2

	if afterSequence != nil {
		q += fmt.Sprintf(" AND f.sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}
	q += " ORDER BY f.sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var effects []EffectRecord
	for rows.Next() {
		var r EffectRecord
		var positionID int64
		if err := rows.Scan(
			&r.Sequence, &r.EventType, &r.Kind, &r.From, &r.To,
			&r.Amount, &r.AmountOut, &positionID,
		); err != nil {
			return nil, err
		}
		r.PositionID = uint64(positionID)
		effects = append(effects, r)
	}
	return effects, rows.Err()
}

// GetEvents returns event log rows, newest first.
func (s *Service) GetEvents(ctx context.Context, limit int, afterSequence *int64) ([]EventRecord, error) {
	q := `
		SELECT sequence, event_type, idempotency_key, partition, source_sequence,
		       timestamp, state_hash, prev_hash
		FROM event_log.events
	`
	args := []interface{}{}
	argIdx := 1

	if afterSequence != nil {
		q += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}
	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var r EventRecord
		var stateHash, prevHash []byte
		if err := rows.Scan(
			&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Partition,
			&r.SourceSequence, &r.Timestamp, &stateHash, &prevHash,
		); err != nil {
			return nil, err
		}
		r.StateHash = hex.EncodeToString(stateHash)
		r.PrevHash = hex.EncodeToString(prevHash)
		events = append(events, r)
	}
	return events, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and
// scans the balance projection for negative balances.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	negRows, err := s.db.QueryContext(ctx, `
		SELECT account, asset, balance::TEXT
		FROM projections.balances
		WHERE balance < 0
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer negRows.Close()

	for negRows.Next() {
		var ab AccountBalance
		if err := negRows.Scan(&ab.Account, &ab.Asset, &ab.Balance); err != nil {
			return nil, err
		}
		report.NegativeBalances = append(report.NegativeBalances, ab)
	}
	if err := negRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.NegativeBalances) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
