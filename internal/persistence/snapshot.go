package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/core"
)

// SnapshotManager stores and loads full-state snapshots. A snapshot plus
// a replay of the events past it reconstructs the core exactly.
type SnapshotManager struct {
	db *sql.DB
}

// snapshotRecord wraps the core state with storage metadata.
type snapshotRecord struct {
	State     *core.SnapshotState `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot. Re-snapshotting the same sequence
// overwrites the stored copy.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, state *core.SnapshotState) error {
	data, err := json.Marshal(snapshotRecord{State: state, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded core.SnapshotState

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, state.Sequence, data, state.StateHash[:], formatVersion, len(data))

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil for
// a cold start with an empty snapshot table.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return rec.State, nil
}

// MarkVerified marks a snapshot as verified after its state hash has been
// checked against the event log.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}
