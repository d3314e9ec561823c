package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedsearch/feedsearch/pkg/postgres"
)

// SnapshotStore persists periodic stat rollups to Postgres so analytics
// survive a restart of the in-memory aggregator.
type SnapshotStore struct {
	client *postgres.Client
	logger *slog.Logger
}

// NewSnapshotStore builds a SnapshotStore over an open Postgres client.
func NewSnapshotStore(client *postgres.Client, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{client: client, logger: logger}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS analytics_snapshots (
			id          BIGSERIAL PRIMARY KEY,
			captured_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			stats       JSONB NOT NULL
		)`
	if _, err := s.client.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating analytics_snapshots table: %w", err)
	}
	return nil
}

// keepSnapshots bounds table growth; older rollups are pruned on each save.
const keepSnapshots = 1000

// Save writes one rollup row and prunes rollups beyond the retention limit
// in the same transaction.
func (s *SnapshotStore) Save(ctx context.Context, stats AggregatedStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats snapshot: %w", err)
	}
	const insert = `INSERT INTO analytics_snapshots (stats) VALUES ($1)`
	const prune = `
		DELETE FROM analytics_snapshots
		WHERE id NOT IN (
			SELECT id FROM analytics_snapshots ORDER BY id DESC LIMIT $1
		)`
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insert, payload); err != nil {
			return fmt.Errorf("inserting stats snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, prune, keepSnapshots); err != nil {
			return fmt.Errorf("pruning old snapshots: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent persisted rollup, if any.
func (s *SnapshotStore) Latest(ctx context.Context) (AggregatedStats, bool, error) {
	const query = `SELECT stats FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`
	var payload []byte
	err := s.client.DB.QueryRowContext(ctx, query).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AggregatedStats{}, false, nil
		}
		return AggregatedStats{}, false, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats AggregatedStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return AggregatedStats{}, false, fmt.Errorf("decoding stats snapshot: %w", err)
	}
	return stats, true, nil
}

// RunPeriodic snapshots the aggregator on the given interval until ctx is
// cancelled, writing one final snapshot on the way out.
func (s *SnapshotStore) RunPeriodic(ctx context.Context, agg *Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(flushCtx, agg.Stats()); err != nil {
				s.logger.Warn("final analytics snapshot failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Warn("analytics snapshot failed", "error", err)
			}
		}
	}
}
