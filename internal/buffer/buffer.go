// Package buffer is the durable local store between the field collector
// and the upload pump. It keeps two relations in one SQLite file: raw
// telemetry samples and analytics records (KPI and anomaly rows share the
// analytics relation, discriminated by category). Rows survive restarts;
// a size cap bounds the on-disk footprint via lossy eviction.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the sqlite driver
)

// evictionChunk is how many of the oldest unprocessed samples one
// size-cap episode removes. Analytics rows are never evicted.
const evictionChunk = 1000

// timeFormat is the stored timestamp layout.
const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	enterprise  TEXT NOT NULL,
	site        TEXT NOT NULL,
	area        TEXT NOT NULL,
	line        TEXT NOT NULL,
	machine     TEXT NOT NULL,
	tag         TEXT NOT NULL,
	value       TEXT NOT NULL,
	value_kind  TEXT NOT NULL,
	unit        TEXT,
	quality     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0,
	batch_id    TEXT
);

CREATE TABLE IF NOT EXISTS analytics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	asset_name  TEXT NOT NULL,
	category    TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0,
	batch_id    TEXT
);

CREATE INDEX IF NOT EXISTS idx_telemetry_pending ON telemetry(processed, created_at);
CREATE INDEX IF NOT EXISTS idx_telemetry_batch   ON telemetry(batch_id);
CREATE INDEX IF NOT EXISTS idx_analytics_pending ON analytics(category, processed, created_at);
CREATE INDEX IF NOT EXISTS idx_analytics_batch   ON analytics(batch_id);
`

// Store is the SQLite-backed durable buffer. All mutation goes through its
// methods; the underlying transactions serialize concurrent writers.
type Store struct {
	db       *sqlx.DB
	path     string
	maxBytes int64
	log      *slog.Logger

	evictions atomic.Int64

	// onEvict, when set, observes each lossy eviction with the number of
	// samples removed.
	onEvict func(removed int64)
}

// Option configures a Store.
type Option func(*Store)

// WithEvictionObserver registers a callback invoked after each lossy
// size-cap eviction with the number of samples removed.
func WithEvictionObserver(fn func(removed int64)) Option {
	return func(s *Store) { s.onEvict = fn }
}

// Open opens (or creates) the buffer database at path with the given size
// cap and recovers any batch assignments leaked by a previous crash.
func Open(path string, maxBytes int64, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open buffer db: %w", err)
	}

	// SQLite allows one writer at a time; serialize access on a single
	// connection rather than relying on busy retries under load.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:       db,
		path:     path,
		maxBytes: maxBytes,
		log:      slog.With("component", "buffer"),
	}

	for _, opt := range opts {
		opt(store)
	}

	err = store.initialize()
	if err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *Store) initialize() error {
	// auto_vacuum must be set before the first table is created so that
	// eviction actually shrinks the file.
	for _, pragma := range []string{
		"PRAGMA auto_vacuum = FULL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		_, err := s.db.Exec(pragma)
		if err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create buffer schema: %w", err)
	}

	// Reclaim rows a crashed run assigned to a batch but never shipped.
	// They become eligible for the next NextBatch call (at-least-once).
	for _, table := range []string{"telemetry", "analytics"} {
		res, sweepErr := s.db.Exec(
			fmt.Sprintf("UPDATE %s SET batch_id = NULL WHERE processed = 0 AND batch_id IS NOT NULL", table))
		if sweepErr != nil {
			return fmt.Errorf("recover stale batch assignments: %w", sweepErr)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			s.log.Info("recovered stale batch assignments", "table", table, "rows", n)
		}
	}

	s.log.Info("buffer initialized", "path", s.path, "max_bytes", s.maxBytes)

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close buffer db: %w", err)
	}

	return nil
}

// Evictions reports the number of lossy size-cap evictions so far.
func (s *Store) Evictions() int64 { return s.evictions.Load() }

// sizeBytes reports the on-disk footprint of the database including its
// WAL file.
func (s *Store) sizeBytes() int64 {
	var total int64

	for _, p := range []string{s.path, s.path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}

	return total
}

// enforceCap runs the two-phase size cap policy: first drop processed rows
// older than one hour, then, if still over the cap, drop the oldest 1000
// unprocessed samples. Analytics rows are preferentially retained.
func (s *Store) enforceCap(ctx context.Context) {
	if s.maxBytes <= 0 || s.sizeBytes() <= s.maxBytes {
		return
	}

	s.log.Warn("buffer over size cap", "bytes", s.sizeBytes(), "cap", s.maxBytes)

	_, err := s.DeleteProcessedOlderThan(ctx, time.Hour)
	if err != nil {
		s.log.Error("size-cap compaction failed", "error", err)
	}

	s.checkpoint(ctx)

	if s.sizeBytes() <= s.maxBytes {
		return
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM telemetry
		WHERE processed = 0
		  AND id IN (
			SELECT id FROM telemetry
			WHERE processed = 0
			ORDER BY id ASC
			LIMIT ?
		  )`, evictionChunk)
	if err != nil {
		s.log.Error("size-cap eviction failed", "error", err)

		return
	}

	removed, _ := res.RowsAffected()
	s.evictions.Add(1)
	s.checkpoint(ctx)

	s.log.Warn("evicted oldest unprocessed samples under disk pressure",
		"removed", removed, "bytes", s.sizeBytes(), "cap", s.maxBytes)

	if s.onEvict != nil {
		s.onEvict(removed)
	}
}

// checkpoint folds the WAL back into the main file so sizeBytes reflects
// deletions.
func (s *Store) checkpoint(ctx context.Context) {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		s.log.Debug("wal checkpoint failed", "error", err)
	}
}

// DeleteProcessedOlderThan removes processed rows whose insertion time is
// older than the given age, from both relations. Returns the number of
// rows removed.
func (s *Store) DeleteProcessedOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format(timeFormat)

	var total int64

	for _, table := range []string{"telemetry", "analytics"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE processed = 1 AND created_at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("compact %s: %w", table, err)
		}

		n, _ := res.RowsAffected()
		total += n
	}

	if total > 0 {
		s.log.Info("compacted processed rows", "rows", total, "older_than", age)
	}

	return total, nil
}

// Status describes the buffer's current footprint and contents.
type Status struct {
	Path           string
	BytesUsed      int64
	BytesCap       int64
	SampleCount    int64
	SamplePending  int64
	AnalyticsCount int64
	AnalyticsPend  int64
	Oldest         string
	Newest         string
}

// Status reports the buffer footprint, row counts, and the oldest/newest
// insertion timestamps across both relations.
func (s *Store) Status(ctx context.Context) (Status, error) {
	st := Status{Path: s.path, BytesUsed: s.sizeBytes(), BytesCap: s.maxBytes}

	row := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0)
		FROM telemetry`)
	if err := row.Scan(&st.SampleCount, &st.SamplePending); err != nil {
		return Status{}, fmt.Errorf("telemetry stats: %w", err)
	}

	row = s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0)
		FROM analytics`)
	if err := row.Scan(&st.AnalyticsCount, &st.AnalyticsPend); err != nil {
		return Status{}, fmt.Errorf("analytics stats: %w", err)
	}

	row = s.db.QueryRowxContext(ctx, `
		SELECT COALESCE(MIN(created_at), ''), COALESCE(MAX(created_at), '')
		FROM (
			SELECT created_at FROM telemetry
			UNION ALL
			SELECT created_at FROM analytics
		)`)
	if err := row.Scan(&st.Oldest, &st.Newest); err != nil {
		return Status{}, fmt.Errorf("age stats: %w", err)
	}

	return st, nil
}

func marshalPayload(fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode analytics payload: %w", err)
	}

	return string(data), nil
}
