package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/globalcorp/edgebridge/internal/model"
)

// StoredSample is a telemetry row checked out for upload.
type StoredSample struct {
	ID     int64
	Sample model.Sample
}

// StoredAnalytics is an analytics row checked out for upload, with its
// payload decoded back into fields.
type StoredAnalytics struct {
	ID        int64
	Timestamp time.Time
	AssetName string
	Category  model.KpiCategory
	Fields    map[string]any
}

// Batch is one upload unit: the rows atomically claimed under a shared
// batch id.
type Batch struct {
	ID        string
	Samples   []StoredSample
	Analytics []StoredAnalytics
}

// Empty reports whether the batch claimed no rows.
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Samples) == 0 && len(b.Analytics) == 0)
}

// NextBatch atomically claims up to maxSamples pending telemetry rows and
// maxAnalytics pending analytics rows under a fresh batch id, in insertion
// order. Rows already claimed by an in-flight batch are skipped, so
// concurrent callers never receive the same row. Returns nil when nothing
// is pending.
func (s *Store) NextBatch(ctx context.Context, maxSamples, maxAnalytics int) (*Batch, error) {
	batchID := uuid.NewString()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	for _, claim := range []struct {
		table string
		limit int
	}{
		{table: "telemetry", limit: maxSamples},
		{table: "analytics", limit: maxAnalytics},
	} {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %[1]s SET batch_id = ?
			WHERE id IN (
				SELECT id FROM %[1]s
				WHERE processed = 0 AND batch_id IS NULL
				ORDER BY id ASC
				LIMIT ?
			)`, claim.table), batchID, claim.limit)
		if err != nil {
			return nil, fmt.Errorf("claim %s rows: %w", claim.table, err)
		}
	}

	batch := &Batch{ID: batchID}

	batch.Samples, err = selectSamples(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}

	batch.Analytics, err = selectAnalytics(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.Empty() {
		// Nothing claimed; rolling back avoids burning a write.
		return nil, nil
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit batch tx: %w", err)
	}

	return batch, nil
}

// MarkProcessed flags every row of the batch as shipped.
func (s *Store) MarkProcessed(ctx context.Context, batchID string) error {
	for _, table := range []string{"telemetry", "analytics"} {
		_, err := s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET processed = 1 WHERE batch_id = ?", table), batchID)
		if err != nil {
			return fmt.Errorf("mark %s processed: %w", table, err)
		}
	}

	return nil
}

// DeleteBatch removes every row of the batch and returns the number of
// rows removed.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) (int64, error) {
	var total int64

	for _, table := range []string{"telemetry", "analytics"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE batch_id = ?", table), batchID)
		if err != nil {
			return total, fmt.Errorf("delete %s batch: %w", table, err)
		}

		n, _ := res.RowsAffected()
		total += n
	}

	return total, nil
}

// ReleaseBatch returns the batch's unprocessed rows to the pending pool
// after a failed upload so a later batch can claim them again.
func (s *Store) ReleaseBatch(ctx context.Context, batchID string) error {
	for _, table := range []string{"telemetry", "analytics"} {
		_, err := s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET batch_id = NULL WHERE batch_id = ? AND processed = 0", table), batchID)
		if err != nil {
			return fmt.Errorf("release %s batch: %w", table, err)
		}
	}

	return nil
}

func selectSamples(ctx context.Context, tx sqlx.QueryerContext, batchID string) ([]StoredSample, error) {
	rows, err := tx.QueryxContext(ctx, `
		SELECT id, ts, enterprise, site, area, line, machine, tag, value, value_kind, unit, quality
		FROM telemetry
		WHERE batch_id = ?
		ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("select batch samples: %w", err)
	}
	defer rows.Close()

	var out []StoredSample

	for rows.Next() {
		var (
			id                    int64
			ts, value, kind, unit string
			ent, site, area, line string
			machine, tag, quality string
		)

		err = rows.Scan(&id, &ts, &ent, &site, &area, &line, &machine, &tag, &value, &kind, &unit, &quality)
		if err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}

		when, parseErr := time.Parse(timeFormat, ts)
		if parseErr != nil {
			return nil, fmt.Errorf("parse sample timestamp %q: %w", ts, parseErr)
		}

		decoded, decodeErr := model.DecodeValue(kind, value)
		if decodeErr != nil {
			return nil, decodeErr
		}

		out = append(out, StoredSample{
			ID: id,
			Sample: model.Sample{
				Timestamp: when,
				Hierarchy: model.Hierarchy{
					Enterprise: ent,
					Site:       site,
					Area:       area,
					Line:       line,
					Machine:    machine,
				},
				Tag:     tag,
				Value:   decoded,
				Unit:    unit,
				Quality: model.Quality(quality),
			},
		})
	}

	return out, rows.Err()
}

func selectAnalytics(ctx context.Context, tx sqlx.QueryerContext, batchID string) ([]StoredAnalytics, error) {
	rows, err := tx.QueryxContext(ctx, `
		SELECT id, ts, asset_name, category, payload
		FROM analytics
		WHERE batch_id = ?
		ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("select batch analytics: %w", err)
	}
	defer rows.Close()

	var out []StoredAnalytics

	for rows.Next() {
		var (
			id                        int64
			ts, asset, category, blob string
		)

		err = rows.Scan(&id, &ts, &asset, &category, &blob)
		if err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}

		when, parseErr := time.Parse(timeFormat, ts)
		if parseErr != nil {
			return nil, fmt.Errorf("parse analytics timestamp %q: %w", ts, parseErr)
		}

		fields := make(map[string]any)

		err = json.Unmarshal([]byte(blob), &fields)
		if err != nil {
			return nil, fmt.Errorf("decode analytics payload: %w", err)
		}

		out = append(out, StoredAnalytics{
			ID:        id,
			Timestamp: when,
			AssetName: asset,
			Category:  model.KpiCategory(category),
			Fields:    fields,
		})
	}

	return out, rows.Err()
}
