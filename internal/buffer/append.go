package buffer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/globalcorp/edgebridge/internal/model"
)

const insertSampleSQL = `
	INSERT INTO telemetry
		(ts, enterprise, site, area, line, machine, tag, value, value_kind, unit, quality, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertAnalyticsSQL = `
	INSERT INTO analytics (ts, asset_name, category, payload, created_at)
	VALUES (?, ?, ?, ?, ?)`

// AppendSample persists one telemetry sample and enforces the size cap.
func (s *Store) AppendSample(ctx context.Context, sample model.Sample) error {
	err := insertSample(ctx, s.db, sample, time.Now().UTC())
	if err != nil {
		return err
	}

	s.enforceCap(ctx)

	return nil
}

// AppendKPI persists one analytics KPI record.
func (s *Store) AppendKPI(ctx context.Context, rec model.KpiRecord) error {
	err := insertAnalytics(ctx, s.db,
		rec.Timestamp, rec.AssetName, string(rec.Category), rec.Fields(), time.Now().UTC())
	if err != nil {
		return err
	}

	s.enforceCap(ctx)

	return nil
}

// AppendAnomaly persists one predictive anomaly record under the
// predictive category.
func (s *Store) AppendAnomaly(ctx context.Context, rec model.AnomalyRecord) error {
	err := insertAnalytics(ctx, s.db,
		rec.Timestamp, rec.AssetName, string(model.CategoryPredictive), rec.Fields(), time.Now().UTC())
	if err != nil {
		return err
	}

	s.enforceCap(ctx)

	return nil
}

// AppendBatch persists a sample together with the analytics records it
// produced in one transaction. Either everything lands or nothing does.
func (s *Store) AppendBatch(ctx context.Context, sample model.Sample, kpis []model.KpiRecord, anomaly *model.AnomalyRecord) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	err = insertSample(ctx, tx, sample, now)
	if err != nil {
		return err
	}

	for _, rec := range kpis {
		err = insertAnalytics(ctx, tx, rec.Timestamp, rec.AssetName, string(rec.Category), rec.Fields(), now)
		if err != nil {
			return err
		}
	}

	if anomaly != nil {
		err = insertAnalytics(ctx, tx,
			anomaly.Timestamp, anomaly.AssetName, string(model.CategoryPredictive), anomaly.Fields(), now)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}

	s.enforceCap(ctx)

	return nil
}

func insertSample(ctx context.Context, q sqlx.ExtContext, sample model.Sample, now time.Time) error {
	kind, text := model.EncodeValue(sample.Value)

	_, err := q.ExecContext(ctx, insertSampleSQL,
		sample.Timestamp.UTC().Format(timeFormat),
		sample.Hierarchy.Enterprise,
		sample.Hierarchy.Site,
		sample.Hierarchy.Area,
		sample.Hierarchy.Line,
		sample.Hierarchy.Machine,
		sample.Tag,
		text,
		kind,
		sample.Unit,
		string(sample.Quality),
		now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	return nil
}

func insertAnalytics(ctx context.Context, q sqlx.ExtContext, ts time.Time, asset, category string, fields map[string]any, now time.Time) error {
	payload, err := marshalPayload(fields)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, insertAnalyticsSQL,
		ts.UTC().Format(timeFormat), asset, category, payload, now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert analytics: %w", err)
	}

	return nil
}
