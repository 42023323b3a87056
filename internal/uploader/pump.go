package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/globalcorp/edgebridge/internal/buffer"
)

// Batch checkout limits per upload cycle.
const (
	maxBatchSamples   = 100
	maxBatchAnalytics = 50
)

// Stats is a snapshot of the pump's lifetime counters.
type Stats struct {
	BatchesSent   int64
	BatchesFailed int64
	PointsSent    int64
	LastSuccess   time.Time
}

// SuccessRate is the fraction of attempted batches that shipped, in
// [0, 1]; 1 when nothing was attempted yet.
func (s Stats) SuccessRate() float64 {
	total := s.BatchesSent + s.BatchesFailed
	if total == 0 {
		return 1
	}

	return float64(s.BatchesSent) / float64(total)
}

// Pump periodically checks batches out of the buffer and ships them to
// the remote store. Acknowledged rows are deleted; failed batches are
// released back to the pending pool.
type Pump struct {
	store  *buffer.Store
	writer Writer
	prefix string

	sendInterval time.Duration
	retryDelay   time.Duration
	maxRetry     int

	clk clock.Clock
	log *slog.Logger

	batchesSent   atomic.Int64
	batchesFailed atomic.Int64
	pointsSent    atomic.Int64
	lastSuccess   atomic.Int64
}

// Option configures a Pump.
type Option func(*Pump)

// WithClock substitutes the clock driving the send interval.
func WithClock(clk clock.Clock) Option {
	return func(p *Pump) { p.clk = clk }
}

// New builds an upload pump. sendInterval is the cycle period; maxRetry
// and retryDelay govern the per-cycle write retries.
func New(store *buffer.Store, writer Writer, prefix string, sendInterval, retryDelay time.Duration, maxRetry int, opts ...Option) *Pump {
	p := &Pump{
		store:        store,
		writer:       writer,
		prefix:       prefix,
		sendInterval: sendInterval,
		retryDelay:   retryDelay,
		maxRetry:     maxRetry,
		clk:          clock.New(),
		log:          slog.With("component", "uploader"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes one upload cycle per send interval until cancellation.
func (p *Pump) Run(ctx context.Context) error {
	ticker := p.clk.Ticker(p.sendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := p.Cycle(ctx)
			if err != nil && ctx.Err() == nil {
				p.log.Warn("upload cycle failed, rows remain buffered", "error", err)
			}
		}
	}
}

// Cycle checks out one batch and ships it. An empty buffer is a no-op.
func (p *Pump) Cycle(ctx context.Context) error {
	batch, err := p.store.NextBatch(ctx, maxBatchSamples, maxBatchAnalytics)
	if err != nil {
		return fmt.Errorf("check out batch: %w", err)
	}

	if batch.Empty() {
		return nil
	}

	points := batchPoints(p.prefix, batch)

	err = p.ship(ctx, points)
	if err != nil {
		p.batchesFailed.Add(1)

		releaseErr := p.store.ReleaseBatch(ctx, batch.ID)
		if releaseErr != nil {
			p.log.Error("failed to release batch after upload failure",
				"batch_id", batch.ID, "error", releaseErr)
		}

		return fmt.Errorf("ship batch %s: %w", batch.ID, err)
	}

	err = p.store.MarkProcessed(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("mark batch %s processed: %w", batch.ID, err)
	}

	removed, err := p.store.DeleteBatch(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("delete batch %s: %w", batch.ID, err)
	}

	p.batchesSent.Add(1)
	p.pointsSent.Add(int64(len(points)))
	p.lastSuccess.Store(p.clk.Now().UnixNano())

	p.log.Info("batch uploaded",
		"batch_id", batch.ID,
		"samples", len(batch.Samples),
		"analytics", len(batch.Analytics),
		"rows_removed", removed)

	return nil
}

// ship writes the points, pinging before each attempt and retrying on a
// fixed delay up to the configured budget.
func (p *Pump) ship(ctx context.Context, points []*write.Point) error {
	attempt := 0

	operation := func() error {
		attempt++

		err := p.writer.Ping(ctx)
		if err != nil {
			p.log.Debug("remote store ping failed", "attempt", attempt, "error", err)

			return err
		}

		err = p.writer.WritePoints(ctx, points)
		if err != nil {
			p.log.Debug("write attempt failed", "attempt", attempt, "error", err)
		}

		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryDelay), uint64(p.maxRetry-1)),
		ctx)

	return backoff.Retry(operation, policy)
}

// Stats snapshots the pump counters.
func (p *Pump) Stats() Stats {
	stats := Stats{
		BatchesSent:   p.batchesSent.Load(),
		BatchesFailed: p.batchesFailed.Load(),
		PointsSent:    p.pointsSent.Load(),
	}

	if ns := p.lastSuccess.Load(); ns > 0 {
		stats.LastSuccess = time.Unix(0, ns)
	}

	return stats
}
