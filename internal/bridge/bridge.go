// Package bridge wires the collector, per-asset analytics, durable
// buffer, and upload pump into one supervised process with a periodic
// health and maintenance loop.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/globalcorp/edgebridge/internal/analytics"
	"github.com/globalcorp/edgebridge/internal/buffer"
	"github.com/globalcorp/edgebridge/internal/collector"
	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/fieldbus"
	"github.com/globalcorp/edgebridge/internal/model"
	"github.com/globalcorp/edgebridge/internal/observability"
	"github.com/globalcorp/edgebridge/internal/uploader"
)

const (
	// healthInterval is the health rollup and maintenance period.
	healthInterval = 5 * time.Minute

	// retentionAge is how long acknowledged rows stay in the buffer
	// before the maintenance tick compacts them.
	retentionAge = 24 * time.Hour
)

// Bridge owns the full pipeline for one process: field sessions feeding
// per-asset analytics, every sample and derived record landing in the
// durable buffer, and the pump draining the buffer to the remote store.
type Bridge struct {
	cfg    *config.Config
	store  *buffer.Store
	writer uploader.Writer

	collector  *collector.Collector
	pump       *uploader.Pump
	processors map[string]*analytics.AssetAnalytics

	metrics *observability.BridgeMetrics
	clk     clock.Clock
	log     *slog.Logger

	// baseCtx bounds buffer writes issued from the collector sink. Set
	// once at the top of Run, before any session starts.
	baseCtx context.Context
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	clk     clock.Clock
	metrics *observability.BridgeMetrics
}

// WithClock substitutes the clock driving every periodic loop.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithMetrics wires the pipeline instruments. Without it the bridge
// runs unobserved.
func WithMetrics(m *observability.BridgeMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// New assembles the pipeline: one analytics processor per configured
// asset, the collector over the given dialer, and the upload pump with
// the global retry settings. prefix names the remote measurements.
func New(cfg *config.Config, store *buffer.Store, writer uploader.Writer, dialer fieldbus.Dialer, prefix string, opts ...Option) (*Bridge, error) {
	o := options{clk: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bridge{
		cfg:        cfg,
		store:      store,
		writer:     writer,
		processors: make(map[string]*analytics.AssetAnalytics),
		metrics:    o.metrics,
		clk:        o.clk,
		log:        slog.With("component", "bridge"),
		baseCtx:    context.Background(),
	}

	for i := range cfg.Sites {
		for j := range cfg.Sites[i].Assets {
			asset := &cfg.Sites[i].Assets[j]
			b.processors[asset.AssetName] = analytics.New(asset, analytics.WithClock(o.clk))
		}
	}

	collectorOpts := []collector.Option{collector.WithClock(o.clk)}
	if o.metrics != nil {
		collectorOpts = append(collectorOpts, collector.WithMetrics(o.metrics))
	}

	b.collector = collector.New(cfg, dialer, b.ingest, collectorOpts...)

	gs := cfg.GlobalSettings
	b.pump = uploader.New(store, writer, prefix,
		time.Duration(gs.SendInterval)*time.Second,
		time.Duration(gs.RetryDelay*float64(time.Second)),
		gs.RetryAttempts,
		uploader.WithClock(o.clk))

	if o.metrics != nil {
		err := b.registerObservers()
		if err != nil {
			return nil, fmt.Errorf("register pipeline observers: %w", err)
		}
	}

	return b, nil
}

// Run starts the collector, the upload pump, and the health loop, and
// blocks until ctx is cancelled and every task has drained. A clean
// shutdown returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	b.baseCtx = ctx

	b.log.Info("bridge starting",
		"sites", len(b.cfg.Sites),
		"assets", len(b.processors),
		"buffer", b.cfg.GlobalSettings.BufferPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.collector.Run(gctx) })
	g.Go(func() error { return b.pump.Run(gctx) })
	g.Go(func() error { return b.healthLoop(gctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	b.log.Info("bridge stopped")

	return nil
}

// ingest is the collector sink: run the asset's analytics over the
// sample, then land the sample and whatever the analytics emitted in
// one transaction. The raw sample is buffered even when analytics is
// silent or absent for the asset.
func (b *Bridge) ingest(sample model.Sample) {
	var (
		kpis    []model.KpiRecord
		anomaly *model.AnomalyRecord
	)

	if proc, ok := b.processors[sample.Hierarchy.Machine]; ok {
		kpis, anomaly = proc.Process(sample)
	}

	start := b.clk.Now()

	err := b.store.AppendBatch(b.baseCtx, sample, kpis, anomaly)
	if err != nil {
		b.log.Error("failed to buffer sample",
			"asset", sample.Hierarchy.Machine, "tag", sample.Tag, "error", err)

		return
	}

	b.metrics.RecordAppend(b.baseCtx, b.clk.Since(start))
}

// registerObservers backs the buffer and uploader gauges with live
// snapshot functions.
func (b *Bridge) registerObservers() error {
	err := b.metrics.ObserveBuffer(func() observability.BufferSnapshot {
		status, statusErr := b.store.Status(context.Background())
		if statusErr != nil {
			return observability.BufferSnapshot{Evictions: b.store.Evictions()}
		}

		return observability.BufferSnapshot{
			BytesUsed:   status.BytesUsed,
			PendingRows: status.SamplePending + status.AnalyticsPend,
			Evictions:   b.store.Evictions(),
		}
	})
	if err != nil {
		return err
	}

	return b.metrics.ObserveUploader(func() observability.UploadSnapshot {
		stats := b.pump.Stats()

		return observability.UploadSnapshot{
			BatchesSent:   stats.BatchesSent,
			BatchesFailed: stats.BatchesFailed,
			PointsSent:    stats.PointsSent,
		}
	})
}
