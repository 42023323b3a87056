package bridge

import (
	"context"

	"github.com/globalcorp/edgebridge/internal/buffer"
	"github.com/globalcorp/edgebridge/internal/uploader"
)

// Component states reported by the health rollup. A component can be
// unhealthy while the bridge overall is only degraded: the buffer keeps
// absorbing samples while the remote store or a field server is down.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Health is one rollup of component states plus the stats behind them.
type Health struct {
	Overall   string
	Collector string
	Buffer    string
	Remote    string

	Buffered buffer.Status
	Upload   uploader.Stats
}

// Health aggregates the component states: connected session counts from
// the collector, buffer reachability, and a remote store ping.
func (b *Bridge) Health(ctx context.Context) Health {
	h := Health{
		Overall:   StateHealthy,
		Collector: b.collectorState(),
		Buffer:    StateHealthy,
		Remote:    StateHealthy,
		Upload:    b.pump.Stats(),
	}

	status, err := b.store.Status(ctx)
	if err != nil {
		h.Buffer = StateUnhealthy
	} else {
		h.Buffered = status
	}

	err = b.writer.Ping(ctx)
	if err != nil {
		h.Remote = StateUnhealthy
	}

	if h.Collector != StateHealthy || h.Buffer != StateHealthy || h.Remote != StateHealthy {
		h.Overall = StateDegraded
	}

	return h
}

func (b *Bridge) collectorState() string {
	statuses := b.collector.Statuses()
	if len(statuses) == 0 {
		return StateHealthy
	}

	connected := 0

	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}

	switch {
	case connected == len(statuses):
		return StateHealthy
	case connected > 0:
		return StateDegraded
	default:
		return StateUnhealthy
	}
}

// healthLoop runs the rollup and maintenance every health interval.
func (b *Bridge) healthLoop(ctx context.Context) error {
	ticker := b.clk.Ticker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick logs one health rollup and compacts acknowledged rows past the
// retention age.
func (b *Bridge) tick(ctx context.Context) {
	h := b.Health(ctx)

	attrs := []any{
		"overall", h.Overall,
		"collector", h.Collector,
		"buffer", h.Buffer,
		"remote", h.Remote,
		"buffer_bytes", h.Buffered.BytesUsed,
		"pending_samples", h.Buffered.SamplePending,
		"pending_analytics", h.Buffered.AnalyticsPend,
		"batches_sent", h.Upload.BatchesSent,
		"batches_failed", h.Upload.BatchesFailed,
		"points_sent", h.Upload.PointsSent,
	}

	if h.Overall == StateHealthy {
		b.log.Info("health rollup", attrs...)
	} else {
		b.log.Warn("health rollup", attrs...)
	}

	removed, err := b.store.DeleteProcessedOlderThan(ctx, retentionAge)
	if err != nil {
		b.log.Error("buffer compaction failed", "error", err)

		return
	}

	if removed > 0 {
		b.log.Info("compacted acknowledged rows", "rows", removed)
	}
}
