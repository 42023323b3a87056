package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricSamplesCollected = "edgebridge.samples.collected.total"
	metricSamplesDropped   = "edgebridge.samples.dropped.total"
	metricReconnects       = "edgebridge.collector.reconnects.total"
	metricQuarantines      = "edgebridge.collector.quarantines.total"
	metricAppendDuration   = "edgebridge.buffer.append.duration.seconds"
	metricBufferBytes      = "edgebridge.buffer.bytes"
	metricBufferPending    = "edgebridge.buffer.pending.rows"
	metricBufferEvictions  = "edgebridge.buffer.evictions.total"
	metricBatchesTotal     = "edgebridge.upload.batches.total"
	metricPointsTotal      = "edgebridge.upload.points.total"

	attrAsset  = "asset"
	attrStatus = "status"

	statusSent   = "sent"
	statusFailed = "failed"
)

// appendBucketBoundaries covers 1ms to 5s for local database writes that
// are sub-millisecond in steady state but stall during WAL checkpoints.
var appendBucketBoundaries = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// BufferSnapshot is a point-in-time view of the durable buffer reported
// by a registered observer.
type BufferSnapshot struct {
	BytesUsed   int64
	PendingRows int64
	Evictions   int64
}

// UploadSnapshot is a point-in-time view of the upload pump counters
// reported by a registered observer.
type UploadSnapshot struct {
	BatchesSent   int64
	BatchesFailed int64
	PointsSent    int64
}

// BridgeMetrics holds the OTel instruments for the collect, buffer, and
// upload pipeline. The collector-facing methods are safe to call on a
// nil receiver (no-op), so wiring metrics stays optional.
type BridgeMetrics struct {
	meter metric.Meter

	samplesCollected metric.Int64Counter
	samplesDropped   metric.Int64Counter
	reconnects       metric.Int64Counter
	quarantines      metric.Int64Counter
	appendDuration   metric.Float64Histogram
}

// NewBridgeMetrics creates the pipeline metric instruments from the given meter.
func NewBridgeMetrics(mt metric.Meter) (*BridgeMetrics, error) {
	b := newMetricBuilder(mt)

	bm := &BridgeMetrics{
		meter:            mt,
		samplesCollected: b.counter(metricSamplesCollected, "Total field samples collected", "{sample}"),
		samplesDropped:   b.counter(metricSamplesDropped, "Total samples dropped on notification backpressure", "{sample}"),
		reconnects:       b.counter(metricReconnects, "Total field server session establishments", "{connection}"),
		quarantines:      b.counter(metricQuarantines, "Total asset quarantines after exhausted connect budgets", "{asset}"),
		appendDuration:   b.histogram(metricAppendDuration, "Durable buffer append duration in seconds", "s", appendBucketBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return bm, nil
}

// SampleCollected counts one collected sample for the asset.
func (bm *BridgeMetrics) SampleCollected(asset string) {
	if bm == nil {
		return
	}

	bm.samplesCollected.Add(context.Background(), 1, assetAttr(asset))
}

// SampleDropped counts one sample lost to notification backpressure.
func (bm *BridgeMetrics) SampleDropped(asset string) {
	if bm == nil {
		return
	}

	bm.samplesDropped.Add(context.Background(), 1, assetAttr(asset))
}

// Reconnected counts one established field server session.
func (bm *BridgeMetrics) Reconnected(asset string) {
	if bm == nil {
		return
	}

	bm.reconnects.Add(context.Background(), 1, assetAttr(asset))
}

// Quarantined counts one asset entering quarantine.
func (bm *BridgeMetrics) Quarantined(asset string) {
	if bm == nil {
		return
	}

	bm.quarantines.Add(context.Background(), 1, assetAttr(asset))
}

// RecordAppend records one durable buffer append duration.
func (bm *BridgeMetrics) RecordAppend(ctx context.Context, duration time.Duration) {
	if bm == nil {
		return
	}

	bm.appendDuration.Record(ctx, duration.Seconds())
}

// ObserveBuffer registers gauges backed by the snapshot function. The
// meter's reader invokes it on each collection cycle.
func (bm *BridgeMetrics) ObserveBuffer(snapshot func() BufferSnapshot) error {
	b := newMetricBuilder(bm.meter)

	bytesUsed := b.gauge(metricBufferBytes, "Durable buffer footprint on disk", "By")
	pending := b.gauge(metricBufferPending, "Rows awaiting upload", "{row}")
	evictions := b.observableCounter(metricBufferEvictions, "Total unprocessed samples evicted under the size cap", "{sample}")

	if b.err != nil {
		return b.err
	}

	_, err := bm.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		snap := snapshot()
		obs.ObserveInt64(bytesUsed, snap.BytesUsed)
		obs.ObserveInt64(pending, snap.PendingRows)
		obs.ObserveInt64(evictions, snap.Evictions)

		return nil
	}, bytesUsed, pending, evictions)

	return err
}

// ObserveUploader registers counters backed by the snapshot function.
func (bm *BridgeMetrics) ObserveUploader(snapshot func() UploadSnapshot) error {
	b := newMetricBuilder(bm.meter)

	batches := b.observableCounter(metricBatchesTotal, "Total upload batches by outcome", "{batch}")
	points := b.observableCounter(metricPointsTotal, "Total points shipped to the remote store", "{point}")

	if b.err != nil {
		return b.err
	}

	sentAttrs := metric.WithAttributes(attribute.String(attrStatus, statusSent))
	failedAttrs := metric.WithAttributes(attribute.String(attrStatus, statusFailed))

	_, err := bm.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		snap := snapshot()
		obs.ObserveInt64(batches, snap.BatchesSent, sentAttrs)
		obs.ObserveInt64(batches, snap.BatchesFailed, failedAttrs)
		obs.ObserveInt64(points, snap.PointsSent)

		return nil
	}, batches, points)

	return err
}

func assetAttr(asset string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(attrAsset, asset))
}
