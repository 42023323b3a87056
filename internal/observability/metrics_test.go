package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/globalcorp/edgebridge/internal/observability"
)

func setupTestMeter(t *testing.T) (*observability.BridgeMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	bm, err := observability.NewBridgeMetrics(meter)
	require.NoError(t, err)

	return bm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	m := findMetric(rm, name)
	require.NotNil(t, m, "%s metric not found", name)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s: expected int64 Sum data", name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestBridgeMetrics_CollectorCounters(t *testing.T) {
	t.Parallel()

	bm, reader := setupTestMeter(t)

	bm.SampleCollected("Press01")
	bm.SampleCollected("Press01")
	bm.SampleDropped("Press01")
	bm.Reconnected("Press01")
	bm.Quarantined("Welder02")

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumInt64(t, rm, "edgebridge.samples.collected.total"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "edgebridge.samples.dropped.total"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "edgebridge.collector.reconnects.total"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "edgebridge.collector.quarantines.total"))
}

func TestBridgeMetrics_CountersCarryAssetAttribute(t *testing.T) {
	t.Parallel()

	bm, reader := setupTestMeter(t)

	bm.SampleCollected("Press01")
	bm.SampleCollected("Welder02")

	rm := collectMetrics(t, reader)

	m := findMetric(rm, "edgebridge.samples.collected.total")
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	// One data point per asset value.
	assert.Len(t, sum.DataPoints, 2)
}

func TestBridgeMetrics_AppendHistogramBuckets(t *testing.T) {
	t.Parallel()

	bm, reader := setupTestMeter(t)

	bm.RecordAppend(context.Background(), 3*time.Millisecond)

	rm := collectMetrics(t, reader)

	m := findMetric(rm, "edgebridge.buffer.append.duration.seconds")
	require.NotNil(t, m, "append duration metric not found")

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected Histogram data type")
	require.NotEmpty(t, hist.DataPoints)

	expectedBounds := []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	assert.Equal(t, expectedBounds, hist.DataPoints[0].Bounds)
}

func TestBridgeMetrics_BufferObserver(t *testing.T) {
	t.Parallel()

	bm, reader := setupTestMeter(t)

	err := bm.ObserveBuffer(func() observability.BufferSnapshot {
		return observability.BufferSnapshot{BytesUsed: 4096, PendingRows: 12, Evictions: 3}
	})
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	bytesUsed := findMetric(rm, "edgebridge.buffer.bytes")
	require.NotNil(t, bytesUsed, "buffer bytes gauge not found")

	gauge, ok := bytesUsed.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4096), gauge.DataPoints[0].Value)

	assert.Equal(t, int64(3), sumInt64(t, rm, "edgebridge.buffer.evictions.total"))
}

func TestBridgeMetrics_UploadObserver(t *testing.T) {
	t.Parallel()

	bm, reader := setupTestMeter(t)

	err := bm.ObserveUploader(func() observability.UploadSnapshot {
		return observability.UploadSnapshot{BatchesSent: 5, BatchesFailed: 2, PointsSent: 480}
	})
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	// The batches counter splits by outcome attribute; the sum covers both.
	assert.Equal(t, int64(7), sumInt64(t, rm, "edgebridge.upload.batches.total"))
	assert.Equal(t, int64(480), sumInt64(t, rm, "edgebridge.upload.points.total"))
}

func TestBridgeMetrics_NilReceiverIsNoOp(t *testing.T) {
	t.Parallel()

	var bm *observability.BridgeMetrics

	// Must not panic; the collector runs with metrics unwired in tests.
	bm.SampleCollected("Press01")
	bm.SampleDropped("Press01")
	bm.Reconnected("Press01")
	bm.Quarantined("Press01")
	bm.RecordAppend(context.Background(), time.Millisecond)
}
