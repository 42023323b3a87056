package observability

import (
	"context"
	"fmt"
	"math"
	runtimemetrics "runtime/metrics"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricGoroutines  = "edgebridge.runtime.goroutines"
	metricGomaxprocs  = "edgebridge.runtime.gomaxprocs"
	metricMemoryBytes = "edgebridge.runtime.memory.bytes"

	// runtime/metrics sample names.
	sampleGoroutines  = "/sched/goroutines:goroutines"
	sampleGomaxprocs  = "/sched/gomaxprocs:threads"
	sampleMemoryTotal = "/memory/classes/total:bytes"
)

// RuntimeMetrics exposes Go runtime health as OTel instruments, read
// from runtime/metrics on each collection cycle. On an edge box the
// goroutine count is the first thing that moves when a field session
// leaks.
type RuntimeMetrics struct {
	goroutines  metric.Int64ObservableGauge
	gomaxprocs  metric.Int64ObservableGauge
	memoryBytes metric.Int64ObservableGauge
}

// NewRuntimeMetrics creates runtime instruments and registers their
// collection callback on the meter.
func NewRuntimeMetrics(mt metric.Meter) (*RuntimeMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &RuntimeMetrics{
		goroutines:  b.gauge(metricGoroutines, "Current number of live goroutines", "{goroutine}"),
		gomaxprocs:  b.gauge(metricGomaxprocs, "Current GOMAXPROCS setting", "{thread}"),
		memoryBytes: b.gauge(metricMemoryBytes, "Total memory mapped by the Go runtime", "By"),
	}

	if b.err != nil {
		return nil, b.err
	}

	_, err := mt.RegisterCallback(rm.observe, rm.goroutines, rm.gomaxprocs, rm.memoryBytes)
	if err != nil {
		return nil, fmt.Errorf("register runtime metrics callback: %w", err)
	}

	return rm, nil
}

// observe reads runtime/metrics samples and reports them to the OTel observer.
func (rm *RuntimeMetrics) observe(_ context.Context, obs metric.Observer) error {
	samples := []runtimemetrics.Sample{
		{Name: sampleGoroutines},
		{Name: sampleGomaxprocs},
		{Name: sampleMemoryTotal},
	}

	runtimemetrics.Read(samples)

	for idx := range samples {
		val, ok := sampleInt64Value(samples[idx].Value)
		if !ok {
			continue
		}

		switch samples[idx].Name {
		case sampleGoroutines:
			obs.ObserveInt64(rm.goroutines, val)
		case sampleGomaxprocs:
			obs.ObserveInt64(rm.gomaxprocs, val)
		case sampleMemoryTotal:
			obs.ObserveInt64(rm.memoryBytes, val)
		}
	}

	return nil
}

// sampleInt64Value extracts an int64 from a runtime/metrics value,
// handling both Uint64 and Float64 kinds.
func sampleInt64Value(val runtimemetrics.Value) (int64, bool) {
	switch val.Kind() {
	case runtimemetrics.KindUint64:
		u := val.Uint64()
		if u > uint64(math.MaxInt64) {
			return math.MaxInt64, true
		}

		return int64(u), true
	case runtimemetrics.KindFloat64:
		return int64(val.Float64()), true
	case runtimemetrics.KindBad, runtimemetrics.KindFloat64Histogram:
		return 0, false
	default:
		return 0, false
	}
}
