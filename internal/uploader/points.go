package uploader

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/globalcorp/edgebridge/internal/buffer"
	"github.com/globalcorp/edgebridge/internal/model"
)

// Measurement name suffixes appended to the configured prefix.
const (
	telemetrySuffix = "_telemetry"
	analyticsSuffix = "_analytics"
)

// samplePoint maps one telemetry sample onto the remote schema: the
// hierarchy and tag metadata as tags, and exactly one value field picked
// by the runtime type (integers widen to the float field).
func samplePoint(prefix string, sample model.Sample) *write.Point {
	tags := map[string]string{
		"enterprise": sample.Hierarchy.Enterprise,
		"site":       sample.Hierarchy.Site,
		"area":       sample.Hierarchy.Area,
		"line":       sample.Hierarchy.Line,
		"machine":    sample.Hierarchy.Machine,
		"tag":        sample.Tag,
		"quality":    string(sample.Quality),
	}

	if sample.Unit != "" {
		tags["unit"] = sample.Unit
	}

	fields := make(map[string]any, 1)

	switch sample.Value.Kind() {
	case model.KindFloat, model.KindInt:
		v, _ := sample.Value.Float()
		fields["value_float"] = v
	case model.KindBool:
		v, _ := sample.Value.Bool()
		fields["value_bool"] = v
	default:
		fields["value_string"] = sample.Value.Text()
	}

	return influxdb2.NewPoint(prefix+telemetrySuffix, tags, fields, sample.Timestamp)
}

// analyticsPoint maps one analytics row onto the remote schema. The
// buffered payload is already flattened, so its fields pass through.
func analyticsPoint(prefix string, row buffer.StoredAnalytics) *write.Point {
	tags := map[string]string{
		"asset_name":     row.AssetName,
		"analytics_type": string(row.Category),
	}

	return influxdb2.NewPoint(prefix+analyticsSuffix, tags, row.Fields, row.Timestamp)
}

// batchPoints maps a checked-out batch, samples first.
func batchPoints(prefix string, batch *buffer.Batch) []*write.Point {
	points := make([]*write.Point, 0, len(batch.Samples)+len(batch.Analytics))

	for _, row := range batch.Samples {
		points = append(points, samplePoint(prefix, row.Sample))
	}

	for _, row := range batch.Analytics {
		points = append(points, analyticsPoint(prefix, row))
	}

	return points
}
