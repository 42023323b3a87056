// Package model defines the data types flowing through the edge bridge
// pipeline: field samples, analytics outputs, and the ISA-95 naming
// hierarchy shared by all of them.
package model

import "time"

// Quality is the wire-level data quality of a sampled value.
type Quality string

const (
	// QualityGood marks a value the server reported as valid.
	QualityGood Quality = "GOOD"
	// QualityBad marks a value the server reported as invalid.
	QualityBad Quality = "BAD"
	// QualityUncertain marks a value with degraded confidence.
	QualityUncertain Quality = "UNCERTAIN"
)

// ParseQuality maps a stored quality string back to a Quality,
// defaulting to GOOD for unknown input.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityBad:
		return QualityBad
	case QualityUncertain:
		return QualityUncertain
	default:
		return QualityGood
	}
}

// Hierarchy is the five-level ISA-95 naming hierarchy. All levels are
// required on every sample.
type Hierarchy struct {
	Enterprise string
	Site       string
	Area       string
	Line       string
	Machine    string
}

// Sample is one observation of one tag at one instant.
type Sample struct {
	Timestamp time.Time
	Hierarchy Hierarchy
	Tag       string
	Value     Value
	Unit      string
	Quality   Quality
}

// KpiCategory identifies which analytics sub-processor produced a KPI record.
type KpiCategory string

const (
	// CategoryOEE is the Overall Equipment Effectiveness sub-processor.
	CategoryOEE KpiCategory = "oee"
	// CategoryEnergy is the power/energy consumption sub-processor.
	CategoryEnergy KpiCategory = "energy"
	// CategoryEnergyKPI is the renewable/battery/load KPI sub-processor.
	CategoryEnergyKPI KpiCategory = "energy_kpis"
	// CategoryPredictive is the per-sample anomaly scoring sub-processor.
	// Anomaly records share the analytics relation under this category.
	CategoryPredictive KpiCategory = "predictive"
)

// KpiRecord is an aggregate analytics output for one asset at one
// aggregation tick.
type KpiRecord struct {
	Timestamp time.Time
	AssetName string
	Category  KpiCategory
	Metrics   map[string]float64
}

// Fields returns the record's metrics as a remote-store field map.
func (k KpiRecord) Fields() map[string]any {
	fields := make(map[string]any, len(k.Metrics))
	for name, v := range k.Metrics {
		fields[name] = v
	}

	return fields
}

// EnergyAnomaly is one detected domain-specific anomaly pattern
// (battery_soc_drop, power_spike, efficiency_drop, voltage_deviation).
type EnergyAnomaly struct {
	Severity string
	// Values holds the pattern-specific measurements, e.g. drop_percent
	// or spike_ratio.
	Values map[string]float64
}

// AnomalyRecord is the per-sample predictive output for one monitored tag.
// It is only emitted once baseline learning has completed for the asset.
type AnomalyRecord struct {
	Timestamp        time.Time
	AssetName        string
	Tag              string
	CurrentValue     float64
	BaselineMean     float64
	ZScore           float64
	IsAnomaly        bool
	ThresholdAnomaly bool
	Trend            float64
	MaintenanceScore float64
	// PredictionHorizonHours is carried verbatim from the asset's
	// predictive configuration.
	PredictionHorizonHours int
	// EnergyAnomalies maps pattern name to detection detail; empty when
	// no pattern fired.
	EnergyAnomalies map[string]EnergyAnomaly
}

// Fields flattens the record into a remote-store field map. Nested energy
// anomalies flatten to <pattern>_<key> entries, with the detected flag as
// a bool field and the severity as a string field.
func (a AnomalyRecord) Fields() map[string]any {
	fields := map[string]any{
		"tag":                      a.Tag,
		"current_value":            a.CurrentValue,
		"baseline_mean":            a.BaselineMean,
		"z_score":                  a.ZScore,
		"is_anomaly":               a.IsAnomaly,
		"threshold_anomaly":        a.ThresholdAnomaly,
		"trend":                    a.Trend,
		"maintenance_score":        a.MaintenanceScore,
		"prediction_horizon_hours": float64(a.PredictionHorizonHours),
	}

	for pattern, detail := range a.EnergyAnomalies {
		fields[pattern+"_detected"] = true
		fields[pattern+"_severity"] = detail.Severity

		for key, v := range detail.Values {
			fields[pattern+"_"+key] = v
		}
	}

	return fields
}
