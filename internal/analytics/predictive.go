package analytics

import (
	"log/slog"
	"strings"

	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/model"
)

const (
	// predictiveWindowSize covers thirty minutes of 1 Hz samples.
	predictiveWindowSize = 1800

	// baselineMinSamples is the per-tag window fill that triggers baseline
	// computation (fifteen minutes).
	baselineMinSamples = 900

	// anomalyZThreshold is the z-score above which a sample counts as a
	// statistical anomaly.
	anomalyZThreshold = 2.5

	// trendSlice and trendMinSamples bound the OLS trend fit.
	trendSlice      = 30
	trendMinSamples = 10
)

// Domain anomaly pattern thresholds, gated by substring match on the tag
// name.
const (
	socDropThresholdPercent  = 20.0
	socDropHighPercent       = 30.0
	powerSpikeRatioThreshold = 2.0
	powerSpikeRatioHigh      = 3.0
	efficiencyDropThreshold  = 15.0
	efficiencyDropHigh       = 25.0
	voltageDeviationPercent  = 10.0
	voltageDeviationHigh     = 15.0
)

// baseline holds the frozen per-tag summary statistics learned from the
// first baselineMinSamples observations.
type baseline struct {
	mean   float64
	stdev  float64
	min    float64
	max    float64
	median float64
	q25    float64
	q75    float64
}

// predictiveProcessor learns per-tag baselines and then scores every
// monitored sample: z-score, OLS trend, maintenance score, and domain
// anomaly patterns.
type predictiveProcessor struct {
	monitored  map[string]bool
	thresholds map[string]float64
	horizon    int

	windows   map[string]*window
	baselines map[string]baseline

	// ready flips true once every monitored tag has a baseline; baselines
	// are frozen from then on, there is no re-baseline path.
	ready bool

	log *slog.Logger
}

func newPredictiveProcessor(cfg *config.PredictiveConfig, log *slog.Logger) *predictiveProcessor {
	monitored := cfg.MonitoredTags()

	windows := make(map[string]*window, len(monitored))
	for _, tag := range monitored {
		windows[tag] = newWindow(predictiveWindowSize)
	}

	return &predictiveProcessor{
		monitored:  tagSet(monitored),
		thresholds: cfg.MaintenanceThresholds,
		horizon:    cfg.PredictionHorizon,
		windows:    windows,
		baselines:  make(map[string]baseline, len(monitored)),
		log:        log,
	}
}

func (p *predictiveProcessor) baselineReady() bool { return p.ready }

func (p *predictiveProcessor) process(sample model.Sample) (*model.AnomalyRecord, bool) {
	if !p.monitored[sample.Tag] {
		return nil, false
	}

	v, numeric := sample.Value.Float()
	if !numeric {
		return nil, false
	}

	p.windows[sample.Tag].push(v)

	if !p.ready && p.windows[sample.Tag].len() >= baselineMinSamples {
		p.learnBaseline(sample.Tag)
	}

	if !p.ready {
		return nil, false
	}

	return p.score(sample, v), true
}

// learnBaseline recomputes the tag's baseline from its current window and
// freezes the whole processor once every monitored tag has one.
func (p *predictiveProcessor) learnBaseline(tag string) {
	values := p.windows[tag].values()

	p.baselines[tag] = baseline{
		mean:   mean(values),
		stdev:  stdev(values),
		min:    minOf(values),
		max:    maxOf(values),
		median: median(values),
		q25:    percentile(values, 25),
		q75:    percentile(values, 75),
	}

	if len(p.baselines) == len(p.windows) {
		p.ready = true
		p.log.Info("baseline statistics learned for all monitored tags",
			"tags", len(p.baselines))
	}
}

func (p *predictiveProcessor) score(sample model.Sample, value float64) *model.AnomalyRecord {
	base := p.baselines[sample.Tag]

	var zScore float64
	if base.stdev > 0 {
		zScore = abs(value-base.mean) / base.stdev
	}

	thresholdAnomaly := false
	if threshold, ok := p.thresholds[sample.Tag]; ok {
		thresholdAnomaly = value > threshold
	}

	trend := p.trend(sample.Tag)

	return &model.AnomalyRecord{
		Timestamp:              sample.Timestamp,
		Tag:                    sample.Tag,
		CurrentValue:           value,
		BaselineMean:           base.mean,
		ZScore:                 round3(zScore),
		IsAnomaly:              zScore > anomalyZThreshold,
		ThresholdAnomaly:       thresholdAnomaly,
		Trend:                  round4(trend),
		MaintenanceScore:       round2(p.maintenanceScore(sample.Tag, value, zScore, trend)),
		PredictionHorizonHours: p.horizon,
		EnergyAnomalies:        p.detectEnergyAnomalies(sample.Tag, value),
	}
}

// trend is the OLS slope over the last trendSlice samples, 0 when fewer
// than trendMinSamples are available.
func (p *predictiveProcessor) trend(tag string) float64 {
	recent := lastN(p.windows[tag].values(), trendSlice)
	if len(recent) < trendMinSamples {
		return 0
	}

	return olsSlope(recent)
}

// maintenanceScore sums four banded components (z-score, trend magnitude,
// configured threshold proximity, tag criticality) capped at 100.
func (p *predictiveProcessor) maintenanceScore(tag string, value, zScore, trend float64) float64 {
	var score float64

	switch {
	case zScore > 3:
		score += 30
	case zScore > 2:
		score += 25
	case zScore > 1:
		score += 15
	case zScore > 0.5:
		score += 10
	}

	switch t := abs(trend); {
	case t > 0.1:
		score += 25
	case t > 0.05:
		score += 18
	case t > 0.01:
		score += 12
	}

	if threshold, ok := p.thresholds[tag]; ok {
		switch {
		case value > threshold:
			score += 25
		case value > threshold*0.9:
			score += 18
		case value > threshold*0.8:
			score += 12
		}
	}

	lower := strings.ToLower(tag)

	switch {
	case strings.Contains(lower, "battery"), strings.Contains(lower, "soc"), strings.Contains(lower, "temperature"):
		switch {
		case value > 80:
			score += 20
		case value > 70:
			score += 15
		case value > 60:
			score += 10
		}
	case strings.Contains(lower, "efficiency"):
		switch {
		case value < 70:
			score += 20
		case value < 80:
			score += 15
		case value < 85:
			score += 10
		}
	}

	return min(score, 100)
}

// detectEnergyAnomalies checks the domain patterns applicable to the tag
// name. Each pattern compares a recent slice of the tag's window against
// an older one.
func (p *predictiveProcessor) detectEnergyAnomalies(tag string, value float64) map[string]model.EnergyAnomaly {
	anomalies := make(map[string]model.EnergyAnomaly)
	data := p.windows[tag].values()
	lower := strings.ToLower(tag)

	switch {
	case strings.Contains(lower, "soc"), strings.Contains(lower, "battery"):
		if len(data) >= 600 {
			drop := mean(span(data, -600, -300)) - mean(span(data, -300, len(data)))
			if drop > socDropThresholdPercent {
				anomalies["battery_soc_drop"] = model.EnergyAnomaly{
					Severity: severity(drop > socDropHighPercent),
					Values:   map[string]float64{"drop_percent": round2(drop)},
				}
			}
		}
	case strings.Contains(lower, "power"):
		if len(data) >= 60 {
			recent := span(data, -60, len(data))

			baselineAvg := value
			if len(data) >= 300 {
				baselineAvg = mean(span(data, -300, -60))
			}

			peak := maxOf(recent)

			ratio := 1.0
			if baselineAvg > 0 {
				ratio = peak / baselineAvg
			}

			if ratio > powerSpikeRatioThreshold {
				anomalies["power_spike"] = model.EnergyAnomaly{
					Severity: severity(ratio > powerSpikeRatioHigh),
					Values: map[string]float64{
						"spike_ratio": round2(ratio),
						"peak_power":  round3(peak),
					},
				}
			}
		}
	case strings.Contains(lower, "efficiency"):
		if len(data) >= 600 {
			drop := mean(span(data, -600, -300)) - mean(span(data, -300, len(data)))
			if drop > efficiencyDropThreshold {
				anomalies["efficiency_drop"] = model.EnergyAnomaly{
					Severity: severity(drop > efficiencyDropHigh),
					Values:   map[string]float64{"drop_percent": round2(drop)},
				}
			}
		}
	case strings.Contains(lower, "voltage"):
		if len(data) >= 120 {
			recent := mean(span(data, -120, len(data)))

			baselineAvg := value
			if len(data) >= 600 {
				baselineAvg = mean(span(data, -600, -120))
			}

			var deviation float64
			if baselineAvg > 0 {
				deviation = abs(recent-baselineAvg) / baselineAvg * 100
			}

			if deviation > voltageDeviationPercent {
				anomalies["voltage_deviation"] = model.EnergyAnomaly{
					Severity: severity(deviation > voltageDeviationHigh),
					Values:   map[string]float64{"deviation_percent": round2(deviation)},
				}
			}
		}
	}

	return anomalies
}

func severity(high bool) string {
	if high {
		return "high"
	}

	return "medium"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
