package analytics

import (
	"time"

	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/model"
)

const (
	// energyWindowSize covers two hours of 1 Hz samples.
	energyWindowSize = 7200

	// aggregationSlice is how many trailing samples each aggregation tick
	// averages over (5 minutes at 1 Hz).
	aggregationSlice = 300

	// powerFactorSlice is the aligned window length used for the power
	// factor estimate.
	powerFactorSlice = 60

	// defaultPowerFactor is reported when no aligned voltage/current data
	// is available.
	defaultPowerFactor = 0.95

	// defaultAggregationIntervalSec applies when the asset config omits
	// the interval.
	defaultAggregationIntervalSec = 300
)

// energyProcessor aggregates power consumption metrics on a wall-clock
// interval.
type energyProcessor struct {
	powerTags   map[string]bool
	energyTags  map[string]bool
	voltageTags map[string]bool
	currentTags map[string]bool

	power   *window
	voltage *window
	current *window

	interval        time.Duration
	lastAggregation time.Time

	// totalEnergy accumulates per-tick kWh in process memory only. It
	// resets on restart, producing a visible discontinuity in the remote
	// store; accepted behavior.
	totalEnergy float64

	now func() time.Time
}

func newEnergyProcessor(cfg *config.EnergyConfig, now func() time.Time) *energyProcessor {
	intervalSec := cfg.AggregationInterval
	if intervalSec <= 0 {
		intervalSec = defaultAggregationIntervalSec
	}

	return &energyProcessor{
		powerTags:       tagSet(cfg.PowerTags),
		energyTags:      tagSet(cfg.EnergyTags),
		voltageTags:     tagSet(cfg.VoltageTags),
		currentTags:     tagSet(cfg.CurrentTags),
		power:           newWindow(energyWindowSize),
		voltage:         newWindow(energyWindowSize),
		current:         newWindow(energyWindowSize),
		interval:        time.Duration(intervalSec) * time.Second,
		lastAggregation: now(),
		now:             now,
	}
}

func (p *energyProcessor) process(sample model.Sample) (map[string]float64, bool) {
	v, numeric := sample.Value.Float()

	switch {
	case p.powerTags[sample.Tag] && numeric:
		p.power.push(v)
	case p.voltageTags[sample.Tag] && numeric:
		p.voltage.push(v)
	case p.currentTags[sample.Tag] && numeric:
		p.current.push(v)
	}

	if now := p.now(); now.Sub(p.lastAggregation) >= p.interval {
		p.lastAggregation = now

		if metrics := p.calculate(); len(metrics) > 0 {
			return metrics, true
		}
	}

	return nil, false
}

func (p *energyProcessor) calculate() map[string]float64 {
	if p.power.len() == 0 {
		return nil
	}

	recent := lastN(p.power.values(), aggregationSlice)
	avgPower := mean(recent)
	energy := avgPower * p.interval.Seconds() / 3600
	p.totalEnergy += energy

	peak := recent[0]
	low := recent[0]

	for _, v := range recent {
		peak = max(peak, v)
		low = min(low, v)
	}

	return map[string]float64{
		"avg_power_kw":           round3(avgPower),
		"energy_consumption_kwh": round3(energy),
		"total_energy_kwh":       round3(p.totalEnergy),
		"power_factor":           round3(p.powerFactor()),
		"peak_power_kw":          round3(peak),
		"min_power_kw":           round3(low),
	}
}

// powerFactor estimates real/apparent power over aligned trailing windows
// of power, voltage, and current. Without aligned data it reports the
// nominal default.
func (p *energyProcessor) powerFactor() float64 {
	if p.voltage.len() == 0 || p.current.len() == 0 || p.power.len() == 0 {
		return defaultPowerFactor
	}

	voltage := lastN(p.voltage.values(), powerFactorSlice)
	current := lastN(p.current.values(), powerFactorSlice)
	power := lastN(p.power.values(), powerFactorSlice)

	if len(voltage) != len(current) || len(current) != len(power) || len(voltage) == 0 {
		return defaultPowerFactor
	}

	var apparent float64
	for i := range voltage {
		apparent += voltage[i] * current[i]
	}

	apparent /= float64(len(voltage))
	if apparent <= 0 {
		return defaultPowerFactor
	}

	return min(mean(power)/apparent, 1.0)
}
