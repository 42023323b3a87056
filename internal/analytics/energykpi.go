package analytics

import (
	"time"

	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/model"
)

const (
	// batteryEfficiencyMinSamples is the SoC window fill below which the
	// round-trip efficiency heuristic falls back to its base value.
	batteryEfficiencyMinSamples = 60

	// batteryBaseEfficiencyPercent is the nominal round-trip efficiency;
	// SoC variance subtracts up to batteryMaxEfficiencyPenalty from it.
	batteryBaseEfficiencyPercent = 95.0
	batteryMaxEfficiencyPenalty  = 10.0
)

// energyKPIProcessor aggregates renewable generation, battery storage,
// load, and system efficiency KPIs on a wall-clock interval.
type energyKPIProcessor struct {
	renewableTags  map[string]bool
	batteryTags    map[string]bool
	loadTags       map[string]bool
	efficiencyTags map[string]bool

	renewable  *window
	battery    *window
	load       *window
	efficiency *window

	interval        time.Duration
	lastAggregation time.Time

	// Cumulative kWh accumulators, process memory only.
	renewableEnergyTotal float64
	loadEnergyTotal      float64

	now func() time.Time
}

func newEnergyKPIProcessor(cfg *config.EnergyAnalyticsConfig, now func() time.Time) *energyKPIProcessor {
	intervalSec := cfg.AggregationInterval
	if intervalSec <= 0 {
		intervalSec = defaultAggregationIntervalSec
	}

	return &energyKPIProcessor{
		renewableTags:   tagSet(cfg.RenewableTags),
		batteryTags:     tagSet(cfg.BatteryTags),
		loadTags:        tagSet(cfg.LoadTags),
		efficiencyTags:  tagSet(cfg.EfficiencyTags),
		renewable:       newWindow(energyWindowSize),
		battery:         newWindow(energyWindowSize),
		load:            newWindow(energyWindowSize),
		efficiency:      newWindow(energyWindowSize),
		interval:        time.Duration(intervalSec) * time.Second,
		lastAggregation: now(),
		now:             now,
	}
}

func (p *energyKPIProcessor) process(sample model.Sample) (map[string]float64, bool) {
	v, numeric := sample.Value.Float()

	switch {
	case p.efficiencyTags[sample.Tag] && numeric:
		p.efficiency.push(v)
	case p.renewableTags[sample.Tag] && numeric:
		p.renewable.push(v)
	case p.batteryTags[sample.Tag] && numeric:
		p.battery.push(v)
	case p.loadTags[sample.Tag] && numeric:
		p.load.push(v)
	}

	if now := p.now(); now.Sub(p.lastAggregation) >= p.interval {
		p.lastAggregation = now

		if kpis := p.calculate(); len(kpis) > 0 {
			return kpis, true
		}
	}

	return nil, false
}

// calculate emits whichever KPI groups have data. Derived share and
// independence metrics appear only when both of their inputs do.
func (p *energyKPIProcessor) calculate() map[string]float64 {
	kpis := make(map[string]float64)

	if p.renewable.len() > 0 {
		recent := lastN(p.renewable.values(), aggregationSlice)
		avg := mean(recent)
		peak := maxOf(recent)
		energy := avg * p.interval.Seconds() / 3600
		p.renewableEnergyTotal += energy

		kpis["avg_renewable_power_kw"] = round3(avg)
		kpis["peak_renewable_power_kw"] = round3(peak)
		kpis["renewable_energy_kwh"] = round3(energy)
		kpis["total_renewable_energy_kwh"] = round3(p.renewableEnergyTotal)
	}

	if p.battery.len() > 0 {
		recent := lastN(p.battery.values(), aggregationSlice)

		kpis["avg_battery_soc_percent"] = round2(mean(recent))
		kpis["min_battery_soc_percent"] = round2(minOf(recent))
		kpis["max_battery_soc_percent"] = round2(maxOf(recent))
		kpis["battery_round_trip_efficiency_percent"] = round2(p.batteryEfficiency())
		kpis["battery_utilization_percent"] = round2(maxOf(recent) - minOf(recent))
	}

	if p.load.len() > 0 {
		recent := lastN(p.load.values(), aggregationSlice)
		avg := mean(recent)
		peak := maxOf(recent)
		energy := avg * p.interval.Seconds() / 3600
		p.loadEnergyTotal += energy

		var loadFactor float64
		if peak > 0 {
			loadFactor = avg / peak * 100
		}

		kpis["avg_load_power_kw"] = round3(avg)
		kpis["peak_load_power_kw"] = round3(peak)
		kpis["load_energy_kwh"] = round3(energy)
		kpis["total_load_energy_kwh"] = round3(p.loadEnergyTotal)
		kpis["load_factor_percent"] = round2(loadFactor)
	}

	if p.efficiency.len() > 0 {
		recent := lastN(p.efficiency.values(), aggregationSlice)
		kpis["avg_system_efficiency_percent"] = round2(mean(recent))
	}

	if avgRenewable, ok := kpis["avg_renewable_power_kw"]; ok {
		if avgLoad, ok := kpis["avg_load_power_kw"]; ok {
			share := avgRenewable / max(avgLoad, 0.1) * 100
			kpis["renewable_share_percent"] = round2(min(share, 100))
		}
	}

	if totalRenewable, ok := kpis["total_renewable_energy_kwh"]; ok {
		if totalLoad, ok := kpis["total_load_energy_kwh"]; ok {
			independence := totalRenewable / max(totalLoad, 0.1) * 100
			kpis["energy_independence_percent"] = round2(min(independence, 100))
		}
	}

	return kpis
}

// batteryEfficiency approximates round-trip efficiency from SoC variance.
// High variance implies active cycling and drags the estimate below the
// nominal base.
func (p *energyKPIProcessor) batteryEfficiency() float64 {
	recent := lastN(p.battery.values(), aggregationSlice)
	if len(recent) <= batteryEfficiencyMinSamples {
		return batteryBaseEfficiencyPercent
	}

	penalty := min(stdev(recent)*2, batteryMaxEfficiencyPenalty)

	return batteryBaseEfficiencyPercent - penalty
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs {
		m = max(m, x)
	}

	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs {
		m = min(m, x)
	}

	return m
}
