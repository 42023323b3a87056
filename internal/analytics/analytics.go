// Package analytics implements the streaming per-asset analytics engine:
// up to four independent sub-processors (OEE, energy, energy KPIs,
// predictive maintenance) consuming samples and emitting KPI and anomaly
// records. Sub-processors share no state; an asset without a sub-config
// simply runs without that sub-processor.
package analytics

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/model"
)

// AssetAnalytics owns the analytics state of one asset. It is not safe
// for concurrent use; each asset's collector task is its sole caller.
type AssetAnalytics struct {
	assetName string
	log       *slog.Logger

	oee        *oeeProcessor
	energy     *energyProcessor
	energyKPI  *energyKPIProcessor
	predictive *predictiveProcessor
}

// Option configures an AssetAnalytics.
type Option func(*options)

type options struct {
	clk clock.Clock
}

// WithClock substitutes the wall clock driving aggregation ticks.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// New builds the analytics engine for one asset, instantiating only the
// sub-processors its configuration enables.
func New(asset *config.Asset, opts ...Option) *AssetAnalytics {
	o := options{clk: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	now := o.clk.Now

	a := &AssetAnalytics{
		assetName: asset.AssetName,
		log:       slog.With("component", "analytics", "asset", asset.AssetName),
	}

	if asset.OEE != nil {
		a.oee = newOEEProcessor(asset.OEE)
	}

	if asset.Energy != nil {
		a.energy = newEnergyProcessor(asset.Energy, now)
	}

	if asset.EnergyAnalytics != nil {
		a.energyKPI = newEnergyKPIProcessor(asset.EnergyAnalytics, now)
	}

	if asset.Predictive != nil {
		a.predictive = newPredictiveProcessor(asset.Predictive, a.log)
	}

	a.log.Info("analytics engine initialized",
		"oee", a.oee != nil,
		"energy", a.energy != nil,
		"energy_kpis", a.energyKPI != nil,
		"predictive", a.predictive != nil)

	return a
}

// Process feeds one sample to every enabled sub-processor and collects
// whatever they emit. The returned anomaly record is nil unless the
// predictive sub-processor scored this sample.
func (a *AssetAnalytics) Process(sample model.Sample) ([]model.KpiRecord, *model.AnomalyRecord) {
	var kpis []model.KpiRecord

	appendKPI := func(category model.KpiCategory, metrics map[string]float64, ok bool) {
		if !ok {
			return
		}

		kpis = append(kpis, model.KpiRecord{
			Timestamp: sample.Timestamp,
			AssetName: a.assetName,
			Category:  category,
			Metrics:   metrics,
		})
	}

	if a.oee != nil {
		metrics, ok := a.oee.process(sample)
		appendKPI(model.CategoryOEE, metrics, ok)
	}

	if a.energy != nil {
		metrics, ok := a.energy.process(sample)
		appendKPI(model.CategoryEnergy, metrics, ok)
	}

	if a.energyKPI != nil {
		metrics, ok := a.energyKPI.process(sample)
		appendKPI(model.CategoryEnergyKPI, metrics, ok)
	}

	var anomaly *model.AnomalyRecord

	if a.predictive != nil {
		if rec, ok := a.predictive.process(sample); ok {
			rec.AssetName = a.assetName
			anomaly = rec
		}
	}

	return kpis, anomaly
}

// BaselineReady reports whether the predictive sub-processor has frozen
// its baselines. False when the asset has no predictive configuration.
func (a *AssetAnalytics) BaselineReady() bool {
	return a.predictive != nil && a.predictive.baselineReady()
}

// Status summarizes which sub-processors are active, for the health
// rollup.
type Status struct {
	AssetName     string
	OEE           bool
	Energy        bool
	EnergyKPIs    bool
	Predictive    bool
	BaselineReady bool
}

// Status reports the engine's module activation and baseline state.
func (a *AssetAnalytics) Status() Status {
	return Status{
		AssetName:     a.assetName,
		OEE:           a.oee != nil,
		Energy:        a.energy != nil,
		EnergyKPIs:    a.energyKPI != nil,
		Predictive:    a.predictive != nil,
		BaselineReady: a.BaselineReady(),
	}
}
