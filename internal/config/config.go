// Package config loads and validates the bridge configuration: the YAML
// site/asset document plus the environment variable overrides applied on
// top of it.
package config

import (
	"errors"
	"fmt"

	"github.com/globalcorp/edgebridge/internal/model"
)

// Default global settings applied when the YAML omits them.
const (
	DefaultConnectionTimeoutSec = 10.0
	DefaultRetryAttempts        = 3
	DefaultRetryDelaySec        = 5.0

	// DefaultSamplingRateMS is the subscription publishing interval when a
	// site does not override it (1 Hz).
	DefaultSamplingRateMS = 1000

	DefaultBufferPath      = "edge_buffer.db"
	DefaultBufferMaxSizeMB = 200
	DefaultSendIntervalSec = 30
	DefaultCertDir         = "certs"
)

// Config is the root bridge configuration.
type Config struct {
	EnterpriseName string         `yaml:"enterprise_name"`
	Version        string         `yaml:"version"`
	Sites          []Site         `yaml:"sites"`
	GlobalSettings GlobalSettings `yaml:"global_settings"`
}

// Site groups the assets of one physical location.
type Site struct {
	SiteName    string  `yaml:"site_name"`
	Enterprise  string  `yaml:"enterprise"`
	Description string  `yaml:"description"`
	Assets      []Asset `yaml:"assets"`

	// DefaultSamplingRate is the subscription publishing interval in
	// milliseconds for the site's assets.
	DefaultSamplingRate int `yaml:"default_sampling_rate"`
}

// Asset is one piece of field equipment addressed by one endpoint URL.
// Immutable after load.
type Asset struct {
	AssetName     string            `yaml:"asset_name"`
	Description   string            `yaml:"description"`
	OPCUAEndpoint string            `yaml:"opcua_endpoint"`
	NodeMapping   map[string]string `yaml:"node_mapping"`

	OEE             *OEEConfig             `yaml:"oee_monitoring"`
	Energy          *EnergyConfig          `yaml:"energy_monitoring"`
	EnergyAnalytics *EnergyAnalyticsConfig `yaml:"energy_analytics"`
	Predictive      *PredictiveConfig      `yaml:"predictive_maintenance"`

	// SecurityPolicy is the per-asset policy override. Empty means
	// negotiate with the server (or take the env/global override).
	SecurityPolicy string `yaml:"security_policy"`

	Metadata map[string]string `yaml:"metadata"`
}

// OEEConfig configures the Overall Equipment Effectiveness sub-processor.
type OEEConfig struct {
	AvailabilityTags []string `yaml:"availability_tags"`
	PerformanceTags  []string `yaml:"performance_tags"`
	QualityTags      []string `yaml:"quality_tags"`
	CycleCountTag    string   `yaml:"cycle_count_tag"`
	ProductionRate   string   `yaml:"production_rate_tag"`
}

// EnergyConfig configures the power/energy consumption sub-processor.
type EnergyConfig struct {
	PowerTags   []string `yaml:"power_tags"`
	EnergyTags  []string `yaml:"energy_tags"`
	VoltageTags []string `yaml:"voltage_tags"`
	CurrentTags []string `yaml:"current_tags"`

	// AggregationInterval is the KPI emission period in seconds.
	AggregationInterval int `yaml:"aggregation_interval"`
}

// EnergyAnalyticsConfig configures the renewable/battery/load KPI
// sub-processor.
type EnergyAnalyticsConfig struct {
	RenewableTags  []string `yaml:"renewable_tags"`
	BatteryTags    []string `yaml:"battery_tags"`
	LoadTags       []string `yaml:"load_tags"`
	EfficiencyTags []string `yaml:"efficiency_tags"`

	AggregationInterval int `yaml:"aggregation_interval"`
}

// PredictiveConfig configures the predictive maintenance sub-processor.
type PredictiveConfig struct {
	VibrationTags   []string `yaml:"vibration_tags"`
	TemperatureTags []string `yaml:"temperature_tags"`
	PressureTags    []string `yaml:"pressure_tags"`

	// MaintenanceThresholds maps tag name to its alert threshold.
	MaintenanceThresholds map[string]float64 `yaml:"maintenance_thresholds"`

	// PredictionHorizon is carried onto emitted anomaly records, in hours.
	PredictionHorizon int `yaml:"prediction_horizon"`
}

// MonitoredTags returns the union of vibration, temperature, and pressure
// tags in declaration order.
func (p *PredictiveConfig) MonitoredTags() []string {
	tags := make([]string, 0, len(p.VibrationTags)+len(p.TemperatureTags)+len(p.PressureTags))
	tags = append(tags, p.VibrationTags...)
	tags = append(tags, p.TemperatureTags...)
	tags = append(tags, p.PressureTags...)

	return tags
}

// GlobalSettings are the bridge-wide connection and buffering knobs.
type GlobalSettings struct {
	ConnectionTimeout float64 `yaml:"connection_timeout"`
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryDelay        float64 `yaml:"retry_delay"`
	SecurityPolicy    string  `yaml:"security_policy"`

	BufferPath      string `yaml:"buffer_path"`
	BufferMaxSizeMB int    `yaml:"buffer_max_size_mb"`
	SendInterval    int    `yaml:"send_interval"`
	CertDir         string `yaml:"cert_dir"`

	// DiagnosticsAddr is the listen address for the /healthz, /readyz and
	// /metrics endpoints. Empty disables the diagnostics server.
	DiagnosticsAddr string `yaml:"diagnostics_addr"`

	// LogLevel is debug, info, warn, or error. Empty means info.
	LogLevel string `yaml:"log_level"`

	// LogJSON enables JSON-formatted log output.
	LogJSON bool `yaml:"log_json"`
}

// Hierarchy builds the sample hierarchy for an asset from the enterprise
// name and the asset's metadata.
func (c *Config) Hierarchy(site Site, asset Asset) model.Hierarchy {
	meta := func(key string) string {
		if v, ok := asset.Metadata[key]; ok && v != "" {
			return v
		}

		return "Unknown"
	}

	siteName := site.SiteName
	if v, ok := asset.Metadata["site"]; ok && v != "" {
		siteName = v
	}

	return model.Hierarchy{
		Enterprise: c.EnterpriseName,
		Site:       siteName,
		Area:       meta("area"),
		Line:       meta("line"),
		Machine:    asset.AssetName,
	}
}

// Validate checks structural requirements: required fields present and
// every tag referenced by a sub-config declared in the node mapping.
func (c *Config) Validate() error {
	if c.EnterpriseName == "" {
		return errors.New("enterprise_name is required")
	}

	if len(c.Sites) == 0 {
		return errors.New("at least one site is required")
	}

	for _, site := range c.Sites {
		if site.SiteName == "" {
			return errors.New("site_name is required")
		}

		for i := range site.Assets {
			err := validateAsset(&site.Assets[i])
			if err != nil {
				return fmt.Errorf("site %s: %w", site.SiteName, err)
			}
		}
	}

	return nil
}

func validateAsset(asset *Asset) error {
	if asset.AssetName == "" {
		return errors.New("asset_name is required")
	}

	if asset.OPCUAEndpoint == "" {
		return fmt.Errorf("asset %s: opcua_endpoint is required", asset.AssetName)
	}

	if len(asset.NodeMapping) == 0 {
		return fmt.Errorf("asset %s: node_mapping is required", asset.AssetName)
	}

	for _, tag := range asset.referencedTags() {
		if _, ok := asset.NodeMapping[tag]; !ok {
			return fmt.Errorf("asset %s: tag %q referenced by analytics config but absent from node_mapping", asset.AssetName, tag)
		}
	}

	return nil
}

// referencedTags collects every tag named by any analytics sub-config.
func (a *Asset) referencedTags() []string {
	var tags []string

	if a.OEE != nil {
		tags = append(tags, a.OEE.AvailabilityTags...)
		tags = append(tags, a.OEE.PerformanceTags...)
		tags = append(tags, a.OEE.QualityTags...)

		if a.OEE.CycleCountTag != "" {
			tags = append(tags, a.OEE.CycleCountTag)
		}
	}

	if a.Energy != nil {
		tags = append(tags, a.Energy.PowerTags...)
		tags = append(tags, a.Energy.EnergyTags...)
		tags = append(tags, a.Energy.VoltageTags...)
		tags = append(tags, a.Energy.CurrentTags...)
	}

	if a.EnergyAnalytics != nil {
		tags = append(tags, a.EnergyAnalytics.RenewableTags...)
		tags = append(tags, a.EnergyAnalytics.BatteryTags...)
		tags = append(tags, a.EnergyAnalytics.LoadTags...)
		tags = append(tags, a.EnergyAnalytics.EfficiencyTags...)
	}

	if a.Predictive != nil {
		tags = append(tags, a.Predictive.MonitoredTags()...)

		for tag := range a.Predictive.MaintenanceThresholds {
			tags = append(tags, tag)
		}
	}

	return tags
}
