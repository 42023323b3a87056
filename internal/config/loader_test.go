package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalcorp/edgebridge/internal/config"
)

const testConfigYAML = `
enterprise_name: GlobalCorp
version: "1.0.0"
sites:
  - site_name: Plant-North
    enterprise: GlobalCorp
    assets:
      - asset_name: Press01
        opcua_endpoint: opc.tcp://press01:4840
        node_mapping:
          MotorSpeed: "1001"
          MachineState: "1002"
          BearingVib: "ns=2;s=Press01.BearingVib"
        oee_monitoring:
          availability_tags: [MachineState]
          performance_tags: [MotorSpeed]
        predictive_maintenance:
          vibration_tags: [BearingVib]
          maintenance_thresholds:
            BearingVib: 6.5
          prediction_horizon: 24
        metadata:
          area: Stamping
          line: Line-3
global_settings:
  connection_timeout: 12.5
  security_policy: Basic256Sha256
`

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	return path
}

func TestLoad_ParsesDocument(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "GlobalCorp", cfg.EnterpriseName)
	require.Len(t, cfg.Sites, 1)
	require.Len(t, cfg.Sites[0].Assets, 1)

	asset := cfg.Sites[0].Assets[0]
	assert.Equal(t, "Press01", asset.AssetName)
	assert.Equal(t, "opc.tcp://press01:4840", asset.OPCUAEndpoint)
	require.NotNil(t, asset.Predictive)
	assert.InDelta(t, 6.5, asset.Predictive.MaintenanceThresholds["BearingVib"], 0)

	assert.InDelta(t, 12.5, cfg.GlobalSettings.ConnectionTimeout, 0)
	// Defaults fill the unset knobs.
	assert.Equal(t, config.DefaultBufferMaxSizeMB, cfg.GlobalSettings.BufferMaxSizeMB)
	assert.Equal(t, config.DefaultSendIntervalSec, cfg.GlobalSettings.SendInterval)
	assert.Equal(t, config.DefaultSamplingRateMS, cfg.Sites[0].DefaultSamplingRate)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPCUA_SERVER_URL", "opc.tcp://sim:4840")
	t.Setenv("OPCUA_SECURITY_POLICY", "None")
	t.Setenv("OPCUA_CONNECTION_TIMEOUT", "3.5")
	t.Setenv("NODE_ID_Press01_MotorSpeed", "ns=4;i=77")

	cfg, err := config.Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	asset := cfg.Sites[0].Assets[0]
	assert.Equal(t, "opc.tcp://sim:4840", asset.OPCUAEndpoint)
	assert.Equal(t, "None", asset.SecurityPolicy)
	assert.Equal(t, "ns=4;i=77", asset.NodeMapping["MotorSpeed"])
	// Untouched tags keep their mapping.
	assert.Equal(t, "1002", asset.NodeMapping["MachineState"])
	assert.InDelta(t, 3.5, cfg.GlobalSettings.ConnectionTimeout, 0)
}

func TestLoad_InvalidTimeoutOverrideIgnored(t *testing.T) {
	t.Setenv("OPCUA_CONNECTION_TIMEOUT", "soon")

	cfg, err := config.Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	assert.InDelta(t, 12.5, cfg.GlobalSettings.ConnectionTimeout, 0)
}

func TestLoad_RejectsUnmappedAnalyticsTag(t *testing.T) {
	const broken = `
enterprise_name: GlobalCorp
sites:
  - site_name: Plant-North
    assets:
      - asset_name: Press01
        opcua_endpoint: opc.tcp://press01:4840
        node_mapping:
          MotorSpeed: "1001"
        oee_monitoring:
          availability_tags: [MachineState]
`

	_, err := config.Load(writeConfig(t, broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MachineState")
}

func TestLoad_RejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no enterprise", yaml: "version: '1'\nsites: [{site_name: S, assets: []}]"},
		{name: "no sites", yaml: "enterprise_name: X"},
		{
			name: "no endpoint",
			yaml: "enterprise_name: X\nsites: [{site_name: S, assets: [{asset_name: A, node_mapping: {T: '1'}}]}]",
		},
		{
			name: "no node mapping",
			yaml: "enterprise_name: X\nsites: [{site_name: S, assets: [{asset_name: A, opcua_endpoint: opc.tcp://x}]}]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoad_UnparseableYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "enterprise_name: [unclosed"))
	require.Error(t, err)
}

func TestLoadInflux(t *testing.T) {
	t.Setenv("INFLUXDB_TOKEN", "")

	_, err := config.LoadInflux()
	require.ErrorIs(t, err, config.ErrMissingToken)

	t.Setenv("INFLUXDB_TOKEN", "secret")
	t.Setenv("INFLUXDB_URL", "https://influx.local")

	settings, err := config.LoadInflux()
	require.NoError(t, err)
	assert.Equal(t, "https://influx.local", settings.URL)
	assert.Equal(t, "secret", settings.Token)
	assert.Equal(t, "globalcorp", settings.Org)
	assert.Equal(t, "industrial-data", settings.Bucket)
}

func TestHierarchy(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	h := cfg.Hierarchy(cfg.Sites[0], cfg.Sites[0].Assets[0])
	assert.Equal(t, "GlobalCorp", h.Enterprise)
	assert.Equal(t, "Plant-North", h.Site)
	assert.Equal(t, "Stamping", h.Area)
	assert.Equal(t, "Line-3", h.Line)
	assert.Equal(t, "Press01", h.Machine)
}

func TestMonitoredTags_Union(t *testing.T) {
	t.Parallel()

	p := &config.PredictiveConfig{
		VibrationTags:   []string{"Vib1"},
		TemperatureTags: []string{"Temp1", "Temp2"},
		PressureTags:    []string{"Press1"},
	}

	assert.Equal(t, []string{"Vib1", "Temp1", "Temp2", "Press1"}, p.MonitoredTags())
}
