package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loader.
const (
	envServerURL         = "OPCUA_SERVER_URL"
	envSecurityPolicy    = "OPCUA_SECURITY_POLICY"
	envConnectionTimeout = "OPCUA_CONNECTION_TIMEOUT"

	// envNodeIDPrefix introduces per-(asset, tag) node id overrides of the
	// form NODE_ID_<ASSET>_<TAG>=<node_id>.
	envNodeIDPrefix = "NODE_ID_"
)

// Load reads the YAML configuration at path, applies the environment
// variable overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg, os.Environ())
	applyDefaults(&cfg)

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.Info("configuration loaded",
		"enterprise", cfg.EnterpriseName,
		"sites", len(cfg.Sites))

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	gs := &cfg.GlobalSettings

	if gs.ConnectionTimeout <= 0 {
		gs.ConnectionTimeout = DefaultConnectionTimeoutSec
	}

	if gs.RetryAttempts <= 0 {
		gs.RetryAttempts = DefaultRetryAttempts
	}

	if gs.RetryDelay <= 0 {
		gs.RetryDelay = DefaultRetryDelaySec
	}

	if gs.BufferPath == "" {
		gs.BufferPath = DefaultBufferPath
	}

	if gs.BufferMaxSizeMB <= 0 {
		gs.BufferMaxSizeMB = DefaultBufferMaxSizeMB
	}

	if gs.SendInterval <= 0 {
		gs.SendInterval = DefaultSendIntervalSec
	}

	if gs.CertDir == "" {
		gs.CertDir = DefaultCertDir
	}

	for i := range cfg.Sites {
		if cfg.Sites[i].DefaultSamplingRate <= 0 {
			cfg.Sites[i].DefaultSamplingRate = DefaultSamplingRateMS
		}
	}
}

// applyEnvOverrides mutates cfg according to the recognized environment
// variables. environ has the os.Environ "KEY=VALUE" shape so tests can
// inject their own set.
func applyEnvOverrides(cfg *Config, environ []string) {
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			env[key] = value
		}
	}

	if url := env[envServerURL]; url != "" {
		slog.Info("overriding endpoint for all assets", "url", url)
		forEachAsset(cfg, func(a *Asset) { a.OPCUAEndpoint = url })
	}

	if policy := env[envSecurityPolicy]; policy != "" {
		slog.Info("overriding security policy for all assets", "policy", policy)
		forEachAsset(cfg, func(a *Asset) { a.SecurityPolicy = policy })
	}

	if raw := env[envConnectionTimeout]; raw != "" {
		timeout, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			slog.Warn("invalid connection timeout override", "value", raw)
		} else {
			cfg.GlobalSettings.ConnectionTimeout = timeout
		}
	}

	applyNodeIDOverrides(cfg, env)
}

// applyNodeIDOverrides handles NODE_ID_<ASSET>_<TAG>=<node_id>. The asset
// name runs up to the first underscore after the prefix; the remainder is
// the tag name.
func applyNodeIDOverrides(cfg *Config, env map[string]string) {
	for key, nodeID := range env {
		if !strings.HasPrefix(key, envNodeIDPrefix) {
			continue
		}

		asset, tag, ok := strings.Cut(key[len(envNodeIDPrefix):], "_")
		if !ok || nodeID == "" {
			continue
		}

		forEachAsset(cfg, func(a *Asset) {
			if a.AssetName != asset {
				return
			}

			if _, mapped := a.NodeMapping[tag]; mapped {
				a.NodeMapping[tag] = nodeID
				slog.Debug("node id override applied", "asset", asset, "tag", tag, "node_id", nodeID)
			}
		})
	}
}

func forEachAsset(cfg *Config, fn func(*Asset)) {
	for i := range cfg.Sites {
		for j := range cfg.Sites[i].Assets {
			fn(&cfg.Sites[i].Assets[j])
		}
	}
}
