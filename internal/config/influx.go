package config

import (
	"errors"
	"os"
)

// ErrMissingToken is returned when the remote store token is not set.
var ErrMissingToken = errors.New("influxdb token not provided, set INFLUXDB_TOKEN")

// Remote store environment variables and defaults.
const (
	envInfluxURL    = "INFLUXDB_URL"
	envInfluxToken  = "INFLUXDB_TOKEN"
	envInfluxOrg    = "INFLUXDB_ORG"
	envInfluxBucket = "INFLUXDB_BUCKET"

	defaultInfluxURL    = "https://cloud2.influxdata.com"
	defaultInfluxOrg    = "globalcorp"
	defaultInfluxBucket = "industrial-data"

	// DefaultMeasurementPrefix prefixes the telemetry and analytics
	// measurement names in the remote store.
	DefaultMeasurementPrefix = "opcua"
)

// InfluxSettings is the remote time-series store connection configuration,
// sourced entirely from the environment.
type InfluxSettings struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// MeasurementPrefix prefixes both remote measurements.
	MeasurementPrefix string
}

// LoadInflux reads the remote store settings from the environment. The
// token is required; everything else has a default.
func LoadInflux() (InfluxSettings, error) {
	settings := InfluxSettings{
		URL:               envOr(envInfluxURL, defaultInfluxURL),
		Token:             os.Getenv(envInfluxToken),
		Org:               envOr(envInfluxOrg, defaultInfluxOrg),
		Bucket:            envOr(envInfluxBucket, defaultInfluxBucket),
		MeasurementPrefix: DefaultMeasurementPrefix,
	}

	if settings.Token == "" {
		return InfluxSettings{}, ErrMissingToken
	}

	return settings, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
