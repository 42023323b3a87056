// Package uploader drains the durable buffer into the remote time-series
// store: batch checkout, point mapping, retried writes, and
// acknowledgement bookkeeping.
package uploader

import (
	"context"
	"errors"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/globalcorp/edgebridge/internal/config"
)

// remoteTimeoutSec is the HTTP request timeout for remote store writes.
const remoteTimeoutSec = 30

// Writer ships point batches to the remote store. Tests substitute a
// fake; production uses InfluxWriter.
type Writer interface {
	// Ping is the cheap liveness probe run before each write attempt.
	Ping(ctx context.Context) error

	// WritePoints ships the batch as one write request.
	WritePoints(ctx context.Context, points []*write.Point) error

	// Close releases the underlying client.
	Close()
}

// InfluxWriter is the production Writer over the InfluxDB v2 API.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxWriter builds a blocking-write client from the environment
// settings.
func NewInfluxWriter(settings config.InfluxSettings) *InfluxWriter {
	options := influxdb2.DefaultOptions().SetHTTPRequestTimeout(remoteTimeoutSec)
	client := influxdb2.NewClientWithOptions(settings.URL, settings.Token, options)

	return &InfluxWriter{
		client: client,
		write:  client.WriteAPIBlocking(settings.Org, settings.Bucket),
	}
}

// Ping probes the remote store health endpoint.
func (w *InfluxWriter) Ping(ctx context.Context) error {
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping remote store: %w", err)
	}

	if !ok {
		return errors.New("remote store not ready")
	}

	return nil
}

// WritePoints ships the batch in one request.
func (w *InfluxWriter) WritePoints(ctx context.Context, points []*write.Point) error {
	err := w.write.WritePoint(ctx, points...)
	if err != nil {
		return fmt.Errorf("write points: %w", err)
	}

	return nil
}

// Close shuts the underlying HTTP client down.
func (w *InfluxWriter) Close() {
	w.client.Close()
}
