package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

// DiagnosticsServer exposes health, readiness, and Prometheus metrics
// endpoints over HTTP for operational monitoring. It owns the pipeline
// metric instruments so callers wire one object into the bridge.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
	metrics  *BridgeMetrics
}

// NewDiagnosticsServer starts an HTTP server at addr with /healthz,
// /readyz, and /metrics endpoints. The ready checks gate /readyz;
// runtime and pipeline metrics are registered on the scrape meter.
func NewDiagnosticsServer(addr string, checks ...ReadyCheck) (*DiagnosticsServer, error) {
	metricsHandler, meter, err := PrometheusHandler()
	if err != nil {
		return nil, fmt.Errorf("create prometheus handler: %w", err)
	}

	metrics, err := NewBridgeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("register pipeline metrics: %w", err)
	}

	_, err = NewRuntimeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("register runtime metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", HealthHandler())
	mux.Handle("/readyz", ReadyHandler(checks...))
	mux.Handle("/metrics", metricsHandler)

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Warn("diagnostics server stopped", "error", serveErr)
		}
	}()

	return &DiagnosticsServer{server: srv, listener: listener, metrics: metrics}, nil
}

// Metrics returns the pipeline instruments registered on the scrape meter.
func (d *DiagnosticsServer) Metrics() *BridgeMetrics {
	return d.metrics
}

// Addr returns the address the server is listening on.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close gracefully shuts down the diagnostics server.
func (d *DiagnosticsServer) Close() error {
	err := d.server.Shutdown(context.Background())
	if err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}

	return nil
}
