// Package main provides the entry point for the edge telemetry bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/globalcorp/edgebridge/internal/bridge"
	"github.com/globalcorp/edgebridge/internal/buffer"
	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/fieldbus"
	"github.com/globalcorp/edgebridge/internal/observability"
	"github.com/globalcorp/edgebridge/internal/uploader"
	"github.com/globalcorp/edgebridge/pkg/version"
)

const (
	defaultConfigPath = "use_case_config.yaml"

	// startupPingTimeout bounds the initial remote store probe. A failed
	// probe is not fatal; the buffer absorbs data until connectivity
	// returns.
	startupPingTimeout = 10 * time.Second
)

func main() {
	rootCmd := newRootCommand()
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "edgebridge",
		Short: "OPC UA edge telemetry bridge",
		Long: `Edgebridge collects field telemetry over OPC UA, derives OEE, energy,
and predictive maintenance analytics at the edge, buffers everything
durably in SQLite, and uploads to InfluxDB when connectivity allows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the site configuration file")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "edgebridge %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	influx, err := config.LoadInflux()
	if err != nil {
		return err
	}

	gs := cfg.GlobalSettings

	log := observability.InitLogging(observability.Config{
		ServiceName:    "edgebridge",
		ServiceVersion: version.Version,
		LogLevel:       observability.ParseLevel(gs.LogLevel),
		LogJSON:        gs.LogJSON,
	})

	store, err := buffer.Open(gs.BufferPath, int64(gs.BufferMaxSizeMB)<<20)
	if err != nil {
		return fmt.Errorf("open buffer: %w", err)
	}
	defer store.Close()

	writer := uploader.NewInfluxWriter(influx)
	defer writer.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, startupPingTimeout)
	err = writer.Ping(pingCtx)

	cancelPing()

	if err != nil {
		log.Warn("remote store unreachable at startup, buffering locally", "error", err)
	}

	var opts []bridge.Option

	if gs.DiagnosticsAddr != "" {
		diag, diagErr := observability.NewDiagnosticsServer(gs.DiagnosticsAddr, bufferCheck(store))
		if diagErr != nil {
			return fmt.Errorf("start diagnostics server: %w", diagErr)
		}
		defer diag.Close()

		log.Info("diagnostics server listening", "addr", diag.Addr())

		opts = append(opts, bridge.WithMetrics(diag.Metrics()))
	}

	b, err := bridge.New(cfg, store, writer, fieldbus.OPCUADialer{}, influx.MeasurementPrefix, opts...)
	if err != nil {
		return fmt.Errorf("assemble bridge: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return b.Run(runCtx)
}

// bufferCheck gates readiness on the local buffer only. The remote store
// being down is normal operation for an intermittently connected site
// and must not flip readiness.
func bufferCheck(store *buffer.Store) observability.ReadyCheck {
	return func(ctx context.Context) error {
		_, err := store.Status(ctx)

		return err
	}
}
