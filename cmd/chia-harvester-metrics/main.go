package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/api"
	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/metrics"
	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/tail"
	"github.com/V4T54L/chia-harvester-metrics/internal/pkg/config"
	"github.com/V4T54L/chia-harvester-metrics/internal/pkg/logger"
	"github.com/V4T54L/chia-harvester-metrics/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logFile, listenAddr string

	cmd := &cobra.Command{
		Use:   "chia-harvester-metrics",
		Short: "Watches your chia-blockchain harvester log and reports prometheus-ready metrics.",
		Long: `chia-harvester-metrics follows a chia debug.log, counts log lines per level
and harvester eligibility reports, and serves the totals on /metrics.

Configuration is read from the environment (and an optional .env file);
--log-file and --listen-addr override HARVESTER_LOG_FILE and LISTEN_ADDR.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			if cmd.Flags().Changed("log-file") {
				cfg.LogFile = logFile
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if err := cfg.Validate(); err != nil {
				slog.Error("invalid config", "error", err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "path to the chia debug.log to follow")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "[::]:4041", "address to serve /metrics on")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	// Harvest events logged before this instant are history, not activity.
	startedAt := time.Now().UTC()

	var opts []metrics.Option
	if cfg.RuntimeCollectors {
		opts = append(opts, metrics.WithRuntimeCollectors())
	}
	m := metrics.NewHarvesterMetrics(opts...)

	follower, err := tail.Open(cfg.LogFile, log,
		tail.WithPollInterval(cfg.TailPollInterval),
		tail.WithMissingGrace(cfg.TailMissingGrace),
		tail.WithMaxLineBytes(cfg.TailMaxLineBytes),
		tail.WithStartAtEnd(cfg.TailFromEnd),
	)
	if err != nil {
		log.Error("failed to open harvester log", "path", cfg.LogFile, "error", err)
		return err
	}

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Start Metrics Server ---
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(m, log),
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting metrics server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
			serverErr <- err
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Ingestion Loop ---
	ingest := usecase.NewIngestLogUseCase(m, log, startedAt)
	ingestErr := ingest.Run(ctx, follower)
	if ingestErr != nil {
		log.Error("ingestion failed", "path", cfg.LogFile, "error", ingestErr)
	}

	log.Info("shutting down metrics server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	default:
	}
	if ingestErr != nil {
		return fmt.Errorf("ingesting %s: %w", cfg.LogFile, ingestErr)
	}

	log.Info("exporter shut down gracefully")
	return nil
}
