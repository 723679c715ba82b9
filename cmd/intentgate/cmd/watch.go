package cmd

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/intent-gate/intentgate/internal/adapter/outbound/eventlog"
	"github.com/intent-gate/intentgate/internal/adapter/outbound/simenv"
	"github.com/intent-gate/intentgate/internal/config"
	"github.com/intent-gate/intentgate/internal/domain/audit"
	"github.com/intent-gate/intentgate/internal/domain/firewall"
	"github.com/intent-gate/intentgate/internal/service"
)

var watchFlags struct {
	envFile string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Load rules, watch the writable directory, and serve metrics",
	Long: `Load the configured rule directories, watch the writable directory
for changes with debounced hot reload, and (when configured) serve
Prometheus metrics. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFlags.envFile, "env", "", "simulated environment YAML file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if cfg.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	provider := simenv.New(simenv.Environment{})
	if watchFlags.envFile != "" {
		provider, err = simenv.Load(watchFlags.envFile)
		if err != nil {
			return err
		}
	}

	env := &firewall.Env{
		Packages:    provider,
		Permissions: provider,
		Settings:    provider,
		Logger:      logger,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := service.NewMetrics(registry)

	var sink audit.Sink
	if cfg.Audit.Enabled {
		fileStore, err := eventlog.NewFileStore(cfg.Audit.Dir, logger)
		if err != nil {
			return err
		}
		defer func() { _ = fileStore.Close() }()
		sink = fileStore
	}

	rt, err := service.Bootstrap(ctx, env, provider, service.RuntimeOptions{
		WritableDir:  cfg.Rules.Dir,
		ReadOnlyDirs: cfg.Rules.SystemDirs,
		Watch:        true,
		Sink:         sink,
	}, metrics, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("watching rules directory", "dir", cfg.Rules.Dir)
	<-ctx.Done()
	logger.Info("intentgate stopped")
	return nil
}
