package cmd

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/config"
	errwrap "github.com/namelens/promptc/internal/errors"
	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/server"
	"github.com/namelens/promptc/internal/server/handlers"
)

// registryHealthChecker reports unhealthy when the loaded prompt set has
// broken extends chains.
type registryHealthChecker struct {
	reg *registry.InMemoryRegistry
}

func (r registryHealthChecker) CheckHealth(ctx context.Context) error {
	if r.reg == nil {
		return errwrap.NewUnavailableError("prompt registry not loaded")
	}
	if problems := r.reg.Verify(); len(problems) > 0 {
		return errwrap.NewUnavailableError(problems[0].Error())
	}
	return nil
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewUnavailableError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP compiler API",
	Long: `Start the HTTP server exposing the /v1 compiler API with graceful shutdown support.

Prompts are loaded once at startup from prompts.dir (and the embedded set when
prompts.include_defaults is true).

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read config and report changes (restart to apply)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (overrides server.host)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (overrides server.port)")
	serveCmd.Flags().String("prompts-dir", "", "prompt directory (overrides prompts.dir)")
}

// serveOverrides turns explicitly set flags into config overrides.
func serveOverrides(cmd *cobra.Command) map[string]any {
	serverOverrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		serverOverrides["host"] = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		serverOverrides["port"] = port
	}

	overrides := map[string]any{}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}
	if cmd.Flags().Changed("prompts-dir") {
		dir, _ := cmd.Flags().GetString("prompts-dir")
		overrides["prompts"] = map[string]any{"dir": dir}
	}
	return overrides
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	overrides := serveOverrides(cmd)

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return &configError{err: err}
	}

	observability.InitServerLogger(observability.ServerLoggerOptions{
		Service: config.AppName,
		Level:   cfg.Logging.Level,
		StaticFields: map[string]any{
			"prompts_dir": cfg.Prompts.Dir,
		},
	})
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}
	metrics.SetServerStartTime(time.Now().Unix())

	reg, err := registry.Build(cfg.Prompts.Dir, cfg.Prompts.IncludeDefaults)
	if err != nil {
		logger.Error("Failed to load prompts", zap.String("dir", cfg.Prompts.Dir), zap.Error(err))
		return err
	}
	metrics.SetPromptsLoaded(reg.Len())

	logger.Info("Initializing server",
		zap.String("service", config.AppName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("prompts", reg.Len()),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Int("metrics_port", observability.GetMetricsPort()))

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("registry", registryHealthChecker{reg: reg})
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}

	opts := []server.Option{
		server.WithRegistry(reg),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	if token := os.Getenv(config.EnvPrefix + "ADMIN_TOKEN"); token != "" {
		opts = append(opts, server.WithAdminToken(token))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: the server stops before the logger flushes.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: re-reading configuration")
		next, err := config.Load(ctx, overrides)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
		}
		if next.Server.Host != cfg.Server.Host || next.Server.Port != cfg.Server.Port ||
			next.Prompts.Dir != cfg.Prompts.Dir || next.Prompts.IncludeDefaults != cfg.Prompts.IncludeDefaults {
			logger.Warn("Configuration changed; restart to apply",
				zap.String("host", next.Server.Host),
				zap.Int("port", next.Server.Port),
				zap.String("prompts_dir", next.Prompts.Dir))
			return nil
		}
		logger.Info("Configuration unchanged")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server...",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := srv.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}
