package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thushan/llamatap/internal/adapter/stats"
	"github.com/thushan/llamatap/internal/app"
	"github.com/thushan/llamatap/internal/config"
	"github.com/thushan/llamatap/internal/logger"
	"github.com/thushan/llamatap/internal/version"
	"github.com/thushan/llamatap/pkg/container"
	"github.com/thushan/llamatap/pkg/format"
	"github.com/thushan/llamatap/pkg/nerdstats"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "llamatap",
	Short: "OpenAI-compatible tap proxy for your AI providers",
	Long: `llamatap forwards chat completion requests to the provider named in the
request's model field, rewriting the model and headers on the way, and writes
an audit line for every request and response with prompt and completion token
counts.

Running llamatap without a subcommand is the same as "llamatap serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		if err := os.Setenv(config.EnvConfigFile, cfgFile); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

func loggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.Dir,
		Theme:      cfg.Logging.Theme,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		FileOutput: cfg.Logging.FileOutput,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()
	version.PrintVersionInfo(false, log.New(os.Stdout, "", 0))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(loggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid(), "config", cfg.Filename)
	if container.IsContainerised() && container.IsLoopback(cfg.Server.Host) {
		styledLogger.Warn("Running in a container but listening on loopback, set LLAMATAP_SERVER_HOST=0.0.0.0 to accept outside connections",
			"host", cfg.Server.Host)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}
	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()
	styledLogger.Info("Shutdown signal received, draining", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime, application.Stats())
	styledLogger.Info("llamatap has shutdown")
	return nil
}

func reportProcessStats(log *logger.StyledLogger, startTime time.Time, traffic stats.Snapshot) {
	runtime.GC()

	log.InfoWithNumbers("Requests served: %s total, %s succeeded, %s failed", traffic.TotalRequests, traffic.SuccessfulRequests, traffic.FailedRequests)
	log.Info("Traffic summary",
		"bytes_relayed", format.Bytes(traffic.TotalBytes),
		"tokens_counted", traffic.TotalTokens)

	snapshot := nerdstats.Snapshot(startTime)
	log.Info("Process stats", snapshot.Fields()...)
}
