// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/events"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "billing-entitlements",
	Short:         "Billing webhook reconciliation and entitlement service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and webhook receiver",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context(), core.MigrateUp)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context(), core.MigrateDown)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Downgrade premium entitlements whose paid period has ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "billing-entitlements %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "config.yaml", "path to config file",
	)

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func runMigrate(ctx context.Context, direction core.MigrateDirection) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exits next

	if err := core.Migrate(db, direction, logger); err != nil {
		return err
	}

	logger.Info("migrations complete", "direction", direction)
	return nil
}

// runSweep performs one expiry pass. Change events are still published when
// Kafka is configured.
func runSweep(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exits next

	publisher, err := newPublisher(cfg.Kafka, metrics.New(), logger)
	if err != nil {
		return err
	}
	defer publisher.Close() //nolint:errcheck // process exits next

	svc := entitlement.NewService(entitlement.NewRepository(db.DB), publisher, logger)

	expired, err := svc.ExpireLapsed(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}

	logger.Info("expiry sweep complete", "expired", len(expired))
	return nil
}

type closingPublisher interface {
	entitlement.Publisher
	Close() error
}

func newPublisher(
	cfg config.KafkaConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (closingPublisher, error) {
	if !cfg.Enabled() {
		logger.Info("kafka not configured, entitlement events disabled")
		return events.Noop{}, nil
	}

	producer, err := events.NewSyncProducer(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("kafka producer connected",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)
	return events.NewKafkaPublisher(producer, cfg.Topic, m, logger), nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
