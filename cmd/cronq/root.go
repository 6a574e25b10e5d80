package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/cronq/internal/ciutil"
	"github.com/phrazzld/cronq/internal/config"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/redact"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string

	config *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "cronq",
		Short: "Durable Postgres-backed cron task queue",
		Long: `cronq stores deferred tasks in Postgres and runs them once they are due.

Configuration comes from config.yaml in the working directory, the file
given with --config, and CRONQ_* environment variables.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a config file (default ./config.yaml)")

	root.AddCommand(
		c.newMigrateCmd(),
		c.newAddCmd(),
		c.newGetCmd(),
		c.newDueCmd(),
		c.newClaimCmd(),
		c.newStatusCmd(),
		c.newWorkerCmd(),
	)
	return root
}

// setup loads configuration and installs the logger. Logs go to stderr so
// command output on stdout stays machine readable.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(logger.LoggerConfig{
		Level:  cfg.Server.LogLevel,
		CI:     ciutil.IsCI(),
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		slog.String("command", cmd.Name()),
		slog.String("environment", string(cfg.Environment)),
		slog.String("database_url", redact.URL(cfg.Database.URL)),
		slog.String("schema", cfg.Database.Schema),
		slog.Bool("nats_enabled", cfg.Events.NATSURL != ""))

	c.config = cfg
	c.logger = log
	return nil
}
