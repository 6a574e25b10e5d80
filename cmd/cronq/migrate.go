package main

import (
	"fmt"

	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Apply or inspect database migrations",
		Long:      `Runs the embedded migrations against the configured schema. The default command is up.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			manager, err := postgres.NewManager(cmd.Context(), c.config.Database, c.logger)
			if err != nil {
				return fmt.Errorf("failed to create connection pools: %w", err)
			}
			defer manager.Close()

			if err := postgres.Migrate(cmd.Context(), manager, command); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", command)
			return nil
		},
	}
}
