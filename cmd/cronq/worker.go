package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/cronq/internal/events"
	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/phrazzld/cronq/internal/task"
	"github.com/spf13/cobra"
)

func (c *cli) newWorkerCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run due tasks",
		Long: `Polls for due tasks on the configured schedule and runs them with the
built-in handlers until interrupted. With --once it runs a single poll, waits
for the claimed tasks to finish and exits.

When NATS is configured the worker also wakes up as soon as another process
creates a task that is already due.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			app, err := newApplication(ctx, c.config, c.logger, postgres.PoolAsync)
			if err != nil {
				return err
			}
			defer app.cleanup()

			registry := task.NewRegistry()
			if err := registerBuiltinHandlers(registry, c.logger); err != nil {
				return err
			}

			runnerCfg := task.ConfigFromScheduler(c.config.Scheduler)
			if once {
				runnerCfg.PollSpec = ""
			}
			runner, err := task.NewTaskRunner(app.service, registry, runnerCfg, c.logger)
			if err != nil {
				return err
			}
			if err := runner.Start(ctx); err != nil {
				return err
			}

			if once {
				n, err := runner.RunOnce(ctx)
				runner.Stop()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d tasks\n", n)
				return nil
			}

			if app.nats != nil {
				wake := task.NewWakeOnDueHandler(runner, c.logger)
				created := &events.TaskEvent{Type: events.TypeTaskCreated}
				sub, err := events.Subscribe(app.nats, created.Subject(c.config.Events.SubjectPrefix), wake, c.logger)
				if err != nil {
					runner.Stop()
					return err
				}
				defer func() { _ = sub.Unsubscribe() }()
			}

			c.logger.Info("worker running",
				slog.String("poll_spec", runnerCfg.PollSpec),
				slog.Any("task_ids", registry.TaskIDs()))
			runner.Trigger()

			<-ctx.Done()
			c.logger.Info("shutting down worker")
			runner.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single poll and exit")
	return cmd
}
