package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/phrazzld/cronq/internal/store"
	"github.com/spf13/cobra"
)

func (c *cli) newAddCmd() *cobra.Command {
	var (
		taskID  string
		payload string
		at      string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a task",
		Long: `Schedules a task. --at accepts an RFC 3339 timestamp or a duration relative
to now, e.g. 10m or -1h. Without --at the task is due immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := parsePayload(payload)
			if err != nil {
				return err
			}
			expectedBy, err := parseRunAt(at, time.Now())
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), c.config, c.logger, postgres.PoolSync)
			if err != nil {
				return err
			}
			defer app.cleanup()

			task, err := app.service.AddTask(cmd.Context(), taskID, doc, expectedBy)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "handler name of the task (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object handed to the handler")
	cmd.Flags().StringVar(&at, "at", "", "when the task becomes due")
	_ = cmd.MarkFlagRequired("task-id")
	return cmd
}

func (c *cli) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), c.config, c.logger, postgres.PoolSync)
			if err != nil {
				return err
			}
			defer app.cleanup()

			found, err := app.service.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			task, ok := found.Get()
			if !ok {
				return fmt.Errorf("%w: task %s", store.ErrNotFound, id)
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func (c *cli) newDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List CREATED tasks that are due now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(cmd.Context(), c.config, c.logger, postgres.PoolSync)
			if err != nil {
				return err
			}
			defer app.cleanup()

			tasks, err := app.service.GetNextAvailableTasks(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tasks)
		},
	}
}

func (c *cli) newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <id>",
		Short: "Move a CREATED task to PROCESSING",
		Long:  `Claims a task for this caller. Exits with an error when the task is unknown or already claimed.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), c.config, c.logger, postgres.PoolSync)
			if err != nil {
				return err
			}
			defer app.cleanup()

			won, err := app.service.ClaimTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !won {
				return fmt.Errorf("task %s is not claimable", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed %s\n", id)
			return nil
		},
	}
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "status <id> <CREATED|PROCESSING|ERROR|DONE>",
		Short:     "Set the status of a task",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"CREATED", "PROCESSING", "ERROR", "DONE"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status, err := domain.ParseTaskStatus(strings.ToUpper(args[1]))
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), c.config, c.logger, postgres.PoolSync)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if err := app.service.UpdateTaskStatus(cmd.Context(), id, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, status)
			return nil
		},
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	return id, nil
}

// parsePayload decodes a JSON document. An empty string is no payload.
func parsePayload(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var doc any
	if err := domain.DecodeJSON([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid --payload: %w", err)
	}
	return doc, nil
}

// parseRunAt accepts an RFC 3339 timestamp or a duration relative to now.
// An empty value means now.
func parseRunAt(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --at %q: want RFC 3339 time or duration", raw)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
