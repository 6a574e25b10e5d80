package main

import (
	"context"
	"log/slog"

	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/task"
)

// Built-in task ids. Tasks with any other id end in ERROR unless the
// embedding program registers a handler for them.
const (
	handlerNoop = "noop"
	handlerLog  = "log"
)

func registerBuiltinHandlers(registry *task.Registry, log *slog.Logger) error {
	if err := registry.Register(handlerNoop, func(context.Context, domain.Payload) error {
		return nil
	}); err != nil {
		return err
	}

	return registry.Register(handlerLog, func(ctx context.Context, payload domain.Payload) error {
		logger.FromContextOrDefault(ctx, log).Info("log task", slog.Any("payload", payload))
		return nil
	})
}
