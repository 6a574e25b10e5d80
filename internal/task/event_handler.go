package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/cronq/internal/events"
)

// Poller is anything that can be asked to poll for due tasks right away.
type Poller interface {
	Trigger()
}

// WakeOnDueHandler implements events.EventHandler. It triggers an immediate
// poll when a task is created that is already due, instead of waiting for
// the next scheduled tick.
type WakeOnDueHandler struct {
	poller Poller
	now    func() time.Time
	logger *slog.Logger
}

// NewWakeOnDueHandler creates a handler that wakes poller.
func NewWakeOnDueHandler(poller Poller, logger *slog.Logger) *WakeOnDueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WakeOnDueHandler{
		poller: poller,
		now:    time.Now,
		logger: logger.With(slog.String("component", "wake_on_due_handler")),
	}
}

// HandleEvent implements events.EventHandler.
func (h *WakeOnDueHandler) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	if event.Type != events.TypeTaskCreated {
		return nil
	}
	if event.ExpectedBy.After(h.now()) {
		h.logger.Debug("created task not due yet",
			slog.String("cron_task_id", event.CronTaskID.String()),
			slog.Time("expected_by", event.ExpectedBy))
		return nil
	}

	h.logger.Debug("due task created, triggering poll",
		slog.String("cron_task_id", event.CronTaskID.String()))
	h.poller.Trigger()
	return nil
}

// Ensure WakeOnDueHandler implements events.EventHandler
var _ events.EventHandler = (*WakeOnDueHandler)(nil)
