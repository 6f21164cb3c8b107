package shared

import (
	"context"
	"log/slog"
	"time"
)

// Notification event types.
const (
	EventNCRCreated       = "ncr.created"
	EventApprovalRequired = "approval.requested"
	EventApprovalApproved = "approval.approved"
	EventApprovalRejected = "approval.rejected"
	EventApprovalReminder = "approval.reminder"
	EventPeriodClosed     = "period.closed"
)

// Event is emitted to the notification sink.
type Event struct {
	Type     string         `json:"type"`
	Entity   string         `json:"entity"`
	EntityID int64          `json:"entity_id"`
	ActorID  int64          `json:"actor_id"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// Notifier accepts events for out-of-band delivery.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Notify emits ev and only logs on failure; callers have already committed.
func Notify(ctx context.Context, n Notifier, logger *slog.Logger, ev Event) {
	if n == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := n.Notify(ctx, ev); err != nil && logger != nil {
		logger.Warn("notify", slog.String("event", ev.Type), slog.Int64("entity_id", ev.EntityID), slog.Any("error", err))
	}
}
