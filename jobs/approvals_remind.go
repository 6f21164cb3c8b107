package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/observability"
)

// Reminder re-notifies approvals pending longer than age.
type Reminder interface {
	Remind(ctx context.Context, age time.Duration) (int, error)
}

// RemindJob nudges reviewers about stale approvals.
type RemindJob struct {
	reminder Reminder
	age      time.Duration
	tracker  *observability.Tracker
	logger   *slog.Logger
}

// NewRemindJob constructs the reminder handler with the default age.
func NewRemindJob(reminder Reminder, age time.Duration, tracker *observability.Tracker, logger *slog.Logger) *RemindJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemindJob{reminder: reminder, age: age, tracker: tracker, logger: logger}
}

// Handle processes TaskApprovalsRemind tasks.
func (j *RemindJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RemindPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	age := payload.OlderThan
	if age <= 0 {
		age = j.age
	}
	run := j.tracker.Track(TaskApprovalsRemind)
	sent, err := j.reminder.Remind(ctx, age)
	if err != nil {
		j.logger.Error("approval reminders failed", slog.Any("error", err))
		return run.End(err)
	}
	j.logger.Info("approval reminders sent", slog.Int("count", sent), slog.Duration("older_than", age))
	return run.End(nil)
}
