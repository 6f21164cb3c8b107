package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyEvent delivers one notification event.
	TaskNotifyEvent = "notify:event"
	// TaskApprovalsRemind re-notifies stale pending approvals.
	TaskApprovalsRemind = "approvals:remind"
	// TaskLedgerIntegrity compares ledger rows with their stock cards.
	TaskLedgerIntegrity = "ledger:integrity"
)

// NotifyPayload wraps the event being delivered.
type NotifyPayload struct {
	Event shared.Event `json:"event"`
}

// NewNotifyTask constructs an Asynq task for ev.
func NewNotifyTask(ev shared.Event) (*asynq.Task, error) {
	body, err := json.Marshal(NotifyPayload{Event: ev})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyEvent, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// RemindPayload optionally overrides the configured reminder age.
type RemindPayload struct {
	OlderThan time.Duration `json:"older_than,omitempty"`
}

// NewRemindTask constructs the scheduled reminder task.
func NewRemindTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(RemindPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalsRemind, body, asynq.Queue(QueueDefault)), nil
}

// IntegrityPayload carries scheduling metadata.
type IntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityTask constructs the ledger integrity task.
func NewIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
