package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Enqueuer is the subset of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier implements shared.Notifier by queueing a delivery task per event.
type Notifier struct {
	queue Enqueuer
}

var _ shared.Notifier = (*Notifier)(nil)

// NewNotifier constructs a queue-backed notifier.
func NewNotifier(queue Enqueuer) *Notifier {
	return &Notifier{queue: queue}
}

// Notify enqueues ev for the worker.
func (n *Notifier) Notify(ctx context.Context, ev shared.Event) error {
	if n == nil || n.queue == nil {
		return errors.New("jobs: notifier not configured")
	}
	task, err := NewNotifyTask(ev)
	if err != nil {
		return fmt.Errorf("jobs: build notify task: %w", err)
	}
	if _, err := n.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", ev.Type, err)
	}
	return nil
}

// Sink is where delivered notifications end up.
type Sink interface {
	Deliver(ctx context.Context, ev shared.Event, text string) error
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver logs the rendered notification.
func (s LogSink) Deliver(_ context.Context, ev shared.Event, text string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		slog.String("type", ev.Type),
		slog.String("entity", ev.Entity),
		slog.Int64("entity_id", ev.EntityID),
		slog.Int64("actor_id", ev.ActorID),
		slog.String("text", text),
	)
	return nil
}

// NotifyJob renders queued events and hands them to a sink.
type NotifyJob struct {
	sink    Sink
	printer *message.Printer
	tracker *observability.Tracker
	logger  *slog.Logger
}

// NewNotifyJob constructs the delivery handler.
func NewNotifyJob(sink Sink, tracker *observability.Tracker, logger *slog.Logger) *NotifyJob {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &NotifyJob{sink: sink, printer: message.NewPrinter(language.English), tracker: tracker, logger: logger}
}

// Handle processes TaskNotifyEvent tasks.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Event.Type == "" {
		return asynq.SkipRetry
	}
	run := j.tracker.Track(TaskNotifyEvent)
	err := j.sink.Deliver(ctx, payload.Event, j.Render(payload.Event))
	if err != nil {
		j.logger.Warn("notification delivery failed", slog.String("type", payload.Event.Type), slog.Any("error", err))
	}
	return run.End(err)
}

// Render formats the message followed by its data, numbers grouped for reading.
func (j *NotifyJob) Render(ev shared.Event) string {
	if len(ev.Data) == 0 {
		return ev.Message
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+j.formatValue(ev.Data[k]))
	}
	return ev.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (j *NotifyJob) formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return j.printer.Sprintf("%d", int64(x))
		}
		return j.printer.Sprintf("%.2f", x)
	case int:
		return j.printer.Sprintf("%d", x)
	case int64:
		return j.printer.Sprintf("%d", x)
	case string:
		if d, err := decimal.NewFromString(x); err == nil && strings.Contains(x, ".") {
			return j.printer.Sprintf("%.2f", d.InexactFloat64())
		}
		return x
	default:
		return fmt.Sprint(v)
	}
}

// InlineNotifier delivers events synchronously through a NotifyJob's sink.
// It stands in for the queue when no worker is running.
type InlineNotifier struct {
	Job *NotifyJob
}

var _ shared.Notifier = InlineNotifier{}

// Notify renders and delivers ev immediately.
func (n InlineNotifier) Notify(ctx context.Context, ev shared.Event) error {
	if n.Job == nil {
		return errors.New("jobs: inline notifier not configured")
	}
	return n.Job.sink.Deliver(ctx, ev, n.Job.Render(ev))
}
