package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type captureSink struct {
	events []shared.Event
	texts  []string
}

func (s *captureSink) Deliver(_ context.Context, ev shared.Event, text string) error {
	s.events = append(s.events, ev)
	s.texts = append(s.texts, text)
	return nil
}

func TestNotifierEnqueuesEvent(t *testing.T) {
	queue := &recordingQueue{}
	n := NewNotifier(queue)
	ev := shared.Event{Type: shared.EventNCRCreated, Entity: "ncr", EntityID: 7, Message: "ncr raised"}

	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskNotifyEvent, queue.tasks[0].Type())

	var payload NotifyPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	require.Equal(t, int64(7), payload.Event.EntityID)
}

func TestNotifierWrapsQueueError(t *testing.T) {
	n := NewNotifier(&recordingQueue{err: errors.New("redis down")})
	err := n.Notify(context.Background(), shared.Event{Type: shared.EventPeriodClosed})
	require.ErrorContains(t, err, "redis down")
}

func TestNotifyJobDeliversRenderedEvent(t *testing.T) {
	sink := &captureSink{}
	job := NewNotifyJob(sink, nil, nil)
	task, err := NewNotifyTask(shared.Event{
		Type:    shared.EventPeriodClosed,
		Message: "period closed",
		Data:    map[string]any{"locations": 3, "closing_value": "1234567.50"},
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.events, 1)
	require.Equal(t, "period closed (closing_value=1,234,567.50, locations=3)", sink.texts[0])
}

func TestNotifyJobSkipsMalformedPayload(t *testing.T) {
	job := NewNotifyJob(&captureSink{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskNotifyEvent, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeReminder struct {
	age  time.Duration
	sent int
}

func (f *fakeReminder) Remind(_ context.Context, age time.Duration) (int, error) {
	f.age = age
	return f.sent, nil
}

func TestRemindJobUsesConfiguredAge(t *testing.T) {
	r := &fakeReminder{sent: 2}
	job := NewRemindJob(r, 24*time.Hour, nil, nil)

	task, err := NewRemindTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, r.age)

	task, err = NewRemindTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, r.age)
}

type fakeVerifier struct {
	found []ledger.Discrepancy
	err   error
}

func (f fakeVerifier) Verify(context.Context) ([]ledger.Discrepancy, error) {
	return f.found, f.err
}

func TestIntegrityJobReportsWithoutFailing(t *testing.T) {
	job := NewIntegrityJob(fakeVerifier{found: []ledger.Discrepancy{{
		LocationID: 1, ItemID: 2, OnHand: decimal.NewFromInt(5), CardTotal: decimal.NewFromInt(4),
	}}}, nil, nil)
	task, err := NewIntegrityTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestIntegrityJobPropagatesStoreError(t *testing.T) {
	job := NewIntegrityJob(fakeVerifier{err: errors.New("boom")}, nil, nil)
	task, err := NewIntegrityTask(time.Now())
	require.NoError(t, err)
	require.ErrorContains(t, job.Handle(context.Background(), task), "boom")
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthReportsQueueDepth(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 4, body.Pending)
	require.Equal(t, 1, body.Failed)
}

func TestHealthUnavailable(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{err: errors.New("no redis")}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
