package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

var (
	requester = shared.Actor{ID: 3, Role: shared.RoleOperator}
	reviewer  = shared.Actor{ID: 2, Role: shared.RoleSupervisor}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newGate(t *testing.T) (*approval.Gate, *memory.Outbox, *clock) {
	t.Helper()
	st := memory.New()
	outbox := &memory.Outbox{}
	c := &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	gate := approval.NewGate(approval.GateConfig{
		Repo:     memory.For[approval.TxRepository](st),
		Authz:    shared.DefaultRoles(),
		Notifier: outbox,
		Audit:    st.Audit(),
		Now:      c.Now,
	})
	return gate, outbox, c
}

func TestDocumentApprovalLifecycle(t *testing.T) {
	gate, outbox, _ := newGate(t)
	ctx := context.Background()

	a, err := gate.Request(ctx, approval.EntityPO, 41, requester)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPending, a.Status)

	_, err = gate.Request(ctx, approval.EntityPO, 41, requester)
	require.ErrorIs(t, err, shared.ErrAlreadyPending)

	decided, err := gate.Approve(ctx, a.ID, reviewer)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, decided.Status)
	require.Equal(t, reviewer.ID, *decided.ReviewedBy)

	_, err = gate.Reject(ctx, a.ID, reviewer, "late")
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	// A decided approval frees the entity for a new cycle.
	_, err = gate.Request(ctx, approval.EntityPO, 41, requester)
	require.NoError(t, err)

	require.Len(t, outbox.Events(shared.EventApprovalRequired), 2)
	require.Len(t, outbox.Events(shared.EventApprovalApproved), 1)
}

func TestRequestIsLimitedToDocuments(t *testing.T) {
	gate, _, _ := newGate(t)
	ctx := context.Background()

	_, err := gate.Request(ctx, approval.EntityTransfer, 1, requester)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = gate.Request(ctx, approval.EntityPRF, 0, requester)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecisionsNeedPermission(t *testing.T) {
	gate, _, _ := newGate(t)
	ctx := context.Background()

	a, err := gate.Request(ctx, approval.EntityPRF, 7, requester)
	require.NoError(t, err)
	_, err = gate.Reject(ctx, a.ID, requester, "")
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = gate.Approve(ctx, 999, reviewer)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemindOnlyStaleApprovals(t *testing.T) {
	gate, outbox, c := newGate(t)
	ctx := context.Background()

	old, err := gate.Request(ctx, approval.EntityPRF, 1, requester)
	require.NoError(t, err)
	c.now = c.now.Add(30 * time.Hour)
	_, err = gate.Request(ctx, approval.EntityPRF, 2, requester)
	require.NoError(t, err)

	sent, err := gate.Remind(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	reminders := outbox.Events(shared.EventApprovalReminder)
	require.Len(t, reminders, 1)
	require.Equal(t, old.EntityID, reminders[0].EntityID)
}

func TestSubjectForEveryEntityType(t *testing.T) {
	for _, tc := range []struct {
		typ  approval.EntityType
		want approval.Subject
	}{
		{approval.EntityPeriodClose, approval.PeriodClose{PeriodID: 5}},
		{approval.EntityTransfer, approval.Transfer{TransferID: 5}},
		{approval.EntityPO, approval.Document{Type: approval.EntityPO, ID: 5}},
	} {
		got, err := approval.Approval{EntityType: tc.typ, EntityID: 5}.Subject()
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
	_, err := approval.Approval{EntityType: "INVOICE", EntityID: 5}.Subject()
	require.Error(t, err)
}
