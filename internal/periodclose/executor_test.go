package periodclose_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/periodclose"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
)

// pendingClose opens a period, stocks two locations and requests its close.
func pendingClose(t *testing.T) (*fixture.World, period.Period, approval.Approval) {
	t.Helper()
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	w.Receive(t, fixture.Kitchen, fixture.Flour, "100", "2")
	w.Receive(t, fixture.Kitchen, fixture.Flour, "50", "3")
	w.Receive(t, fixture.Store, fixture.Sugar, "3", "0.335")
	w.ConfirmAll(t, p.ID)
	_, req, err := w.Services.Period.RequestClose(context.Background(), p.ID, fixture.Admin)
	require.NoError(t, err)
	return w, p, req
}

func operationCount(t *testing.T, reg *prometheus.Registry, operation, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "stockledger_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["operation"] == operation && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestApproveClosesPeriodWithSnapshots(t *testing.T) {
	w, p, req := pendingClose(t)
	ctx := context.Background()

	decided, err := w.Services.Gate.Approve(ctx, req.ID, fixture.Admin)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, decided.Status)

	closed, err := w.Services.Period.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, period.StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, fixture.Admin.ID, *closed.ClosedBy)

	locs, err := w.Services.Period.Locations(ctx, p.ID)
	require.NoError(t, err)
	values := map[int64]string{}
	for _, l := range locs {
		require.Equal(t, period.LocationClosed, l.Status)
		require.True(t, l.ClosingValue.Valid)
		values[l.LocationID] = l.ClosingValue.Decimal.StringFixed(2)
	}
	require.Equal(t, "350.00", values[fixture.Kitchen])
	require.Equal(t, "1.01", values[fixture.Store])
	require.Equal(t, "0.00", values[fixture.Central])

	raw, err := w.Services.Period.Snapshot(ctx, p.ID, fixture.Kitchen)
	require.NoError(t, err)
	var snap periodclose.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.Items, 1)
	require.Equal(t, fixture.Flour, snap.Items[0].ItemID)
	require.Equal(t, "150", snap.Items[0].OnHand.String())
	require.Equal(t, "350", snap.LocationTotal.String())
	require.NotNil(t, snap.Reconciliation)

	events := w.Outbox.Events(shared.EventPeriodClosed)
	require.Len(t, events, 1)
	require.Equal(t, "351.01", events[0].Data["closing_value"])
	require.Equal(t, float64(1), operationCount(t, w.Registry, "period_close", "success"))
}

func TestApproveIsAllOrNothing(t *testing.T) {
	w, p, req := pendingClose(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	writes := 0
	w.Store.SetFault(func(op string) error {
		if op != "UpdatePeriodLocation" {
			return nil
		}
		writes++
		if writes == 2 {
			return boom
		}
		return nil
	})
	_, err := w.Services.Gate.Approve(ctx, req.ID, fixture.Admin)
	require.ErrorIs(t, err, boom)
	require.Equal(t, float64(1), operationCount(t, w.Registry, "period_close", "failure"))

	current, err := w.Services.Period.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, period.StatusPendingClose, current.Status)
	locs, err := w.Services.Period.Locations(ctx, p.ID)
	require.NoError(t, err)
	for _, l := range locs {
		require.Equal(t, period.LocationReady, l.Status)
		require.False(t, l.ClosingValue.Valid)
		require.Empty(t, l.SnapshotData)
	}
	a, err := w.Services.Gate.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPending, a.Status)
	require.Empty(t, w.Outbox.Events(shared.EventPeriodClosed))

	w.Store.SetFault(nil)
	_, err = w.Services.Gate.Approve(ctx, req.ID, fixture.Admin)
	require.NoError(t, err)
	current, err = w.Services.Period.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, period.StatusClosed, current.Status)
}

func TestRejectReturnsPeriodToOpenForResubmission(t *testing.T) {
	w, p, req := pendingClose(t)
	ctx := context.Background()

	_, err := w.Services.Gate.Reject(ctx, req.ID, fixture.Admin, "recount the store")
	require.NoError(t, err)

	current, err := w.Services.Period.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, period.StatusOpen, current.Status)
	require.Nil(t, current.ApprovalID)

	locs, err := w.Services.Period.Locations(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, period.NotReady(locs))

	_, again, err := w.Services.Period.RequestClose(ctx, p.ID, fixture.Admin)
	require.NoError(t, err)
	require.NotEqual(t, req.ID, again.ID)

	_, err = w.Services.Gate.Approve(ctx, req.ID, fixture.Admin)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
}

func TestSupervisorCannotApproveClose(t *testing.T) {
	w, p, req := pendingClose(t)
	_, err := w.Services.Gate.Approve(context.Background(), req.ID, fixture.Supervisor)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	current, err := w.Services.Period.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, period.StatusPendingClose, current.Status)
}

func TestNextPeriodRollsClosingValuesOver(t *testing.T) {
	w, p, req := pendingClose(t)
	ctx := context.Background()
	_, err := w.Services.Gate.Approve(ctx, req.ID, fixture.Admin)
	require.NoError(t, err)

	next := w.CreatePeriod(t, p.EndDate.AddDate(0, 0, 1), nil)
	locs, err := w.Services.Period.Locations(ctx, next.ID)
	require.NoError(t, err)
	openings := map[int64]string{}
	for _, l := range locs {
		openings[l.LocationID] = l.OpeningValue.StringFixed(2)
	}
	require.Equal(t, "350.00", openings[fixture.Kitchen])
	require.Equal(t, "1.01", openings[fixture.Store])

	// The closed period now reports its frozen figures.
	r, err := w.Services.Reconciliation.Compute(ctx, p.ID, fixture.Kitchen)
	require.NoError(t, err)
	require.Equal(t, "350", r.ClosingStock.String())
}
