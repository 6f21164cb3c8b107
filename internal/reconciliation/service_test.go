package reconciliation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
)

var d = fixture.D

func seeded(t *testing.T) (*fixture.World, period.Period) {
	t.Helper()
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	w.Receive(t, fixture.Kitchen, fixture.Flour, "100", "2")
	_, err := w.Services.Issue.Post(context.Background(), issue.PostInput{
		LocationID: fixture.Kitchen,
		IssueDate:  fixture.Today(),
		Lines:      []issue.LineInput{{ItemID: fixture.Flour, Quantity: d("30")}},
	}, fixture.Operator)
	require.NoError(t, err)
	return w, p
}

func TestComputeFromLiveLedger(t *testing.T) {
	w, p := seeded(t)
	r, err := w.Services.Reconciliation.Compute(context.Background(), p.ID, fixture.Kitchen)
	require.NoError(t, err)
	require.Equal(t, "200", r.Receipts.String())
	require.Equal(t, "60", r.Issues.String())
	require.Equal(t, "140", r.ClosingStock.String())
	require.Equal(t, "140", r.CalculatedClosing.String())
	require.True(t, r.Variance.IsZero())
}

func TestSaveAdjustmentsResetsReadiness(t *testing.T) {
	w, p := seeded(t)
	ctx := context.Background()
	svc := w.Services.Reconciliation

	confirmed, err := svc.Confirm(ctx, p.ID, fixture.Kitchen, fixture.Operator)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedBy)

	same, err := svc.SaveAdjustments(ctx, p.ID, fixture.Kitchen, reconciliation.Adjustments{}, fixture.Operator)
	require.NoError(t, err)
	require.NotNil(t, same.ConfirmedBy)
	locs, err := w.Services.Period.Locations(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, period.LocationReady, locs[0].Status)

	changed, err := svc.SaveAdjustments(ctx, p.ID, fixture.Kitchen, reconciliation.Adjustments{Condemnations: d("10")}, fixture.Operator)
	require.NoError(t, err)
	require.Nil(t, changed.ConfirmedBy)
	require.Equal(t, "130", changed.CalculatedClosing.String())
	require.Equal(t, "10", changed.Variance.String())

	locs, err = w.Services.Period.Locations(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, period.LocationOpen, locs[0].Status)

	again, err := svc.Compute(ctx, p.ID, fixture.Kitchen)
	require.NoError(t, err)
	require.Equal(t, "10", again.Condemnations.String())
}

func TestSaveAdjustmentsValidation(t *testing.T) {
	w, p := seeded(t)
	ctx := context.Background()
	_, err := w.Services.Reconciliation.SaveAdjustments(ctx, p.ID, fixture.Kitchen,
		reconciliation.Adjustments{BackCharges: d("-1")}, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = w.Services.Reconciliation.SaveAdjustments(ctx, p.ID, fixture.Kitchen,
		reconciliation.Adjustments{}, shared.Actor{ID: 8, Role: "viewer"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = w.Services.Reconciliation.Compute(ctx, p.ID, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSummaryTotalsEveryLocation(t *testing.T) {
	w, p := seeded(t)
	w.Receive(t, fixture.Store, fixture.Sugar, "10", "2")

	sum, err := w.Services.Reconciliation.Summary(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, sum.Locations, 3)
	require.Equal(t, "220", sum.Totals.Receipts.String())
	require.Equal(t, "160", sum.Totals.ClosingStock.String())
	require.True(t, sum.Totals.Variance.IsZero())
}
