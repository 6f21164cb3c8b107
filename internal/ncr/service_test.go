package ncr_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
)

var d = fixture.D

func TestLifecycleClassifiesImpact(t *testing.T) {
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	ctx := context.Background()
	svc := w.Services.NCR

	n, err := svc.Create(ctx, ncr.CreateInput{
		LocationID:   fixture.Kitchen,
		ItemID:       fixture.Flour,
		Type:         ncr.TypeQuality,
		Reason:       "damp sacks",
		Quantity:     d("4"),
		UnitVariance: decimal.NewNullDecimal(d("-1.255")),
	}, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, p.ID, n.PeriodID)
	require.Equal(t, "5.02", n.Value.StringFixed(2))
	require.False(t, n.AutoGenerated)

	_, err = svc.Transition(ctx, n.ID, ncr.StatusCredited, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = svc.Transition(ctx, n.ID, ncr.StatusSent, fixture.Operator)
	require.NoError(t, err)
	credited, err := svc.Transition(ctx, n.ID, ncr.StatusCredited, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, ncr.ImpactCredit, credited.FinancialImpact)

	_, err = svc.SetImpact(ctx, n.ID, ncr.ImpactLoss, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	resolved, err := svc.Transition(ctx, n.ID, ncr.StatusResolved, fixture.Operator)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)

	r, err := w.Services.Reconciliation.Compute(ctx, p.ID, fixture.Kitchen)
	require.NoError(t, err)
	require.Equal(t, "5.02", r.NCRCredits.StringFixed(2))
	require.True(t, r.Variance.IsZero())
}

func TestRejectedNCRIsALoss(t *testing.T) {
	w := fixture.New(t)
	w.OpenPeriod(t)
	res := w.Receive(t, fixture.Kitchen, fixture.Sugar, "10", "2.40")
	require.Len(t, res.NCRs, 1)
	ctx := context.Background()
	id := res.NCRs[0].ID

	_, err := w.Services.NCR.SetImpact(ctx, id, ncr.Impact("MAYBE"), fixture.Operator)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = w.Services.NCR.Transition(ctx, id, ncr.StatusSent, fixture.Operator)
	require.NoError(t, err)
	rejected, err := w.Services.NCR.Transition(ctx, id, ncr.StatusRejected, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, ncr.ImpactLoss, rejected.FinancialImpact)

	rows, err := w.Services.NCR.List(ctx, ncr.Filter{DeliveryID: res.Delivery.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "4.00", rows[0].Value.StringFixed(2))
}

func TestPresetImpactSurvivesTransition(t *testing.T) {
	w := fixture.New(t)
	w.OpenPeriod(t)
	ctx := context.Background()
	n, err := w.Services.NCR.Create(ctx, ncr.CreateInput{
		LocationID: fixture.Store,
		ItemID:     fixture.Oil,
		Type:       ncr.TypeQuantity,
		Reason:     "short shipped",
		Quantity:   d("2"),
		Value:      d("7"),
	}, fixture.Operator)
	require.NoError(t, err)

	_, err = w.Services.NCR.SetImpact(ctx, n.ID, ncr.ImpactLoss, fixture.Operator)
	require.NoError(t, err)
	_, err = w.Services.NCR.Transition(ctx, n.ID, ncr.StatusSent, fixture.Operator)
	require.NoError(t, err)
	out, err := w.Services.NCR.Transition(ctx, n.ID, ncr.StatusCredited, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, ncr.ImpactLoss, out.FinancialImpact)
}

func TestCanTransition(t *testing.T) {
	require.True(t, ncr.CanTransition(ncr.StatusOpen, ncr.StatusSent))
	require.True(t, ncr.CanTransition(ncr.StatusRejected, ncr.StatusResolved))
	require.False(t, ncr.CanTransition(ncr.StatusOpen, ncr.StatusResolved))
	require.False(t, ncr.CanTransition(ncr.StatusResolved, ncr.StatusOpen))
}
