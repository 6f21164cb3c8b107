package period_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
	"github.com/odyssey-erp/stockledger/internal/transfer"
)

func locationStatus(t *testing.T, w *fixture.World, periodID, locationID int64) period.LocationStatus {
	t.Helper()
	locs, err := w.Services.Period.Locations(context.Background(), periodID)
	require.NoError(t, err)
	for _, l := range locs {
		if l.LocationID == locationID {
			return l.Status
		}
	}
	t.Fatalf("location %d not tracked by period %d", locationID, periodID)
	return ""
}

func TestDeliveryAfterConfirmWithdrawsReadiness(t *testing.T) {
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	ctx := context.Background()
	w.Receive(t, fixture.Kitchen, fixture.Flour, "100", "2")
	w.ConfirmAll(t, p.ID)

	w.Receive(t, fixture.Kitchen, fixture.Flour, "50", "3")
	require.Equal(t, period.LocationOpen, locationStatus(t, w, p.ID, fixture.Kitchen))
	require.Equal(t, period.LocationReady, locationStatus(t, w, p.ID, fixture.Store))

	_, _, err := w.Services.Period.RequestClose(ctx, p.ID, fixture.Admin)
	require.True(t, errors.Is(err, shared.ErrLocationsNotReady))

	rec, err := w.Services.Reconciliation.Confirm(ctx, p.ID, fixture.Kitchen, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, "350", rec.Receipts.String())
	require.Equal(t, "350", rec.ClosingStock.String())
}

func TestIssueAndTransferAfterConfirmWithdrawReadiness(t *testing.T) {
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	ctx := context.Background()
	w.Receive(t, fixture.Central, fixture.Flour, "10", "2")
	w.ConfirmAll(t, p.ID)

	_, err := w.Services.Issue.Post(ctx, issue.PostInput{
		LocationID: fixture.Central,
		IssueDate:  fixture.Today(),
		Lines:      []issue.LineInput{{ItemID: fixture.Flour, Quantity: fixture.D("1")}},
	}, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, period.LocationOpen, locationStatus(t, w, p.ID, fixture.Central))
	require.Equal(t, period.LocationReady, locationStatus(t, w, p.ID, fixture.Kitchen))

	tr, err := w.Services.Transfer.Request(ctx, transfer.RequestInput{
		FromLocationID: fixture.Central,
		ToLocationID:   fixture.Kitchen,
		Lines:          []transfer.LineInput{{ItemID: fixture.Flour, Quantity: fixture.D("4")}},
	}, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, period.LocationReady, locationStatus(t, w, p.ID, fixture.Kitchen))

	_, err = w.Services.Gate.Approve(ctx, *tr.ApprovalID, fixture.Supervisor)
	require.NoError(t, err)
	require.Equal(t, period.LocationOpen, locationStatus(t, w, p.ID, fixture.Kitchen))
}

func TestPostingRejectsLocationUntrackedByPeriod(t *testing.T) {
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	ctx := context.Background()
	const annex int64 = 7
	w.Store.Catalog().PutLocation(catalog.Location{ID: annex, Code: "ANX", Name: "Annex", Type: catalog.LocationStore, Active: true})

	d, err := w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   annex,
		DeliveryDate: fixture.Today(),
		Lines:        []delivery.LineInput{{ItemID: fixture.Flour, Quantity: fixture.D("5"), UnitPrice: fixture.D("2")}},
	}, fixture.Operator)
	require.NoError(t, err)
	_, err = w.Services.Delivery.Post(ctx, d.ID, fixture.Operator)
	require.True(t, errors.Is(err, shared.ErrValidation))

	stock, err := w.Services.Ledger.Get(ctx, annex, fixture.Flour)
	if err == nil {
		require.True(t, stock.OnHand.IsZero())
	}

	locs, err := w.Services.Period.Locations(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, locs, 3)
}
