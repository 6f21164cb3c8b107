package delivery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
)

var d = fixture.D

func draft(t *testing.T, w *fixture.World, actor shared.Actor, lines ...delivery.LineInput) delivery.Delivery {
	t.Helper()
	out, err := w.Services.Delivery.CreateDraft(context.Background(), delivery.CreateInput{
		LocationID:   fixture.Kitchen,
		SupplierRef:  "INV-77",
		DeliveryDate: fixture.Today(),
		Lines:        lines,
	}, actor)
	require.NoError(t, err)
	return out
}

func TestPostRaisesNCRForMaterialVariance(t *testing.T) {
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	ctx := context.Background()

	dl := draft(t, w, fixture.Operator,
		delivery.LineInput{ItemID: fixture.Flour, Quantity: d("10"), UnitPrice: d("2.50")},
		delivery.LineInput{ItemID: fixture.Sugar, Quantity: d("4"), UnitPrice: d("2.005")},
	)
	require.Equal(t, delivery.StatusDraft, dl.Status)
	require.Equal(t, "33.02", dl.TotalValue.StringFixed(2))

	res, err := w.Services.Delivery.Post(ctx, dl.ID, fixture.Operator)
	require.NoError(t, err)
	require.Equal(t, delivery.StatusPosted, res.Delivery.Status)
	require.Equal(t, p.ID, *res.Delivery.PeriodID)
	require.True(t, res.Delivery.HasVariance)

	flour := res.Delivery.Lines[0]
	require.True(t, flour.PeriodPrice.Valid)
	require.Equal(t, "0.5", flour.PriceVariance.Decimal.String())

	sugar := res.Delivery.Lines[1]
	require.Equal(t, "0.005", sugar.PriceVariance.Decimal.String())

	require.Len(t, res.NCRs, 1)
	raised := res.NCRs[0]
	require.Equal(t, ncr.TypePriceVariance, raised.Type)
	require.True(t, raised.AutoGenerated)
	require.Equal(t, ncr.StatusOpen, raised.Status)
	require.Equal(t, ncr.ImpactNone, raised.FinancialImpact)
	require.Equal(t, "5", raised.Value.String())
	require.Equal(t, flour.ID, *raised.DeliveryLineID)

	require.Len(t, w.Outbox.Events(shared.EventNCRCreated), 1)

	stock, err := w.Services.Ledger.Get(ctx, fixture.Kitchen, fixture.Flour)
	require.NoError(t, err)
	require.Equal(t, "10", stock.OnHand.String())
	require.Equal(t, "2.5", stock.WAC.String())
}

func TestPostWithoutPeriodPriceLeavesVarianceNull(t *testing.T) {
	w := fixture.New(t)
	w.OpenPeriod(t)
	w.Store.Catalog().PutItem(catalog.Item{ID: 50, Code: "NEW", Name: "Late Addition", Unit: "ea", Active: true})

	dl := draft(t, w, fixture.Operator, delivery.LineInput{ItemID: 50, Quantity: d("3"), UnitPrice: d("9.99")})
	res, err := w.Services.Delivery.Post(context.Background(), dl.ID, fixture.Operator)
	require.NoError(t, err)
	require.False(t, res.Delivery.Lines[0].PeriodPrice.Valid)
	require.False(t, res.Delivery.Lines[0].PriceVariance.Valid)
	require.False(t, res.Delivery.HasVariance)
	require.Empty(t, res.NCRs)
}

func TestPostTwiceIsRejected(t *testing.T) {
	w := fixture.New(t)
	w.OpenPeriod(t)
	ctx := context.Background()

	dl := draft(t, w, fixture.Operator, delivery.LineInput{ItemID: fixture.Oil, Quantity: d("2"), UnitPrice: d("2")})
	_, err := w.Services.Delivery.Post(ctx, dl.ID, fixture.Operator)
	require.NoError(t, err)

	_, err = w.Services.Delivery.Post(ctx, dl.ID, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	stock, err := w.Services.Ledger.Get(ctx, fixture.Kitchen, fixture.Oil)
	require.NoError(t, err)
	require.Equal(t, "2", stock.OnHand.String())
}

func TestDraftsArePrivateToTheirCreator(t *testing.T) {
	w := fixture.New(t)
	w.OpenPeriod(t)
	ctx := context.Background()

	dl := draft(t, w, fixture.Operator, delivery.LineInput{ItemID: fixture.Oil, Quantity: d("1"), UnitPrice: d("2")})

	_, err := w.Services.Delivery.Get(ctx, dl.ID, fixture.Other)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = w.Services.Delivery.Post(ctx, dl.ID, fixture.Other)
	require.ErrorIs(t, err, shared.ErrNotFound)

	rows, err := w.Services.Delivery.List(ctx, delivery.Filter{}, fixture.Other)
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = w.Services.Delivery.List(ctx, delivery.Filter{}, fixture.Operator)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = w.Services.Delivery.Post(ctx, dl.ID, fixture.Operator)
	require.NoError(t, err)
	got, err := w.Services.Delivery.Get(ctx, dl.ID, fixture.Other)
	require.NoError(t, err)
	require.Equal(t, delivery.StatusPosted, got.Status)
}

func TestPostNeedsAnOpenPeriod(t *testing.T) {
	w := fixture.New(t)
	dl := draft(t, w, fixture.Operator, delivery.LineInput{ItemID: fixture.Flour, Quantity: d("1"), UnitPrice: d("2")})
	_, err := w.Services.Delivery.Post(context.Background(), dl.ID, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrNoOpenPeriod)
}

func TestPostRejectsDateOutsideOpenPeriod(t *testing.T) {
	w := fixture.New(t)
	p := w.OpenPeriod(t)
	ctx := context.Background()
	dl, err := w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   fixture.Kitchen,
		DeliveryDate: p.EndDate.AddDate(0, 0, 1),
		Lines:        []delivery.LineInput{{ItemID: fixture.Flour, Quantity: d("1"), UnitPrice: d("2")}},
	}, fixture.Operator)
	require.NoError(t, err)
	_, err = w.Services.Delivery.Post(ctx, dl.ID, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateDraftValidation(t *testing.T) {
	w := fixture.New(t)
	ctx := context.Background()

	_, err := w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   fixture.Kitchen,
		DeliveryDate: fixture.Today(),
		Lines:        []delivery.LineInput{{ItemID: fixture.Discarded, Quantity: d("1"), UnitPrice: d("1")}},
	}, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   fixture.Kitchen,
		DeliveryDate: fixture.Today(),
		Lines:        []delivery.LineInput{{ItemID: fixture.Flour, Quantity: d("0"), UnitPrice: d("1")}},
	}, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   fixture.Kitchen,
		DeliveryDate: fixture.Today(),
	}, fixture.Operator)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   fixture.Kitchen,
		DeliveryDate: fixture.Today(),
		Lines:        []delivery.LineInput{{ItemID: fixture.Flour, Quantity: d("1"), UnitPrice: d("1")}},
	}, shared.Actor{ID: 9, Role: "guest"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}
