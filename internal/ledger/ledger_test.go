package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
)

var d = fixture.D

func entry(location, item int64, qty, cost string) ledger.Entry {
	return ledger.Entry{
		PeriodID:   1,
		LocationID: location,
		ItemID:     item,
		Qty:        d(qty),
		UnitCost:   d(cost),
		RefType:    "TEST",
		RefID:      1,
		PostedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWeightedAverage(t *testing.T) {
	cases := []struct {
		name, onHand, wac, qty, price, want string
	}{
		{"first receipt takes price", "0", "0", "100", "2", "2"},
		{"blends existing stock", "100", "2", "50", "3", "2.3333"},
		{"same price keeps wac", "10", "4.5", "10", "4.5", "4.5"},
		{"free receipt dilutes", "10", "3", "10", "0", "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ledger.WeightedAverage(d(tc.onHand), d(tc.wac), d(tc.qty), d(tc.price))
			require.Equal(t, d(tc.want).String(), got.Round(4).String())
		})
	}
}

func TestWeightedAverageHoldsStoredPrecision(t *testing.T) {
	got := ledger.WeightedAverage(d("100"), d("2"), d("50"), d("3"))
	require.Equal(t, "2.3333333333", got.String())
	require.Equal(t, int32(-ledger.WACPlaces), got.Exponent())

	got = ledger.WeightedAverage(d("0"), d("0"), d("3"), d("0.123456789012"))
	require.Equal(t, "0.123456789", got.String())
}

func TestIncreaseThenDecreaseKeepsWAC(t *testing.T) {
	store := memory.New()
	repo := memory.For[ledger.TxRepository](store)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		if _, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "100", "2")); err != nil {
			return err
		}
		stock, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "50", "3"))
		if err != nil {
			return err
		}
		require.Equal(t, "2.3333", stock.WAC.Round(4).String())

		wac, after, err := ledger.Decrease(ctx, tx, ledger.MovementIssue, entry(1, 10, "30", "0"))
		if err != nil {
			return err
		}
		require.True(t, wac.Equal(stock.WAC))
		require.True(t, after.WAC.Equal(stock.WAC))
		require.Equal(t, "120", after.OnHand.String())
		return nil
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		moves, err := tx.ListMovements(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, moves, 3)
		require.Equal(t, ledger.MovementIssue, moves[2].Type)
		require.Equal(t, "-30", moves[2].Qty.String())
		return nil
	})
	require.NoError(t, err)
}

func TestDecreaseRejectsNegativeBalance(t *testing.T) {
	store := memory.New()
	repo := memory.For[ledger.TxRepository](store)
	ctx := context.Background()

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "5", "2"))
		return err
	}))

	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, _, err := ledger.Decrease(ctx, tx, ledger.MovementIssue, entry(1, 10, "6", "0"))
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	shortages := shared.Shortages(err)
	require.Len(t, shortages, 1)
	require.Equal(t, "5", shortages[0].Available.String())

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		stock, err := tx.GetStock(ctx, 1, 10)
		require.NoError(t, err)
		require.Equal(t, "5", stock.OnHand.String())
		return nil
	}))
}

func TestIncreaseRejectsNonPositiveQuantity(t *testing.T) {
	repo := memory.For[ledger.TxRepository](memory.New())
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "0", "2"))
		return err
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMoveUsesFrozenCost(t *testing.T) {
	repo := memory.For[ledger.TxRepository](memory.New())
	ctx := context.Background()
	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		if _, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "10", "4")); err != nil {
			return err
		}
		if _, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(2, 10, "10", "1")); err != nil {
			return err
		}
		cost, err := ledger.Move(ctx, tx, ledger.MoveInput{
			Entry:        entry(1, 10, "5", "0"),
			ToLocationID: 2,
			UnitCost:     decimal.NewNullDecimal(d("3")),
		})
		require.NoError(t, err)
		require.Equal(t, "3", cost.String())

		dest, err := tx.GetStock(ctx, 2, 10)
		require.NoError(t, err)
		require.Equal(t, "15", dest.OnHand.String())
		// (10 x 1 + 5 x 3) / 15
		require.Equal(t, "1.6667", dest.WAC.Round(4).String())
		return nil
	})
	require.NoError(t, err)
}

func TestMoveRejectsSameLocation(t *testing.T) {
	repo := memory.For[ledger.TxRepository](memory.New())
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.Move(ctx, tx, ledger.MoveInput{Entry: entry(1, 10, "1", "0"), ToLocationID: 1})
		return err
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestShortfallsListsEveryOffender(t *testing.T) {
	repo := memory.For[ledger.TxRepository](memory.New())
	ctx := context.Background()
	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		if _, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "10", "1")); err != nil {
			return err
		}
		shortages, err := ledger.Shortfalls(ctx, tx, 1, []ledger.Demand{
			{ItemID: 12, Qty: d("1")},
			{ItemID: 10, Qty: d("6")},
			{ItemID: 10, Qty: d("6")},
			{ItemID: 11, Qty: d("2")},
		})
		require.NoError(t, err)
		require.Len(t, shortages, 3)
		require.Equal(t, []int64{10, 11, 12}, []int64{shortages[0].ItemID, shortages[1].ItemID, shortages[2].ItemID})
		require.Equal(t, "12", shortages[0].Requested.String())
		return nil
	})
	require.NoError(t, err)
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	store := memory.New()
	repo := memory.For[ledger.TxRepository](store)
	ctx := context.Background()
	boom := errors.New("boom")
	store.SetFault(func(op string) error {
		if op == "InsertMovement" {
			return boom
		}
		return nil
	})
	err := repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, entry(1, 10, "10", "1"))
		return err
	})
	require.ErrorIs(t, err, boom)

	store.SetFault(nil)
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := tx.GetStock(ctx, 1, 10)
		require.ErrorIs(t, err, ledger.ErrStockNotFound)
		return nil
	}))
}
