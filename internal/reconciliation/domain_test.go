package reconciliation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/ledger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateVariance(t *testing.T) {
	r := Calculate(Reconciliation{
		OpeningStock: dec("1000"),
		Receipts:     dec("500"),
		Issues:       dec("400"),
		ClosingStock: dec("1090"),
	})
	require.Equal(t, "1100", r.CalculatedClosing.String())
	require.Equal(t, "-10", r.Variance.String())
}

func TestCalculateAppliesEveryAdjustment(t *testing.T) {
	r := Calculate(Reconciliation{
		OpeningStock:  dec("100"),
		Receipts:      dec("50"),
		TransfersIn:   dec("20"),
		TransfersOut:  dec("10"),
		Issues:        dec("30"),
		Adjustments:   dec("-5"),
		BackCharges:   dec("3"),
		Credits:       dec("4"),
		Condemnations: dec("6"),
		NCRCredits:    dec("999"),
		NCRLosses:     dec("999"),
		ClosingStock:  dec("120.004"),
	})
	// 100 + 50 + 20 - 10 - 30 - 5 - 3 + 4 - 6
	require.Equal(t, "120", r.CalculatedClosing.String())
	require.Equal(t, "0", r.Variance.String())
}

func TestLocationValueRoundsPerRow(t *testing.T) {
	rows := []ledger.Stock{
		{OnHand: dec("3"), WAC: dec("0.335")},
		{OnHand: dec("3"), WAC: dec("0.335")},
		{OnHand: dec("0"), WAC: dec("50")},
	}
	// each row 1.005 rounds to 1.01
	require.Equal(t, "2.02", LocationValue(rows).StringFixed(2))
}

func TestAdjustmentsEqual(t *testing.T) {
	a := Adjustments{Adjustments: dec("1.0"), Credits: dec("2")}
	b := Adjustments{Adjustments: dec("1"), Credits: dec("2.00")}
	require.True(t, a.Equal(b))
	b.Condemnations = dec("0.01")
	require.False(t, a.Equal(b))
}
