// Package reconciliation derives per-location period figures and the closing variance.
package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Reconciliation is one (period, location) row.
type Reconciliation struct {
	PeriodID          int64           `json:"period_id"`
	LocationID        int64           `json:"location_id"`
	OpeningStock      decimal.Decimal `json:"opening_stock"`
	Receipts          decimal.Decimal `json:"receipts"`
	TransfersIn       decimal.Decimal `json:"transfers_in"`
	TransfersOut      decimal.Decimal `json:"transfers_out"`
	Issues            decimal.Decimal `json:"issues"`
	ClosingStock      decimal.Decimal `json:"closing_stock"`
	Adjustments       decimal.Decimal `json:"adjustments"`
	BackCharges       decimal.Decimal `json:"back_charges"`
	Credits           decimal.Decimal `json:"credits"`
	Condemnations     decimal.Decimal `json:"condemnations"`
	NCRCredits        decimal.Decimal `json:"ncr_credits"`
	NCRLosses         decimal.Decimal `json:"ncr_losses"`
	CalculatedClosing decimal.Decimal `json:"calculated_closing"`
	Variance          decimal.Decimal `json:"variance"`
	ConfirmedBy       *int64          `json:"confirmed_by,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	UpdatedBy         int64           `json:"updated_by"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Adjustments are the manually entered reconciliation inputs.
type Adjustments struct {
	Adjustments   decimal.Decimal `json:"adjustments"`
	BackCharges   decimal.Decimal `json:"back_charges" validate:"gte=0"`
	Credits       decimal.Decimal `json:"credits" validate:"gte=0"`
	Condemnations decimal.Decimal `json:"condemnations" validate:"gte=0"`
}

// Equal reports whether two adjustment sets carry the same amounts.
func (a Adjustments) Equal(b Adjustments) bool {
	return a.Adjustments.Equal(b.Adjustments) &&
		a.BackCharges.Equal(b.BackCharges) &&
		a.Credits.Equal(b.Credits) &&
		a.Condemnations.Equal(b.Condemnations)
}

// Manual returns the manually entered part of r.
func (r Reconciliation) Manual() Adjustments {
	return Adjustments{
		Adjustments:   r.Adjustments,
		BackCharges:   r.BackCharges,
		Credits:       r.Credits,
		Condemnations: r.Condemnations,
	}
}

// MovementTotals are period movement values at one location.
type MovementTotals struct {
	Receipts     decimal.Decimal
	TransfersIn  decimal.Decimal
	TransfersOut decimal.Decimal
	Issues       decimal.Decimal
}

// ErrNotFound is returned by Reader when no reconciliation row exists.
var ErrNotFound = errors.New("reconciliation: not found")

// Reader loads a stored reconciliation row.
type Reader interface {
	GetReconciliation(ctx context.Context, periodID, locationID int64) (Reconciliation, error)
}

// TxRepository is the transactional reconciliation storage contract.
type TxRepository interface {
	Reader
	period.TxRepository
	ledger.TxRepository
	UpsertReconciliation(ctx context.Context, r Reconciliation) error
	// SumMovements values the period's stock card at a location: Σ |qty| x unit_cost per movement type.
	SumMovements(ctx context.Context, periodID, locationID int64) (MovementTotals, error)
	SumNCRImpact(ctx context.Context, periodID, locationID int64) (credits, losses decimal.Decimal, err error)
}

// CalculatedClosing applies the closing formula to r's inputs.
func CalculatedClosing(r Reconciliation) decimal.Decimal {
	return r.OpeningStock.
		Add(r.Receipts).
		Add(r.TransfersIn).
		Sub(r.TransfersOut).
		Sub(r.Issues).
		Add(r.Adjustments).
		Sub(r.BackCharges).
		Add(r.Credits).
		Sub(r.Condemnations)
}

// Calculate fills CalculatedClosing and Variance. NCR figures are informational only.
func Calculate(r Reconciliation) Reconciliation {
	r.CalculatedClosing = CalculatedClosing(r)
	r.Variance = shared.Round2(r.ClosingStock.Sub(r.CalculatedClosing))
	return r
}

// LocationValue sums round2(on_hand x wac) over rows holding stock.
func LocationValue(rows []ledger.Stock) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		if !row.OnHand.IsPositive() {
			continue
		}
		total = total.Add(shared.Round2(row.Value()))
	}
	return total
}
