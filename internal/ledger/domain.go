// Package ledger maintains per-location, per-item on-hand quantity and weighted average cost.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies a stock card row.
type MovementType string

const (
	MovementReceipt     MovementType = "RECEIPT"
	MovementIssue       MovementType = "ISSUE"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
)

// Stock is the ledger row for one (location, item).
type Stock struct {
	LocationID int64           `json:"location_id"`
	ItemID     int64           `json:"item_id"`
	OnHand     decimal.Decimal `json:"on_hand"`
	WAC        decimal.Decimal `json:"wac"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Value is on_hand x wac at full precision.
func (s Stock) Value() decimal.Decimal {
	return s.OnHand.Mul(s.WAC)
}

// Movement is one stock card entry. Qty is signed.
type Movement struct {
	ID         int64           `json:"id"`
	PeriodID   int64           `json:"period_id"`
	LocationID int64           `json:"location_id"`
	ItemID     int64           `json:"item_id"`
	Type       MovementType    `json:"type"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	RefType    string          `json:"ref_type"`
	RefID      int64           `json:"ref_id"`
	PostedAt   time.Time       `json:"posted_at"`
}

// Entry describes one ledger mutation.
type Entry struct {
	PeriodID   int64
	LocationID int64
	ItemID     int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	RefType    string
	RefID      int64
	PostedAt   time.Time
}

// ErrStockNotFound is returned by TxRepository when no row exists yet.
var ErrStockNotFound = errors.New("ledger: stock row not found")

// TxRepository is the transactional ledger storage contract.
type TxRepository interface {
	// GetStockForUpdate locks and returns the row, or ErrStockNotFound.
	GetStockForUpdate(ctx context.Context, locationID, itemID int64) (Stock, error)
	UpsertStock(ctx context.Context, stock Stock) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetStock(ctx context.Context, locationID, itemID int64) (Stock, error)
	ListStock(ctx context.Context, locationID int64) ([]Stock, error)
	ListMovements(ctx context.Context, locationID, itemID int64) ([]Movement, error)
}
