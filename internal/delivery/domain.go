// Package delivery posts incoming goods into the ledger and flags price variances.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/period"
)

// ============================================================================
// STATUS
// ============================================================================

// Status is the delivery lifecycle state.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
)

// CanPost reports whether a delivery in s may be posted.
func (s Status) CanPost() bool {
	return s == StatusDraft
}

// DefaultVarianceThreshold is the materiality bound above which a price variance raises an NCR.
var DefaultVarianceThreshold = decimal.RequireFromString("0.01")

// ============================================================================
// ENTITIES
// ============================================================================

// Delivery is a goods-receipt document.
type Delivery struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	LocationID   int64           `json:"location_id"`
	SupplierRef  string          `json:"supplier_ref"`
	DeliveryDate time.Time       `json:"delivery_date"`
	Status       Status          `json:"status"`
	PeriodID     *int64          `json:"period_id,omitempty"`
	HasVariance  bool            `json:"has_variance"`
	TotalValue   decimal.Decimal `json:"total_value"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	PostedBy     *int64          `json:"posted_by,omitempty"`
	PostedAt     *time.Time      `json:"posted_at,omitempty"`
	Lines        []Line          `json:"lines"`
}

// Line is one received item. PeriodPrice and PriceVariance stay null until posting,
// and remain null when the item has no locked price for the period.
type Line struct {
	ID            int64               `json:"id"`
	DeliveryID    int64               `json:"delivery_id"`
	ItemID        int64               `json:"item_id"`
	Quantity      decimal.Decimal     `json:"quantity"`
	UnitPrice     decimal.Decimal     `json:"unit_price"`
	PeriodPrice   decimal.NullDecimal `json:"period_price"`
	PriceVariance decimal.NullDecimal `json:"price_variance"`
	LineValue     decimal.Decimal     `json:"line_value"`
}

// ============================================================================
// INPUTS
// ============================================================================

// LineInput is one requested line.
type LineInput struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// CreateInput is a new draft delivery.
type CreateInput struct {
	LocationID   int64       `json:"location_id" validate:"required,gt=0"`
	SupplierRef  string      `json:"supplier_ref" validate:"max=120"`
	DeliveryDate time.Time   `json:"delivery_date" validate:"required"`
	Lines        []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Filter narrows ListDeliveries.
type Filter struct {
	LocationID int64
	PeriodID   int64
	Status     Status
}

// ErrNotFound is returned by TxRepository for absent deliveries.
var ErrNotFound = errors.New("delivery: not found")

// TxRepository is the transactional delivery storage contract plus the collaborators posting writes to.
type TxRepository interface {
	ledger.TxRepository
	ncr.TxRepository
	period.Poster
	// InsertDelivery stores the header and lines and returns them with ids assigned.
	InsertDelivery(ctx context.Context, d Delivery) (Delivery, error)
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	GetDeliveryForUpdate(ctx context.Context, id int64) (Delivery, error)
	// UpdateDelivery rewrites the header and the posting fields of every line.
	UpdateDelivery(ctx context.Context, d Delivery) error
	ListDeliveries(ctx context.Context, f Filter) ([]Delivery, error)
}
