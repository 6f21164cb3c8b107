// Package ncr tracks non-conformance records raised against deliveries.
package ncr

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies the discrepancy.
type Type string

const (
	TypePriceVariance Type = "PRICE_VARIANCE"
	TypeQuantity      Type = "QUANTITY"
	TypeQuality       Type = "QUALITY"
	TypeOther         Type = "OTHER"
)

// Status is the NCR lifecycle state.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusSent     Status = "SENT"
	StatusCredited Status = "CREDITED"
	StatusRejected Status = "REJECTED"
	StatusResolved Status = "RESOLVED"
)

// Impact is the financial classification of an NCR.
type Impact string

const (
	ImpactNone   Impact = "NONE"
	ImpactCredit Impact = "CREDIT"
	ImpactLoss   Impact = "LOSS"
)

// NCR is a non-conformance record.
type NCR struct {
	ID              int64               `json:"id"`
	Number          string              `json:"number"`
	PeriodID        int64               `json:"period_id"`
	LocationID      int64               `json:"location_id"`
	DeliveryID      *int64              `json:"delivery_id,omitempty"`
	DeliveryLineID  *int64              `json:"delivery_line_id,omitempty"`
	ItemID          int64               `json:"item_id"`
	Type            Type                `json:"type"`
	Reason          string              `json:"reason"`
	AutoGenerated   bool                `json:"auto_generated"`
	Quantity        decimal.Decimal     `json:"quantity"`
	UnitVariance    decimal.NullDecimal `json:"unit_variance"`
	Value           decimal.Decimal     `json:"value"`
	FinancialImpact Impact              `json:"financial_impact"`
	Status          Status              `json:"status"`
	CreatedBy       int64               `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
}

// Filter narrows ListNCRs.
type Filter struct {
	PeriodID   int64
	LocationID int64
	DeliveryID int64
	Status     Status
}

// ErrNotFound is returned by TxRepository for absent NCRs.
var ErrNotFound = errors.New("ncr: not found")

// TxRepository is the transactional NCR storage contract.
type TxRepository interface {
	InsertNCR(ctx context.Context, n NCR) (int64, error)
	GetNCR(ctx context.Context, id int64) (NCR, error)
	GetNCRForUpdate(ctx context.Context, id int64) (NCR, error)
	UpdateNCR(ctx context.Context, n NCR) error
	ListNCRs(ctx context.Context, f Filter) ([]NCR, error)
	// SumNCRImpact totals values classified CREDIT and LOSS for a location within a period.
	SumNCRImpact(ctx context.Context, periodID, locationID int64) (credits, losses decimal.Decimal, err error)
}

var transitions = map[Status][]Status{
	StatusOpen:     {StatusSent},
	StatusSent:     {StatusCredited, StatusRejected},
	StatusCredited: {StatusResolved},
	StatusRejected: {StatusResolved},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Editable reports whether the impact classification may still change.
func (n NCR) Editable() bool {
	return n.Status == StatusOpen || n.Status == StatusSent
}

// PriceVariance builds the auto-generated NCR for a delivery line whose price deviated.
func PriceVariance(periodID, locationID, deliveryID, lineID, itemID int64, qty, unitVariance decimal.Decimal, actor int64, at time.Time) NCR {
	return NCR{
		PeriodID:        periodID,
		LocationID:      locationID,
		DeliveryID:      &deliveryID,
		DeliveryLineID:  &lineID,
		ItemID:          itemID,
		Type:            TypePriceVariance,
		Reason:          "unit price differs from period price",
		AutoGenerated:   true,
		Quantity:        qty,
		UnitVariance:    decimal.NewNullDecimal(unitVariance),
		Value:           unitVariance.Abs().Mul(qty).Round(2),
		FinancialImpact: ImpactNone,
		Status:          StatusOpen,
		CreatedBy:       actor,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}
