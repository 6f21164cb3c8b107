// Package transfer moves stock between locations behind an approval.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/period"
)

// Status is the transfer lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusCompleted       Status = "COMPLETED"
)

// Transfer is an inter-location movement request.
type Transfer struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	FromLocationID int64           `json:"from_location_id"`
	ToLocationID   int64           `json:"to_location_id"`
	Reason         string          `json:"reason"`
	Status         Status          `json:"status"`
	ApprovalID     *int64          `json:"approval_id,omitempty"`
	PeriodID       *int64          `json:"period_id,omitempty"`
	TotalValue     decimal.Decimal `json:"total_value"`
	RequestedBy    int64           `json:"requested_by"`
	RequestedAt    time.Time       `json:"requested_at"`
	DecidedBy      *int64          `json:"decided_by,omitempty"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Comments       string          `json:"comments,omitempty"`
	Lines          []Line          `json:"lines"`
}

// Line freezes the source WAC at request time; approval moves stock at that cost.
type Line struct {
	ID            int64           `json:"id"`
	TransferID    int64           `json:"transfer_id"`
	ItemID        int64           `json:"item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	WACAtTransfer decimal.Decimal `json:"wac_at_transfer"`
	LineValue     decimal.Decimal `json:"line_value"`
}

// LineInput is one requested line.
type LineInput struct {
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// RequestInput asks to move stock from one location to another.
type RequestInput struct {
	FromLocationID int64       `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64       `json:"to_location_id" validate:"required,gt=0,nefield=FromLocationID"`
	Reason         string      `json:"reason" validate:"max=200"`
	Lines          []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Filter narrows ListTransfers.
type Filter struct {
	LocationID int64
	Status     Status
}

// ErrNotFound is returned by TxRepository for absent transfers.
var ErrNotFound = errors.New("transfer: not found")

// TxRepository is the transactional transfer storage contract.
type TxRepository interface {
	ledger.TxRepository
	approval.TxRepository
	period.Poster
	// InsertTransfer stores the header and lines and returns them with ids assigned.
	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	ListTransfers(ctx context.Context, f Filter) ([]Transfer, error)
}

func demand(t Transfer) []ledger.Demand {
	out := make([]ledger.Demand, 0, len(t.Lines))
	for _, l := range t.Lines {
		out = append(out, ledger.Demand{ItemID: l.ItemID, Qty: l.Quantity})
	}
	return out
}
