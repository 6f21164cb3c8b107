// Package issue posts stock consumption against the ledger.
package issue

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/period"
)

// Issue is a posted consumption document. Issues are created and posted in one step.
type Issue struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	LocationID int64           `json:"location_id"`
	PeriodID   int64           `json:"period_id"`
	IssueDate  time.Time       `json:"issue_date"`
	Purpose    string          `json:"purpose"`
	TotalValue decimal.Decimal `json:"total_value"`
	PostedBy   int64           `json:"posted_by"`
	PostedAt   time.Time       `json:"posted_at"`
	Lines      []Line          `json:"lines"`
}

// Line freezes the WAC in force at posting so its value never drifts.
type Line struct {
	ID         int64           `json:"id"`
	IssueID    int64           `json:"issue_id"`
	ItemID     int64           `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	WACAtIssue decimal.Decimal `json:"wac_at_issue"`
	LineValue  decimal.Decimal `json:"line_value"`
}

// LineInput is one requested line.
type LineInput struct {
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// PostInput creates and posts an issue.
type PostInput struct {
	LocationID int64       `json:"location_id" validate:"required,gt=0"`
	IssueDate  time.Time   `json:"issue_date" validate:"required"`
	Purpose    string      `json:"purpose" validate:"max=200"`
	Lines      []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Filter narrows ListIssues.
type Filter struct {
	LocationID int64
	PeriodID   int64
}

// ErrNotFound is returned by TxRepository for absent issues.
var ErrNotFound = errors.New("issue: not found")

// TxRepository is the transactional issue storage contract.
type TxRepository interface {
	ledger.TxRepository
	period.Poster
	// InsertIssue stores the header and lines and returns them with ids assigned.
	InsertIssue(ctx context.Context, is Issue) (Issue, error)
	GetIssue(ctx context.Context, id int64) (Issue, error)
	ListIssues(ctx context.Context, f Filter) ([]Issue, error)
}

func demand(lines []LineInput) []ledger.Demand {
	out := make([]ledger.Demand, 0, len(lines))
	for _, l := range lines {
		out = append(out, ledger.Demand{ItemID: l.ItemID, Qty: l.Quantity})
	}
	return out
}
