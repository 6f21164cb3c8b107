// Package period owns the accounting period lifecycle and per-location readiness.
package period

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Status is the lifecycle state of a period.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusOpen         Status = "OPEN"
	StatusPendingClose Status = "PENDING_CLOSE"
	StatusApproved     Status = "APPROVED"
	StatusClosed       Status = "CLOSED"
)

// LocationStatus is the readiness state of a location within a period.
type LocationStatus string

const (
	LocationOpen   LocationStatus = "OPEN"
	LocationReady  LocationStatus = "READY"
	LocationClosed LocationStatus = "CLOSED"
)

// Period is a date-bounded accounting window.
type Period struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	Status     Status     `json:"status"`
	ApprovalID *int64     `json:"approval_id,omitempty"`
	CreatedBy  int64      `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ClosedBy   *int64     `json:"closed_by,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Contains reports whether the calendar day of t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(day(p.StartDate)) && !d.After(day(p.EndDate))
}

// Location is the per-location state of a period.
type Location struct {
	PeriodID     int64               `json:"period_id"`
	LocationID   int64               `json:"location_id"`
	Status       LocationStatus      `json:"status"`
	OpeningValue decimal.Decimal     `json:"opening_value"`
	ClosingValue decimal.NullDecimal `json:"closing_value"`
	SnapshotData json.RawMessage     `json:"-"`
	ReadyAt      *time.Time          `json:"ready_at,omitempty"`
	ReadyBy      *int64              `json:"ready_by,omitempty"`
	ClosedAt     *time.Time          `json:"closed_at,omitempty"`
}

// CreatePeriodInput is the payload for CreatePeriod.
type CreatePeriodInput struct {
	Name      string    `json:"name" validate:"required,max=64"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// Validate ensures the input is well formed.
func (in CreatePeriodInput) Validate() error {
	if err := shared.ValidateInput(in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("name required", shared.FieldError{Field: "name", Rule: "required"})
	}
	if day(in.EndDate).Before(day(in.StartDate)) {
		return shared.Validation("end date must not precede start date", shared.FieldError{Field: "end_date", Rule: "gtefield"})
	}
	return nil
}

// ErrNotFound is returned by TxRepository for absent periods or period locations.
var ErrNotFound = errors.New("period: not found")

// Storage constraint failures. Stores enforce both rules on write as well, so two
// transactions that each pass the read check cannot both commit.
var (
	// ErrOverlap is returned by InsertPeriod when the range intersects a stored period.
	ErrOverlap = errors.New("period: overlapping range")
	// ErrActiveExists is returned by UpdatePeriod when another period is already OPEN, PENDING_CLOSE or APPROVED.
	ErrActiveExists = errors.New("period: another period is active")
)

// Reader is the read side other processors use to find the running period.
type Reader interface {
	GetPeriod(ctx context.Context, id int64) (Period, error)
	// CurrentOpenPeriod returns the OPEN period or ErrNotFound.
	CurrentOpenPeriod(ctx context.Context) (Period, error)
}

// LocationLocker locks and rewrites period location rows.
type LocationLocker interface {
	GetPeriodLocationForUpdate(ctx context.Context, periodID, locationID int64) (Location, error)
	UpdatePeriodLocation(ctx context.Context, l Location) error
}

// Poster is what ledger-posting processors need from the period side.
type Poster interface {
	Reader
	LocationLocker
}

// TxRepository is the transactional period storage contract.
type TxRepository interface {
	Reader
	approval.TxRepository
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	InsertPeriod(ctx context.Context, p Period) (int64, error)
	UpdatePeriod(ctx context.Context, p Period) error
	// InsertPeriod and UpdatePeriod report ErrOverlap and ErrActiveExists.
	// OverlappingPeriods returns periods whose range intersects [start, end].
	OverlappingPeriods(ctx context.Context, start, end time.Time) ([]Period, error)
	// ActivePeriods returns periods in OPEN, PENDING_CLOSE, or APPROVED.
	ActivePeriods(ctx context.Context) ([]Period, error)
	// LatestClosedBefore returns the CLOSED period ending latest before start, or ErrNotFound.
	LatestClosedBefore(ctx context.Context, start time.Time) (Period, error)
	InsertPeriodLocations(ctx context.Context, locs []Location) error
	ListPeriodLocations(ctx context.Context, periodID int64) ([]Location, error)
	GetPeriodLocation(ctx context.Context, periodID, locationID int64) (Location, error)
	LocationLocker
}

var transitions = map[Status][]Status{
	StatusDraft:        {StatusOpen},
	StatusOpen:         {StatusPendingClose},
	StatusPendingClose: {StatusOpen, StatusApproved, StatusClosed},
	StatusApproved:     {StatusClosed},
}

// CanTransition reports whether from -> to is a legal period transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
