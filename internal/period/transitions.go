package period

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RequireOpen returns the running period that postings stamp, or NO_OPEN_PERIOD.
func RequireOpen(ctx context.Context, tx Reader) (Period, error) {
	p, err := tx.CurrentOpenPeriod(ctx)
	if errors.Is(err, ErrNotFound) {
		return Period{}, shared.Conflict(shared.CodeNoOpenPeriod, "no open period accepts postings", nil)
	}
	if err != nil {
		return Period{}, fmt.Errorf("period: current open: %w", err)
	}
	return p, nil
}

// LockStatus locks the period and checks it is in want.
func LockStatus(ctx context.Context, tx TxRepository, periodID int64, want Status) (Period, error) {
	p, err := tx.GetPeriodForUpdate(ctx, periodID)
	if errors.Is(err, ErrNotFound) {
		return Period{}, shared.NotFound("period", periodID)
	}
	if err != nil {
		return Period{}, fmt.Errorf("period: lock: %w", err)
	}
	if p.Status != want {
		return Period{}, shared.InvalidPeriodStatus(periodID, string(p.Status), string(want))
	}
	return p, nil
}

// LockLocation locks one period location row.
func LockLocation(ctx context.Context, tx LocationLocker, periodID, locationID int64) (Location, error) {
	loc, err := tx.GetPeriodLocationForUpdate(ctx, periodID, locationID)
	if errors.Is(err, ErrNotFound) {
		return Location{}, shared.NotFound("period location", fmt.Sprintf("%d/%d", periodID, locationID))
	}
	if err != nil {
		return Location{}, fmt.Errorf("period: lock location: %w", err)
	}
	return loc, nil
}

// MarkReady records the operator's confirmation of a location's figures.
// Re-confirming a READY location refreshes its confirmation stamp.
func MarkReady(ctx context.Context, tx TxRepository, periodID, locationID int64, actor shared.Actor, now time.Time) (Location, error) {
	if _, err := LockStatus(ctx, tx, periodID, StatusOpen); err != nil {
		return Location{}, err
	}
	loc, err := LockLocation(ctx, tx, periodID, locationID)
	if err != nil {
		return Location{}, err
	}
	if loc.Status == LocationClosed {
		return Location{}, shared.InvalidStatus("period location", locationID, string(loc.Status))
	}
	actorID := actor.ID
	loc.Status = LocationReady
	loc.ReadyAt = &now
	loc.ReadyBy = &actorID
	if err := tx.UpdatePeriodLocation(ctx, loc); err != nil {
		return Location{}, fmt.Errorf("period: update location: %w", err)
	}
	return loc, nil
}

// ResetReadiness returns a READY location to OPEN. It reports whether anything changed.
func ResetReadiness(ctx context.Context, tx LocationLocker, periodID, locationID int64) (bool, error) {
	loc, err := LockLocation(ctx, tx, periodID, locationID)
	if err != nil {
		return false, err
	}
	return withdraw(ctx, tx, loc)
}

// TouchLocation is called by every ledger posting for each location it moves stock at.
// The location must be tracked by the period, and a READY confirmation is withdrawn
// because the confirmed figures no longer match the ledger.
func TouchLocation(ctx context.Context, tx LocationLocker, p Period, locationID int64) (bool, error) {
	loc, err := tx.GetPeriodLocationForUpdate(ctx, p.ID, locationID)
	if errors.Is(err, ErrNotFound) {
		return false, shared.Validation(
			fmt.Sprintf("location %d is not tracked by period %s", locationID, p.Name),
			shared.FieldError{Field: "location_id", Rule: "period"})
	}
	if err != nil {
		return false, fmt.Errorf("period: lock location: %w", err)
	}
	if loc.Status == LocationClosed {
		return false, shared.InvalidStatus("period location", locationID, string(loc.Status))
	}
	return withdraw(ctx, tx, loc)
}

func withdraw(ctx context.Context, tx LocationLocker, loc Location) (bool, error) {
	if loc.Status != LocationReady {
		return false, nil
	}
	loc.Status = LocationOpen
	loc.ReadyAt = nil
	loc.ReadyBy = nil
	if err := tx.UpdatePeriodLocation(ctx, loc); err != nil {
		return false, fmt.Errorf("period: update location: %w", err)
	}
	return true, nil
}

// RevertPendingClose sends a PENDING_CLOSE period back to OPEN and clears its approval reference.
// Location readiness is left as it was so the period can be resubmitted at once.
func RevertPendingClose(ctx context.Context, tx TxRepository, periodID, approvalID int64, now time.Time) (Period, error) {
	p, err := LockStatus(ctx, tx, periodID, StatusPendingClose)
	if err != nil {
		return Period{}, err
	}
	if p.ApprovalID != nil && *p.ApprovalID != approvalID {
		return Period{}, shared.Conflict(shared.CodeInvalidStatus,
			fmt.Sprintf("period %d is awaiting approval %d", periodID, *p.ApprovalID), nil)
	}
	p.Status = StatusOpen
	p.ApprovalID = nil
	p.UpdatedAt = now
	if err := tx.UpdatePeriod(ctx, p); err != nil {
		return Period{}, fmt.Errorf("period: update: %w", err)
	}
	return p, nil
}

// NotReady lists locations that are not READY.
func NotReady(locs []Location) []int64 {
	var out []int64
	for _, l := range locs {
		if l.Status != LocationReady {
			out = append(out, l.LocationID)
		}
	}
	return out
}

// LocationsNotReady builds the conflict for a close blocked by unconfirmed locations.
func LocationsNotReady(periodID int64, ids []int64) error {
	return shared.Conflict(shared.CodeLocationsNotReady,
		fmt.Sprintf("period %d has %d location(s) not ready", periodID, len(ids)),
		map[string]any{"period_id": periodID, "location_ids": ids})
}
