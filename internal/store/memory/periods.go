package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
)

// ----------------------------------------------------------------------------
// periods
// ----------------------------------------------------------------------------

func (tx *Tx) GetPeriod(_ context.Context, id int64) (period.Period, error) {
	p, ok := tx.st.periods[id]
	if !ok {
		return period.Period{}, period.ErrNotFound
	}
	return p, nil
}

func (tx *Tx) GetPeriodForUpdate(ctx context.Context, id int64) (period.Period, error) {
	return tx.GetPeriod(ctx, id)
}

func (tx *Tx) CurrentOpenPeriod(context.Context) (period.Period, error) {
	for _, id := range sortedKeys(tx.st.periods) {
		if p := tx.st.periods[id]; p.Status == period.StatusOpen {
			return p, nil
		}
	}
	return period.Period{}, period.ErrNotFound
}

// ListPeriods returns periods newest first.
func (tx *Tx) ListPeriods(context.Context) ([]period.Period, error) {
	out := make([]period.Period, 0, len(tx.st.periods))
	for _, p := range tx.st.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartDate.After(out[j].StartDate)
	})
	return out, nil
}

func (tx *Tx) InsertPeriod(_ context.Context, p period.Period) (int64, error) {
	if err := tx.check("InsertPeriod"); err != nil {
		return 0, err
	}
	for _, other := range tx.st.periods {
		if !other.StartDate.After(p.EndDate) && !other.EndDate.Before(p.StartDate) {
			return 0, period.ErrOverlap
		}
	}
	p.ID = tx.st.next("periods")
	tx.st.periods[p.ID] = p
	return p.ID, nil
}

func (tx *Tx) UpdatePeriod(_ context.Context, p period.Period) error {
	if err := tx.check("UpdatePeriod"); err != nil {
		return err
	}
	if _, ok := tx.st.periods[p.ID]; !ok {
		return period.ErrNotFound
	}
	if active(p.Status) {
		for id, other := range tx.st.periods {
			if id != p.ID && active(other.Status) {
				return period.ErrActiveExists
			}
		}
	}
	tx.st.periods[p.ID] = p
	return nil
}

func (tx *Tx) OverlappingPeriods(_ context.Context, start, end time.Time) ([]period.Period, error) {
	var out []period.Period
	for _, id := range sortedKeys(tx.st.periods) {
		p := tx.st.periods[id]
		if !p.StartDate.After(end) && !p.EndDate.Before(start) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tx *Tx) ActivePeriods(context.Context) ([]period.Period, error) {
	var out []period.Period
	for _, id := range sortedKeys(tx.st.periods) {
		p := tx.st.periods[id]
		if active(p.Status) {
			out = append(out, p)
		}
	}
	return out, nil
}

func active(s period.Status) bool {
	switch s {
	case period.StatusOpen, period.StatusPendingClose, period.StatusApproved:
		return true
	}
	return false
}

func (tx *Tx) LatestClosedBefore(_ context.Context, start time.Time) (period.Period, error) {
	var (
		best  period.Period
		found bool
	)
	for _, p := range tx.st.periods {
		if p.Status != period.StatusClosed || !p.EndDate.Before(start) {
			continue
		}
		if !found || p.EndDate.After(best.EndDate) {
			best, found = p, true
		}
	}
	if !found {
		return period.Period{}, period.ErrNotFound
	}
	return best, nil
}

func (tx *Tx) InsertPeriodLocations(_ context.Context, locs []period.Location) error {
	if err := tx.check("InsertPeriodLocations"); err != nil {
		return err
	}
	for _, l := range locs {
		tx.st.periodLocs[locKey{l.PeriodID, l.LocationID}] = l
	}
	return nil
}

// ListPeriodLocations returns the period's rows ordered by location.
func (tx *Tx) ListPeriodLocations(_ context.Context, periodID int64) ([]period.Location, error) {
	var out []period.Location
	for key, l := range tx.st.periodLocs {
		if key.period == periodID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (tx *Tx) GetPeriodLocation(_ context.Context, periodID, locationID int64) (period.Location, error) {
	l, ok := tx.st.periodLocs[locKey{periodID, locationID}]
	if !ok {
		return period.Location{}, period.ErrNotFound
	}
	return l, nil
}

func (tx *Tx) GetPeriodLocationForUpdate(ctx context.Context, periodID, locationID int64) (period.Location, error) {
	return tx.GetPeriodLocation(ctx, periodID, locationID)
}

func (tx *Tx) UpdatePeriodLocation(_ context.Context, l period.Location) error {
	if err := tx.check("UpdatePeriodLocation"); err != nil {
		return err
	}
	key := locKey{l.PeriodID, l.LocationID}
	if _, ok := tx.st.periodLocs[key]; !ok {
		return period.ErrNotFound
	}
	l.SnapshotData = slices.Clone(l.SnapshotData)
	tx.st.periodLocs[key] = l
	return nil
}

// ----------------------------------------------------------------------------
// reconciliations
// ----------------------------------------------------------------------------

func (tx *Tx) GetReconciliation(_ context.Context, periodID, locationID int64) (reconciliation.Reconciliation, error) {
	r, ok := tx.st.recs[locKey{periodID, locationID}]
	if !ok {
		return reconciliation.Reconciliation{}, reconciliation.ErrNotFound
	}
	return r, nil
}

func (tx *Tx) UpsertReconciliation(_ context.Context, r reconciliation.Reconciliation) error {
	if err := tx.check("UpsertReconciliation"); err != nil {
		return err
	}
	tx.st.recs[locKey{r.PeriodID, r.LocationID}] = r
	return nil
}

// ----------------------------------------------------------------------------
// approvals
// ----------------------------------------------------------------------------

func (tx *Tx) InsertApproval(_ context.Context, a approval.Approval) (int64, error) {
	if err := tx.check("InsertApproval"); err != nil {
		return 0, err
	}
	if a.Status == approval.StatusPending {
		for _, existing := range tx.st.approvals {
			if existing.Status == approval.StatusPending && existing.EntityType == a.EntityType && existing.EntityID == a.EntityID {
				return 0, approval.ErrDuplicatePending
			}
		}
	}
	a.ID = tx.st.next("approvals")
	tx.st.approvals[a.ID] = a
	return a.ID, nil
}

func (tx *Tx) GetApproval(_ context.Context, id int64) (approval.Approval, error) {
	a, ok := tx.st.approvals[id]
	if !ok {
		return approval.Approval{}, approval.ErrNotFound
	}
	return a, nil
}

func (tx *Tx) GetApprovalForUpdate(ctx context.Context, id int64) (approval.Approval, error) {
	return tx.GetApproval(ctx, id)
}

func (tx *Tx) UpdateApproval(_ context.Context, a approval.Approval) error {
	if err := tx.check("UpdateApproval"); err != nil {
		return err
	}
	if _, ok := tx.st.approvals[a.ID]; !ok {
		return approval.ErrNotFound
	}
	tx.st.approvals[a.ID] = a
	return nil
}

func (tx *Tx) PendingApproval(_ context.Context, entityType approval.EntityType, entityID int64) (approval.Approval, error) {
	for _, id := range sortedKeys(tx.st.approvals) {
		a := tx.st.approvals[id]
		if a.Status == approval.StatusPending && a.EntityType == entityType && a.EntityID == entityID {
			return a, nil
		}
	}
	return approval.Approval{}, approval.ErrNotFound
}

func (tx *Tx) ListApprovals(_ context.Context, f approval.Filter) ([]approval.Approval, error) {
	var out []approval.Approval
	for _, id := range sortedKeys(tx.st.approvals) {
		a := tx.st.approvals[id]
		if f.EntityType != "" && a.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != 0 && a.EntityID != f.EntityID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.RequestedBefore.IsZero() && !a.RequestedAt.Before(f.RequestedBefore) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
