// Package periodclose seals an approved period and writes its immutable snapshots.
package periodclose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TxRepository is everything the close transaction reads and writes.
type TxRepository interface {
	period.TxRepository
	reconciliation.Reader
	ListStock(ctx context.Context, locationID int64) ([]ledger.Stock, error)
}

// Executor implements approval.PeriodCloseHandler.
type Executor struct {
	repo     db.Transactor[TxRepository]
	notifier shared.Notifier
	audit    shared.AuditPort
	logger   *slog.Logger
	tracker  *observability.Tracker
	now      func() time.Time
}

var _ approval.PeriodCloseHandler = (*Executor)(nil)

// NewExecutor constructs the executor. repo should carry the close transaction's wait and run bounds.
func NewExecutor(repo db.Transactor[TxRepository], notifier shared.Notifier, audit shared.AuditPort, logger *slog.Logger, tracker *observability.Tracker) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		repo:     repo,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		tracker:  tracker,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, primarily for tests.
func (e *Executor) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SnapshotItem is one ledger row captured at close.
type SnapshotItem struct {
	ItemID    int64           `json:"item_id"`
	OnHand    decimal.Decimal `json:"on_hand"`
	WAC       decimal.Decimal `json:"wac"`
	ItemValue decimal.Decimal `json:"item_value"`
}

// Snapshot is the persisted point-in-time record for one location.
type Snapshot struct {
	PeriodID       int64                          `json:"period_id"`
	LocationID     int64                          `json:"location_id"`
	Items          []SnapshotItem                 `json:"items"`
	LocationTotal  decimal.Decimal                `json:"location_total"`
	Reconciliation *reconciliation.Reconciliation `json:"reconciliation"`
	CapturedAt     time.Time                      `json:"captured_at"`
}

// write is one PeriodLocation update collected before anything is applied.
type write struct {
	location period.Location
	total    decimal.Decimal
	data     json.RawMessage
}

// plan is the full set of writes for a close.
type plan struct {
	period period.Period
	writes []write
}

// ApprovePeriodClose re-validates the period, snapshots every location, then applies
// all writes and the approval decision in one transaction.
func (e *Executor) ApprovePeriodClose(ctx context.Context, a approval.Approval, s approval.PeriodClose, reviewer shared.Actor) (approval.Approval, error) {
	done := e.tracker.Track("period_close")
	var (
		decided approval.Approval
		closed  plan
	)
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := e.now()
		p, err := e.validate(ctx, tx, s.PeriodID, a.ID)
		if err != nil {
			return err
		}
		work, err := e.collect(ctx, tx, p, now)
		if err != nil {
			return err
		}
		if err := apply(ctx, tx, work, reviewer, now); err != nil {
			return err
		}
		decided, err = approval.Decide(ctx, tx, a.ID, approval.StatusApproved, reviewer, "", now)
		if err != nil {
			return err
		}
		closed = work
		return nil
	})
	done.End(err)
	if err != nil {
		return approval.Approval{}, err
	}
	total := decimal.Zero
	for _, w := range closed.writes {
		total = total.Add(w.total)
	}
	shared.Notify(ctx, e.notifier, e.logger, shared.Event{
		Type:     shared.EventPeriodClosed,
		Entity:   "period",
		EntityID: s.PeriodID,
		ActorID:  reviewer.ID,
		Message:  fmt.Sprintf("period %s closed", closed.period.Name),
		Data:     map[string]any{"locations": len(closed.writes), "closing_value": total.StringFixed(2)},
	})
	shared.Audit(ctx, e.audit, e.logger, reviewer, "period.close", "period", s.PeriodID, map[string]any{
		"approval_id": decided.ID, "locations": len(closed.writes), "closing_value": total.StringFixed(2),
	})
	return decided, nil
}

// RejectPeriodClose returns the period to OPEN; locations stay READY.
func (e *Executor) RejectPeriodClose(ctx context.Context, a approval.Approval, s approval.PeriodClose, reviewer shared.Actor, comments string) (approval.Approval, error) {
	var decided approval.Approval
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := e.now()
		var err error
		decided, err = approval.Decide(ctx, tx, a.ID, approval.StatusRejected, reviewer, comments, now)
		if err != nil {
			return err
		}
		_, err = period.RevertPendingClose(ctx, tx, s.PeriodID, a.ID, now)
		return err
	})
	if err != nil {
		return approval.Approval{}, err
	}
	shared.Audit(ctx, e.audit, e.logger, reviewer, "period.close.reject", "period", s.PeriodID, map[string]any{
		"approval_id": decided.ID, "comments": comments,
	})
	return decided, nil
}

func (e *Executor) validate(ctx context.Context, tx TxRepository, periodID, approvalID int64) (period.Period, error) {
	p, err := period.LockStatus(ctx, tx, periodID, period.StatusPendingClose)
	if err != nil {
		return period.Period{}, err
	}
	if p.ApprovalID == nil || *p.ApprovalID != approvalID {
		return period.Period{}, shared.Conflict(shared.CodeInvalidStatus,
			fmt.Sprintf("approval %d is not the period's current close request", approvalID), nil)
	}
	return p, nil
}

func (e *Executor) collect(ctx context.Context, tx TxRepository, p period.Period, now time.Time) (plan, error) {
	locs, err := tx.ListPeriodLocations(ctx, p.ID)
	if err != nil {
		return plan{}, fmt.Errorf("periodclose: list locations: %w", err)
	}
	if ids := period.NotReady(locs); len(ids) > 0 {
		return plan{}, period.LocationsNotReady(p.ID, ids)
	}
	work := plan{period: p, writes: make([]write, 0, len(locs))}
	for _, loc := range locs {
		snap, err := e.snapshot(ctx, tx, loc, now)
		if err != nil {
			return plan{}, err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return plan{}, fmt.Errorf("periodclose: encode snapshot: %w", err)
		}
		work.writes = append(work.writes, write{location: loc, total: snap.LocationTotal, data: data})
	}
	return work, nil
}

func (e *Executor) snapshot(ctx context.Context, tx TxRepository, loc period.Location, now time.Time) (Snapshot, error) {
	rows, err := tx.ListStock(ctx, loc.LocationID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("periodclose: ledger rows: %w", err)
	}
	snap := Snapshot{
		PeriodID:      loc.PeriodID,
		LocationID:    loc.LocationID,
		Items:         []SnapshotItem{},
		LocationTotal: decimal.Zero,
		CapturedAt:    now,
	}
	for _, row := range rows {
		if !row.OnHand.IsPositive() {
			continue
		}
		value := shared.Round2(row.Value())
		snap.Items = append(snap.Items, SnapshotItem{ItemID: row.ItemID, OnHand: row.OnHand, WAC: row.WAC, ItemValue: value})
		snap.LocationTotal = snap.LocationTotal.Add(value)
	}
	rec, err := tx.GetReconciliation(ctx, loc.PeriodID, loc.LocationID)
	switch {
	case err == nil:
		snap.Reconciliation = &rec
	case !errors.Is(err, reconciliation.ErrNotFound):
		return Snapshot{}, fmt.Errorf("periodclose: reconciliation: %w", err)
	}
	return snap, nil
}

func apply(ctx context.Context, tx TxRepository, work plan, reviewer shared.Actor, now time.Time) error {
	for _, w := range work.writes {
		loc := w.location
		loc.Status = period.LocationClosed
		loc.ClosingValue = decimal.NewNullDecimal(w.total)
		loc.SnapshotData = w.data
		loc.ClosedAt = &now
		if err := tx.UpdatePeriodLocation(ctx, loc); err != nil {
			return fmt.Errorf("periodclose: close location %d: %w", loc.LocationID, err)
		}
	}
	p := work.period
	reviewerID := reviewer.ID
	p.Status = period.StatusClosed
	p.ClosedAt = &now
	p.ClosedBy = &reviewerID
	p.UpdatedAt = now
	if err := tx.UpdatePeriod(ctx, p); err != nil {
		return fmt.Errorf("periodclose: close period: %w", err)
	}
	return nil
}
