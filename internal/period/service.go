package period

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Service orchestrates the period state machine.
type Service struct {
	repo     db.Transactor[TxRepository]
	catalog  catalog.Lookup
	authz    shared.Authorizer
	notifier shared.Notifier
	audit    shared.AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a period service.
func NewService(repo db.Transactor[TxRepository], lookup catalog.Lookup, authz shared.Authorizer, notifier shared.Notifier, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  lookup,
		authz:    authz,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePeriod inserts a DRAFT period and one PeriodLocation per active location,
// rolling each opening value over from the prior closed period.
func (s *Service) CreatePeriod(ctx context.Context, in CreatePeriodInput, actor shared.Actor) (Period, error) {
	if err := shared.Require(s.authz, actor, shared.PermPeriodsManage); err != nil {
		return Period{}, err
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	locations, err := s.catalog.ActiveLocations(ctx)
	if err != nil {
		return Period{}, fmt.Errorf("period: active locations: %w", err)
	}
	now := s.now()
	p := Period{
		Name:      in.Name,
		StartDate: day(in.StartDate),
		EndDate:   day(in.EndDate),
		Status:    StatusDraft,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		overlaps, err := tx.OverlappingPeriods(ctx, p.StartDate, p.EndDate)
		if err != nil {
			return fmt.Errorf("period: overlap check: %w", err)
		}
		if len(overlaps) > 0 {
			ids := make([]int64, 0, len(overlaps))
			for _, o := range overlaps {
				ids = append(ids, o.ID)
			}
			return shared.Conflict(shared.CodeOverlappingPeriod, "period overlaps an existing period",
				map[string]any{"period_ids": ids})
		}
		openings, err := s.rollover(ctx, tx, p.StartDate)
		if err != nil {
			return err
		}
		id, err := tx.InsertPeriod(ctx, p)
		if errors.Is(err, ErrOverlap) {
			return shared.Conflict(shared.CodeOverlappingPeriod, "period overlaps an existing period", nil)
		}
		if err != nil {
			return fmt.Errorf("period: insert: %w", err)
		}
		p.ID = id
		locs := make([]Location, 0, len(locations))
		for _, l := range locations {
			locs = append(locs, Location{
				PeriodID:     id,
				LocationID:   l.ID,
				Status:       LocationOpen,
				OpeningValue: openings[l.ID],
			})
		}
		if len(locs) == 0 {
			return nil
		}
		return tx.InsertPeriodLocations(ctx, locs)
	})
	if err != nil {
		return Period{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "period.create", "period", p.ID, map[string]any{
		"name": p.Name, "start": p.StartDate.Format(time.DateOnly), "end": p.EndDate.Format(time.DateOnly), "locations": len(locations),
	})
	return p, nil
}

// rollover maps location id to the closing value of the latest prior closed period.
func (s *Service) rollover(ctx context.Context, tx TxRepository, start time.Time) (map[int64]decimal.Decimal, error) {
	out := map[int64]decimal.Decimal{}
	prior, err := tx.LatestClosedBefore(ctx, start)
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("period: prior closed: %w", err)
	}
	locs, err := tx.ListPeriodLocations(ctx, prior.ID)
	if err != nil {
		return nil, fmt.Errorf("period: prior locations: %w", err)
	}
	for _, l := range locs {
		if l.ClosingValue.Valid {
			out[l.LocationID] = l.ClosingValue.Decimal
		}
	}
	return out, nil
}

// OpenPeriod moves DRAFT to OPEN once every item carries a locked price for the period.
func (s *Service) OpenPeriod(ctx context.Context, periodID int64, actor shared.Actor) (Period, error) {
	if err := shared.Require(s.authz, actor, shared.PermPeriodsManage); err != nil {
		return Period{}, err
	}
	complete, err := s.catalog.PricesComplete(ctx, periodID)
	if err != nil {
		return Period{}, fmt.Errorf("period: prices complete: %w", err)
	}
	if !complete {
		return Period{}, shared.Conflict(shared.CodePricesIncomplete,
			fmt.Sprintf("period %d has items without a locked price", periodID), nil)
	}
	var out Period
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := LockStatus(ctx, tx, periodID, StatusDraft)
		if err != nil {
			return err
		}
		active, err := tx.ActivePeriods(ctx)
		if err != nil {
			return fmt.Errorf("period: active periods: %w", err)
		}
		if len(active) > 0 {
			return shared.Conflict(shared.CodeInvalidPeriodStatus,
				fmt.Sprintf("period %d is still %s", active[0].ID, active[0].Status),
				map[string]any{"period_id": active[0].ID, "status": active[0].Status})
		}
		now := s.now()
		p.Status = StatusOpen
		p.OpenedAt = &now
		p.UpdatedAt = now
		err = tx.UpdatePeriod(ctx, p)
		if errors.Is(err, ErrActiveExists) {
			return shared.Conflict(shared.CodeInvalidPeriodStatus, "another period became active concurrently", nil)
		}
		if err != nil {
			return fmt.Errorf("period: update: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "period.open", "period", periodID, nil)
	return out, nil
}

// ReopenLocation withdraws a location's READY confirmation.
func (s *Service) ReopenLocation(ctx context.Context, periodID, locationID int64, actor shared.Actor) (Location, error) {
	if err := shared.Require(s.authz, actor, shared.PermReconcile); err != nil {
		return Location{}, err
	}
	var out Location
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := LockStatus(ctx, tx, periodID, StatusOpen); err != nil {
			return err
		}
		changed, err := ResetReadiness(ctx, tx, periodID, locationID)
		if err != nil {
			return err
		}
		loc, err := tx.GetPeriodLocation(ctx, periodID, locationID)
		if err != nil {
			return err
		}
		if !changed {
			return shared.InvalidStatus("period location", locationID, string(loc.Status))
		}
		out = loc
		return nil
	})
	if err != nil {
		return Location{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "period.location.reopen", "period", periodID, map[string]any{"location_id": locationID})
	return out, nil
}

// RequestClose moves an OPEN period whose locations are all READY to PENDING_CLOSE,
// raising the PERIOD_CLOSE approval in the same transaction.
func (s *Service) RequestClose(ctx context.Context, periodID int64, actor shared.Actor) (Period, approval.Approval, error) {
	if err := shared.Require(s.authz, actor, shared.PermPeriodsManage); err != nil {
		return Period{}, approval.Approval{}, err
	}
	var (
		out Period
		req approval.Approval
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := LockStatus(ctx, tx, periodID, StatusOpen)
		if err != nil {
			return err
		}
		locs, err := tx.ListPeriodLocations(ctx, periodID)
		if err != nil {
			return fmt.Errorf("period: list locations: %w", err)
		}
		if ids := NotReady(locs); len(ids) > 0 {
			return LocationsNotReady(periodID, ids)
		}
		now := s.now()
		req, err = approval.Request(ctx, tx, approval.EntityPeriodClose, periodID, actor, now)
		if err != nil {
			return err
		}
		p.Status = StatusPendingClose
		p.ApprovalID = &req.ID
		p.UpdatedAt = now
		if err := tx.UpdatePeriod(ctx, p); err != nil {
			return fmt.Errorf("period: update: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return Period{}, approval.Approval{}, err
	}
	shared.Notify(ctx, s.notifier, s.logger, shared.Event{
		Type:     shared.EventApprovalRequired,
		Entity:   string(approval.EntityPeriodClose),
		EntityID: periodID,
		ActorID:  actor.ID,
		Message:  fmt.Sprintf("period %s awaits close approval", out.Name),
		Data:     map[string]any{"approval_id": req.ID},
	})
	shared.Audit(ctx, s.audit, s.logger, actor, "period.close.request", "period", periodID, map[string]any{"approval_id": req.ID})
	return out, req, nil
}

// Get loads a period.
func (s *Service) Get(ctx context.Context, periodID int64) (Period, error) {
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPeriod(ctx, periodID)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("period", periodID)
		}
		out = p
		return err
	})
	return out, err
}

// List returns every period, newest first.
func (s *Service) List(ctx context.Context) ([]Period, error) {
	var out []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListPeriods(ctx)
		out = rows
		return err
	})
	return out, err
}

// Locations returns the period's per-location status rows.
func (s *Service) Locations(ctx context.Context, periodID int64) ([]Location, error) {
	var out []Location
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPeriod(ctx, periodID); errors.Is(err, ErrNotFound) {
			return shared.NotFound("period", periodID)
		} else if err != nil {
			return err
		}
		rows, err := tx.ListPeriodLocations(ctx, periodID)
		out = rows
		return err
	})
	return out, err
}

// Snapshot returns the persisted close snapshot exactly as written.
func (s *Service) Snapshot(ctx context.Context, periodID, locationID int64) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loc, err := tx.GetPeriodLocation(ctx, periodID, locationID)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("period location", fmt.Sprintf("%d/%d", periodID, locationID))
		}
		if err != nil {
			return err
		}
		if loc.Status != LocationClosed || len(loc.SnapshotData) == 0 {
			return shared.NotFound("snapshot", fmt.Sprintf("%d/%d", periodID, locationID))
		}
		out = loc.SnapshotData
		return nil
	})
	return out, err
}
