package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Service computes and records reconciliation figures.
type Service struct {
	repo   db.Transactor[TxRepository]
	authz  shared.Authorizer
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a reconciliation service.
func NewService(repo db.Transactor[TxRepository], authz shared.Authorizer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Compute returns the location's figures. Open periods read the live ledger;
// closed periods return the row frozen at close.
func (s *Service) Compute(ctx context.Context, periodID, locationID int64) (Reconciliation, error) {
	var out Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPeriod(ctx, periodID)
		if errors.Is(err, period.ErrNotFound) {
			return shared.NotFound("period", periodID)
		}
		if err != nil {
			return err
		}
		loc, err := tx.GetPeriodLocation(ctx, periodID, locationID)
		if errors.Is(err, period.ErrNotFound) {
			return shared.NotFound("period location", fmt.Sprintf("%d/%d", periodID, locationID))
		}
		if err != nil {
			return err
		}
		if p.Status == period.StatusClosed || loc.Status == period.LocationClosed {
			stored, err := tx.GetReconciliation(ctx, periodID, locationID)
			if errors.Is(err, ErrNotFound) {
				return shared.NotFound("reconciliation", fmt.Sprintf("%d/%d", periodID, locationID))
			}
			out = stored
			return err
		}
		out, err = figures(ctx, tx, loc)
		return err
	})
	return out, err
}

// SaveAdjustments records the manual inputs. A READY location reverts to OPEN when any amount changed.
func (s *Service) SaveAdjustments(ctx context.Context, periodID, locationID int64, in Adjustments, actor shared.Actor) (Reconciliation, error) {
	if err := shared.Require(s.authz, actor, shared.PermReconcile); err != nil {
		return Reconciliation{}, err
	}
	if err := shared.ValidateInput(in); err != nil {
		return Reconciliation{}, err
	}
	var (
		out   Reconciliation
		reset bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := period.LockStatus(ctx, tx, periodID, period.StatusOpen); err != nil {
			return err
		}
		loc, err := period.LockLocation(ctx, tx, periodID, locationID)
		if err != nil {
			return err
		}
		previous := Adjustments{}
		stored, err := tx.GetReconciliation(ctx, periodID, locationID)
		switch {
		case err == nil:
			previous = stored.Manual()
		case !errors.Is(err, ErrNotFound):
			return err
		}
		r, err := figuresWith(ctx, tx, loc, in)
		if err != nil {
			return err
		}
		r.ConfirmedBy, r.ConfirmedAt = stored.ConfirmedBy, stored.ConfirmedAt
		r.UpdatedBy = actor.ID
		r.UpdatedAt = s.now()
		if !previous.Equal(in) {
			if reset, err = period.ResetReadiness(ctx, tx, periodID, locationID); err != nil {
				return err
			}
			if reset {
				r.ConfirmedBy, r.ConfirmedAt = nil, nil
			}
		}
		if err := tx.UpsertReconciliation(ctx, r); err != nil {
			return fmt.Errorf("reconciliation: upsert: %w", err)
		}
		out = r
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "reconciliation.adjust", "period", periodID, map[string]any{
		"location_id": locationID, "readiness_reset": reset, "variance": out.Variance.String(),
	})
	return out, nil
}

// Confirm persists the current figures and marks the location READY.
func (s *Service) Confirm(ctx context.Context, periodID, locationID int64, actor shared.Actor) (Reconciliation, error) {
	if err := shared.Require(s.authz, actor, shared.PermReconcile); err != nil {
		return Reconciliation{}, err
	}
	var out Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		loc, err := period.MarkReady(ctx, tx, periodID, locationID, actor, now)
		if err != nil {
			return err
		}
		manual := Adjustments{}
		if stored, err := tx.GetReconciliation(ctx, periodID, locationID); err == nil {
			manual = stored.Manual()
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		r, err := figuresWith(ctx, tx, loc, manual)
		if err != nil {
			return err
		}
		actorID := actor.ID
		r.ConfirmedBy = &actorID
		r.ConfirmedAt = &now
		r.UpdatedBy = actor.ID
		r.UpdatedAt = now
		if err := tx.UpsertReconciliation(ctx, r); err != nil {
			return fmt.Errorf("reconciliation: upsert: %w", err)
		}
		out = r
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "period.location.ready", "period", periodID, map[string]any{
		"location_id": locationID, "variance": out.Variance.String(),
	})
	return out, nil
}

// Summary is the period-wide view over every location.
type Summary struct {
	PeriodID  int64            `json:"period_id"`
	Locations []Reconciliation `json:"locations"`
	Totals    Reconciliation   `json:"totals"`
}

// Summary computes every location's figures concurrently.
func (s *Service) Summary(ctx context.Context, periodID int64) (Summary, error) {
	var locs []period.Location
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPeriod(ctx, periodID); errors.Is(err, period.ErrNotFound) {
			return shared.NotFound("period", periodID)
		} else if err != nil {
			return err
		}
		rows, err := tx.ListPeriodLocations(ctx, periodID)
		locs = rows
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	rows := make([]Reconciliation, len(locs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, loc := range locs {
		g.Go(func() error {
			r, err := s.Compute(gctx, periodID, loc.LocationID)
			if err != nil {
				return err
			}
			rows[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	out := Summary{PeriodID: periodID, Locations: rows}
	for _, r := range rows {
		out.Totals = add(out.Totals, r)
	}
	out.Totals.PeriodID = periodID
	out.Totals = Calculate(out.Totals)
	return out, nil
}

func figures(ctx context.Context, tx TxRepository, loc period.Location) (Reconciliation, error) {
	manual := Adjustments{}
	stored, err := tx.GetReconciliation(ctx, loc.PeriodID, loc.LocationID)
	switch {
	case err == nil:
		manual = stored.Manual()
	case !errors.Is(err, ErrNotFound):
		return Reconciliation{}, err
	}
	r, err := figuresWith(ctx, tx, loc, manual)
	if err != nil {
		return Reconciliation{}, err
	}
	r.ConfirmedBy, r.ConfirmedAt = stored.ConfirmedBy, stored.ConfirmedAt
	r.UpdatedBy, r.UpdatedAt = stored.UpdatedBy, stored.UpdatedAt
	return r, nil
}

func figuresWith(ctx context.Context, tx TxRepository, loc period.Location, manual Adjustments) (Reconciliation, error) {
	moves, err := tx.SumMovements(ctx, loc.PeriodID, loc.LocationID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconciliation: movements: %w", err)
	}
	stock, err := tx.ListStock(ctx, loc.LocationID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconciliation: ledger: %w", err)
	}
	credits, losses, err := tx.SumNCRImpact(ctx, loc.PeriodID, loc.LocationID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconciliation: ncr impact: %w", err)
	}
	return Calculate(Reconciliation{
		PeriodID:      loc.PeriodID,
		LocationID:    loc.LocationID,
		OpeningStock:  loc.OpeningValue,
		Receipts:      shared.Round2(moves.Receipts),
		TransfersIn:   shared.Round2(moves.TransfersIn),
		TransfersOut:  shared.Round2(moves.TransfersOut),
		Issues:        shared.Round2(moves.Issues),
		ClosingStock:  LocationValue(stock),
		Adjustments:   manual.Adjustments,
		BackCharges:   manual.BackCharges,
		Credits:       manual.Credits,
		Condemnations: manual.Condemnations,
		NCRCredits:    credits,
		NCRLosses:     losses,
	}), nil
}

func add(a, b Reconciliation) Reconciliation {
	sum := func(x, y decimal.Decimal) decimal.Decimal { return x.Add(y) }
	a.OpeningStock = sum(a.OpeningStock, b.OpeningStock)
	a.Receipts = sum(a.Receipts, b.Receipts)
	a.TransfersIn = sum(a.TransfersIn, b.TransfersIn)
	a.TransfersOut = sum(a.TransfersOut, b.TransfersOut)
	a.Issues = sum(a.Issues, b.Issues)
	a.ClosingStock = sum(a.ClosingStock, b.ClosingStock)
	a.Adjustments = sum(a.Adjustments, b.Adjustments)
	a.BackCharges = sum(a.BackCharges, b.BackCharges)
	a.Credits = sum(a.Credits, b.Credits)
	a.Condemnations = sum(a.Condemnations, b.Condemnations)
	a.NCRCredits = sum(a.NCRCredits, b.NCRCredits)
	a.NCRLosses = sum(a.NCRLosses, b.NCRLosses)
	return a
}
