package ncr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Repository is what the NCR service needs inside one transaction.
type Repository interface {
	TxRepository
	period.Reader
}

// CreateInput is a manually raised NCR.
type CreateInput struct {
	LocationID   int64               `json:"location_id" validate:"required,gt=0"`
	ItemID       int64               `json:"item_id" validate:"required,gt=0"`
	DeliveryID   *int64              `json:"delivery_id,omitempty" validate:"omitempty,gt=0"`
	Type         Type                `json:"type" validate:"required,oneof=PRICE_VARIANCE QUANTITY QUALITY OTHER"`
	Reason       string              `json:"reason" validate:"required,max=500"`
	Quantity     decimal.Decimal     `json:"quantity" validate:"gt=0"`
	UnitVariance decimal.NullDecimal `json:"unit_variance"`
	Value        decimal.Decimal     `json:"value" validate:"gte=0"`
}

// Service manages the NCR lifecycle.
type Service struct {
	repo     db.Transactor[Repository]
	catalog  catalog.Lookup
	authz    shared.Authorizer
	notifier shared.Notifier
	audit    shared.AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs an NCR service.
func NewService(repo db.Transactor[Repository], lookup catalog.Lookup, authz shared.Authorizer, notifier shared.Notifier, audit shared.AuditPort, logger *slog.Logger) *Service {
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

// Create records a manual NCR against the running period.
func (s *Service) Create(ctx context.Context, in CreateInput, actor shared.Actor) (NCR, error) {
	if err := shared.Require(s.authz, actor, shared.PermNCRManage); err != nil {
		return NCR{}, err
	}
	if err := shared.ValidateInput(in); err != nil {
		return NCR{}, err
	}
	if _, err := catalog.RequireActiveLocation(ctx, s.catalog, in.LocationID); err != nil {
		return NCR{}, err
	}
	if _, err := catalog.RequireActiveItem(ctx, s.catalog, in.ItemID); err != nil {
		return NCR{}, err
	}
	var out NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		p, err := period.RequireOpen(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		value := in.Value
		if value.IsZero() && in.UnitVariance.Valid {
			value = in.UnitVariance.Decimal.Abs().Mul(in.Quantity).Round(2)
		}
		n := NCR{
			Number:          shared.DocumentNumber("NCR"),
			PeriodID:        p.ID,
			LocationID:      in.LocationID,
			DeliveryID:      in.DeliveryID,
			ItemID:          in.ItemID,
			Type:            in.Type,
			Reason:          in.Reason,
			Quantity:        in.Quantity,
			UnitVariance:    in.UnitVariance,
			Value:           value,
			FinancialImpact: ImpactNone,
			Status:          StatusOpen,
			CreatedBy:       actor.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		id, err := tx.InsertNCR(ctx, n)
		if err != nil {
			return fmt.Errorf("ncr: insert: %w", err)
		}
		n.ID = id
		out = n
		return nil
	})
	if err != nil {
		return NCR{}, err
	}
	Announce(ctx, s.notifier, s.logger, out)
	shared.Audit(ctx, s.audit, s.logger, actor, "ncr.create", "ncr", out.ID, map[string]any{"number": out.Number, "type": out.Type})
	return out, nil
}

// Transition advances the NCR lifecycle. Reaching CREDITED or REJECTED classifies an
// unclassified NCR as CREDIT or LOSS.
func (s *Service) Transition(ctx context.Context, id int64, to Status, actor shared.Actor) (NCR, error) {
	if err := shared.Require(s.authz, actor, shared.PermNCRManage); err != nil {
		return NCR{}, err
	}
	var out NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		n, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(n.Status, to) {
			return shared.Conflict(shared.CodeInvalidStatus,
				fmt.Sprintf("ncr %d cannot move from %s to %s", id, n.Status, to),
				map[string]any{"status": n.Status, "requested": to})
		}
		now := s.now()
		if n.FinancialImpact == ImpactNone {
			switch to {
			case StatusCredited:
				n.FinancialImpact = ImpactCredit
			case StatusRejected:
				n.FinancialImpact = ImpactLoss
			}
		}
		if to == StatusResolved {
			n.ResolvedAt = &now
		}
		n.Status = to
		n.UpdatedAt = now
		if err := tx.UpdateNCR(ctx, n); err != nil {
			return fmt.Errorf("ncr: update: %w", err)
		}
		out = n
		return nil
	})
	if err != nil {
		return NCR{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "ncr.transition", "ncr", id, map[string]any{"status": to, "impact": out.FinancialImpact})
	return out, nil
}

// SetImpact classifies the NCR while it is still OPEN or SENT.
func (s *Service) SetImpact(ctx context.Context, id int64, impact Impact, actor shared.Actor) (NCR, error) {
	if err := shared.Require(s.authz, actor, shared.PermNCRManage); err != nil {
		return NCR{}, err
	}
	switch impact {
	case ImpactNone, ImpactCredit, ImpactLoss:
	default:
		return NCR{}, shared.Validation("unknown financial impact", shared.FieldError{Field: "financial_impact", Rule: "oneof"})
	}
	var out NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		n, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !n.Editable() {
			return shared.InvalidStatus("ncr", id, string(n.Status))
		}
		n.FinancialImpact = impact
		n.UpdatedAt = s.now()
		if err := tx.UpdateNCR(ctx, n); err != nil {
			return fmt.Errorf("ncr: update: %w", err)
		}
		out = n
		return nil
	})
	if err != nil {
		return NCR{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "ncr.impact", "ncr", id, map[string]any{"impact": impact})
	return out, nil
}

// Get loads one NCR.
func (s *Service) Get(ctx context.Context, id int64) (NCR, error) {
	var out NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		n, err := tx.GetNCR(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("ncr", id)
		}
		out = n
		return err
	})
	return out, err
}

// List returns NCRs matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]NCR, error) {
	var out []NCR
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		rows, err := tx.ListNCRs(ctx, f)
		out = rows
		return err
	})
	return out, err
}

func (s *Service) lock(ctx context.Context, tx Repository, id int64) (NCR, error) {
	n, err := tx.GetNCRForUpdate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return NCR{}, shared.NotFound("ncr", id)
	}
	if err != nil {
		return NCR{}, fmt.Errorf("ncr: lock: %w", err)
	}
	return n, nil
}

// Announce emits the creation notification for n.
func Announce(ctx context.Context, notifier shared.Notifier, logger *slog.Logger, n NCR) {
	shared.Notify(ctx, notifier, logger, shared.Event{
		Type:     shared.EventNCRCreated,
		Entity:   "ncr",
		EntityID: n.ID,
		ActorID:  n.CreatedBy,
		Message:  fmt.Sprintf("%s raised: %s", n.Number, n.Reason),
		Data: map[string]any{
			"number":      n.Number,
			"type":        n.Type,
			"location_id": n.LocationID,
			"item_id":     n.ItemID,
			"value":       n.Value.StringFixed(2),
			"auto":        n.AutoGenerated,
		},
	})
}
