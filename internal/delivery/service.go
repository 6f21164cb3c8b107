package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const refType = "DELIVERY"

// Service provides draft and posting operations for deliveries.
type Service struct {
	repo      db.Transactor[TxRepository]
	catalog   catalog.Lookup
	authz     shared.Authorizer
	notifier  shared.Notifier
	audit     shared.AuditPort
	logger    *slog.Logger
	threshold decimal.Decimal
	now       func() time.Time
}

// NewService constructs a delivery service with the default variance threshold.
func NewService(repo db.Transactor[TxRepository], lookup catalog.Lookup, authz shared.Authorizer, notifier shared.Notifier, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		catalog:   lookup,
		authz:     authz,
		notifier:  notifier,
		audit:     audit,
		logger:    logger,
		threshold: DefaultVarianceThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetVarianceThreshold overrides the materiality bound. Variances strictly above it raise an NCR.
func (s *Service) SetVarianceThreshold(threshold decimal.Decimal) {
	if !threshold.IsNegative() {
		s.threshold = threshold
	}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft stores a DRAFT delivery. Drafts have no ledger effect and are visible only to their creator.
func (s *Service) CreateDraft(ctx context.Context, in CreateInput, actor shared.Actor) (Delivery, error) {
	if err := shared.Require(s.authz, actor, shared.PermDeliveriesPost); err != nil {
		return Delivery{}, err
	}
	if err := shared.ValidateInput(in); err != nil {
		return Delivery{}, err
	}
	if _, err := catalog.RequireActiveLocation(ctx, s.catalog, in.LocationID); err != nil {
		return Delivery{}, err
	}
	ids := make([]int64, 0, len(in.Lines))
	for _, l := range in.Lines {
		ids = append(ids, l.ItemID)
	}
	if err := catalog.RequireActiveItems(ctx, s.catalog, ids); err != nil {
		return Delivery{}, err
	}

	now := s.now()
	d := Delivery{
		Number:       shared.DocumentNumber("DLV"),
		LocationID:   in.LocationID,
		SupplierRef:  in.SupplierRef,
		DeliveryDate: in.DeliveryDate.UTC(),
		Status:       StatusDraft,
		TotalValue:   decimal.Zero,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		Lines:        make([]Line, 0, len(in.Lines)),
	}
	for _, l := range in.Lines {
		value := shared.Round2(l.Quantity.Mul(l.UnitPrice))
		d.Lines = append(d.Lines, Line{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, LineValue: value})
		d.TotalValue = d.TotalValue.Add(value)
	}

	var out Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertDelivery(ctx, d)
		if err != nil {
			return fmt.Errorf("delivery: insert: %w", err)
		}
		out = created
		return nil
	})
	return out, err
}

// PostResult is a posted delivery and the NCRs its variances raised.
type PostResult struct {
	Delivery Delivery `json:"delivery"`
	NCRs     []ncr.NCR `json:"ncrs"`
}

// Post moves a DRAFT delivery to POSTED exactly once: every line increases the ledger and
// recomputes WAC, and each material price variance raises a PRICE_VARIANCE NCR.
func (s *Service) Post(ctx context.Context, id int64, actor shared.Actor) (PostResult, error) {
	if err := shared.Require(s.authz, actor, shared.PermDeliveriesPost); err != nil {
		return PostResult{}, err
	}
	var out PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, id)
		if errors.Is(err, ErrNotFound) || (err == nil && !visible(d, actor)) {
			return shared.NotFound("delivery", id)
		}
		if err != nil {
			return fmt.Errorf("delivery: lock: %w", err)
		}
		if !d.Status.CanPost() {
			return shared.InvalidStatus("delivery", id, string(d.Status))
		}
		p, err := period.RequireOpen(ctx, tx)
		if err != nil {
			return err
		}
		if !p.Contains(d.DeliveryDate) {
			return shared.Validation(
				fmt.Sprintf("delivery date %s is outside open period %s", d.DeliveryDate.Format(time.DateOnly), p.Name),
				shared.FieldError{Field: "delivery_date", Rule: "period"})
		}
		if _, err := period.TouchLocation(ctx, tx, p, d.LocationID); err != nil {
			return err
		}

		now := s.now()
		raised := make([]ncr.NCR, 0)
		d.TotalValue = decimal.Zero
		for i := range d.Lines {
			line := &d.Lines[i]
			if _, err := ledger.Increase(ctx, tx, ledger.MovementReceipt, ledger.Entry{
				PeriodID:   p.ID,
				LocationID: d.LocationID,
				ItemID:     line.ItemID,
				Qty:        line.Quantity,
				UnitCost:   line.UnitPrice,
				RefType:    refType,
				RefID:      d.ID,
				PostedAt:   now,
			}); err != nil {
				return err
			}
			line.LineValue = shared.Round2(line.Quantity.Mul(line.UnitPrice))
			d.TotalValue = d.TotalValue.Add(line.LineValue)

			price, found, err := s.catalog.PeriodPrice(ctx, p.ID, line.ItemID)
			if err != nil {
				return fmt.Errorf("delivery: period price: %w", err)
			}
			if !found {
				line.PeriodPrice = decimal.NullDecimal{}
				line.PriceVariance = decimal.NullDecimal{}
				continue
			}
			variance := line.UnitPrice.Sub(price)
			line.PeriodPrice = decimal.NewNullDecimal(price)
			line.PriceVariance = decimal.NewNullDecimal(variance)
			if variance.Abs().LessThanOrEqual(s.threshold) {
				continue
			}
			d.HasVariance = true
			n := ncr.PriceVariance(p.ID, d.LocationID, d.ID, line.ID, line.ItemID, line.Quantity, variance, actor.ID, now)
			n.Number = shared.DocumentNumber("NCR")
			nid, err := tx.InsertNCR(ctx, n)
			if err != nil {
				return fmt.Errorf("delivery: insert ncr: %w", err)
			}
			n.ID = nid
			raised = append(raised, n)
		}

		actorID := actor.ID
		periodID := p.ID
		d.Status = StatusPosted
		d.PeriodID = &periodID
		d.PostedBy = &actorID
		d.PostedAt = &now
		if err := tx.UpdateDelivery(ctx, d); err != nil {
			return fmt.Errorf("delivery: update: %w", err)
		}
		out = PostResult{Delivery: d, NCRs: raised}
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}
	for _, n := range out.NCRs {
		ncr.Announce(ctx, s.notifier, s.logger, n)
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "delivery.post", "delivery", id, map[string]any{
		"number": out.Delivery.Number, "total_value": out.Delivery.TotalValue.StringFixed(2), "ncrs": len(out.NCRs),
	})
	return out, nil
}

// Get loads a delivery. Another user's draft reads as missing.
func (s *Service) Get(ctx context.Context, id int64, actor shared.Actor) (Delivery, error) {
	var out Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDelivery(ctx, id)
		if errors.Is(err, ErrNotFound) || (err == nil && !visible(d, actor)) {
			return shared.NotFound("delivery", id)
		}
		out = d
		return err
	})
	return out, err
}

// List returns deliveries matching f, omitting drafts the actor did not create.
func (s *Service) List(ctx context.Context, f Filter, actor shared.Actor) ([]Delivery, error) {
	var rows []Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rows, err = tx.ListDeliveries(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, d := range rows {
		if visible(d, actor) {
			out = append(out, d)
		}
	}
	return out, nil
}

func visible(d Delivery, actor shared.Actor) bool {
	return d.Status != StatusDraft || d.CreatedBy == actor.ID
}
