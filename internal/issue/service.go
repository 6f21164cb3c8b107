package issue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const refType = "ISSUE"

// Service posts issues.
type Service struct {
	repo    db.Transactor[TxRepository]
	catalog catalog.Lookup
	authz   shared.Authorizer
	audit   shared.AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs an issue service.
func NewService(repo db.Transactor[TxRepository], lookup catalog.Lookup, authz shared.Authorizer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: lookup, authz: authz, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post checks every line against on-hand stock and rejects the whole issue, listing each
// short item, when any line cannot be covered. Otherwise it decrements each row and
// freezes the row's WAC on the line. WAC itself is never changed.
func (s *Service) Post(ctx context.Context, in PostInput, actor shared.Actor) (Issue, error) {
	if err := shared.Require(s.authz, actor, shared.PermIssuesPost); err != nil {
		return Issue{}, err
	}
	if err := shared.ValidateInput(in); err != nil {
		return Issue{}, err
	}
	if _, err := catalog.RequireActiveLocation(ctx, s.catalog, in.LocationID); err != nil {
		return Issue{}, err
	}
	ids := make([]int64, 0, len(in.Lines))
	for _, l := range in.Lines {
		ids = append(ids, l.ItemID)
	}
	if err := catalog.RequireActiveItems(ctx, s.catalog, ids); err != nil {
		return Issue{}, err
	}

	var out Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := period.RequireOpen(ctx, tx)
		if err != nil {
			return err
		}
		if !p.Contains(in.IssueDate) {
			return shared.Validation(
				fmt.Sprintf("issue date %s is outside open period %s", in.IssueDate.Format(time.DateOnly), p.Name),
				shared.FieldError{Field: "issue_date", Rule: "period"})
		}
		if _, err := period.TouchLocation(ctx, tx, p, in.LocationID); err != nil {
			return err
		}
		shortages, err := ledger.Shortfalls(ctx, tx, in.LocationID, demand(in.Lines))
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			return shared.InsufficientStock(shortages)
		}

		now := s.now()
		is := Issue{
			Number:     shared.DocumentNumber("ISS"),
			LocationID: in.LocationID,
			PeriodID:   p.ID,
			IssueDate:  in.IssueDate.UTC(),
			Purpose:    in.Purpose,
			TotalValue: decimal.Zero,
			PostedBy:   actor.ID,
			PostedAt:   now,
			Lines:      make([]Line, 0, len(in.Lines)),
		}
		for _, l := range in.Lines {
			stock, err := tx.GetStock(ctx, in.LocationID, l.ItemID)
			if err != nil {
				return fmt.Errorf("issue: read stock: %w", err)
			}
			value := shared.Round2(l.Quantity.Mul(stock.WAC))
			is.Lines = append(is.Lines, Line{ItemID: l.ItemID, Quantity: l.Quantity, WACAtIssue: stock.WAC, LineValue: value})
			is.TotalValue = is.TotalValue.Add(value)
		}
		is, err = tx.InsertIssue(ctx, is)
		if err != nil {
			return fmt.Errorf("issue: insert: %w", err)
		}
		for _, line := range is.Lines {
			if _, _, err := ledger.Decrease(ctx, tx, ledger.MovementIssue, ledger.Entry{
				PeriodID:   p.ID,
				LocationID: in.LocationID,
				ItemID:     line.ItemID,
				Qty:        line.Quantity,
				RefType:    refType,
				RefID:      is.ID,
				PostedAt:   now,
			}); err != nil {
				return err
			}
		}
		out = is
		return nil
	})
	if err != nil {
		return Issue{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, actor, "issue.post", "issue", out.ID, map[string]any{
		"number": out.Number, "total_value": out.TotalValue.StringFixed(2),
	})
	return out, nil
}

// Get loads one issue.
func (s *Service) Get(ctx context.Context, id int64) (Issue, error) {
	var out Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		is, err := tx.GetIssue(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("issue", id)
		}
		out = is
		return err
	})
	return out, err
}

// List returns issues matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Issue, error) {
	var out []Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListIssues(ctx, f)
		out = rows
		return err
	})
	return out, err
}
