package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const refType = "TRANSFER"

// Service requests transfers and completes them when their approval is decided.
type Service struct {
	repo     db.Transactor[TxRepository]
	catalog  catalog.Lookup
	authz    shared.Authorizer
	notifier shared.Notifier
	audit    shared.AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

var _ approval.TransferHandler = (*Service)(nil)

// NewService constructs a transfer service.
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

// Request freezes the source WAC per line and raises the TRANSFER approval.
// Ledger balances are untouched until approval.
func (s *Service) Request(ctx context.Context, in RequestInput, actor shared.Actor) (Transfer, error) {
	if err := shared.Require(s.authz, actor, shared.PermTransfersReq); err != nil {
		return Transfer{}, err
	}
	if err := shared.ValidateInput(in); err != nil {
		return Transfer{}, err
	}
	for _, id := range []int64{in.FromLocationID, in.ToLocationID} {
		if _, err := catalog.RequireActiveLocation(ctx, s.catalog, id); err != nil {
			return Transfer{}, err
		}
	}
	ids := make([]int64, 0, len(in.Lines))
	for _, l := range in.Lines {
		ids = append(ids, l.ItemID)
	}
	if err := catalog.RequireActiveItems(ctx, s.catalog, ids); err != nil {
		return Transfer{}, err
	}

	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		t := Transfer{
			Number:         shared.DocumentNumber("TRF"),
			FromLocationID: in.FromLocationID,
			ToLocationID:   in.ToLocationID,
			Reason:         in.Reason,
			Status:         StatusPendingApproval,
			TotalValue:     decimal.Zero,
			RequestedBy:    actor.ID,
			RequestedAt:    now,
			Lines:          make([]Line, 0, len(in.Lines)),
		}
		for _, l := range in.Lines {
			t.Lines = append(t.Lines, Line{ItemID: l.ItemID, Quantity: l.Quantity})
		}
		shortages, rows, err := ledger.Available(ctx, tx, in.FromLocationID, demand(t))
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			return shared.InsufficientStock(shortages)
		}
		for i := range t.Lines {
			line := &t.Lines[i]
			line.WACAtTransfer = rows[line.ItemID].WAC
			line.LineValue = shared.Round2(line.Quantity.Mul(line.WACAtTransfer))
			t.TotalValue = t.TotalValue.Add(line.LineValue)
		}
		t, err = tx.InsertTransfer(ctx, t)
		if err != nil {
			return fmt.Errorf("transfer: insert: %w", err)
		}
		a, err := approval.Request(ctx, tx, approval.EntityTransfer, t.ID, actor, now)
		if err != nil {
			return err
		}
		t.ApprovalID = &a.ID
		if err := tx.UpdateTransfer(ctx, t); err != nil {
			return fmt.Errorf("transfer: update: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	shared.Notify(ctx, s.notifier, s.logger, shared.Event{
		Type:     shared.EventApprovalRequired,
		Entity:   string(approval.EntityTransfer),
		EntityID: out.ID,
		ActorID:  actor.ID,
		Message:  fmt.Sprintf("transfer %s awaits approval", out.Number),
		Data:     map[string]any{"approval_id": *out.ApprovalID, "total_value": out.TotalValue.StringFixed(2)},
	})
	shared.Audit(ctx, s.audit, s.logger, actor, "transfer.request", "transfer", out.ID, map[string]any{
		"number": out.Number, "from": out.FromLocationID, "to": out.ToLocationID,
	})
	return out, nil
}

// ApproveTransfer re-checks source stock, moves every line at its frozen WAC and completes
// the transfer. A shortfall leaves both the transfer and its approval pending.
func (s *Service) ApproveTransfer(ctx context.Context, a approval.Approval, subj approval.Transfer, reviewer shared.Actor) (approval.Approval, error) {
	var decided approval.Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := s.lockPending(ctx, tx, subj.TransferID)
		if err != nil {
			return err
		}
		p, err := period.RequireOpen(ctx, tx)
		if err != nil {
			return err
		}
		for _, loc := range []int64{t.FromLocationID, t.ToLocationID} {
			if _, err := period.TouchLocation(ctx, tx, p, loc); err != nil {
				return err
			}
		}
		shortages, err := ledger.Shortfalls(ctx, tx, t.FromLocationID, demand(t))
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			return shared.InsufficientStock(shortages)
		}
		now := s.now()
		for _, line := range t.Lines {
			if _, err := ledger.Move(ctx, tx, ledger.MoveInput{
				Entry: ledger.Entry{
					PeriodID:   p.ID,
					LocationID: t.FromLocationID,
					ItemID:     line.ItemID,
					Qty:        line.Quantity,
					RefType:    refType,
					RefID:      t.ID,
					PostedAt:   now,
				},
				ToLocationID: t.ToLocationID,
				UnitCost:     decimal.NewNullDecimal(line.WACAtTransfer),
			}); err != nil {
				return err
			}
		}
		decided, err = approval.Decide(ctx, tx, a.ID, approval.StatusApproved, reviewer, "", now)
		if err != nil {
			return err
		}
		reviewerID := reviewer.ID
		periodID := p.ID
		t.Status = StatusCompleted
		t.PeriodID = &periodID
		t.DecidedBy = &reviewerID
		t.DecidedAt = &now
		t.CompletedAt = &now
		if err := tx.UpdateTransfer(ctx, t); err != nil {
			return fmt.Errorf("transfer: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return approval.Approval{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, reviewer, "transfer.complete", "transfer", subj.TransferID, map[string]any{"approval_id": decided.ID})
	return decided, nil
}

// RejectTransfer marks the transfer REJECTED. No ledger row changes.
func (s *Service) RejectTransfer(ctx context.Context, a approval.Approval, subj approval.Transfer, reviewer shared.Actor, comments string) (approval.Approval, error) {
	var decided approval.Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := s.lockPending(ctx, tx, subj.TransferID)
		if err != nil {
			return err
		}
		now := s.now()
		decided, err = approval.Decide(ctx, tx, a.ID, approval.StatusRejected, reviewer, comments, now)
		if err != nil {
			return err
		}
		reviewerID := reviewer.ID
		t.Status = StatusRejected
		t.DecidedBy = &reviewerID
		t.DecidedAt = &now
		t.Comments = comments
		if err := tx.UpdateTransfer(ctx, t); err != nil {
			return fmt.Errorf("transfer: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return approval.Approval{}, err
	}
	shared.Audit(ctx, s.audit, s.logger, reviewer, "transfer.reject", "transfer", subj.TransferID, map[string]any{
		"approval_id": decided.ID, "comments": comments,
	})
	return decided, nil
}

// Get loads one transfer.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransfer(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("transfer", id)
		}
		out = t
		return err
	})
	return out, err
}

// List returns transfers matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Transfer, error) {
	var out []Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListTransfers(ctx, f)
		out = rows
		return err
	})
	return out, err
}

func (s *Service) lockPending(ctx context.Context, tx TxRepository, id int64) (Transfer, error) {
	t, err := tx.GetTransferForUpdate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Transfer{}, shared.NotFound("transfer", id)
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: lock: %w", err)
	}
	if t.Status != StatusPendingApproval {
		return Transfer{}, shared.AlreadyProcessed("transfer", id, string(t.Status))
	}
	return t, nil
}
