package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// GateConfig wires the gate's collaborators.
type GateConfig struct {
	Repo     db.Transactor[TxRepository]
	Handlers Handlers
	Authz    shared.Authorizer
	Notifier shared.Notifier
	Audit    shared.AuditPort
	Logger   *slog.Logger
	Now      func() time.Time
}

// Gate dispatches decisions to the handler for the approval's subject.
type Gate struct {
	repo     db.Transactor[TxRepository]
	handlers Handlers
	authz    shared.Authorizer
	notifier shared.Notifier
	audit    shared.AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate constructs the gate. PRF/PO decisions default to recording the decision only.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		repo:     cfg.Repo,
		handlers: cfg.Handlers,
		authz:    cfg.Authz,
		notifier: cfg.Notifier,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.handlers.Document == nil {
		g.handlers.Document = recordOnly{repo: cfg.Repo, now: g.now}
	}
	return g
}

// Request opens an approval for a purchase workflow document.
// Period close and transfer approvals are raised by their own processors.
func (g *Gate) Request(ctx context.Context, entityType EntityType, entityID int64, requester shared.Actor) (Approval, error) {
	if entityType != EntityPRF && entityType != EntityPO {
		return Approval{}, shared.Validation(fmt.Sprintf("%s approvals are raised by their processor", entityType),
			shared.FieldError{Field: "entity_type", Rule: "oneof"})
	}
	if entityID <= 0 {
		return Approval{}, shared.Validation("entity id required", shared.FieldError{Field: "entity_id", Rule: "gt"})
	}
	var out Approval
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := Request(ctx, tx, entityType, entityID, requester, g.now())
		out = a
		return err
	})
	if err != nil {
		return Approval{}, err
	}
	g.emit(ctx, shared.EventApprovalRequired, out, requester, "approval requested")
	shared.Audit(ctx, g.audit, g.logger, requester, "approval.request", "approval", out.ID, g.meta(out))
	return out, nil
}

// Approve decides a pending approval and runs its subject's handler in the same transaction.
func (g *Gate) Approve(ctx context.Context, id int64, reviewer shared.Actor) (Approval, error) {
	a, subj, err := g.pending(ctx, id, reviewer)
	if err != nil {
		return Approval{}, err
	}
	var decided Approval
	switch s := subj.(type) {
	case PeriodClose:
		if err := shared.Require(g.authz, reviewer, shared.PermPeriodsClose); err != nil {
			return Approval{}, err
		}
		if g.handlers.PeriodClose == nil {
			return Approval{}, errNoHandler(a)
		}
		decided, err = g.handlers.PeriodClose.ApprovePeriodClose(ctx, a, s, reviewer)
	case Transfer:
		if g.handlers.Transfer == nil {
			return Approval{}, errNoHandler(a)
		}
		decided, err = g.handlers.Transfer.ApproveTransfer(ctx, a, s, reviewer)
	case Document:
		decided, err = g.handlers.Document.ApproveDocument(ctx, a, s, reviewer)
	}
	if err != nil {
		return Approval{}, err
	}
	g.emit(ctx, shared.EventApprovalApproved, decided, reviewer, "approval granted")
	shared.Audit(ctx, g.audit, g.logger, reviewer, "approval.approve", "approval", decided.ID, g.meta(decided))
	return decided, nil
}

// Reject refuses a pending approval; the subject's handler reverts its entity.
func (g *Gate) Reject(ctx context.Context, id int64, reviewer shared.Actor, comments string) (Approval, error) {
	a, subj, err := g.pending(ctx, id, reviewer)
	if err != nil {
		return Approval{}, err
	}
	var decided Approval
	switch s := subj.(type) {
	case PeriodClose:
		if g.handlers.PeriodClose == nil {
			return Approval{}, errNoHandler(a)
		}
		decided, err = g.handlers.PeriodClose.RejectPeriodClose(ctx, a, s, reviewer, comments)
	case Transfer:
		if g.handlers.Transfer == nil {
			return Approval{}, errNoHandler(a)
		}
		decided, err = g.handlers.Transfer.RejectTransfer(ctx, a, s, reviewer, comments)
	case Document:
		decided, err = g.handlers.Document.RejectDocument(ctx, a, s, reviewer, comments)
	}
	if err != nil {
		return Approval{}, err
	}
	g.emit(ctx, shared.EventApprovalRejected, decided, reviewer, "approval rejected")
	shared.Audit(ctx, g.audit, g.logger, reviewer, "approval.reject", "approval", decided.ID, g.meta(decided))
	return decided, nil
}

// Get loads one approval.
func (g *Gate) Get(ctx context.Context, id int64) (Approval, error) {
	var out Approval
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetApproval(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("approval", id)
		}
		out = a
		return err
	})
	return out, err
}

// PendingFor returns the open approval for an entity.
func (g *Gate) PendingFor(ctx context.Context, entityType EntityType, entityID int64) (Approval, error) {
	var out Approval
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.PendingApproval(ctx, entityType, entityID)
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("pending approval", fmt.Sprintf("%s:%d", entityType, entityID))
		}
		out = a
		return err
	})
	return out, err
}

// List returns approvals matching f.
func (g *Gate) List(ctx context.Context, f Filter) ([]Approval, error) {
	var out []Approval
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListApprovals(ctx, f)
		out = rows
		return err
	})
	return out, err
}

// Remind re-notifies approvals pending longer than age and returns how many were sent.
func (g *Gate) Remind(ctx context.Context, age time.Duration) (int, error) {
	stale, err := g.List(ctx, Filter{Status: StatusPending, RequestedBefore: g.now().Add(-age)})
	if err != nil {
		return 0, err
	}
	for _, a := range stale {
		g.emit(ctx, shared.EventApprovalReminder, a, shared.Actor{ID: a.RequestedBy}, "approval still pending")
	}
	return len(stale), nil
}

func (g *Gate) pending(ctx context.Context, id int64, reviewer shared.Actor) (Approval, Subject, error) {
	if err := shared.Require(g.authz, reviewer, shared.PermApprovalDecide); err != nil {
		return Approval{}, nil, err
	}
	a, err := g.Get(ctx, id)
	if err != nil {
		return Approval{}, nil, err
	}
	if a.Status != StatusPending {
		return Approval{}, nil, shared.AlreadyProcessed("approval", id, string(a.Status))
	}
	subj, err := a.Subject()
	if err != nil {
		return Approval{}, nil, err
	}
	return a, subj, nil
}

func (g *Gate) emit(ctx context.Context, event string, a Approval, actor shared.Actor, message string) {
	shared.Notify(ctx, g.notifier, g.logger, shared.Event{
		Type:     event,
		Entity:   string(a.EntityType),
		EntityID: a.EntityID,
		ActorID:  actor.ID,
		Message:  message,
		Data:     g.meta(a),
	})
}

func (g *Gate) meta(a Approval) map[string]any {
	return map[string]any{
		"approval_id": a.ID,
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"status":      a.Status,
		"ref":         shared.EntityRef(string(a.EntityType), a.EntityID).String(),
	}
}

func errNoHandler(a Approval) error {
	return fmt.Errorf("approval: no handler for %s", a.EntityType)
}

// recordOnly decides PRF/PO approvals; the documents themselves belong to other processors.
type recordOnly struct {
	repo db.Transactor[TxRepository]
	now  func() time.Time
}

func (h recordOnly) ApproveDocument(ctx context.Context, a Approval, _ Document, reviewer shared.Actor) (Approval, error) {
	return h.decide(ctx, a.ID, StatusApproved, reviewer, "")
}

func (h recordOnly) RejectDocument(ctx context.Context, a Approval, _ Document, reviewer shared.Actor, comments string) (Approval, error) {
	return h.decide(ctx, a.ID, StatusRejected, reviewer, comments)
}

func (h recordOnly) decide(ctx context.Context, id int64, status Status, reviewer shared.Actor, comments string) (Approval, error) {
	var out Approval
	err := h.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := Decide(ctx, tx, id, status, reviewer, comments, h.now())
		out = a
		return err
	})
	return out, err
}
