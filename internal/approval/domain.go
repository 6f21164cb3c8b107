// Package approval implements the generic request/approve/reject gate.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// EntityType names what an approval decides on.
type EntityType string

const (
	EntityPeriodClose EntityType = "PERIOD_CLOSE"
	EntityTransfer    EntityType = "TRANSFER"
	EntityPRF         EntityType = "PRF"
	EntityPO          EntityType = "PO"
)

// Status of an approval record.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Approval is one request cycle. Approved and rejected records are terminal.
type Approval struct {
	ID          int64      `json:"id"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    int64      `json:"entity_id"`
	Status      Status     `json:"status"`
	RequestedBy int64      `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedBy  *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	Comments    string     `json:"comments,omitempty"`
}

// Filter narrows ListApprovals.
type Filter struct {
	EntityType EntityType
	EntityID   int64
	Status     Status
	// RequestedBefore keeps approvals requested strictly before the instant.
	RequestedBefore time.Time
}

var (
	// ErrNotFound is returned by TxRepository for absent approvals.
	ErrNotFound = errors.New("approval: not found")
	// ErrDuplicatePending is returned by InsertApproval when a pending record already exists.
	ErrDuplicatePending = errors.New("approval: pending approval exists")
)

// TxRepository is the transactional approval storage contract.
type TxRepository interface {
	InsertApproval(ctx context.Context, a Approval) (int64, error)
	GetApproval(ctx context.Context, id int64) (Approval, error)
	GetApprovalForUpdate(ctx context.Context, id int64) (Approval, error)
	UpdateApproval(ctx context.Context, a Approval) error
	PendingApproval(ctx context.Context, entityType EntityType, entityID int64) (Approval, error)
	ListApprovals(ctx context.Context, f Filter) ([]Approval, error)
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPeriodClose, EntityTransfer, EntityPRF, EntityPO:
		return true
	}
	return false
}

// Request opens a PENDING approval inside the caller's transaction.
func Request(ctx context.Context, tx TxRepository, entityType EntityType, entityID int64, requester shared.Actor, now time.Time) (Approval, error) {
	if !entityType.Valid() {
		return Approval{}, shared.Validation("unknown entity type", shared.FieldError{Field: "entity_type", Rule: "oneof"})
	}
	existing, err := tx.PendingApproval(ctx, entityType, entityID)
	switch {
	case err == nil:
		return Approval{}, alreadyPending(existing)
	case !errors.Is(err, ErrNotFound):
		return Approval{}, fmt.Errorf("approval: pending lookup: %w", err)
	}
	a := Approval{
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      StatusPending,
		RequestedBy: requester.ID,
		RequestedAt: now,
	}
	id, err := tx.InsertApproval(ctx, a)
	if errors.Is(err, ErrDuplicatePending) {
		return Approval{}, alreadyPending(a)
	}
	if err != nil {
		return Approval{}, fmt.Errorf("approval: insert: %w", err)
	}
	a.ID = id
	return a, nil
}

// Decide moves a PENDING approval to status inside the caller's transaction.
func Decide(ctx context.Context, tx TxRepository, id int64, status Status, reviewer shared.Actor, comments string, now time.Time) (Approval, error) {
	if status != StatusApproved && status != StatusRejected {
		return Approval{}, shared.Validation("decision must be APPROVED or REJECTED")
	}
	a, err := tx.GetApprovalForUpdate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Approval{}, shared.NotFound("approval", id)
	}
	if err != nil {
		return Approval{}, fmt.Errorf("approval: lock: %w", err)
	}
	if a.Status != StatusPending {
		return Approval{}, shared.AlreadyProcessed("approval", id, string(a.Status))
	}
	reviewerID := reviewer.ID
	a.Status = status
	a.ReviewedBy = &reviewerID
	a.ReviewedAt = &now
	a.Comments = comments
	if err := tx.UpdateApproval(ctx, a); err != nil {
		return Approval{}, fmt.Errorf("approval: update: %w", err)
	}
	return a, nil
}

func alreadyPending(a Approval) error {
	return shared.Conflict(shared.CodeAlreadyPending,
		fmt.Sprintf("%s %d already has a pending approval", a.EntityType, a.EntityID),
		map[string]any{"approval_id": a.ID, "entity_type": a.EntityType, "entity_id": a.EntityID})
}
