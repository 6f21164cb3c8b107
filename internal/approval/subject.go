package approval

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Subject is the sealed set of things an approval can decide on.
type Subject interface {
	subject()
}

// PeriodClose decides whether a period may be sealed.
type PeriodClose struct{ PeriodID int64 }

// Transfer decides whether an inter-location transfer executes.
type Transfer struct{ TransferID int64 }

// Document covers purchase workflow approvals owned by external processors.
type Document struct {
	Type EntityType
	ID   int64
}

func (PeriodClose) subject() {}
func (Transfer) subject()    {}
func (Document) subject()    {}

// Subject returns the typed variant for the approval's entity reference.
func (a Approval) Subject() (Subject, error) {
	switch a.EntityType {
	case EntityPeriodClose:
		return PeriodClose{PeriodID: a.EntityID}, nil
	case EntityTransfer:
		return Transfer{TransferID: a.EntityID}, nil
	case EntityPRF, EntityPO:
		return Document{Type: a.EntityType, ID: a.EntityID}, nil
	}
	return nil, fmt.Errorf("approval: unknown entity type %q", a.EntityType)
}

// PeriodCloseHandler executes or reverts a period close decision.
type PeriodCloseHandler interface {
	ApprovePeriodClose(ctx context.Context, a Approval, s PeriodClose, reviewer shared.Actor) (Approval, error)
	RejectPeriodClose(ctx context.Context, a Approval, s PeriodClose, reviewer shared.Actor, comments string) (Approval, error)
}

// TransferHandler executes or rejects a pending transfer.
type TransferHandler interface {
	ApproveTransfer(ctx context.Context, a Approval, s Transfer, reviewer shared.Actor) (Approval, error)
	RejectTransfer(ctx context.Context, a Approval, s Transfer, reviewer shared.Actor, comments string) (Approval, error)
}

// DocumentHandler records PRF/PO decisions for their own processors.
type DocumentHandler interface {
	ApproveDocument(ctx context.Context, a Approval, s Document, reviewer shared.Actor) (Approval, error)
	RejectDocument(ctx context.Context, a Approval, s Document, reviewer shared.Actor, comments string) (Approval, error)
}

// Handlers holds one implementation per Subject variant.
type Handlers struct {
	PeriodClose PeriodCloseHandler
	Transfer    TransferHandler
	Document    DocumentHandler
}
