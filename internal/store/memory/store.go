// Package memory is a transactional in-memory implementation of every repository port.
// Each transaction works on a copy of the state and swaps it in on commit, so a failed
// transaction leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/periodclose"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
	"github.com/odyssey-erp/stockledger/internal/transfer"
)

type stockKey struct{ location, item int64 }

type locKey struct{ period, location int64 }

type state struct {
	seq        map[string]int64
	stock      map[stockKey]ledger.Stock
	movements  []ledger.Movement
	deliveries map[int64]delivery.Delivery
	issues     map[int64]issue.Issue
	transfers  map[int64]transfer.Transfer
	ncrs       map[int64]ncr.NCR
	periods    map[int64]period.Period
	periodLocs map[locKey]period.Location
	recs       map[locKey]reconciliation.Reconciliation
	approvals  map[int64]approval.Approval
}

func newState() *state {
	return &state{
		seq:        map[string]int64{},
		stock:      map[stockKey]ledger.Stock{},
		deliveries: map[int64]delivery.Delivery{},
		issues:     map[int64]issue.Issue{},
		transfers:  map[int64]transfer.Transfer{},
		ncrs:       map[int64]ncr.NCR{},
		periods:    map[int64]period.Period{},
		periodLocs: map[locKey]period.Location{},
		recs:       map[locKey]reconciliation.Reconciliation{},
		approvals:  map[int64]approval.Approval{},
	}
}

// clone copies every table. Stored values own their slices, so a shallow map copy is enough.
func (s *state) clone() *state {
	return &state{
		seq:        maps.Clone(s.seq),
		stock:      maps.Clone(s.stock),
		movements:  slices.Clone(s.movements),
		deliveries: maps.Clone(s.deliveries),
		issues:     maps.Clone(s.issues),
		transfers:  maps.Clone(s.transfers),
		ncrs:       maps.Clone(s.ncrs),
		periods:    maps.Clone(s.periods),
		periodLocs: maps.Clone(s.periodLocs),
		recs:       maps.Clone(s.recs),
		approvals:  maps.Clone(s.approvals),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Fault is consulted before every write; a non-nil return aborts the transaction.
type Fault func(op string) error

// Store serialises transactions behind one mutex. Catalog data and the audit trail sit
// outside transactional state and have their own locks.
type Store struct {
	mu    sync.Mutex
	st    *state
	fault Fault

	catalog *Catalog
	trail   *AuditTrail
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), catalog: newCatalog(), trail: &AuditTrail{}}
}

// SetFault installs (or, with nil, removes) a write fault.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Catalog returns the catalog collaborator backed by this store.
func (s *Store) Catalog() *Catalog { return s.catalog }

// Audit returns the audit port backed by this store.
func (s *Store) Audit() *AuditTrail { return s.trail }

func (s *Store) withTx(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{st: s.st.clone(), fault: s.fault}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Tx is one transaction's view of the store. It implements every repository port.
type Tx struct {
	st    *state
	fault Fault
}

func (tx *Tx) check(op string) error {
	if tx.fault == nil {
		return nil
	}
	if err := tx.fault(op); err != nil {
		return fmt.Errorf("memory: %s: %w", op, err)
	}
	return nil
}

type transactor[T any] struct{ store *Store }

// For exposes the store as a unit of work over the repository port T.
func For[T any](s *Store) db.Transactor[T] {
	return transactor[T]{store: s}
}

func (t transactor[T]) WithTx(ctx context.Context, fn func(context.Context, T) error) error {
	return t.store.withTx(ctx, func(tx *Tx) error {
		view, ok := any(tx).(T)
		if !ok {
			return fmt.Errorf("memory: transaction does not implement %T", (*T)(nil))
		}
		return fn(ctx, view)
	})
}

// Compile-time port checks.
var (
	_ ledger.TxRepository         = (*Tx)(nil)
	_ ncr.Repository              = (*Tx)(nil)
	_ approval.TxRepository       = (*Tx)(nil)
	_ period.TxRepository         = (*Tx)(nil)
	_ reconciliation.TxRepository = (*Tx)(nil)
	_ delivery.TxRepository       = (*Tx)(nil)
	_ issue.TxRepository          = (*Tx)(nil)
	_ transfer.TxRepository       = (*Tx)(nil)
	_ periodclose.TxRepository    = (*Tx)(nil)
)
