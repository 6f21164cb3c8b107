// Package postgres implements every repository port on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

//go:embed schema.sql
var schema string

// Store owns the pool every transaction is drawn from.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

// Catalog returns the catalog lookup over the same pool.
func (s *Store) Catalog() *Catalog {
	return &Catalog{pool: s.pool}
}

// Tx implements every repository port on one pgx transaction.
type Tx struct {
	tx pgx.Tx
}

type transactor[T any] struct {
	store *Store
	opts  db.TxOptions
}

// For exposes the store as a unit of work over the repository port T.
func For[T any](s *Store, opts db.TxOptions) db.Transactor[T] {
	return transactor[T]{store: s, opts: opts}
}

func (t transactor[T]) WithTx(ctx context.Context, fn func(context.Context, T) error) error {
	return db.WithTx(ctx, t.store.pool, t.opts, func(ctx context.Context, tx pgx.Tx) error {
		view, ok := any(&Tx{tx: tx}).(T)
		if !ok {
			return fmt.Errorf("store/postgres: transaction does not implement %T", (*T)(nil))
		}
		return fn(ctx, view)
	})
}

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
