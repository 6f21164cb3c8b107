package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Transactor runs fn inside one storage transaction. fn's error rolls back every write.
type Transactor[T any] interface {
	WithTx(ctx context.Context, fn func(context.Context, T) error) error
}

// TxOptions bounds how long a transaction may wait for a connection and run.
type TxOptions struct {
	MaxWait time.Duration
	Timeout time.Duration
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts TxOptions, fn func(context.Context, pgx.Tx) error) error {
	conn, err := acquire(ctx, pool, opts.MaxWait)
	if err != nil {
		return err
	}
	defer conn.Release()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return classify("begin tx", fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if opts.Timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.Timeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: statement timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return classify("transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit", fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func acquire(ctx context.Context, pool *pgxpool.Pool, maxWait time.Duration) (*pgxpool.Conn, error) {
	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, classify("acquire connection", fmt.Errorf("platform/db: acquire: %w", err))
	}
	return conn, nil
}

// SQLSTATEs the transaction runner turns into typed, retryable failures.
const (
	queryCanceled        = "57014"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// classify maps deadline and serialization failures onto the error taxonomy.
func classify(op string, err error) error {
	if shared.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.Timeout(op, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case queryCanceled:
		return shared.Timeout(op, err)
	case serializationFailure, deadlockDetected:
		return shared.ConcurrentUpdate(op, err)
	}
	return err
}

// IsUniqueViolation reports a 23505 unique constraint failure.
func IsUniqueViolation(err error, constraint string) bool {
	return isViolation(err, "23505", constraint)
}

// IsExclusionViolation reports a 23P01 exclusion constraint failure.
func IsExclusionViolation(err error, constraint string) bool {
	return isViolation(err, "23P01", constraint)
}

func isViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
