package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestClassifySerializationFailures(t *testing.T) {
	for _, code := range []string{serializationFailure, deadlockDetected} {
		err := classify("transaction", fmt.Errorf("ledger: lock row: %w", &pgconn.PgError{Code: code}))
		require.True(t, errors.Is(err, shared.ErrConcurrentUpdate), code)
		require.Equal(t, shared.KindConflict, shared.KindOf(err))
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
	}
}

func TestClassifyTimeouts(t *testing.T) {
	require.True(t, errors.Is(classify("commit", &pgconn.PgError{Code: queryCanceled}), shared.ErrTransactionTimeout))
	require.True(t, errors.Is(classify("acquire", context.DeadlineExceeded), shared.ErrTransactionTimeout))
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	typed := shared.NotFound("period", 1)
	require.Same(t, typed, classify("transaction", typed))

	raw := &pgconn.PgError{Code: "23503"}
	require.Equal(t, error(raw), classify("transaction", raw))
}

func TestViolationHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "periods_one_active_idx"})
	require.True(t, IsUniqueViolation(unique, "periods_one_active_idx"))
	require.True(t, IsUniqueViolation(unique, ""))
	require.False(t, IsUniqueViolation(unique, "approvals_one_pending_idx"))
	require.False(t, IsExclusionViolation(unique, ""))

	excl := &pgconn.PgError{Code: "23P01", ConstraintName: "periods_no_overlap"}
	require.True(t, IsExclusionViolation(excl, "periods_no_overlap"))
	require.False(t, IsUniqueViolation(excl, ""))
}
