package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/period"
)

func date(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestPeriodWritesEnforceConstraints(t *testing.T) {
	st := New()
	repo := For[period.TxRepository](st)
	ctx := context.Background()
	var first, second int64

	err := repo.WithTx(ctx, func(ctx context.Context, tx period.TxRepository) error {
		var err error
		first, err = tx.InsertPeriod(ctx, period.Period{Name: "jan", StartDate: date("2030-01-01"), EndDate: date("2030-01-31"), Status: period.StatusOpen})
		if err != nil {
			return err
		}
		second, err = tx.InsertPeriod(ctx, period.Period{Name: "feb", StartDate: date("2030-02-01"), EndDate: date("2030-02-28"), Status: period.StatusDraft})
		return err
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx period.TxRepository) error {
		_, err := tx.InsertPeriod(ctx, period.Period{Name: "late jan", StartDate: date("2030-01-31"), EndDate: date("2030-02-05"), Status: period.StatusDraft})
		return err
	})
	require.True(t, errors.Is(err, period.ErrOverlap))

	err = repo.WithTx(ctx, func(ctx context.Context, tx period.TxRepository) error {
		p, err := tx.GetPeriod(ctx, second)
		if err != nil {
			return err
		}
		p.Status = period.StatusOpen
		return tx.UpdatePeriod(ctx, p)
	})
	require.True(t, errors.Is(err, period.ErrActiveExists))

	err = repo.WithTx(ctx, func(ctx context.Context, tx period.TxRepository) error {
		p, err := tx.GetPeriod(ctx, first)
		if err != nil {
			return err
		}
		p.Status = period.StatusPendingClose
		return tx.UpdatePeriod(ctx, p)
	})
	require.NoError(t, err)
}
