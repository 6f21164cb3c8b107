package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
)

const stockColumns = `location_id, item_id, on_hand, wac, updated_at`

func scanStock(row pgx.Row) (ledger.Stock, error) {
	var s ledger.Stock
	err := row.Scan(&s.LocationID, &s.ItemID, &s.OnHand, &s.WAC, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Stock{}, ledger.ErrStockNotFound
	}
	return s, err
}

func (r *Tx) GetStock(ctx context.Context, locationID, itemID int64) (ledger.Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+`
FROM location_stock WHERE location_id=$1 AND item_id=$2`, locationID, itemID))
}

func (r *Tx) GetStockForUpdate(ctx context.Context, locationID, itemID int64) (ledger.Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+`
FROM location_stock WHERE location_id=$1 AND item_id=$2 FOR UPDATE`, locationID, itemID))
}

func (r *Tx) UpsertStock(ctx context.Context, s ledger.Stock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO location_stock (location_id, item_id, on_hand, wac, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (location_id, item_id) DO UPDATE SET on_hand = EXCLUDED.on_hand, wac = EXCLUDED.wac, updated_at = EXCLUDED.updated_at`,
		s.LocationID, s.ItemID, s.OnHand, s.WAC, s.UpdatedAt)
	return err
}

// ListStock returns the location's rows ordered by item.
func (r *Tx) ListStock(ctx context.Context, locationID int64) ([]ledger.Stock, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+stockColumns+`
FROM location_stock WHERE location_id=$1 ORDER BY item_id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Tx) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (period_id, location_id, item_id, type, qty, unit_cost, ref_type, ref_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		m.PeriodID, m.LocationID, m.ItemID, string(m.Type), m.Qty, m.UnitCost, m.RefType, m.RefID, m.PostedAt).Scan(&id)
	return id, err
}

// ListMovements returns the stock card in posting order.
func (r *Tx) ListMovements(ctx context.Context, locationID, itemID int64) ([]ledger.Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, period_id, location_id, item_id, type, qty, unit_cost, ref_type, ref_id, posted_at
FROM stock_movements WHERE location_id=$1 AND item_id=$2 ORDER BY id`, locationID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Movement
	for rows.Next() {
		var m ledger.Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.PeriodID, &m.LocationID, &m.ItemID, &kind, &m.Qty, &m.UnitCost, &m.RefType, &m.RefID, &m.PostedAt); err != nil {
			return nil, err
		}
		m.Type = ledger.MovementType(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Tx) SumMovements(ctx context.Context, periodID, locationID int64) (reconciliation.MovementTotals, error) {
	rows, err := r.tx.Query(ctx, `SELECT type, COALESCE(SUM(ABS(qty) * unit_cost), 0)
FROM stock_movements WHERE period_id=$1 AND location_id=$2 GROUP BY type`, periodID, locationID)
	if err != nil {
		return reconciliation.MovementTotals{}, err
	}
	defer rows.Close()
	out := reconciliation.MovementTotals{}
	for rows.Next() {
		var (
			kind  string
			value decimal.Decimal
		)
		if err := rows.Scan(&kind, &value); err != nil {
			return reconciliation.MovementTotals{}, err
		}
		switch ledger.MovementType(kind) {
		case ledger.MovementReceipt:
			out.Receipts = value
		case ledger.MovementIssue:
			out.Issues = value
		case ledger.MovementTransferIn:
			out.TransfersIn = value
		case ledger.MovementTransferOut:
			out.TransfersOut = value
		}
	}
	return out, rows.Err()
}
