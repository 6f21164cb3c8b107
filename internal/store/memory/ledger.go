package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
)

func (tx *Tx) GetStockForUpdate(ctx context.Context, locationID, itemID int64) (ledger.Stock, error) {
	return tx.GetStock(ctx, locationID, itemID)
}

func (tx *Tx) GetStock(_ context.Context, locationID, itemID int64) (ledger.Stock, error) {
	stock, ok := tx.st.stock[stockKey{locationID, itemID}]
	if !ok {
		return ledger.Stock{}, ledger.ErrStockNotFound
	}
	return stock, nil
}

func (tx *Tx) UpsertStock(_ context.Context, stock ledger.Stock) error {
	if err := tx.check("UpsertStock"); err != nil {
		return err
	}
	if stock.OnHand.IsNegative() {
		return errNegativeStock
	}
	tx.st.stock[stockKey{stock.LocationID, stock.ItemID}] = stock
	return nil
}

func (tx *Tx) InsertMovement(_ context.Context, m ledger.Movement) (int64, error) {
	if err := tx.check("InsertMovement"); err != nil {
		return 0, err
	}
	m.ID = tx.st.next("stock_movements")
	tx.st.movements = append(tx.st.movements, m)
	return m.ID, nil
}

// ListStock returns the location's rows ordered by item.
func (tx *Tx) ListStock(_ context.Context, locationID int64) ([]ledger.Stock, error) {
	var out []ledger.Stock
	for key, stock := range tx.st.stock {
		if key.location == locationID {
			out = append(out, stock)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (tx *Tx) ListMovements(_ context.Context, locationID, itemID int64) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range tx.st.movements {
		if m.LocationID == locationID && m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *Tx) SumMovements(_ context.Context, periodID, locationID int64) (reconciliation.MovementTotals, error) {
	totals := reconciliation.MovementTotals{
		Receipts: decimal.Zero, TransfersIn: decimal.Zero, TransfersOut: decimal.Zero, Issues: decimal.Zero,
	}
	for _, m := range tx.st.movements {
		if m.PeriodID != periodID || m.LocationID != locationID {
			continue
		}
		value := m.Qty.Abs().Mul(m.UnitCost)
		switch m.Type {
		case ledger.MovementReceipt:
			totals.Receipts = totals.Receipts.Add(value)
		case ledger.MovementTransferIn:
			totals.TransfersIn = totals.TransfersIn.Add(value)
		case ledger.MovementTransferOut:
			totals.TransfersOut = totals.TransfersOut.Add(value)
		case ledger.MovementIssue:
			totals.Issues = totals.Issues.Add(value)
		}
	}
	return totals, nil
}
