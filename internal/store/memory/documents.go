package memory

import (
	"context"
	"errors"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/transfer"
)

var errNegativeStock = errors.New("memory: on_hand must not be negative")

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ----------------------------------------------------------------------------
// deliveries
// ----------------------------------------------------------------------------

func (tx *Tx) InsertDelivery(_ context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	if err := tx.check("InsertDelivery"); err != nil {
		return delivery.Delivery{}, err
	}
	d.ID = tx.st.next("deliveries")
	d.Lines = slices.Clone(d.Lines)
	for i := range d.Lines {
		d.Lines[i].ID = tx.st.next("delivery_lines")
		d.Lines[i].DeliveryID = d.ID
	}
	tx.st.deliveries[d.ID] = d
	return cloneDelivery(d), nil
}

func (tx *Tx) GetDelivery(_ context.Context, id int64) (delivery.Delivery, error) {
	d, ok := tx.st.deliveries[id]
	if !ok {
		return delivery.Delivery{}, delivery.ErrNotFound
	}
	return cloneDelivery(d), nil
}

func (tx *Tx) GetDeliveryForUpdate(ctx context.Context, id int64) (delivery.Delivery, error) {
	return tx.GetDelivery(ctx, id)
}

func (tx *Tx) UpdateDelivery(_ context.Context, d delivery.Delivery) error {
	if err := tx.check("UpdateDelivery"); err != nil {
		return err
	}
	if _, ok := tx.st.deliveries[d.ID]; !ok {
		return delivery.ErrNotFound
	}
	tx.st.deliveries[d.ID] = cloneDelivery(d)
	return nil
}

func (tx *Tx) ListDeliveries(_ context.Context, f delivery.Filter) ([]delivery.Delivery, error) {
	var out []delivery.Delivery
	for _, id := range sortedKeys(tx.st.deliveries) {
		d := tx.st.deliveries[id]
		if f.LocationID != 0 && d.LocationID != f.LocationID {
			continue
		}
		if f.PeriodID != 0 && (d.PeriodID == nil || *d.PeriodID != f.PeriodID) {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, cloneDelivery(d))
	}
	return out, nil
}

func cloneDelivery(d delivery.Delivery) delivery.Delivery {
	d.Lines = slices.Clone(d.Lines)
	return d
}

// ----------------------------------------------------------------------------
// issues
// ----------------------------------------------------------------------------

func (tx *Tx) InsertIssue(_ context.Context, is issue.Issue) (issue.Issue, error) {
	if err := tx.check("InsertIssue"); err != nil {
		return issue.Issue{}, err
	}
	is.ID = tx.st.next("issues")
	is.Lines = slices.Clone(is.Lines)
	for i := range is.Lines {
		is.Lines[i].ID = tx.st.next("issue_lines")
		is.Lines[i].IssueID = is.ID
	}
	tx.st.issues[is.ID] = is
	out := is
	out.Lines = slices.Clone(is.Lines)
	return out, nil
}

func (tx *Tx) GetIssue(_ context.Context, id int64) (issue.Issue, error) {
	is, ok := tx.st.issues[id]
	if !ok {
		return issue.Issue{}, issue.ErrNotFound
	}
	is.Lines = slices.Clone(is.Lines)
	return is, nil
}

func (tx *Tx) ListIssues(_ context.Context, f issue.Filter) ([]issue.Issue, error) {
	var out []issue.Issue
	for _, id := range sortedKeys(tx.st.issues) {
		is := tx.st.issues[id]
		if f.LocationID != 0 && is.LocationID != f.LocationID {
			continue
		}
		if f.PeriodID != 0 && is.PeriodID != f.PeriodID {
			continue
		}
		is.Lines = slices.Clone(is.Lines)
		out = append(out, is)
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// transfers
// ----------------------------------------------------------------------------

func (tx *Tx) InsertTransfer(_ context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	if err := tx.check("InsertTransfer"); err != nil {
		return transfer.Transfer{}, err
	}
	t.ID = tx.st.next("transfers")
	t.Lines = slices.Clone(t.Lines)
	for i := range t.Lines {
		t.Lines[i].ID = tx.st.next("transfer_lines")
		t.Lines[i].TransferID = t.ID
	}
	tx.st.transfers[t.ID] = t
	return cloneTransfer(t), nil
}

func (tx *Tx) GetTransfer(_ context.Context, id int64) (transfer.Transfer, error) {
	t, ok := tx.st.transfers[id]
	if !ok {
		return transfer.Transfer{}, transfer.ErrNotFound
	}
	return cloneTransfer(t), nil
}

func (tx *Tx) GetTransferForUpdate(ctx context.Context, id int64) (transfer.Transfer, error) {
	return tx.GetTransfer(ctx, id)
}

func (tx *Tx) UpdateTransfer(_ context.Context, t transfer.Transfer) error {
	if err := tx.check("UpdateTransfer"); err != nil {
		return err
	}
	if _, ok := tx.st.transfers[t.ID]; !ok {
		return transfer.ErrNotFound
	}
	tx.st.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (tx *Tx) ListTransfers(_ context.Context, f transfer.Filter) ([]transfer.Transfer, error) {
	var out []transfer.Transfer
	for _, id := range sortedKeys(tx.st.transfers) {
		t := tx.st.transfers[id]
		if f.LocationID != 0 && t.FromLocationID != f.LocationID && t.ToLocationID != f.LocationID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, cloneTransfer(t))
	}
	return out, nil
}

func cloneTransfer(t transfer.Transfer) transfer.Transfer {
	t.Lines = slices.Clone(t.Lines)
	return t
}

// ----------------------------------------------------------------------------
// ncrs
// ----------------------------------------------------------------------------

func (tx *Tx) InsertNCR(_ context.Context, n ncr.NCR) (int64, error) {
	if err := tx.check("InsertNCR"); err != nil {
		return 0, err
	}
	n.ID = tx.st.next("ncrs")
	tx.st.ncrs[n.ID] = n
	return n.ID, nil
}

func (tx *Tx) GetNCR(_ context.Context, id int64) (ncr.NCR, error) {
	n, ok := tx.st.ncrs[id]
	if !ok {
		return ncr.NCR{}, ncr.ErrNotFound
	}
	return n, nil
}

func (tx *Tx) GetNCRForUpdate(ctx context.Context, id int64) (ncr.NCR, error) {
	return tx.GetNCR(ctx, id)
}

func (tx *Tx) UpdateNCR(_ context.Context, n ncr.NCR) error {
	if err := tx.check("UpdateNCR"); err != nil {
		return err
	}
	if _, ok := tx.st.ncrs[n.ID]; !ok {
		return ncr.ErrNotFound
	}
	tx.st.ncrs[n.ID] = n
	return nil
}

func (tx *Tx) ListNCRs(_ context.Context, f ncr.Filter) ([]ncr.NCR, error) {
	var out []ncr.NCR
	for _, id := range sortedKeys(tx.st.ncrs) {
		n := tx.st.ncrs[id]
		if f.PeriodID != 0 && n.PeriodID != f.PeriodID {
			continue
		}
		if f.LocationID != 0 && n.LocationID != f.LocationID {
			continue
		}
		if f.DeliveryID != 0 && (n.DeliveryID == nil || *n.DeliveryID != f.DeliveryID) {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (tx *Tx) SumNCRImpact(_ context.Context, periodID, locationID int64) (decimal.Decimal, decimal.Decimal, error) {
	credits, losses := decimal.Zero, decimal.Zero
	for _, n := range tx.st.ncrs {
		if n.PeriodID != periodID || n.LocationID != locationID {
			continue
		}
		switch n.FinancialImpact {
		case ncr.ImpactCredit:
			credits = credits.Add(n.Value)
		case ncr.ImpactLoss:
			losses = losses.Add(n.Value)
		}
	}
	return credits, losses, nil
}
