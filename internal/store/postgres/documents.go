package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/transfer"
)

// filter accumulates optional WHERE clauses with positional arguments.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, fmt.Sprintf(clause, len(f.args)))
}

func (f *filter) sql() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// ----------------------------------------------------------------------------
// deliveries
// ----------------------------------------------------------------------------

const deliveryColumns = `id, number, location_id, supplier_ref, delivery_date, status, period_id, has_variance,
total_value, created_by, created_at, posted_by, posted_at`

func scanDelivery(row pgx.Row) (delivery.Delivery, error) {
	var (
		d      delivery.Delivery
		status string
	)
	err := row.Scan(&d.ID, &d.Number, &d.LocationID, &d.SupplierRef, &d.DeliveryDate, &status, &d.PeriodID,
		&d.HasVariance, &d.TotalValue, &d.CreatedBy, &d.CreatedAt, &d.PostedBy, &d.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return delivery.Delivery{}, delivery.ErrNotFound
	}
	d.Status = delivery.Status(status)
	return d, err
}

func (r *Tx) InsertDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO deliveries (number, location_id, supplier_ref, delivery_date, status, period_id,
has_variance, total_value, created_by, created_at, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		d.Number, d.LocationID, d.SupplierRef, d.DeliveryDate, string(d.Status), d.PeriodID,
		d.HasVariance, d.TotalValue, d.CreatedBy, d.CreatedAt, d.PostedBy, d.PostedAt).Scan(&d.ID)
	if err != nil {
		return delivery.Delivery{}, err
	}
	for i := range d.Lines {
		line := &d.Lines[i]
		line.DeliveryID = d.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO delivery_lines (delivery_id, item_id, quantity, unit_price, period_price, price_variance, line_value)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			line.DeliveryID, line.ItemID, line.Quantity, line.UnitPrice, line.PeriodPrice, line.PriceVariance, line.LineValue).Scan(&line.ID); err != nil {
			return delivery.Delivery{}, err
		}
	}
	return d, nil
}

func (r *Tx) GetDelivery(ctx context.Context, id int64) (delivery.Delivery, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1`, id))
	if err != nil {
		return delivery.Delivery{}, err
	}
	return r.withDeliveryLines(ctx, d)
}

func (r *Tx) GetDeliveryForUpdate(ctx context.Context, id int64) (delivery.Delivery, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return delivery.Delivery{}, err
	}
	return r.withDeliveryLines(ctx, d)
}

func (r *Tx) withDeliveryLines(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, delivery_id, item_id, quantity, unit_price, period_price, price_variance, line_value
FROM delivery_lines WHERE delivery_id=$1 ORDER BY id`, d.ID)
	if err != nil {
		return delivery.Delivery{}, err
	}
	defer rows.Close()
	d.Lines = nil
	for rows.Next() {
		var l delivery.Line
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.ItemID, &l.Quantity, &l.UnitPrice, &l.PeriodPrice, &l.PriceVariance, &l.LineValue); err != nil {
			return delivery.Delivery{}, err
		}
		d.Lines = append(d.Lines, l)
	}
	return d, rows.Err()
}

func (r *Tx) UpdateDelivery(ctx context.Context, d delivery.Delivery) error {
	tag, err := r.tx.Exec(ctx, `UPDATE deliveries SET status=$2, period_id=$3, has_variance=$4, total_value=$5, posted_by=$6, posted_at=$7
WHERE id=$1`, d.ID, string(d.Status), d.PeriodID, d.HasVariance, d.TotalValue, d.PostedBy, d.PostedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	for _, l := range d.Lines {
		if _, err := r.tx.Exec(ctx, `UPDATE delivery_lines SET period_price=$2, price_variance=$3, line_value=$4 WHERE id=$1`,
			l.ID, l.PeriodPrice, l.PriceVariance, l.LineValue); err != nil {
			return err
		}
	}
	return nil
}

func (r *Tx) ListDeliveries(ctx context.Context, f delivery.Filter) ([]delivery.Delivery, error) {
	var where filter
	if f.LocationID != 0 {
		where.add("location_id=$%d", f.LocationID)
	}
	if f.PeriodID != 0 {
		where.add("period_id=$%d", f.PeriodID)
	}
	if f.Status != "" {
		where.add("status=$%d", string(f.Status))
	}
	rows, err := r.tx.Query(ctx, `SELECT `+deliveryColumns+` FROM deliveries`+where.sql()+` ORDER BY id`, where.args...)
	if err != nil {
		return nil, err
	}
	headers, err := collect(rows, scanDelivery)
	if err != nil {
		return nil, err
	}
	for i := range headers {
		if headers[i], err = r.withDeliveryLines(ctx, headers[i]); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// ----------------------------------------------------------------------------
// issues
// ----------------------------------------------------------------------------

const issueColumns = `id, number, location_id, period_id, issue_date, purpose, total_value, posted_by, posted_at`

func scanIssue(row pgx.Row) (issue.Issue, error) {
	var is issue.Issue
	err := row.Scan(&is.ID, &is.Number, &is.LocationID, &is.PeriodID, &is.IssueDate, &is.Purpose, &is.TotalValue, &is.PostedBy, &is.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return issue.Issue{}, issue.ErrNotFound
	}
	return is, err
}

func (r *Tx) InsertIssue(ctx context.Context, is issue.Issue) (issue.Issue, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO issues (number, location_id, period_id, issue_date, purpose, total_value, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		is.Number, is.LocationID, is.PeriodID, is.IssueDate, is.Purpose, is.TotalValue, is.PostedBy, is.PostedAt).Scan(&is.ID)
	if err != nil {
		return issue.Issue{}, err
	}
	for i := range is.Lines {
		line := &is.Lines[i]
		line.IssueID = is.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO issue_lines (issue_id, item_id, quantity, wac_at_issue, line_value)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.IssueID, line.ItemID, line.Quantity, line.WACAtIssue, line.LineValue).Scan(&line.ID); err != nil {
			return issue.Issue{}, err
		}
	}
	return is, nil
}

func (r *Tx) GetIssue(ctx context.Context, id int64) (issue.Issue, error) {
	is, err := scanIssue(r.tx.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=$1`, id))
	if err != nil {
		return issue.Issue{}, err
	}
	return r.withIssueLines(ctx, is)
}

func (r *Tx) withIssueLines(ctx context.Context, is issue.Issue) (issue.Issue, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, issue_id, item_id, quantity, wac_at_issue, line_value
FROM issue_lines WHERE issue_id=$1 ORDER BY id`, is.ID)
	if err != nil {
		return issue.Issue{}, err
	}
	defer rows.Close()
	is.Lines = nil
	for rows.Next() {
		var l issue.Line
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ItemID, &l.Quantity, &l.WACAtIssue, &l.LineValue); err != nil {
			return issue.Issue{}, err
		}
		is.Lines = append(is.Lines, l)
	}
	return is, rows.Err()
}

func (r *Tx) ListIssues(ctx context.Context, f issue.Filter) ([]issue.Issue, error) {
	var where filter
	if f.LocationID != 0 {
		where.add("location_id=$%d", f.LocationID)
	}
	if f.PeriodID != 0 {
		where.add("period_id=$%d", f.PeriodID)
	}
	rows, err := r.tx.Query(ctx, `SELECT `+issueColumns+` FROM issues`+where.sql()+` ORDER BY id`, where.args...)
	if err != nil {
		return nil, err
	}
	headers, err := collect(rows, scanIssue)
	if err != nil {
		return nil, err
	}
	for i := range headers {
		if headers[i], err = r.withIssueLines(ctx, headers[i]); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// ----------------------------------------------------------------------------
// transfers
// ----------------------------------------------------------------------------

const transferColumns = `id, number, from_location_id, to_location_id, reason, status, approval_id, period_id, total_value,
requested_by, requested_at, decided_by, decided_at, completed_at, comments`

func scanTransfer(row pgx.Row) (transfer.Transfer, error) {
	var (
		t      transfer.Transfer
		status string
	)
	err := row.Scan(&t.ID, &t.Number, &t.FromLocationID, &t.ToLocationID, &t.Reason, &status, &t.ApprovalID, &t.PeriodID,
		&t.TotalValue, &t.RequestedBy, &t.RequestedAt, &t.DecidedBy, &t.DecidedAt, &t.CompletedAt, &t.Comments)
	if errors.Is(err, pgx.ErrNoRows) {
		return transfer.Transfer{}, transfer.ErrNotFound
	}
	t.Status = transfer.Status(status)
	return t, err
}

func (r *Tx) InsertTransfer(ctx context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (number, from_location_id, to_location_id, reason, status, approval_id, period_id,
total_value, requested_by, requested_at, decided_by, decided_at, completed_at, comments)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		t.Number, t.FromLocationID, t.ToLocationID, t.Reason, string(t.Status), t.ApprovalID, t.PeriodID,
		t.TotalValue, t.RequestedBy, t.RequestedAt, t.DecidedBy, t.DecidedAt, t.CompletedAt, t.Comments).Scan(&t.ID)
	if err != nil {
		return transfer.Transfer{}, err
	}
	for i := range t.Lines {
		line := &t.Lines[i]
		line.TransferID = t.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO transfer_lines (transfer_id, item_id, quantity, wac_at_transfer, line_value)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.TransferID, line.ItemID, line.Quantity, line.WACAtTransfer, line.LineValue).Scan(&line.ID); err != nil {
			return transfer.Transfer{}, err
		}
	}
	return t, nil
}

func (r *Tx) GetTransfer(ctx context.Context, id int64) (transfer.Transfer, error) {
	t, err := scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id))
	if err != nil {
		return transfer.Transfer{}, err
	}
	return r.withTransferLines(ctx, t)
}

func (r *Tx) GetTransferForUpdate(ctx context.Context, id int64) (transfer.Transfer, error) {
	t, err := scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return transfer.Transfer{}, err
	}
	return r.withTransferLines(ctx, t)
}

func (r *Tx) withTransferLines(ctx context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, transfer_id, item_id, quantity, wac_at_transfer, line_value
FROM transfer_lines WHERE transfer_id=$1 ORDER BY id`, t.ID)
	if err != nil {
		return transfer.Transfer{}, err
	}
	defer rows.Close()
	t.Lines = nil
	for rows.Next() {
		var l transfer.Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ItemID, &l.Quantity, &l.WACAtTransfer, &l.LineValue); err != nil {
			return transfer.Transfer{}, err
		}
		t.Lines = append(t.Lines, l)
	}
	return t, rows.Err()
}

func (r *Tx) UpdateTransfer(ctx context.Context, t transfer.Transfer) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfers SET status=$2, approval_id=$3, period_id=$4, decided_by=$5, decided_at=$6,
completed_at=$7, comments=$8 WHERE id=$1`,
		t.ID, string(t.Status), t.ApprovalID, t.PeriodID, t.DecidedBy, t.DecidedAt, t.CompletedAt, t.Comments)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return transfer.ErrNotFound
	}
	return nil
}

func (r *Tx) ListTransfers(ctx context.Context, f transfer.Filter) ([]transfer.Transfer, error) {
	var where filter
	if f.LocationID != 0 {
		where.add("(from_location_id=$%[1]d OR to_location_id=$%[1]d)", f.LocationID)
	}
	if f.Status != "" {
		where.add("status=$%d", string(f.Status))
	}
	rows, err := r.tx.Query(ctx, `SELECT `+transferColumns+` FROM transfers`+where.sql()+` ORDER BY id`, where.args...)
	if err != nil {
		return nil, err
	}
	headers, err := collect(rows, scanTransfer)
	if err != nil {
		return nil, err
	}
	for i := range headers {
		if headers[i], err = r.withTransferLines(ctx, headers[i]); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// ----------------------------------------------------------------------------
// ncrs
// ----------------------------------------------------------------------------

const ncrColumns = `id, number, period_id, location_id, delivery_id, delivery_line_id, item_id, type, reason, auto_generated,
quantity, unit_variance, value, financial_impact, status, created_by, created_at, updated_at, resolved_at`

func scanNCR(row pgx.Row) (ncr.NCR, error) {
	var (
		n                    ncr.NCR
		kind, impact, status string
	)
	err := row.Scan(&n.ID, &n.Number, &n.PeriodID, &n.LocationID, &n.DeliveryID, &n.DeliveryLineID, &n.ItemID, &kind, &n.Reason,
		&n.AutoGenerated, &n.Quantity, &n.UnitVariance, &n.Value, &impact, &status, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt, &n.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ncr.NCR{}, ncr.ErrNotFound
	}
	n.Type, n.FinancialImpact, n.Status = ncr.Type(kind), ncr.Impact(impact), ncr.Status(status)
	return n, err
}

func (r *Tx) InsertNCR(ctx context.Context, n ncr.NCR) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ncrs (number, period_id, location_id, delivery_id, delivery_line_id, item_id, type, reason,
auto_generated, quantity, unit_variance, value, financial_impact, status, created_by, created_at, updated_at, resolved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18) RETURNING id`,
		n.Number, n.PeriodID, n.LocationID, n.DeliveryID, n.DeliveryLineID, n.ItemID, string(n.Type), n.Reason,
		n.AutoGenerated, n.Quantity, n.UnitVariance, n.Value, string(n.FinancialImpact), string(n.Status),
		n.CreatedBy, n.CreatedAt, n.UpdatedAt, n.ResolvedAt).Scan(&id)
	return id, err
}

func (r *Tx) GetNCR(ctx context.Context, id int64) (ncr.NCR, error) {
	return scanNCR(r.tx.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id=$1`, id))
}

func (r *Tx) GetNCRForUpdate(ctx context.Context, id int64) (ncr.NCR, error) {
	return scanNCR(r.tx.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id=$1 FOR UPDATE`, id))
}

func (r *Tx) UpdateNCR(ctx context.Context, n ncr.NCR) error {
	tag, err := r.tx.Exec(ctx, `UPDATE ncrs SET status=$2, financial_impact=$3, value=$4, updated_at=$5, resolved_at=$6 WHERE id=$1`,
		n.ID, string(n.Status), string(n.FinancialImpact), n.Value, n.UpdatedAt, n.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ncr.ErrNotFound
	}
	return nil
}

func (r *Tx) ListNCRs(ctx context.Context, f ncr.Filter) ([]ncr.NCR, error) {
	var where filter
	if f.PeriodID != 0 {
		where.add("period_id=$%d", f.PeriodID)
	}
	if f.LocationID != 0 {
		where.add("location_id=$%d", f.LocationID)
	}
	if f.DeliveryID != 0 {
		where.add("delivery_id=$%d", f.DeliveryID)
	}
	if f.Status != "" {
		where.add("status=$%d", string(f.Status))
	}
	rows, err := r.tx.Query(ctx, `SELECT `+ncrColumns+` FROM ncrs`+where.sql()+` ORDER BY id`, where.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanNCR)
}

func (r *Tx) SumNCRImpact(ctx context.Context, periodID, locationID int64) (decimal.Decimal, decimal.Decimal, error) {
	var credits, losses decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(SUM(value) FILTER (WHERE financial_impact = 'CREDIT'), 0),
COALESCE(SUM(value) FILTER (WHERE financial_impact = 'LOSS'), 0)
FROM ncrs WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(&credits, &losses)
	return credits, losses, err
}

// collect drains rows through scan. Scanners run on pgx.Rows via the pgx.Row interface.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
