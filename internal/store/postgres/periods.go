package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
)

const (
	pendingApprovalIndex = "approvals_one_pending_idx"
	oneActivePeriodIndex = "periods_one_active_idx"
	periodOverlapRule    = "periods_no_overlap"
)

// ----------------------------------------------------------------------------
// periods
// ----------------------------------------------------------------------------

const periodColumns = `id, name, start_date, end_date, status, approval_id, created_by, created_at, opened_at, closed_at, closed_by, updated_at`

func scanPeriod(row pgx.Row) (period.Period, error) {
	var (
		p      period.Period
		status string
	)
	err := row.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &status, &p.ApprovalID, &p.CreatedBy, &p.CreatedAt,
		&p.OpenedAt, &p.ClosedAt, &p.ClosedBy, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return period.Period{}, period.ErrNotFound
	}
	p.Status = period.Status(status)
	return p, err
}

func (r *Tx) GetPeriod(ctx context.Context, id int64) (period.Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id))
}

func (r *Tx) GetPeriodForUpdate(ctx context.Context, id int64) (period.Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id))
}

func (r *Tx) CurrentOpenPeriod(ctx context.Context) (period.Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE status='OPEN' ORDER BY id LIMIT 1`))
}

func (r *Tx) ListPeriods(ctx context.Context) ([]period.Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPeriod)
}

func (r *Tx) InsertPeriod(ctx context.Context, p period.Period) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO periods (name, start_date, end_date, status, approval_id, created_by, created_at,
opened_at, closed_at, closed_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		p.Name, p.StartDate, p.EndDate, string(p.Status), p.ApprovalID, p.CreatedBy, p.CreatedAt,
		p.OpenedAt, p.ClosedAt, p.ClosedBy, p.UpdatedAt).Scan(&id)
	if db.IsExclusionViolation(err, periodOverlapRule) {
		return 0, period.ErrOverlap
	}
	return id, err
}

func (r *Tx) UpdatePeriod(ctx context.Context, p period.Period) error {
	tag, err := r.tx.Exec(ctx, `UPDATE periods SET status=$2, approval_id=$3, opened_at=$4, closed_at=$5, closed_by=$6, updated_at=$7
WHERE id=$1`, p.ID, string(p.Status), p.ApprovalID, p.OpenedAt, p.ClosedAt, p.ClosedBy, p.UpdatedAt)
	if db.IsUniqueViolation(err, oneActivePeriodIndex) {
		return period.ErrActiveExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return period.ErrNotFound
	}
	return nil
}

func (r *Tx) OverlappingPeriods(ctx context.Context, start, end time.Time) ([]period.Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE start_date <= $2 AND end_date >= $1 ORDER BY id`, start, end)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPeriod)
}

func (r *Tx) ActivePeriods(ctx context.Context) ([]period.Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE status IN ('OPEN','PENDING_CLOSE','APPROVED') ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPeriod)
}

func (r *Tx) LatestClosedBefore(ctx context.Context, start time.Time) (period.Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE status='CLOSED' AND end_date < $1 ORDER BY end_date DESC LIMIT 1`, start))
}

// ----------------------------------------------------------------------------
// period locations
// ----------------------------------------------------------------------------

const periodLocationColumns = `period_id, location_id, status, opening_value, closing_value, snapshot_data, ready_at, ready_by, closed_at`

func scanPeriodLocation(row pgx.Row) (period.Location, error) {
	var (
		l      period.Location
		status string
	)
	err := row.Scan(&l.PeriodID, &l.LocationID, &status, &l.OpeningValue, &l.ClosingValue, &l.SnapshotData,
		&l.ReadyAt, &l.ReadyBy, &l.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return period.Location{}, period.ErrNotFound
	}
	l.Status = period.LocationStatus(status)
	return l, err
}

func (r *Tx) InsertPeriodLocations(ctx context.Context, locs []period.Location) error {
	batch := &pgx.Batch{}
	for _, l := range locs {
		batch.Queue(`INSERT INTO period_locations (period_id, location_id, status, opening_value) VALUES ($1,$2,$3,$4)`,
			l.PeriodID, l.LocationID, string(l.Status), l.OpeningValue)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *Tx) ListPeriodLocations(ctx context.Context, periodID int64) ([]period.Location, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodLocationColumns+` FROM period_locations
WHERE period_id=$1 ORDER BY location_id`, periodID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPeriodLocation)
}

func (r *Tx) GetPeriodLocation(ctx context.Context, periodID, locationID int64) (period.Location, error) {
	return scanPeriodLocation(r.tx.QueryRow(ctx, `SELECT `+periodLocationColumns+` FROM period_locations
WHERE period_id=$1 AND location_id=$2`, periodID, locationID))
}

func (r *Tx) GetPeriodLocationForUpdate(ctx context.Context, periodID, locationID int64) (period.Location, error) {
	return scanPeriodLocation(r.tx.QueryRow(ctx, `SELECT `+periodLocationColumns+` FROM period_locations
WHERE period_id=$1 AND location_id=$2 FOR UPDATE`, periodID, locationID))
}

func (r *Tx) UpdatePeriodLocation(ctx context.Context, l period.Location) error {
	var snapshot any
	if len(l.SnapshotData) > 0 {
		snapshot = string(l.SnapshotData)
	}
	tag, err := r.tx.Exec(ctx, `UPDATE period_locations SET status=$3, closing_value=$4, snapshot_data=$5::json,
ready_at=$6, ready_by=$7, closed_at=$8 WHERE period_id=$1 AND location_id=$2`,
		l.PeriodID, l.LocationID, string(l.Status), l.ClosingValue, snapshot, l.ReadyAt, l.ReadyBy, l.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return period.ErrNotFound
	}
	return nil
}

// ----------------------------------------------------------------------------
// reconciliations
// ----------------------------------------------------------------------------

func (r *Tx) GetReconciliation(ctx context.Context, periodID, locationID int64) (reconciliation.Reconciliation, error) {
	var rec reconciliation.Reconciliation
	err := r.tx.QueryRow(ctx, `SELECT period_id, location_id, opening_stock, receipts, transfers_in, transfers_out, issues,
closing_stock, adjustments, back_charges, credits, condemnations, ncr_credits, ncr_losses, calculated_closing, variance,
confirmed_by, confirmed_at, updated_by, updated_at
FROM reconciliations WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(
		&rec.PeriodID, &rec.LocationID, &rec.OpeningStock, &rec.Receipts, &rec.TransfersIn, &rec.TransfersOut, &rec.Issues,
		&rec.ClosingStock, &rec.Adjustments, &rec.BackCharges, &rec.Credits, &rec.Condemnations, &rec.NCRCredits, &rec.NCRLosses,
		&rec.CalculatedClosing, &rec.Variance, &rec.ConfirmedBy, &rec.ConfirmedAt, &rec.UpdatedBy, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconciliation.Reconciliation{}, reconciliation.ErrNotFound
	}
	return rec, err
}

func (r *Tx) UpsertReconciliation(ctx context.Context, rec reconciliation.Reconciliation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO reconciliations (period_id, location_id, opening_stock, receipts, transfers_in, transfers_out,
issues, closing_stock, adjustments, back_charges, credits, condemnations, ncr_credits, ncr_losses, calculated_closing, variance,
confirmed_by, confirmed_at, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (period_id, location_id) DO UPDATE SET
    opening_stock = EXCLUDED.opening_stock,
    receipts = EXCLUDED.receipts,
    transfers_in = EXCLUDED.transfers_in,
    transfers_out = EXCLUDED.transfers_out,
    issues = EXCLUDED.issues,
    closing_stock = EXCLUDED.closing_stock,
    adjustments = EXCLUDED.adjustments,
    back_charges = EXCLUDED.back_charges,
    credits = EXCLUDED.credits,
    condemnations = EXCLUDED.condemnations,
    ncr_credits = EXCLUDED.ncr_credits,
    ncr_losses = EXCLUDED.ncr_losses,
    calculated_closing = EXCLUDED.calculated_closing,
    variance = EXCLUDED.variance,
    confirmed_by = EXCLUDED.confirmed_by,
    confirmed_at = EXCLUDED.confirmed_at,
    updated_by = EXCLUDED.updated_by,
    updated_at = EXCLUDED.updated_at`,
		rec.PeriodID, rec.LocationID, rec.OpeningStock, rec.Receipts, rec.TransfersIn, rec.TransfersOut,
		rec.Issues, rec.ClosingStock, rec.Adjustments, rec.BackCharges, rec.Credits, rec.Condemnations, rec.NCRCredits, rec.NCRLosses,
		rec.CalculatedClosing, rec.Variance, rec.ConfirmedBy, rec.ConfirmedAt, rec.UpdatedBy, rec.UpdatedAt)
	return err
}

// ----------------------------------------------------------------------------
// approvals
// ----------------------------------------------------------------------------

const approvalColumns = `id, entity_type, entity_id, status, requested_by, requested_at, reviewed_by, reviewed_at, comments`

func scanApproval(row pgx.Row) (approval.Approval, error) {
	var (
		a            approval.Approval
		kind, status string
	)
	err := row.Scan(&a.ID, &kind, &a.EntityID, &status, &a.RequestedBy, &a.RequestedAt, &a.ReviewedBy, &a.ReviewedAt, &a.Comments)
	if errors.Is(err, pgx.ErrNoRows) {
		return approval.Approval{}, approval.ErrNotFound
	}
	a.EntityType, a.Status = approval.EntityType(kind), approval.Status(status)
	return a, err
}

func (r *Tx) InsertApproval(ctx context.Context, a approval.Approval) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO approvals (entity_type, entity_id, status, requested_by, requested_at, reviewed_by, reviewed_at, comments)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		string(a.EntityType), a.EntityID, string(a.Status), a.RequestedBy, a.RequestedAt, a.ReviewedBy, a.ReviewedAt, a.Comments).Scan(&id)
	if db.IsUniqueViolation(err, pendingApprovalIndex) {
		return 0, approval.ErrDuplicatePending
	}
	return id, err
}

func (r *Tx) GetApproval(ctx context.Context, id int64) (approval.Approval, error) {
	return scanApproval(r.tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=$1`, id))
}

func (r *Tx) GetApprovalForUpdate(ctx context.Context, id int64) (approval.Approval, error) {
	return scanApproval(r.tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=$1 FOR UPDATE`, id))
}

func (r *Tx) UpdateApproval(ctx context.Context, a approval.Approval) error {
	tag, err := r.tx.Exec(ctx, `UPDATE approvals SET status=$2, reviewed_by=$3, reviewed_at=$4, comments=$5 WHERE id=$1`,
		a.ID, string(a.Status), a.ReviewedBy, a.ReviewedAt, a.Comments)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return approval.ErrNotFound
	}
	return nil
}

func (r *Tx) PendingApproval(ctx context.Context, entityType approval.EntityType, entityID int64) (approval.Approval, error) {
	return scanApproval(r.tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals
WHERE entity_type=$1 AND entity_id=$2 AND status='PENDING'`, string(entityType), entityID))
}

func (r *Tx) ListApprovals(ctx context.Context, f approval.Filter) ([]approval.Approval, error) {
	var where filter
	if f.EntityType != "" {
		where.add("entity_type=$%d", string(f.EntityType))
	}
	if f.EntityID != 0 {
		where.add("entity_id=$%d", f.EntityID)
	}
	if f.Status != "" {
		where.add("status=$%d", string(f.Status))
	}
	if !f.RequestedBefore.IsZero() {
		where.add("requested_at < $%d", f.RequestedBefore)
	}
	rows, err := r.tx.Query(ctx, `SELECT `+approvalColumns+` FROM approvals`+where.sql()+` ORDER BY id`, where.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanApproval)
}
