package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, tenant_id, year, month, quarter, status, closed_by, closed_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Year, &p.Month, &p.Quarter, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) GetOrCreate(ctx context.Context, tenantID uuid.UUID, year, month, quarter int) (Period, error) {
	// ON CONFLICT DO NOTHING keeps concurrent first access race-tolerant; the
	// follow-up select returns whichever row won.
	_, err := r.db.Exec(ctx, `INSERT INTO accounting_periods (id, tenant_id, year, month, quarter, status)
VALUES ($1,$2,$3,$4,$5,'OPEN')
ON CONFLICT (tenant_id, year, month) DO NOTHING`, uuid.New(), tenantID, year, month, quarter)
	if err != nil {
		return Period{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id=$1 AND year=$2 AND month=$3`, tenantID, year, month)
	return scanPeriod(row)
}

func (r *repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	p, err := scanPeriod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, finance.Errf(finance.KindNotFound, finance.CodePeriodNotFound, "accounting period %s not found", id)
	}
	return p, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	p, err := scanPeriod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, finance.Errf(finance.KindNotFound, finance.CodePeriodNotFound, "accounting period %s not found", id)
	}
	return p, err
}

func (r *txRepository) CountUnpostedEntries(ctx context.Context, tenantID, periodID uuid.UUID) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE tenant_id=$1 AND period_id=$2 AND status IN ('DRAFT','PENDING_REVIEW')`, tenantID, periodID).Scan(&count)
	return count, err
}

func (r *txRepository) MarkClosed(ctx context.Context, tenantID, id, closedBy uuid.UUID, closedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status='CLOSED', closed_by=$3, closed_at=$4, updated_at=$4 WHERE tenant_id=$1 AND id=$2 AND status='OPEN'`, tenantID, id, closedBy, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return finance.Errf(finance.KindConcurrency, finance.CodeConcurrentModification, "period %s changed concurrently", id)
	}
	return nil
}

func (r *txRepository) AppendAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, r.tx, rec)
}
