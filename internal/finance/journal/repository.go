package journal

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/periods"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed journal repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, voucher_no, period_id, entry_date, description, status, source_type, source_id,
total_debit, total_credit, is_reversal, reversed_entry_id, created_by, reviewed_by, reviewed_at, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.VoucherNo, &e.PeriodID, &e.EntryDate, &e.Description, &e.Status, &e.SourceType, &e.SourceID,
		&e.TotalDebit, &e.TotalCredit, &e.IsReversal, &e.ReversedEntryID, &e.CreatedBy, &e.ReviewedBy, &e.ReviewedAt, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func entryNotFound(id uuid.UUID) error {
	return finance.Errf(finance.KindNotFound, finance.CodeEntryNotFound, "journal entry %s not found", id)
}

func (r *repository) GetEntry(ctx context.Context, tenantID, id uuid.UUID) (Entry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, entryNotFound(id)
	}
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = r.loadLines(ctx, r.db, entry.ID)
	return entry, err
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE tenant_id=$1`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status=$2`
	}
	if filter.PeriodID != uuid.Nil {
		args = append(args, filter.PeriodID)
		query += ` AND period_id=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) FindBySource(ctx context.Context, tenantID uuid.UUID, sourceType SourceType, sourceID uuid.UUID) (Entry, bool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND source_type=$2 AND source_id=$3`, tenantID, sourceType, sourceID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (r *repository) FindActiveTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error) {
	row := r.db.QueryRow(ctx, `SELECT id, tenant_id, source_type, debit_account_id, credit_account_id, is_active, created_at, updated_at
FROM voucher_templates WHERE tenant_id=$1 AND source_type=$2 AND is_active=TRUE`, tenantID, sourceType)
	var t VoucherTemplate
	err := row.Scan(&t.ID, &t.TenantID, &t.SourceType, &t.DebitAccountID, &t.CreditAccountID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return VoucherTemplate{}, finance.Errf(finance.KindBusinessRule, finance.CodeTemplateMissing,
			"no active voucher template configured for source type %s", sourceType)
	}
	return t, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, loadLines: r.loadLines})
	})
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *repository) loadLines(ctx context.Context, q queryer, entryID uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit_amount, credit_amount, description, sort_order
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY sort_order`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.DebitAmount, &l.CreditAmount, &l.Description, &l.SortOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type txRepository struct {
	tx        pgx.Tx
	loadLines func(ctx context.Context, q queryer, entryID uuid.UUID) ([]Line, error)
}

func (r *txRepository) GetPeriod(ctx context.Context, tenantID, periodID uuid.UUID) (periods.Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, tenant_id, year, month, quarter, status, closed_by, closed_at, created_at, updated_at
FROM accounting_periods WHERE tenant_id=$1 AND id=$2`, tenantID, periodID)
	var p periods.Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Year, &p.Month, &p.Quarter, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.Period{}, finance.Errf(finance.KindNotFound, finance.CodePeriodNotFound, "accounting period %s not found", periodID)
	}
	return p, err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, entryNotFound(id)
	}
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = r.loadLines(ctx, r.tx, entry.ID)
	return entry, err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry *Entry) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, tenant_id, voucher_no, period_id, entry_date, description, status, source_type, source_id,
total_debit, total_credit, is_reversal, reversed_entry_id, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		entry.ID, entry.TenantID, entry.VoucherNo, entry.PeriodID, entry.EntryDate, entry.Description, entry.Status, entry.SourceType, entry.SourceID,
		entry.TotalDebit, entry.TotalCredit, entry.IsReversal, entry.ReversedEntryID, entry.CreatedBy, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		// uq_journal_entries_source backstops the generator's idempotency
		// check under concurrent generation.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_journal_entries_source" {
			return finance.Errf(finance.KindBusinessRule, finance.CodeAlreadyGenerated,
				"a voucher was already generated for %s %s", entry.SourceType, entry.SourceID)
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID uuid.UUID, lines []Line) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_entry_lines (id, entry_id, account_id, debit_amount, credit_amount, description, sort_order)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			line.ID, entryID, line.AccountID, line.DebitAmount, line.CreditAmount, line.Description, line.SortOrder); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, tenantID, id uuid.UUID, update StatusUpdate) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$3,
description=COALESCE($4, description),
reviewed_by=COALESCE($5, reviewed_by),
reviewed_at=COALESCE($6, reviewed_at),
posted_at=COALESCE($7, posted_at),
updated_at=$8
WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, update.Status, update.Description, update.ReviewedBy, update.ReviewedAt, update.PostedAt, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entryNotFound(id)
	}
	return nil
}

func (r *txRepository) AppendAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, r.tx, rec)
}

func (r *txRepository) AppendFinanceAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertFinanceAudit(ctx, r.tx, rec)
}
