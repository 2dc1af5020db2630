package settlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed settlement repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const receiptColumns = `id, tenant_id, bill_number, customer_name, account_id, total_amount, used_amount, status,
received_at, verified_by, verified_at, remark, version, created_at, updated_at`

func scanReceipt(row pgx.Row) (ReceiptBill, error) {
	var r ReceiptBill
	err := row.Scan(&r.ID, &r.TenantID, &r.BillNumber, &r.CustomerName, &r.AccountID, &r.TotalAmount, &r.UsedAmount, &r.Status,
		&r.ReceivedAt, &r.VerifiedBy, &r.VerifiedAt, &r.Remark, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const statementColumns = `id, tenant_id, statement_number, customer_name, total_amount, received_amount, pending_amount,
status, due_date, version, created_at, updated_at`

func scanStatement(row pgx.Row) (ARStatement, error) {
	var s ARStatement
	err := row.Scan(&s.ID, &s.TenantID, &s.StatementNumber, &s.CustomerName, &s.TotalAmount, &s.ReceivedAmount, &s.PendingAmount,
		&s.Status, &s.DueDate, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func receiptNotFound(id uuid.UUID) error {
	return finance.Errf(finance.KindNotFound, finance.CodeReceiptNotFound, "receipt bill %s not found", id)
}

func (r *repository) GetReceipt(ctx context.Context, tenantID, id uuid.UUID) (ReceiptBill, error) {
	row := r.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipt_bills WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	receipt, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReceiptBill{}, receiptNotFound(id)
	}
	return receipt, err
}

func (r *repository) ListStatements(ctx context.Context, tenantID uuid.UUID, status StatementStatus, limit, offset int) ([]ARStatement, error) {
	query := `SELECT ` + statementColumns + ` FROM ar_statements WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += ` AND status=$2`
	}
	query += ` ORDER BY due_date NULLS LAST, created_at`
	args = append(args, limit, offset)
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ARStatement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetReceiptForUpdate(ctx context.Context, tenantID, id uuid.UUID) (ReceiptBill, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipt_bills WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	receipt, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReceiptBill{}, receiptNotFound(id)
	}
	return receipt, err
}

func (t *txRepository) GetStatements(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ARStatement, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+statementColumns+` FROM ar_statements WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ARStatement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (t *txRepository) UpdateStatementBalances(ctx context.Context, st ARStatement, received, pending decimal.Decimal, status StatementStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE ar_statements
SET received_amount=$1, pending_amount=$2, status=$3, version=version+1, updated_at=NOW()
WHERE id=$4 AND tenant_id=$5 AND version=$6`,
		received, pending, status, st.ID, st.TenantID, st.Version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) UpdateReceiptUsage(ctx context.Context, rec ReceiptBill, used decimal.Decimal, status ReceiptStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE receipt_bills
SET used_amount=$1, status=$2, version=version+1, updated_at=NOW()
WHERE id=$3 AND tenant_id=$4 AND version=$5`,
		used, status, rec.ID, rec.TenantID, rec.Version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) UpdateReceiptVerification(ctx context.Context, rec ReceiptBill, status ReceiptStatus, verifiedBy uuid.UUID, verifiedAt time.Time, remark string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE receipt_bills
SET status=$1, verified_by=$2, verified_at=$3, remark=$4, version=version+1, updated_at=NOW()
WHERE id=$5 AND tenant_id=$6 AND version=$7`,
		status, verifiedBy, verifiedAt, remark, rec.ID, rec.TenantID, rec.Version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, tenant_id, name, account_no, balance, version, created_at, updated_at
FROM finance_accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	var a accounts.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.AccountNo, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Account{}, finance.Errf(finance.KindNotFound, finance.CodeAccountNotFound, "finance account %s not found", id)
	}
	return a, err
}

func (t *txRepository) ApplyAccountMovement(ctx context.Context, account accounts.Account, newBalance decimal.Decimal, txn accounts.Transaction) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE finance_accounts
SET balance=$1, version=version+1, updated_at=NOW()
WHERE id=$2 AND tenant_id=$3 AND version=$4`,
		newBalance, account.ID, account.TenantID, account.Version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO account_transactions
(id, tenant_id, account_id, type, amount, balance_before, balance_after, related_type, related_id, description, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		txn.ID, txn.TenantID, txn.AccountID, txn.Type, txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		txn.RelatedType, txn.RelatedID, txn.Description, txn.CreatedBy, txn.CreatedAt)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *txRepository) AppendAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, t.tx, rec)
}
