package payables

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

// NewRepository returns the Postgres-backed payables repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const billColumns = `id, tenant_id, bill_number, payee_name, type, order_id, account_id, amount, status, remark,
verified_by, verified_at, paid_at, created_at, updated_at`

func scanBill(row pgx.Row) (PaymentBill, error) {
	var b PaymentBill
	err := row.Scan(&b.ID, &b.TenantID, &b.BillNumber, &b.PayeeName, &b.Type, &b.OrderID, &b.AccountID, &b.Amount, &b.Status, &b.Remark,
		&b.VerifiedBy, &b.VerifiedAt, &b.PaidAt, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func billNotFound(id uuid.UUID) error {
	return finance.Errf(finance.KindNotFound, finance.CodeBillNotFound, "payment bill %s not found", id)
}

func (r *repository) GetBill(ctx context.Context, tenantID, id uuid.UUID) (PaymentBill, error) {
	row := r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM payment_bills WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	bill, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentBill{}, billNotFound(id)
	}
	if err != nil {
		return PaymentBill{}, err
	}
	bill.Items, err = loadItems(ctx, r.db, bill.ID)
	return bill, err
}

func (r *repository) ListBills(ctx context.Context, tenantID uuid.UUID, status BillStatus, limit, offset int) ([]PaymentBill, error) {
	query := `SELECT ` + billColumns + ` FROM payment_bills WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += ` AND status=$2`
	}
	query += ` ORDER BY created_at DESC LIMIT $` + placeholder(&args, limit) + ` OFFSET $` + placeholder(&args, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentBill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bill)
	}
	return out, rows.Err()
}

func (r *repository) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT id, tenant_id, name, account_no, balance, version, created_at, updated_at
FROM finance_accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id), id)
}

func (r *repository) ListAccountTransactions(ctx context.Context, tenantID, accountID uuid.UUID, limit, offset int) ([]accounts.Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, account_id, type, amount, balance_before, balance_after,
related_type, related_id, description, created_by, created_at
FROM account_transactions WHERE tenant_id=$1 AND account_id=$2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		tenantID, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accounts.Transaction
	for rows.Next() {
		var t accounts.Transaction
		if err := rows.Scan(&t.ID, &t.TenantID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&t.RelatedType, &t.RelatedID, &t.Description, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
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

func (t *txRepository) GetBillForUpdate(ctx context.Context, tenantID, id uuid.UUID) (PaymentBill, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM payment_bills WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	bill, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentBill{}, billNotFound(id)
	}
	if err != nil {
		return PaymentBill{}, err
	}
	bill.Items, err = loadItems(ctx, t.tx, bill.ID)
	return bill, err
}

func (t *txRepository) UpdateBillStatus(ctx context.Context, bill PaymentBill, status BillStatus, remark string, verifiedBy uuid.UUID, verifiedAt time.Time, paidAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_bills
SET status=$1, remark=$2, verified_by=$3, verified_at=$4, paid_at=$5, updated_at=NOW()
WHERE id=$6 AND tenant_id=$7`,
		status, remark, verifiedBy, verifiedAt, paidAt, bill.ID, bill.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billNotFound(bill.ID)
	}
	return nil
}

func (t *txRepository) GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT id, tenant_id, name, account_no, balance, version, created_at, updated_at
FROM finance_accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id), id)
}

func (t *txRepository) ApplyAccountMovement(ctx context.Context, account accounts.Account, newBalance decimal.Decimal, txn accounts.Transaction) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE finance_accounts
SET balance=$1, version=version+1, updated_at=NOW()
WHERE id=$2 AND tenant_id=$3 AND version=$4 AND balance=$5`,
		newBalance, account.ID, account.TenantID, account.Version, account.Balance)
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

func (t *txRepository) GetStatement(ctx context.Context, tenantID uuid.UUID, kind StatementKind, id uuid.UUID) (APStatement, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, tenant_id, kind, statement_number, payee_name, total_amount, paid_amount,
pending_amount, status, version, created_at, updated_at
FROM ap_statements WHERE tenant_id=$1 AND kind=$2 AND id=$3 FOR UPDATE`, tenantID, kind, id)
	var s APStatement
	err := row.Scan(&s.ID, &s.TenantID, &s.Kind, &s.StatementNumber, &s.PayeeName, &s.TotalAmount, &s.PaidAmount,
		&s.PendingAmount, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APStatement{}, finance.Errf(finance.KindNotFound, finance.CodeStatementsNotFound, "payable statement %s not found", id)
	}
	return s, err
}

func (t *txRepository) UpdateStatementBalances(ctx context.Context, st APStatement, paid, pending decimal.Decimal, status StatementStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE ap_statements
SET paid_amount=$1, pending_amount=$2, status=$3, version=version+1, updated_at=NOW()
WHERE id=$4 AND tenant_id=$5 AND version=$6`,
		paid, pending, status, st.ID, st.TenantID, st.Version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) AppendAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, t.tx, rec)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q queryer, billID uuid.UUID) ([]PaymentBillItem, error) {
	rows, err := q.Query(ctx, `SELECT id, bill_id, statement_kind, statement_id, amount, description
FROM payment_bill_items WHERE bill_id=$1 ORDER BY created_at`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentBillItem
	for rows.Next() {
		var item PaymentBillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.StatementKind, &item.StatementID, &item.Amount, &item.Description); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row, id uuid.UUID) (accounts.Account, error) {
	var a accounts.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.AccountNo, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Account{}, finance.Errf(finance.KindNotFound, finance.CodeAccountNotFound, "finance account %s not found", id)
	}
	return a, err
}

func placeholder(args *[]any, value any) string {
	*args = append(*args, value)
	return strconv.Itoa(len(*args))
}
