package payables

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/accounts"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryPayablesRepo struct {
	bills      map[uuid.UUID]*PaymentBill
	statements map[uuid.UUID]*APStatement
	accounts   map[uuid.UUID]*accounts.Account
	txns       []accounts.Transaction
	audits     []shared.AuditRecord

	forceAccountConflict bool
}

func newMemoryPayablesRepo() *memoryPayablesRepo {
	return &memoryPayablesRepo{
		bills:      make(map[uuid.UUID]*PaymentBill),
		statements: make(map[uuid.UUID]*APStatement),
		accounts:   make(map[uuid.UUID]*accounts.Account),
	}
}

func (r *memoryPayablesRepo) GetBill(ctx context.Context, tenantID, id uuid.UUID) (PaymentBill, error) {
	b, ok := r.bills[id]
	if !ok || b.TenantID != tenantID {
		return PaymentBill{}, finance.Errf(finance.KindNotFound, finance.CodeBillNotFound, "payment bill %s not found", id)
	}
	return *b, nil
}

func (r *memoryPayablesRepo) ListBills(ctx context.Context, tenantID uuid.UUID, status BillStatus, limit, offset int) ([]PaymentBill, error) {
	var out []PaymentBill
	for _, b := range r.bills {
		if b.TenantID != tenantID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryPayablesRepo) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, finance.Errf(finance.KindNotFound, finance.CodeAccountNotFound, "finance account %s not found", id)
	}
	return *a, nil
}

func (r *memoryPayablesRepo) ListAccountTransactions(ctx context.Context, tenantID, accountID uuid.UUID, limit, offset int) ([]accounts.Transaction, error) {
	var out []accounts.Transaction
	for _, t := range r.txns {
		if t.TenantID == tenantID && t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryPayablesRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	bills := make(map[uuid.UUID]*PaymentBill, len(r.bills))
	for k, v := range r.bills {
		c := *v
		bills[k] = &c
	}
	statements := make(map[uuid.UUID]*APStatement, len(r.statements))
	for k, v := range r.statements {
		c := *v
		statements[k] = &c
	}
	accts := make(map[uuid.UUID]*accounts.Account, len(r.accounts))
	for k, v := range r.accounts {
		c := *v
		accts[k] = &c
	}
	txns := append([]accounts.Transaction(nil), r.txns...)
	audits := append([]shared.AuditRecord(nil), r.audits...)

	if err := fn(ctx, &memoryPayablesTx{repo: r}); err != nil {
		r.bills, r.statements, r.accounts, r.txns, r.audits = bills, statements, accts, txns, audits
		return err
	}
	return nil
}

type memoryPayablesTx struct {
	repo *memoryPayablesRepo
}

func (t *memoryPayablesTx) GetBillForUpdate(ctx context.Context, tenantID, id uuid.UUID) (PaymentBill, error) {
	return t.repo.GetBill(ctx, tenantID, id)
}

func (t *memoryPayablesTx) UpdateBillStatus(ctx context.Context, bill PaymentBill, status BillStatus, remark string, verifiedBy uuid.UUID, verifiedAt time.Time, paidAt *time.Time) error {
	stored, ok := t.repo.bills[bill.ID]
	if !ok {
		return finance.Errf(finance.KindNotFound, finance.CodeBillNotFound, "payment bill %s not found", bill.ID)
	}
	stored.Status = status
	stored.Remark = remark
	stored.VerifiedBy = &verifiedBy
	stored.VerifiedAt = &verifiedAt
	stored.PaidAt = paidAt
	return nil
}

func (t *memoryPayablesTx) GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error) {
	return t.repo.GetAccount(ctx, tenantID, id)
}

func (t *memoryPayablesTx) ApplyAccountMovement(ctx context.Context, account accounts.Account, newBalance decimal.Decimal, txn accounts.Transaction) (bool, error) {
	if t.repo.forceAccountConflict {
		return false, nil
	}
	stored, ok := t.repo.accounts[account.ID]
	if !ok || stored.Version != account.Version {
		return false, nil
	}
	stored.Balance = newBalance
	stored.Version++
	t.repo.txns = append(t.repo.txns, txn)
	return true, nil
}

func (t *memoryPayablesTx) GetStatement(ctx context.Context, tenantID uuid.UUID, kind StatementKind, id uuid.UUID) (APStatement, error) {
	st, ok := t.repo.statements[id]
	if !ok || st.TenantID != tenantID || st.Kind != kind {
		return APStatement{}, finance.Errf(finance.KindNotFound, finance.CodeStatementsNotFound, "payable statement %s not found", id)
	}
	return *st, nil
}

func (t *memoryPayablesTx) UpdateStatementBalances(ctx context.Context, st APStatement, paid, pending decimal.Decimal, status StatementStatus) (bool, error) {
	stored, ok := t.repo.statements[st.ID]
	if !ok || stored.Version != st.Version {
		return false, nil
	}
	stored.PaidAmount = paid
	stored.PendingAmount = pending
	stored.Status = status
	stored.Version++
	return true, nil
}

func (t *memoryPayablesTx) AppendAudit(ctx context.Context, rec shared.AuditRecord) error {
	t.repo.audits = append(t.repo.audits, rec)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func payablesIdent() shared.Identity {
	return shared.Identity{TenantID: uuid.New(), UserID: uuid.New()}
}

func (r *memoryPayablesRepo) addAccount(tenantID uuid.UUID, balance string) *accounts.Account {
	a := &accounts.Account{ID: uuid.New(), TenantID: tenantID, Name: "Operating", Balance: dec(balance), Version: 1}
	r.accounts[a.ID] = a
	return a
}

func (r *memoryPayablesRepo) addBill(tenantID, accountID uuid.UUID, amount string, billType BillType, status BillStatus) *PaymentBill {
	b := &PaymentBill{
		ID:         uuid.New(),
		TenantID:   tenantID,
		BillNumber: "PAY-" + uuid.NewString()[:8],
		PayeeName:  "Steel Supply Co",
		Type:       billType,
		AccountID:  accountID,
		Amount:     dec(amount),
		Status:     status,
	}
	r.bills[b.ID] = b
	return b
}

func (r *memoryPayablesRepo) addStatement(tenantID uuid.UUID, kind StatementKind, total, paid string) *APStatement {
	st := &APStatement{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Kind:            kind,
		StatementNumber: "APS-" + uuid.NewString()[:8],
		PayeeName:       "Steel Supply Co",
		TotalAmount:     dec(total),
		PaidAmount:      dec(paid),
		PendingAmount:   dec(total).Sub(dec(paid)),
		Status:          StatementPending,
		Version:         1,
	}
	r.statements[st.ID] = st
	return st
}

func TestVerifyPaysBillAndDebitsAccount(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	st := repo.addStatement(caller.TenantID, KindSupplier, "200.00", "0.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeSupplierPayment, BillPending)
	bill.Items = []PaymentBillItem{{
		ID:            uuid.New(),
		BillID:        bill.ID,
		StatementKind: KindSupplier,
		StatementID:   &st.ID,
		Amount:        dec("200.00"),
	}}

	updated, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "ok to pay")
	require.NoError(t, err)
	require.Equal(t, BillPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)

	require.Equal(t, "800.00", repo.accounts[account.ID].Balance.StringFixed(2))
	require.Len(t, repo.txns, 1)
	require.Equal(t, accounts.TypeExpense, repo.txns[0].Type)
	require.Equal(t, "1000.00", repo.txns[0].BalanceBefore.StringFixed(2))
	require.Equal(t, "800.00", repo.txns[0].BalanceAfter.StringFixed(2))
	require.Equal(t, accounts.RelatedPaymentBill, repo.txns[0].RelatedType)
	require.Equal(t, bill.ID, repo.txns[0].RelatedID)

	require.Equal(t, StatementCompleted, repo.statements[st.ID].Status)
	require.Equal(t, "0.00", repo.statements[st.ID].PendingAmount.StringFixed(2))

	// bill status, account debit, statement settle
	require.Len(t, repo.audits, 3)
}

func TestVerifyInsufficientBalanceRollsBack(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "150.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeSupplierPayment, BillPending)

	_, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "")
	require.True(t, finance.HasCode(err, finance.CodeInsufficientBalance))

	// nothing sticks: bill still pending, balance untouched, no ledger row
	require.Equal(t, BillPending, repo.bills[bill.ID].Status)
	require.Equal(t, "150.00", repo.accounts[account.ID].Balance.StringFixed(2))
	require.Empty(t, repo.txns)
	require.Empty(t, repo.audits)
}

func TestVerifyRejectedMovesNoMoney(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeSupplierPayment, BillApproved)

	updated, err := svc.Verify(context.Background(), caller, bill.ID, DecisionRejected, "wrong payee")
	require.NoError(t, err)
	require.Equal(t, BillRejected, updated.Status)
	require.Equal(t, "wrong payee", updated.Remark)
	require.Equal(t, "1000.00", repo.accounts[account.ID].Balance.StringFixed(2))
	require.Empty(t, repo.txns)
}

func TestVerifyNotAuditable(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeSupplierPayment, BillPaid)

	_, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "")
	require.True(t, finance.HasCode(err, finance.CodeNotAuditable))
}

func TestVerifyMissingBill(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)

	_, err := svc.Verify(context.Background(), payablesIdent(), uuid.New(), DecisionVerified, "")
	require.True(t, finance.HasCode(err, finance.CodeBillNotFound))
}

func TestVerifyBalanceConflict(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeSupplierPayment, BillPending)
	repo.forceAccountConflict = true

	_, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "")
	require.True(t, finance.HasCode(err, finance.CodeConcurrentModification))
	require.Equal(t, BillPending, repo.bills[bill.ID].Status)
}

func TestVerifyPartialStatementCascade(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	st := repo.addStatement(caller.TenantID, KindLabor, "500.00", "0.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeLaborPayment, BillApproved)
	bill.Items = []PaymentBillItem{{
		ID:            uuid.New(),
		BillID:        bill.ID,
		StatementKind: KindLabor,
		StatementID:   &st.ID,
		Amount:        dec("200.00"),
	}}

	_, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "")
	require.NoError(t, err)
	require.Equal(t, StatementPartial, repo.statements[st.ID].Status)
	require.Equal(t, "300.00", repo.statements[st.ID].PendingAmount.StringFixed(2))
	require.Equal(t, "200.00", repo.statements[st.ID].PaidAmount.StringFixed(2))
}

type recordingReverser struct {
	orders []uuid.UUID
}

func (r *recordingReverser) ReverseCommission(ctx context.Context, ident shared.Identity, orderID uuid.UUID) error {
	r.orders = append(r.orders, orderID)
	return nil
}

func TestVerifyRefundTriggersClawback(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	orderID := uuid.New()
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeRefund, BillPending)
	bill.OrderID = &orderID

	reverser := &recordingReverser{}
	svc.WithCommissionReverser(reverser)

	var paid []uuid.UUID
	svc.WithPaidHook(func(ctx context.Context, ident shared.Identity, billID uuid.UUID) {
		paid = append(paid, billID)
	})

	_, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "customer refund")
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{orderID}, reverser.orders)
	require.Equal(t, []uuid.UUID{bill.ID}, paid)
}

func TestVerifyNonRefundSkipsClawback(t *testing.T) {
	repo := newMemoryPayablesRepo()
	svc := NewService(repo)
	caller := payablesIdent()

	account := repo.addAccount(caller.TenantID, "1000.00")
	bill := repo.addBill(caller.TenantID, account.ID, "200.00", TypeSupplierPayment, BillPending)

	reverser := &recordingReverser{}
	svc.WithCommissionReverser(reverser)

	_, err := svc.Verify(context.Background(), caller, bill.ID, DecisionVerified, "")
	require.NoError(t, err)
	require.Empty(t, reverser.orders)
}
