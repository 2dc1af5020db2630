package settlement

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

type memorySettlementRepo struct {
	receipts   map[uuid.UUID]*ReceiptBill
	statements map[uuid.UUID]*ARStatement
	accounts   map[uuid.UUID]*accounts.Account
	txns       []accounts.Transaction
	audits     []shared.AuditRecord

	// forceStatementConflict simulates a competing writer bumping the
	// version between the read and the conditional write.
	forceStatementConflict uuid.UUID
}

func newMemorySettlementRepo() *memorySettlementRepo {
	return &memorySettlementRepo{
		receipts:   make(map[uuid.UUID]*ReceiptBill),
		statements: make(map[uuid.UUID]*ARStatement),
		accounts:   make(map[uuid.UUID]*accounts.Account),
	}
}

func (r *memorySettlementRepo) GetReceipt(ctx context.Context, tenantID, id uuid.UUID) (ReceiptBill, error) {
	rec, ok := r.receipts[id]
	if !ok || rec.TenantID != tenantID {
		return ReceiptBill{}, finance.Errf(finance.KindNotFound, finance.CodeReceiptNotFound, "receipt bill %s not found", id)
	}
	return *rec, nil
}

func (r *memorySettlementRepo) ListStatements(ctx context.Context, tenantID uuid.UUID, status StatementStatus, limit, offset int) ([]ARStatement, error) {
	var out []ARStatement
	for _, st := range r.statements {
		if st.TenantID != tenantID {
			continue
		}
		if status != "" && st.Status != status {
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

type memorySettlementTx struct {
	repo *memorySettlementRepo
}

// WithTx snapshots state and restores it when fn fails, mirroring a
// database rollback.
func (r *memorySettlementRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	receipts := make(map[uuid.UUID]*ReceiptBill, len(r.receipts))
	for k, v := range r.receipts {
		c := *v
		receipts[k] = &c
	}
	statements := make(map[uuid.UUID]*ARStatement, len(r.statements))
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

	if err := fn(ctx, &memorySettlementTx{repo: r}); err != nil {
		r.receipts, r.statements, r.accounts, r.txns, r.audits = receipts, statements, accts, txns, audits
		return err
	}
	return nil
}

func (t *memorySettlementTx) GetReceiptForUpdate(ctx context.Context, tenantID, id uuid.UUID) (ReceiptBill, error) {
	return t.repo.GetReceipt(ctx, tenantID, id)
}

func (t *memorySettlementTx) GetStatements(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ARStatement, error) {
	var out []ARStatement
	for _, id := range ids {
		if st, ok := t.repo.statements[id]; ok && st.TenantID == tenantID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (t *memorySettlementTx) UpdateStatementBalances(ctx context.Context, st ARStatement, received, pending decimal.Decimal, status StatementStatus) (bool, error) {
	stored, ok := t.repo.statements[st.ID]
	if !ok || stored.Version != st.Version || st.ID == t.repo.forceStatementConflict {
		return false, nil
	}
	stored.ReceivedAmount = received
	stored.PendingAmount = pending
	stored.Status = status
	stored.Version++
	return true, nil
}

func (t *memorySettlementTx) UpdateReceiptUsage(ctx context.Context, rec ReceiptBill, used decimal.Decimal, status ReceiptStatus) (bool, error) {
	stored, ok := t.repo.receipts[rec.ID]
	if !ok || stored.Version != rec.Version {
		return false, nil
	}
	stored.UsedAmount = used
	stored.Status = status
	stored.Version++
	return true, nil
}

func (t *memorySettlementTx) UpdateReceiptVerification(ctx context.Context, rec ReceiptBill, status ReceiptStatus, verifiedBy uuid.UUID, verifiedAt time.Time, remark string) (bool, error) {
	stored, ok := t.repo.receipts[rec.ID]
	if !ok || stored.Version != rec.Version {
		return false, nil
	}
	stored.Status = status
	stored.VerifiedBy = &verifiedBy
	stored.VerifiedAt = &verifiedAt
	stored.Remark = remark
	stored.Version++
	return true, nil
}

func (t *memorySettlementTx) GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error) {
	a, ok := t.repo.accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, finance.Errf(finance.KindNotFound, finance.CodeAccountNotFound, "finance account %s not found", id)
	}
	return *a, nil
}

func (t *memorySettlementTx) ApplyAccountMovement(ctx context.Context, account accounts.Account, newBalance decimal.Decimal, txn accounts.Transaction) (bool, error) {
	stored, ok := t.repo.accounts[account.ID]
	if !ok || stored.Version != account.Version {
		return false, nil
	}
	stored.Balance = newBalance
	stored.Version++
	t.repo.txns = append(t.repo.txns, txn)
	return true, nil
}

func (t *memorySettlementTx) AppendAudit(ctx context.Context, rec shared.AuditRecord) error {
	t.repo.audits = append(t.repo.audits, rec)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func settlementIdent() shared.Identity {
	return shared.Identity{TenantID: uuid.New(), UserID: uuid.New()}
}

func (r *memorySettlementRepo) addReceipt(tenantID uuid.UUID, total, used string, status ReceiptStatus) *ReceiptBill {
	rec := &ReceiptBill{
		ID:           uuid.New(),
		TenantID:     tenantID,
		BillNumber:   "REC-" + uuid.NewString()[:8],
		CustomerName: "Acme Ltd",
		TotalAmount:  dec(total),
		UsedAmount:   dec(used),
		Status:       status,
		Version:      1,
	}
	r.receipts[rec.ID] = rec
	return rec
}

func (r *memorySettlementRepo) addStatement(tenantID uuid.UUID, total, received string, status StatementStatus) *ARStatement {
	st := &ARStatement{
		ID:              uuid.New(),
		TenantID:        tenantID,
		StatementNumber: "ST-" + uuid.NewString()[:8],
		CustomerName:    "Acme Ltd",
		TotalAmount:     dec(total),
		ReceivedAmount:  dec(received),
		PendingAmount:   dec(total).Sub(dec(received)),
		Status:          status,
		Version:         1,
	}
	r.statements[st.ID] = st
	return st
}

func TestWriteOffAutomaticAllocation(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "1000.00", "500.00", ReceiptPartialUsed)
	first := repo.addStatement(caller.TenantID, "300.00", "0.00", StatementPendingRecon)
	second := repo.addStatement(caller.TenantID, "400.00", "0.00", StatementPendingRecon)

	result, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{first.ID, second.ID},
	})
	require.NoError(t, err)
	require.Equal(t, "500.00", result.TotalAllocated.StringFixed(2))
	require.Equal(t, ReceiptFullyUsed, result.ReceiptStatus)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, "300.00", result.Allocations[0].Amount.StringFixed(2))
	require.Equal(t, "200.00", result.Allocations[1].Amount.StringFixed(2))

	require.Equal(t, StatementPaid, repo.statements[first.ID].Status)
	require.Equal(t, "0.00", repo.statements[first.ID].PendingAmount.StringFixed(2))
	require.Equal(t, StatementPartial, repo.statements[second.ID].Status)
	require.Equal(t, "200.00", repo.statements[second.ID].PendingAmount.StringFixed(2))

	require.Equal(t, "1000.00", repo.receipts[receipt.ID].UsedAmount.StringFixed(2))
	require.Equal(t, ReceiptFullyUsed, repo.receipts[receipt.ID].Status)

	// one audit per statement plus one for the receipt
	require.Len(t, repo.audits, 3)
}

func TestWriteOffExplicitAllocation(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "1000.00", "0.00", ReceiptVerified)
	st := repo.addStatement(caller.TenantID, "600.00", "0.00", StatementPendingRecon)

	result, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:           receipt.ID,
		ExplicitAllocations: []Allocation{{StatementID: st.ID, Amount: dec("250.00")}},
	})
	require.NoError(t, err)
	require.Equal(t, "250.00", result.TotalAllocated.StringFixed(2))
	require.Equal(t, ReceiptPartialUsed, result.ReceiptStatus)
	require.Equal(t, StatementPartial, repo.statements[st.ID].Status)
	require.Equal(t, "350.00", repo.statements[st.ID].PendingAmount.StringFixed(2))
}

func TestWriteOffExplicitExceedsAvailable(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "100.00", "0.00", ReceiptVerified)
	st := repo.addStatement(caller.TenantID, "600.00", "0.00", StatementPendingRecon)

	_, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:           receipt.ID,
		ExplicitAllocations: []Allocation{{StatementID: st.ID, Amount: dec("150.00")}},
	})
	require.True(t, finance.HasCode(err, finance.CodeAllocationExceedsAvailable))
	require.Equal(t, "0.00", repo.statements[st.ID].ReceivedAmount.StringFixed(2))
}

func TestWriteOffReceiptNotUsable(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "100.00", "100.00", ReceiptFullyUsed)
	st := repo.addStatement(caller.TenantID, "600.00", "0.00", StatementPendingRecon)

	_, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{st.ID},
	})
	require.True(t, finance.HasCode(err, finance.CodeReceiptNotUsable))
}

func TestWriteOffNoAvailableBalance(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "100.00", "100.00", ReceiptPartialUsed)
	st := repo.addStatement(caller.TenantID, "600.00", "0.00", StatementPendingRecon)

	_, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{st.ID},
	})
	require.True(t, finance.HasCode(err, finance.CodeNoAvailableBalance))
}

func TestWriteOffStatementAlreadySettled(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "500.00", "0.00", ReceiptVerified)
	paid := repo.addStatement(caller.TenantID, "300.00", "300.00", StatementPaid)

	_, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{paid.ID},
	})
	require.True(t, finance.HasCode(err, finance.CodeStatementsAlreadySettled))
}

func TestWriteOffStatementMissing(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "500.00", "0.00", ReceiptVerified)

	_, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{uuid.New()},
	})
	require.True(t, finance.HasCode(err, finance.CodeStatementsNotFound))
}

func TestWriteOffConcurrentConflictRollsBack(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "1000.00", "0.00", ReceiptVerified)
	first := repo.addStatement(caller.TenantID, "300.00", "0.00", StatementPendingRecon)
	second := repo.addStatement(caller.TenantID, "400.00", "0.00", StatementPendingRecon)
	repo.forceStatementConflict = second.ID

	_, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{first.ID, second.ID},
	})
	require.True(t, finance.HasCode(err, finance.CodeConcurrentModification))

	// nothing sticks: the first statement's successful update was rolled back
	require.Equal(t, "0.00", repo.statements[first.ID].ReceivedAmount.StringFixed(2))
	require.Equal(t, StatementPendingRecon, repo.statements[first.ID].Status)
	require.Equal(t, "0.00", repo.receipts[receipt.ID].UsedAmount.StringFixed(2))
	require.Empty(t, repo.audits)
}

func TestWriteOffStopsWhenBalanceExhausted(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "300.00", "0.00", ReceiptVerified)
	first := repo.addStatement(caller.TenantID, "300.00", "0.00", StatementPendingRecon)
	second := repo.addStatement(caller.TenantID, "400.00", "0.00", StatementPendingRecon)

	result, err := svc.WriteOff(context.Background(), caller, WriteOffInput{
		ReceiptID:    receipt.ID,
		StatementIDs: []uuid.UUID{first.ID, second.ID},
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.Equal(t, StatementPendingRecon, repo.statements[second.ID].Status)
	require.Equal(t, ReceiptFullyUsed, repo.receipts[receipt.ID].Status)
}

func TestVerifyReceiptApprovedCreditsAccount(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	account := &accounts.Account{ID: uuid.New(), TenantID: caller.TenantID, Name: "Main", Balance: dec("100.00"), Version: 1}
	repo.accounts[account.ID] = account
	receipt := repo.addReceipt(caller.TenantID, "250.00", "0.00", ReceiptPending)
	receipt.AccountID = &account.ID

	var hooked []uuid.UUID
	svc.WithApprovedHook(func(ctx context.Context, ident shared.Identity, receiptID uuid.UUID) {
		hooked = append(hooked, receiptID)
	})

	updated, err := svc.VerifyReceipt(context.Background(), caller, receipt.ID, true, "looks good")
	require.NoError(t, err)
	require.Equal(t, ReceiptVerified, updated.Status)
	require.Equal(t, "350.00", repo.accounts[account.ID].Balance.StringFixed(2))
	require.Len(t, repo.txns, 1)
	require.Equal(t, accounts.TypeIncome, repo.txns[0].Type)
	require.Equal(t, "100.00", repo.txns[0].BalanceBefore.StringFixed(2))
	require.Equal(t, "350.00", repo.txns[0].BalanceAfter.StringFixed(2))
	require.Equal(t, accounts.RelatedReceiptBill, repo.txns[0].RelatedType)
	require.Equal(t, []uuid.UUID{receipt.ID}, hooked)
}

func TestVerifyReceiptRejectedMovesNoMoney(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	account := &accounts.Account{ID: uuid.New(), TenantID: caller.TenantID, Name: "Main", Balance: dec("100.00"), Version: 1}
	repo.accounts[account.ID] = account
	receipt := repo.addReceipt(caller.TenantID, "250.00", "0.00", ReceiptPending)
	receipt.AccountID = &account.ID

	hookCalled := false
	svc.WithApprovedHook(func(ctx context.Context, ident shared.Identity, receiptID uuid.UUID) {
		hookCalled = true
	})

	updated, err := svc.VerifyReceipt(context.Background(), caller, receipt.ID, false, "duplicate")
	require.NoError(t, err)
	require.Equal(t, ReceiptRejected, updated.Status)
	require.Equal(t, "100.00", repo.accounts[account.ID].Balance.StringFixed(2))
	require.Empty(t, repo.txns)
	require.False(t, hookCalled)
}

func TestVerifyReceiptWrongState(t *testing.T) {
	repo := newMemorySettlementRepo()
	svc := NewService(repo)
	caller := settlementIdent()

	receipt := repo.addReceipt(caller.TenantID, "250.00", "0.00", ReceiptVerified)
	_, err := svc.VerifyReceipt(context.Background(), caller, receipt.ID, true, "")
	require.True(t, finance.HasCode(err, finance.CodeReceiptNotUsable))
}
