package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/accounts"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository is the settlement persistence port.
type Repository interface {
	GetReceipt(ctx context.Context, tenantID, id uuid.UUID) (ReceiptBill, error)
	ListStatements(ctx context.Context, tenantID uuid.UUID, status StatementStatus, limit, offset int) ([]ARStatement, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transaction-scoped surface of the settlement store.
// Statement and receipt updates are conditional on the version read before
// the write; zero affected rows is a concurrency failure.
type TxRepository interface {
	GetReceiptForUpdate(ctx context.Context, tenantID, id uuid.UUID) (ReceiptBill, error)
	GetStatements(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ARStatement, error)
	UpdateStatementBalances(ctx context.Context, st ARStatement, received, pending decimal.Decimal, status StatementStatus) (bool, error)
	UpdateReceiptUsage(ctx context.Context, rec ReceiptBill, used decimal.Decimal, status ReceiptStatus) (bool, error)
	UpdateReceiptVerification(ctx context.Context, rec ReceiptBill, status ReceiptStatus, verifiedBy uuid.UUID, verifiedAt time.Time, remark string) (bool, error)
	GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error)
	ApplyAccountMovement(ctx context.Context, account accounts.Account, newBalance decimal.Decimal, txn accounts.Transaction) (bool, error)
	AppendAudit(ctx context.Context, rec shared.AuditRecord) error
}

// ReceiptApprovedHook runs after a receipt verification commits. The journal
// generator hangs off this to book the income voucher.
type ReceiptApprovedHook func(ctx context.Context, ident shared.Identity, receiptID uuid.UUID)

// Service implements write-off allocation and receipt verification.
type Service struct {
	repo       Repository
	onApproved ReceiptApprovedHook
	now        func() time.Time
}

// NewService constructs the settlement service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithApprovedHook registers the post-commit receipt approval callback.
func (s *Service) WithApprovedHook(hook ReceiptApprovedHook) {
	s.onApproved = hook
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetReceipt loads one receipt bill.
func (s *Service) GetReceipt(ctx context.Context, ident shared.Identity, id uuid.UUID) (ReceiptBill, error) {
	return s.repo.GetReceipt(ctx, ident.TenantID, id)
}

// ListOutstandingStatements returns statements still awaiting reconciliation.
func (s *Service) ListOutstandingStatements(ctx context.Context, ident shared.Identity, status StatementStatus, limit, offset int) ([]ARStatement, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.repo.ListStatements(ctx, ident.TenantID, status, limit, offset)
}

// WriteOffInput names the receipt and target statements. ExplicitAllocations,
// when present, pins the amount applied per statement; otherwise allocation
// is greedy in the order StatementIDs is given. Callers wanting oldest-first
// must pre-sort StatementIDs by due date.
type WriteOffInput struct {
	ReceiptID           uuid.UUID
	StatementIDs        []uuid.UUID
	ExplicitAllocations []Allocation
	Remark              string
}

// WriteOff applies a receipt's available balance against receivable
// statements. All statement updates and the receipt update commit in one
// transaction; a version conflict on any row aborts the whole allocation.
func (s *Service) WriteOff(ctx context.Context, ident shared.Identity, in WriteOffInput) (WriteOffResult, error) {
	if len(in.StatementIDs) == 0 && len(in.ExplicitAllocations) == 0 {
		return WriteOffResult{}, finance.Errf(finance.KindValidation, finance.CodeStatementsNotFound,
			"write-off requires at least one target statement")
	}

	var result WriteOffResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, ident.TenantID, in.ReceiptID)
		if err != nil {
			return err
		}
		if receipt.Status != ReceiptVerified && receipt.Status != ReceiptPartialUsed {
			return finance.Errf(finance.KindStateConflict, finance.CodeReceiptNotUsable,
				"receipt %s cannot fund a write-off in status %s", receipt.BillNumber, receipt.Status)
		}
		available := receipt.Available()
		if !available.IsPositive() {
			return finance.Errf(finance.KindBusinessRule, finance.CodeNoAvailableBalance,
				"receipt %s has no available balance", receipt.BillNumber)
		}

		ids := in.StatementIDs
		if len(in.ExplicitAllocations) > 0 {
			ids = nil
			for _, alloc := range in.ExplicitAllocations {
				ids = append(ids, alloc.StatementID)
			}
		}
		statements, err := tx.GetStatements(ctx, ident.TenantID, ids)
		if err != nil {
			return err
		}
		if len(statements) != len(ids) {
			return finance.Errf(finance.KindNotFound, finance.CodeStatementsNotFound,
				"%d of %d statements not found", len(ids)-len(statements), len(ids))
		}
		byID := make(map[uuid.UUID]ARStatement, len(statements))
		var settled []string
		for _, st := range statements {
			byID[st.ID] = st
			if terminalStatementStatus(st.Status) {
				settled = append(settled, st.StatementNumber)
			}
		}
		if len(settled) > 0 {
			return finance.Errf(finance.KindStateConflict, finance.CodeStatementsAlreadySettled,
				"statements already settled: %s", strings.Join(settled, ", "))
		}

		allocations, err := computeAllocations(in, byID, ids, available)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, alloc := range allocations {
			st := byID[alloc.StatementID]
			newReceived := st.ReceivedAmount.Add(alloc.Amount)
			newPending := st.TotalAmount.Sub(newReceived)
			newStatus := StatementPartial
			if !newPending.IsPositive() {
				newStatus = StatementPaid
			}
			persistedPending := newPending
			if persistedPending.IsNegative() {
				persistedPending = decimal.Zero
			}
			ok, err := tx.UpdateStatementBalances(ctx, st, newReceived, persistedPending, newStatus)
			if err != nil {
				return err
			}
			if !ok {
				return finance.Errf(finance.KindConcurrency, finance.CodeConcurrentModification,
					"statement %s was modified concurrently", st.StatementNumber)
			}
			if err := tx.AppendAudit(ctx, shared.AuditRecord{
				TenantID:  ident.TenantID,
				UserID:    ident.UserID,
				Action:    "WRITE_OFF",
				TableName: "ar_statements",
				RecordID:  st.ID.String(),
				OldValues: map[string]any{"received_amount": st.ReceivedAmount, "pending_amount": st.PendingAmount, "status": string(st.Status)},
				NewValues: map[string]any{"received_amount": newReceived, "pending_amount": persistedPending, "status": string(newStatus)},
				Details:   map[string]any{"receipt_id": receipt.ID.String(), "allocated": alloc.Amount, "remark": in.Remark},
			}); err != nil {
				return err
			}
			total = total.Add(alloc.Amount)
		}

		usedAfter := receipt.UsedAmount.Add(total)
		receiptStatus := ReceiptPartialUsed
		if usedAfter.GreaterThanOrEqual(receipt.TotalAmount) {
			receiptStatus = ReceiptFullyUsed
		}
		ok, err := tx.UpdateReceiptUsage(ctx, receipt, usedAfter, receiptStatus)
		if err != nil {
			return err
		}
		if !ok {
			return finance.Errf(finance.KindConcurrency, finance.CodeConcurrentModification,
				"receipt %s was modified concurrently", receipt.BillNumber)
		}
		if err := tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "WRITE_OFF",
			TableName: "receipt_bills",
			RecordID:  receipt.ID.String(),
			OldValues: map[string]any{"used_amount": receipt.UsedAmount, "status": string(receipt.Status)},
			NewValues: map[string]any{"used_amount": usedAfter, "status": string(receiptStatus)},
			Details:   map[string]any{"allocated_total": total, "remark": in.Remark},
		}); err != nil {
			return err
		}

		result = WriteOffResult{
			ReceiptID:      receipt.ID,
			Allocations:    allocations,
			TotalAllocated: total,
			ReceiptStatus:  receiptStatus,
		}
		return nil
	})
	if err != nil {
		return WriteOffResult{}, err
	}
	return result, nil
}

// computeAllocations resolves the per-statement amounts for a write-off.
// Explicit allocations are validated against the available balance; the
// automatic mode walks statements in input order, allocating
// min(pending, remaining) with no backtracking.
func computeAllocations(in WriteOffInput, byID map[uuid.UUID]ARStatement, order []uuid.UUID, available decimal.Decimal) ([]Allocation, error) {
	if len(in.ExplicitAllocations) > 0 {
		sum := decimal.Zero
		for _, alloc := range in.ExplicitAllocations {
			if !alloc.Amount.IsPositive() {
				return nil, finance.Errf(finance.KindValidation, finance.CodeAllocationExceedsAvailable,
					"allocation for statement %s must be positive", alloc.StatementID)
			}
			sum = sum.Add(alloc.Amount)
		}
		if sum.GreaterThan(available) {
			return nil, finance.Errf(finance.KindBusinessRule, finance.CodeAllocationExceedsAvailable,
				"allocations total %s exceeds available balance %s", sum.StringFixed(2), available.StringFixed(2))
		}
		return in.ExplicitAllocations, nil
	}

	remaining := available
	var allocations []Allocation
	for _, id := range order {
		if !remaining.IsPositive() {
			break
		}
		st := byID[id]
		amount := decimal.Min(st.PendingAmount, remaining)
		if !amount.IsPositive() {
			continue
		}
		allocations = append(allocations, Allocation{StatementID: id, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	if len(allocations) == 0 {
		return nil, finance.Errf(finance.KindBusinessRule, finance.CodeNoAvailableBalance,
			"no statement has a pending balance to allocate against")
	}
	return allocations, nil
}

// VerifyReceipt approves or rejects a pending receipt bill. Approval credits
// the receiving finance account inside the same transaction and, after
// commit, triggers the income voucher hook.
func (s *Service) VerifyReceipt(ctx context.Context, ident shared.Identity, receiptID uuid.UUID, approve bool, remark string) (ReceiptBill, error) {
	var updated ReceiptBill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, ident.TenantID, receiptID)
		if err != nil {
			return err
		}
		if receipt.Status != ReceiptPending {
			return finance.Errf(finance.KindStateConflict, finance.CodeReceiptNotUsable,
				"receipt %s cannot be verified in status %s", receipt.BillNumber, receipt.Status)
		}

		now := s.now()
		status := ReceiptRejected
		if approve {
			status = ReceiptVerified
		}
		ok, err := tx.UpdateReceiptVerification(ctx, receipt, status, ident.UserID, now, remark)
		if err != nil {
			return err
		}
		if !ok {
			return finance.Errf(finance.KindConcurrency, finance.CodeConcurrentModification,
				"receipt %s was modified concurrently", receipt.BillNumber)
		}

		if approve && receipt.AccountID != nil {
			account, err := tx.GetAccountForUpdate(ctx, ident.TenantID, *receipt.AccountID)
			if err != nil {
				return err
			}
			txn := accounts.NewIncome(account, receipt.TotalAmount, accounts.RelatedReceiptBill,
				receipt.ID, ident.UserID, fmt.Sprintf("Receipt %s from %s", receipt.BillNumber, receipt.CustomerName), now)
			ok, err := tx.ApplyAccountMovement(ctx, account, txn.BalanceAfter, txn)
			if err != nil {
				return err
			}
			if !ok {
				return finance.Errf(finance.KindConcurrency, finance.CodeConcurrentModification,
					"account %s balance changed concurrently, retry", account.Name)
			}
			if err := tx.AppendAudit(ctx, shared.AuditRecord{
				TenantID:  ident.TenantID,
				UserID:    ident.UserID,
				Action:    "ACCOUNT_CREDIT",
				TableName: "finance_accounts",
				RecordID:  account.ID.String(),
				OldValues: map[string]any{"balance": txn.BalanceBefore},
				NewValues: map[string]any{"balance": txn.BalanceAfter},
				Details:   map[string]any{"receipt_id": receipt.ID.String()},
			}); err != nil {
				return err
			}
		}

		if err := tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "VERIFY",
			TableName: "receipt_bills",
			RecordID:  receipt.ID.String(),
			OldValues: map[string]any{"status": string(receipt.Status)},
			NewValues: map[string]any{"status": string(status)},
			Details:   map[string]any{"remark": remark},
		}); err != nil {
			return err
		}

		updated = receipt
		updated.Status = status
		updated.VerifiedBy = &ident.UserID
		updated.VerifiedAt = &now
		updated.Remark = remark
		return nil
	})
	if err != nil {
		return ReceiptBill{}, err
	}
	if updated.Status == ReceiptVerified && s.onApproved != nil {
		s.onApproved(ctx, ident, updated.ID)
	}
	return updated, nil
}
