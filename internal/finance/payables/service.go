package payables

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/accounts"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository is the payables persistence port.
type Repository interface {
	GetBill(ctx context.Context, tenantID, id uuid.UUID) (PaymentBill, error)
	ListBills(ctx context.Context, tenantID uuid.UUID, status BillStatus, limit, offset int) ([]PaymentBill, error)
	GetAccount(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error)
	ListAccountTransactions(ctx context.Context, tenantID, accountID uuid.UUID, limit, offset int) ([]accounts.Transaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transaction-scoped surface of the payables store.
type TxRepository interface {
	GetBillForUpdate(ctx context.Context, tenantID, id uuid.UUID) (PaymentBill, error)
	UpdateBillStatus(ctx context.Context, bill PaymentBill, status BillStatus, remark string, verifiedBy uuid.UUID, verifiedAt time.Time, paidAt *time.Time) error
	GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (accounts.Account, error)
	ApplyAccountMovement(ctx context.Context, account accounts.Account, newBalance decimal.Decimal, txn accounts.Transaction) (bool, error)
	GetStatement(ctx context.Context, tenantID uuid.UUID, kind StatementKind, id uuid.UUID) (APStatement, error)
	UpdateStatementBalances(ctx context.Context, st APStatement, paid, pending decimal.Decimal, status StatementStatus) (bool, error)
	AppendAudit(ctx context.Context, rec shared.AuditRecord) error
}

// CommissionReverser claws back sales commission when a refund bill pays
// out. Invoked synchronously after the paying transaction commits; the
// implementation decides whether to fan out to a background job.
type CommissionReverser interface {
	ReverseCommission(ctx context.Context, ident shared.Identity, orderID uuid.UUID) error
}

// BillPaidHook runs after a bill payment commits. The journal generator
// hangs off this to book the expense voucher.
type BillPaidHook func(ctx context.Context, ident shared.Identity, billID uuid.UUID)

// Service implements payment bill verification and account ledger reads.
type Service struct {
	repo       Repository
	commission CommissionReverser
	onPaid     BillPaidHook
	now        func() time.Time
}

// NewService constructs the payables service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithCommissionReverser registers the refund clawback collaborator.
func (s *Service) WithCommissionReverser(reverser CommissionReverser) {
	s.commission = reverser
}

// WithPaidHook registers the post-commit payment callback.
func (s *Service) WithPaidHook(hook BillPaidHook) {
	s.onPaid = hook
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetBill loads one payment bill with its items.
func (s *Service) GetBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (PaymentBill, error) {
	return s.repo.GetBill(ctx, ident.TenantID, id)
}

// ListBills returns bills filtered by status.
func (s *Service) ListBills(ctx context.Context, ident shared.Identity, status BillStatus, limit, offset int) ([]PaymentBill, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.repo.ListBills(ctx, ident.TenantID, status, limit, offset)
}

// GetAccount loads one finance account.
func (s *Service) GetAccount(ctx context.Context, ident shared.Identity, id uuid.UUID) (accounts.Account, error) {
	return s.repo.GetAccount(ctx, ident.TenantID, id)
}

// ListAccountTransactions returns the movement history of an account,
// newest first.
func (s *Service) ListAccountTransactions(ctx context.Context, ident shared.Identity, accountID uuid.UUID, limit, offset int) ([]accounts.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.repo.ListAccountTransactions(ctx, ident.TenantID, accountID, limit, offset)
}

// Verify rules on a payment bill. REJECTED stores the remark and moves no
// money. VERIFIED pays the bill: the funding account is decremented under
// a conditional write, an expense transaction is recorded, and every
// statement tagged by the bill's items is cascaded. All of it commits in
// one transaction or not at all.
func (s *Service) Verify(ctx context.Context, ident shared.Identity, billID uuid.UUID, decision Decision, remark string) (PaymentBill, error) {
	if decision != DecisionVerified && decision != DecisionRejected {
		return PaymentBill{}, finance.Errf(finance.KindValidation, finance.CodeNotAuditable,
			"unknown verification decision %q", decision)
	}

	var updated PaymentBill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, ident.TenantID, billID)
		if err != nil {
			return err
		}
		if bill.Status != BillPending && bill.Status != BillApproved {
			return finance.Errf(finance.KindStateConflict, finance.CodeNotAuditable,
				"payment bill %s cannot be verified in status %s", bill.BillNumber, bill.Status)
		}

		now := s.now()
		if decision == DecisionRejected {
			if err := tx.UpdateBillStatus(ctx, bill, BillRejected, remark, ident.UserID, now, nil); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, shared.AuditRecord{
				TenantID:  ident.TenantID,
				UserID:    ident.UserID,
				Action:    "VERIFY",
				TableName: "payment_bills",
				RecordID:  bill.ID.String(),
				OldValues: map[string]any{"status": string(bill.Status)},
				NewValues: map[string]any{"status": string(BillRejected)},
				Details:   map[string]any{"remark": remark},
			}); err != nil {
				return err
			}
			updated = bill
			updated.Status = BillRejected
			updated.Remark = remark
			return nil
		}

		if err := tx.UpdateBillStatus(ctx, bill, BillPaid, remark, ident.UserID, now, &now); err != nil {
			return err
		}

		account, err := tx.GetAccountForUpdate(ctx, ident.TenantID, bill.AccountID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(bill.Amount) {
			return finance.Errf(finance.KindBusinessRule, finance.CodeInsufficientBalance,
				"account %s balance %s is less than required %s",
				account.Name, account.Balance.StringFixed(2), bill.Amount.StringFixed(2))
		}
		txn := accounts.NewExpense(account, bill.Amount, accounts.RelatedPaymentBill,
			bill.ID, ident.UserID, fmt.Sprintf("Payment %s to %s", bill.BillNumber, bill.PayeeName), now)
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
			Action:    "VERIFY",
			TableName: "payment_bills",
			RecordID:  bill.ID.String(),
			OldValues: map[string]any{"status": string(bill.Status)},
			NewValues: map[string]any{"status": string(BillPaid)},
			Details:   map[string]any{"remark": remark},
		}); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "ACCOUNT_DEBIT",
			TableName: "finance_accounts",
			RecordID:  account.ID.String(),
			OldValues: map[string]any{"balance": txn.BalanceBefore},
			NewValues: map[string]any{"balance": txn.BalanceAfter},
			Details:   map[string]any{"payment_bill_id": bill.ID.String()},
		}); err != nil {
			return err
		}

		for _, item := range bill.Items {
			if item.StatementID == nil {
				continue
			}
			if err := s.cascadeStatement(ctx, tx, ident, item); err != nil {
				return err
			}
		}

		updated = bill
		updated.Status = BillPaid
		updated.Remark = remark
		updated.VerifiedBy = &ident.UserID
		updated.VerifiedAt = &now
		updated.PaidAt = &now
		return nil
	})
	if err != nil {
		return PaymentBill{}, err
	}

	if updated.Status == BillPaid {
		if updated.Type == TypeRefund && updated.OrderID != nil && s.commission != nil {
			if err := s.commission.ReverseCommission(ctx, ident, *updated.OrderID); err != nil {
				return updated, err
			}
		}
		if s.onPaid != nil {
			s.onPaid(ctx, ident, updated.ID)
		}
	}
	return updated, nil
}

// cascadeStatement applies one bill item against its payable statement.
func (s *Service) cascadeStatement(ctx context.Context, tx TxRepository, ident shared.Identity, item PaymentBillItem) error {
	st, err := tx.GetStatement(ctx, ident.TenantID, item.StatementKind, *item.StatementID)
	if err != nil {
		return err
	}
	newPaid := st.PaidAmount.Add(item.Amount)
	newPending := st.TotalAmount.Sub(newPaid)
	newStatus := StatementPartial
	if !newPending.IsPositive() {
		newStatus = StatementCompleted
	}
	persistedPending := newPending
	if persistedPending.IsNegative() {
		persistedPending = decimal.Zero
	}
	ok, err := tx.UpdateStatementBalances(ctx, st, newPaid, persistedPending, newStatus)
	if err != nil {
		return err
	}
	if !ok {
		return finance.Errf(finance.KindConcurrency, finance.CodeConcurrentModification,
			"payable statement %s was modified concurrently", st.StatementNumber)
	}
	return tx.AppendAudit(ctx, shared.AuditRecord{
		TenantID:  ident.TenantID,
		UserID:    ident.UserID,
		Action:    "SETTLE",
		TableName: "ap_statements",
		RecordID:  st.ID.String(),
		OldValues: map[string]any{"paid_amount": st.PaidAmount, "pending_amount": st.PendingAmount, "status": string(st.Status)},
		NewValues: map[string]any{"paid_amount": newPaid, "pending_amount": persistedPending, "status": string(newStatus)},
		Details:   map[string]any{"bill_item_id": item.ID.String(), "amount": item.Amount},
	})
}
