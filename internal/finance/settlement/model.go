// Package settlement reconciles incoming cash against outstanding
// receivable statements. A verified receipt bill carries an available
// balance (total minus used); write-off allocates that balance across
// statements and retires them, all under optimistic concurrency.
package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptStatus is the receipt bill lifecycle. Only VERIFIED and
// PARTIAL_USED receipts can fund a write-off.
type ReceiptStatus string

const (
	ReceiptPending     ReceiptStatus = "PENDING"
	ReceiptVerified    ReceiptStatus = "VERIFIED"
	ReceiptPartialUsed ReceiptStatus = "PARTIAL_USED"
	ReceiptFullyUsed   ReceiptStatus = "FULLY_USED"
	ReceiptRejected    ReceiptStatus = "REJECTED"
)

// StatementStatus is the receivable statement lifecycle. PAID, COMPLETED
// and BAD_DEBT are terminal: the allocator refuses to touch them.
type StatementStatus string

const (
	StatementPendingRecon StatementStatus = "PENDING_RECON"
	StatementPartial      StatementStatus = "PARTIAL"
	StatementPaid         StatementStatus = "PAID"
	StatementCompleted    StatementStatus = "COMPLETED"
	StatementBadDebt      StatementStatus = "BAD_DEBT"
)

// terminalStatementStatus reports whether a statement can no longer
// receive allocations.
func terminalStatementStatus(s StatementStatus) bool {
	switch s {
	case StatementPaid, StatementCompleted, StatementBadDebt:
		return true
	}
	return false
}

// ReceiptBill is a cash-in document. Version guards concurrent write-offs
// against the same receipt.
type ReceiptBill struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	BillNumber   string
	CustomerName string
	AccountID    *uuid.UUID
	TotalAmount  decimal.Decimal
	UsedAmount   decimal.Decimal
	Status       ReceiptStatus
	ReceivedAt   time.Time
	VerifiedBy   *uuid.UUID
	VerifiedAt   *time.Time
	Remark       string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Available returns totalAmount - usedAmount. The allocator keeps this
// non-negative as an invariant.
func (r ReceiptBill) Available() decimal.Decimal {
	return r.TotalAmount.Sub(r.UsedAmount)
}

// ARStatement is one outstanding receivable. PendingAmount is recomputed
// from total and received on every write, never trusted independently.
type ARStatement struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	StatementNumber string
	CustomerName    string
	TotalAmount     decimal.Decimal
	ReceivedAmount  decimal.Decimal
	PendingAmount   decimal.Decimal
	Status          StatementStatus
	DueDate         *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Allocation is the amount applied to one statement during a write-off.
type Allocation struct {
	StatementID uuid.UUID
	Amount      decimal.Decimal
}

// WriteOffResult summarizes a committed write-off.
type WriteOffResult struct {
	ReceiptID      uuid.UUID
	Allocations    []Allocation
	TotalAllocated decimal.Decimal
	ReceiptStatus  ReceiptStatus
}
