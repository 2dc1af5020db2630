// Package payables verifies payment bills and maintains the account
// ledger on the cash-out side. Verifying a bill as VERIFIED pays it: the
// funding account balance is decremented under a conditional write, an
// expense transaction is recorded, and every payable statement tagged by
// the bill's line items is cascaded toward COMPLETED.
package payables

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus is the payment bill lifecycle. Only PENDING and APPROVED
// bills can be verified.
type BillStatus string

const (
	BillPending  BillStatus = "PENDING"
	BillApproved BillStatus = "APPROVED"
	BillPaid     BillStatus = "PAID"
	BillRejected BillStatus = "REJECTED"
)

// BillType classifies what the payment is for. REFUND bills referencing
// an order trigger the commission clawback callback after payment commits.
type BillType string

const (
	TypeSupplierPayment BillType = "SUPPLIER_PAYMENT"
	TypeLaborPayment    BillType = "LABOR_PAYMENT"
	TypeExpense         BillType = "EXPENSE"
	TypeRefund          BillType = "REFUND"
)

// StatementKind names which payable ledger a bill item settles against.
type StatementKind string

const (
	KindSupplier StatementKind = "SUPPLIER"
	KindLabor    StatementKind = "LABOR"
)

// StatementStatus is the payable statement lifecycle.
type StatementStatus string

const (
	StatementPending   StatementStatus = "PENDING"
	StatementPartial   StatementStatus = "PARTIAL"
	StatementCompleted StatementStatus = "COMPLETED"
)

// PaymentBill is a cash-out request. Amount is the total across items.
type PaymentBill struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	BillNumber string
	PayeeName  string
	Type       BillType
	OrderID    *uuid.UUID
	AccountID  uuid.UUID
	Amount     decimal.Decimal
	Status     BillStatus
	Remark     string
	VerifiedBy *uuid.UUID
	VerifiedAt *time.Time
	PaidAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Items      []PaymentBillItem
}

// PaymentBillItem is one slice of a bill, optionally tagged with the
// payable statement it settles.
type PaymentBillItem struct {
	ID            uuid.UUID
	BillID        uuid.UUID
	StatementKind StatementKind
	StatementID   *uuid.UUID
	Amount        decimal.Decimal
	Description   string
}

// APStatement is one outstanding payable, supplier or labor.
// PendingAmount is recomputed from total and paid on every write.
type APStatement struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Kind            StatementKind
	StatementNumber string
	PayeeName       string
	TotalAmount     decimal.Decimal
	PaidAmount      decimal.Decimal
	PendingAmount   decimal.Decimal
	Status          StatementStatus
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Decision is the verifier's ruling on a bill.
type Decision string

const (
	DecisionVerified Decision = "VERIFIED"
	DecisionRejected Decision = "REJECTED"
)
