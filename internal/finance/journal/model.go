package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the journal entry lifecycle. POSTED is terminal for the
// state machine; posted entries are only countered via reversal.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusPosted        Status = "POSTED"
)

// SourceType records which upstream business event produced an entry.
type SourceType string

const (
	SourceManual      SourceType = "MANUAL"
	SourceAutoReceipt SourceType = "AUTO_RECEIPT"
	SourceAutoPayment SourceType = "AUTO_PAYMENT"
	SourceAutoExpense SourceType = "AUTO_EXPENSE"
	SourceReversal    SourceType = "REVERSAL"
)

// Entry is one balanced voucher. Entries are never physically deleted; a
// posted entry is cancelled by recording a mirror-image reversal entry that
// references it through ReversedEntryID.
type Entry struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	VoucherNo       string
	PeriodID        uuid.UUID
	EntryDate       time.Time
	Description     string
	Status          Status
	SourceType      SourceType
	SourceID        *uuid.UUID
	TotalDebit      decimal.Decimal
	TotalCredit     decimal.Decimal
	IsReversal      bool
	ReversedEntryID *uuid.UUID
	CreatedBy       uuid.UUID
	ReviewedBy      *uuid.UUID
	ReviewedAt      *time.Time
	PostedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []Line
}

// Line is one debit or credit side of an entry. Exactly one of the amount
// pair is expected to be non-zero by convention; only the aggregate balance
// is hard-enforced.
type Line struct {
	ID           uuid.UUID
	EntryID      uuid.UUID
	AccountID    uuid.UUID
	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	Description  string
	SortOrder    int
}

// VoucherTemplate maps a source type to the fixed debit/credit account pair
// the auto-journal generator books against. Templates are tenant
// configuration maintained outside this engine.
type VoucherTemplate struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	SourceType      SourceType
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
