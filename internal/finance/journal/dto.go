package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput is one proposed line on a manual entry. Amounts arrive as
// decimal strings to avoid floating-point drift in transit.
type LineInput struct {
	AccountID    uuid.UUID
	DebitAmount  string
	CreditAmount string
	Description  string
}

// CreateInput groups fields required to create a draft entry.
type CreateInput struct {
	PeriodID    uuid.UUID
	EntryDate   time.Time
	Description string
	Lines       []LineInput
}

// GenerateInput is the business-event envelope consumed by the auto-journal
// generator.
type GenerateInput struct {
	SourceType  SourceType
	SourceID    uuid.UUID
	Amount      decimal.Decimal
	Description string
	Date        time.Time
}

// ListFilter narrows entry listings.
type ListFilter struct {
	Status   Status
	PeriodID uuid.UUID
	Limit    int
	Offset   int
}

// StatusUpdate carries the mutable fields of a lifecycle transition.
type StatusUpdate struct {
	Status      Status
	Description *string
	ReviewedBy  *uuid.UUID
	ReviewedAt  *time.Time
	PostedAt    *time.Time
}

// SourceDocument is the projection of an upstream business document the
// generator needs: enough to idempotency-key, describe and date the entry.
type SourceDocument struct {
	ID         uuid.UUID
	Number     string
	PartyName  string
	Amount     decimal.Decimal
	OccurredAt time.Time
}
