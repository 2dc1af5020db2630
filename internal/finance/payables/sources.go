package payables

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance/journal"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SourceAdapter projects payment bills into the envelope the journal
// generator consumes.
type SourceAdapter struct {
	svc *Service
}

// NewSourceAdapter wraps the payables service for the journal generator.
func NewSourceAdapter(svc *Service) SourceAdapter {
	return SourceAdapter{svc: svc}
}

// FindPaymentBill loads a bill as a journal source document.
func (a SourceAdapter) FindPaymentBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (journal.SourceDocument, error) {
	bill, err := a.svc.GetBill(ctx, ident, id)
	if err != nil {
		return journal.SourceDocument{}, err
	}
	doc := journal.SourceDocument{
		ID:        bill.ID,
		Number:    bill.BillNumber,
		PartyName: bill.PayeeName,
		Amount:    bill.Amount,
	}
	if bill.PaidAt != nil {
		doc.OccurredAt = *bill.PaidAt
	}
	return doc, nil
}
