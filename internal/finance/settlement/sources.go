package settlement

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance/journal"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SourceAdapter projects receipt bills into the envelope the journal
// generator consumes.
type SourceAdapter struct {
	svc *Service
}

// NewSourceAdapter wraps the settlement service for the journal generator.
func NewSourceAdapter(svc *Service) SourceAdapter {
	return SourceAdapter{svc: svc}
}

// FindReceiptBill loads a receipt as a journal source document.
func (a SourceAdapter) FindReceiptBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (journal.SourceDocument, error) {
	receipt, err := a.svc.GetReceipt(ctx, ident, id)
	if err != nil {
		return journal.SourceDocument{}, err
	}
	return journal.SourceDocument{
		ID:         receipt.ID,
		Number:     receipt.BillNumber,
		PartyName:  receipt.CustomerName,
		Amount:     receipt.TotalAmount,
		OccurredAt: receipt.ReceivedAt,
	}, nil
}
