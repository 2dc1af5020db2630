package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/money"
	"github.com/meridian-erp/meridian-erp/internal/finance/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Generate produces a voucher from a business-event envelope: it resolves
// the tenant's template for the source type, books the amount as one debit
// and one credit line, and lands the entry in PENDING_REVIEW in the current
// period. Auto-generated entries require human review before posting.
//
// Generation is idempotent on (sourceType, sourceID): a second call for the
// same upstream document fails with AlreadyGenerated and writes nothing.
func (s *Service) Generate(ctx context.Context, ident shared.Identity, in GenerateInput) (Entry, error) {
	if _, found, err := s.repo.FindBySource(ctx, ident.TenantID, in.SourceType, in.SourceID); err != nil {
		return Entry{}, err
	} else if found {
		return Entry{}, finance.Errf(finance.KindBusinessRule, finance.CodeAlreadyGenerated,
			"a voucher was already generated for %s %s", in.SourceType, in.SourceID)
	}

	template, err := s.lookupTemplate(ctx, ident.TenantID, in.SourceType)
	if err != nil {
		return Entry{}, err
	}

	amount := money.Format(in.Amount)
	check, err := money.ValidateBalance([]money.LineAmounts{
		{Debit: amount},
		{Credit: amount},
	})
	if err != nil {
		return Entry{}, err
	}
	if !check.Valid {
		return Entry{}, finance.Errf(finance.KindValidation, finance.CodeUnbalanced,
			"generated lines do not balance: total debit %s, total credit %s", check.TotalDebit, check.TotalCredit)
	}

	current, err := s.periods.GetOrCreateCurrentPeriod(ctx, ident)
	if err != nil {
		return Entry{}, err
	}

	sourceID := in.SourceID
	entry := Entry{
		ID:          uuid.New(),
		TenantID:    ident.TenantID,
		VoucherNo:   s.numbers.Next("PZ"),
		PeriodID:    current.ID,
		EntryDate:   in.Date,
		Description: in.Description,
		Status:      StatusPendingReview,
		SourceType:  in.SourceType,
		SourceID:    &sourceID,
		TotalDebit:  in.Amount.Round(2),
		TotalCredit: in.Amount.Round(2),
		CreatedBy:   ident.UserID,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Re-check inside the transaction: the period could have closed
		// between resolution and the write.
		period, err := tx.GetPeriod(ctx, ident.TenantID, current.ID)
		if err != nil {
			return err
		}
		if period.Status != periods.StatusOpen {
			return finance.Errf(finance.KindStateConflict, finance.CodePeriodClosed,
				"accounting period %s is closed", period.Name())
		}
		if err := tx.InsertEntry(ctx, &entry); err != nil {
			return err
		}
		lines := []Line{
			{
				ID:           uuid.New(),
				EntryID:      entry.ID,
				AccountID:    template.DebitAccountID,
				DebitAmount:  in.Amount.Round(2),
				Description:  in.Description,
				SortOrder:    0,
			},
			{
				ID:           uuid.New(),
				EntryID:      entry.ID,
				AccountID:    template.CreditAccountID,
				CreditAmount: in.Amount.Round(2),
				Description:  in.Description,
				SortOrder:    1,
			},
		}
		if err := tx.InsertLines(ctx, entry.ID, lines); err != nil {
			return err
		}
		entry.Lines = lines
		return tx.AppendFinanceAudit(ctx, shared.AuditRecord{
			TenantID: ident.TenantID,
			UserID:   ident.UserID,
			Action:   "AUTO_GENERATE",
			RecordID: entry.ID.String(),
			Details: map[string]any{
				"voucher_no":  entry.VoucherNo,
				"source_type": string(in.SourceType),
				"source_id":   in.SourceID.String(),
				"amount":      amount,
			},
		})
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, ident.TenantID)
	return entry, nil
}

// GenerateFromReceipt books the income voucher for a verified receipt bill.
func (s *Service) GenerateFromReceipt(ctx context.Context, ident shared.Identity, receiptID uuid.UUID) (Entry, error) {
	if s.sources == nil {
		return Entry{}, fmt.Errorf("journal: source reader not configured")
	}
	doc, err := s.sources.FindReceiptBill(ctx, ident, receiptID)
	if err != nil {
		return Entry{}, err
	}
	return s.Generate(ctx, ident, GenerateInput{
		SourceType:  SourceAutoReceipt,
		SourceID:    doc.ID,
		Amount:      doc.Amount,
		Description: fmt.Sprintf("Receipt %s from %s", doc.Number, doc.PartyName),
		Date:        doc.OccurredAt,
	})
}

// GenerateFromPaymentBill books the expense voucher for a paid payment bill.
func (s *Service) GenerateFromPaymentBill(ctx context.Context, ident shared.Identity, billID uuid.UUID) (Entry, error) {
	if s.sources == nil {
		return Entry{}, fmt.Errorf("journal: source reader not configured")
	}
	doc, err := s.sources.FindPaymentBill(ctx, ident, billID)
	if err != nil {
		return Entry{}, err
	}
	date := doc.OccurredAt
	if date.IsZero() {
		date = s.now()
	}
	return s.Generate(ctx, ident, GenerateInput{
		SourceType:  SourceAutoPayment,
		SourceID:    doc.ID,
		Amount:      doc.Amount,
		Description: fmt.Sprintf("Payment %s to %s", doc.Number, doc.PartyName),
		Date:        date,
	})
}

func (s *Service) lookupTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error) {
	if s.templates != nil {
		return s.templates.ActiveTemplate(ctx, tenantID, sourceType)
	}
	return s.repo.FindActiveTemplate(ctx, tenantID, sourceType)
}
