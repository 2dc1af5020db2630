package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Reverse creates a red-letter mirror of a posted entry: debit and credit
// swapped per line, fresh voucher number, DRAFT status. The original entry
// is never mutated; only the reversal's ReversedEntryID links them.
//
// The reversal posts into the original entry's period. Once that period has
// closed the operation is refused rather than silently redirected to a
// different period.
func (s *Service) Reverse(ctx context.Context, ident shared.Identity, originalID uuid.UUID, description string) (Entry, error) {
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, ident.TenantID, originalID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return finance.Errf(finance.KindStateConflict, finance.CodeNotPosted,
				"voucher %s is %s; only posted entries can be reversed", original.VoucherNo, original.Status)
		}
		period, err := tx.GetPeriod(ctx, ident.TenantID, original.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != periods.StatusOpen {
			return finance.Errf(finance.KindStateConflict, finance.CodePeriodClosed,
				"accounting period %s of voucher %s is closed", period.Name(), original.VoucherNo)
		}

		desc := description
		if desc == "" {
			desc = fmt.Sprintf("Reversal of voucher %s", original.VoucherNo)
		}
		originalID := original.ID
		reversal = Entry{
			ID:              uuid.New(),
			TenantID:        ident.TenantID,
			VoucherNo:       s.numbers.Next("PZ"),
			PeriodID:        original.PeriodID,
			EntryDate:       s.now(),
			Description:     desc,
			Status:          StatusDraft,
			SourceType:      SourceReversal,
			TotalDebit:      original.TotalCredit,
			TotalCredit:     original.TotalDebit,
			IsReversal:      true,
			ReversedEntryID: &originalID,
			CreatedBy:       ident.UserID,
		}
		if err := tx.InsertEntry(ctx, &reversal); err != nil {
			return err
		}
		lines := make([]Line, len(original.Lines))
		for i, line := range original.Lines {
			lines[i] = Line{
				ID:           uuid.New(),
				EntryID:      reversal.ID,
				AccountID:    line.AccountID,
				DebitAmount:  line.CreditAmount,
				CreditAmount: line.DebitAmount,
				Description:  "[冲销] " + line.Description,
				SortOrder:    line.SortOrder,
			}
		}
		if err := tx.InsertLines(ctx, reversal.ID, lines); err != nil {
			return err
		}
		reversal.Lines = lines
		return tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "CREATE",
			TableName: "journal_entries",
			RecordID:  reversal.ID.String(),
			NewValues: map[string]any{
				"voucher_no":  reversal.VoucherNo,
				"source_type": string(SourceReversal),
			},
			Details: map[string]any{
				"action":            "REVERSAL",
				"reversed_entry_id": original.ID.String(),
				"reversed_voucher":  original.VoucherNo,
			},
		})
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, ident.TenantID)
	return reversal, nil
}
