package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/finance/money"
	"github.com/meridian-erp/meridian-erp/internal/finance/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository encapsulates journal persistence.
type Repository interface {
	GetEntry(ctx context.Context, tenantID, id uuid.UUID) (Entry, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Entry, error)
	// FindBySource returns the existing entry generated for an upstream
	// document, reporting found=false when none exists.
	FindBySource(ctx context.Context, tenantID uuid.UUID, sourceType SourceType, sourceID uuid.UUID) (Entry, bool, error)
	FindActiveTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes journal operations available within a transaction.
// Period reads live here too so the open-period check shares the transaction
// with the write it gates.
type TxRepository interface {
	GetPeriod(ctx context.Context, tenantID, periodID uuid.UUID) (periods.Period, error)
	GetEntryForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Entry, error)
	InsertEntry(ctx context.Context, entry *Entry) error
	InsertLines(ctx context.Context, entryID uuid.UUID, lines []Line) error
	UpdateEntryStatus(ctx context.Context, tenantID, id uuid.UUID, update StatusUpdate) error
	AppendAudit(ctx context.Context, rec shared.AuditRecord) error
	AppendFinanceAudit(ctx context.Context, rec shared.AuditRecord) error
}

// TemplateSource resolves the active voucher template for a tenant and
// source type. The production implementation caches per tenant with TTL.
type TemplateSource interface {
	ActiveTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error)
}

// SourceReader loads the upstream documents the generator wraps.
type SourceReader interface {
	FindReceiptBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (SourceDocument, error)
	FindPaymentBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (SourceDocument, error)
}

// Service owns the DRAFT → PENDING_REVIEW → POSTED lifecycle, red-letter
// reversal and template-driven automatic generation.
type Service struct {
	repo        Repository
	periods     *periods.Service
	numbers     shared.NumberGenerator
	templates   TemplateSource
	sources     SourceReader
	invalidator shared.CacheInvalidator
	now         func() time.Time
}

func NewService(repo Repository, periodSvc *periods.Service, numbers shared.NumberGenerator) *Service {
	return &Service{repo: repo, periods: periodSvc, numbers: numbers, now: time.Now}
}

// WithTemplates injects the template cache used by the generator.
func (s *Service) WithTemplates(templates TemplateSource) {
	s.templates = templates
}

// WithSources injects the upstream document reader used by the generator
// wrappers.
func (s *Service) WithSources(sources SourceReader) {
	s.sources = sources
}

// WithInvalidator injects the advisory cache invalidation sink.
func (s *Service) WithInvalidator(inv shared.CacheInvalidator) {
	s.invalidator = inv
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, ident shared.Identity, id uuid.UUID) (Entry, error) {
	return s.repo.GetEntry(ctx, ident.TenantID, id)
}

func (s *Service) List(ctx context.Context, ident shared.Identity, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, ident.TenantID, filter)
}

// Create validates balance, checks the target period inside the write
// transaction and inserts a DRAFT manual entry with its lines.
func (s *Service) Create(ctx context.Context, ident shared.Identity, in CreateInput) (Entry, error) {
	amounts := make([]money.LineAmounts, len(in.Lines))
	for i, line := range in.Lines {
		amounts[i] = money.LineAmounts{Debit: line.DebitAmount, Credit: line.CreditAmount}
	}
	check, err := money.ValidateBalance(amounts)
	if err != nil {
		return Entry{}, finance.Errf(finance.KindValidation, finance.CodeUnbalanced, "%v", err)
	}
	if !check.Valid {
		return Entry{}, finance.Errf(finance.KindValidation, finance.CodeUnbalanced,
			"journal lines do not balance: total debit %s, total credit %s", check.TotalDebit, check.TotalCredit)
	}

	entry := Entry{
		ID:          uuid.New(),
		TenantID:    ident.TenantID,
		VoucherNo:   s.numbers.Next("PZ"),
		PeriodID:    in.PeriodID,
		EntryDate:   in.EntryDate,
		Description: in.Description,
		Status:      StatusDraft,
		SourceType:  SourceManual,
		TotalDebit:  money.MustParse(check.TotalDebit),
		TotalCredit: money.MustParse(check.TotalCredit),
		CreatedBy:   ident.UserID,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriod(ctx, ident.TenantID, in.PeriodID)
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
		lines := make([]Line, len(in.Lines))
		for i, line := range in.Lines {
			debit, err := money.Parse(line.DebitAmount)
			if err != nil {
				return err
			}
			credit, err := money.Parse(line.CreditAmount)
			if err != nil {
				return err
			}
			lines[i] = Line{
				ID:           uuid.New(),
				EntryID:      entry.ID,
				AccountID:    line.AccountID,
				DebitAmount:  debit,
				CreditAmount: credit,
				Description:  line.Description,
				SortOrder:    i,
			}
		}
		if err := tx.InsertLines(ctx, entry.ID, lines); err != nil {
			return err
		}
		entry.Lines = lines
		return tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "CREATE",
			TableName: "journal_entries",
			RecordID:  entry.ID.String(),
			NewValues: map[string]any{
				"voucher_no":   entry.VoucherNo,
				"status":       string(entry.Status),
				"total_debit":  check.TotalDebit,
				"total_credit": check.TotalCredit,
			},
		})
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, ident.TenantID)
	return entry, nil
}

// Submit moves a DRAFT entry to PENDING_REVIEW.
func (s *Service) Submit(ctx context.Context, ident shared.Identity, id uuid.UUID) (Entry, error) {
	return s.transition(ctx, ident, id, StatusDraft, func(entry Entry) StatusUpdate {
		return StatusUpdate{Status: StatusPendingReview}
	}, "only draft entries can be submitted for review")
}

// Approve posts a PENDING_REVIEW entry, stamping reviewer and posting time.
func (s *Service) Approve(ctx context.Context, ident shared.Identity, id uuid.UUID) (Entry, error) {
	return s.transition(ctx, ident, id, StatusPendingReview, func(entry Entry) StatusUpdate {
		now := s.now()
		return StatusUpdate{
			Status:     StatusPosted,
			ReviewedBy: &ident.UserID,
			ReviewedAt: &now,
			PostedAt:   &now,
		}
	}, "only pending-review entries can be posted")
}

// Reject sends a PENDING_REVIEW entry back to DRAFT, appending the reason
// marker to the description.
func (s *Service) Reject(ctx context.Context, ident shared.Identity, id uuid.UUID, reason string) (Entry, error) {
	return s.transition(ctx, ident, id, StatusPendingReview, func(entry Entry) StatusUpdate {
		desc := fmt.Sprintf("%s [驳回原因: %s]", entry.Description, reason)
		return StatusUpdate{Status: StatusDraft, Description: &desc}
	}, "only pending-review entries can be rejected")
}

func (s *Service) transition(ctx context.Context, ident shared.Identity, id uuid.UUID, required Status, build func(Entry) StatusUpdate, rule string) (Entry, error) {
	var updated Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		if entry.Status != required {
			return finance.Errf(finance.KindValidation, finance.CodeInvalidTransition,
				"%s: voucher %s is %s", rule, entry.VoucherNo, entry.Status)
		}
		update := build(entry)
		if err := tx.UpdateEntryStatus(ctx, ident.TenantID, id, update); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "UPDATE",
			TableName: "journal_entries",
			RecordID:  entry.ID.String(),
			OldValues: map[string]any{"status": string(entry.Status)},
			NewValues: map[string]any{"status": string(update.Status)},
			Details:   map[string]any{"action": "STATUS_CHANGE"},
		}); err != nil {
			return err
		}
		updated = entry
		updated.Status = update.Status
		if update.Description != nil {
			updated.Description = *update.Description
		}
		updated.ReviewedBy = update.ReviewedBy
		updated.ReviewedAt = update.ReviewedAt
		updated.PostedAt = update.PostedAt
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, ident.TenantID)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, "finance-journal:"+tenantID.String())
	}
}
