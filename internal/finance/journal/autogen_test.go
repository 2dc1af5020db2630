package journal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func activeTemplate(sourceType SourceType) *VoucherTemplate {
	return &VoucherTemplate{
		ID:              uuid.New(),
		SourceType:      sourceType,
		DebitAccountID:  uuid.New(),
		CreditAccountID: uuid.New(),
		IsActive:        true,
	}
}

func TestGenerateFromReceipt(t *testing.T) {
	repo := newMemoryJournalRepo()
	svc, _ := newTestService(repo)
	caller := ident()
	tmpl := activeTemplate(SourceAutoReceipt)
	repo.templates[SourceAutoReceipt] = tmpl

	receiptID := uuid.New()
	occurred := time.Date(2025, time.November, 3, 0, 0, 0, 0, time.UTC)
	svc.WithSources(stubSourceReader{receipt: &SourceDocument{
		ID:         receiptID,
		Number:     "REC-001",
		PartyName:  "Acme Ltd",
		Amount:     decimal.RequireFromString("250.00"),
		OccurredAt: occurred,
	}})

	entry, err := svc.GenerateFromReceipt(context.Background(), caller, receiptID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, entry.Status)
	require.Equal(t, SourceAutoReceipt, entry.SourceType)
	require.Equal(t, receiptID, *entry.SourceID)
	require.Equal(t, "Receipt REC-001 from Acme Ltd", entry.Description)
	require.Equal(t, occurred, entry.EntryDate)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, tmpl.DebitAccountID, entry.Lines[0].AccountID)
	require.Equal(t, "250.00", entry.Lines[0].DebitAmount.StringFixed(2))
	require.Equal(t, tmpl.CreditAccountID, entry.Lines[1].AccountID)
	require.Equal(t, "250.00", entry.Lines[1].CreditAmount.StringFixed(2))
	require.Len(t, repo.financeAudits, 1)
	require.Equal(t, "AUTO_GENERATE", repo.financeAudits[0].Action)
}

func TestGenerateIsIdempotentPerSource(t *testing.T) {
	repo := newMemoryJournalRepo()
	svc, _ := newTestService(repo)
	caller := ident()
	repo.templates[SourceAutoReceipt] = activeTemplate(SourceAutoReceipt)

	receiptID := uuid.New()
	svc.WithSources(stubSourceReader{receipt: &SourceDocument{
		ID:     receiptID,
		Number: "REC-002",
		Amount: decimal.RequireFromString("100.00"),
	}})

	first, err := svc.GenerateFromReceipt(context.Background(), caller, receiptID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, first.Status)

	// the first entry is still awaiting review, yet a second generation is refused
	_, err = svc.GenerateFromReceipt(context.Background(), caller, receiptID)
	require.True(t, finance.HasCode(err, finance.CodeAlreadyGenerated))
	require.Len(t, repo.entries, 1)
}

func TestGenerateWithoutTemplate(t *testing.T) {
	repo := newMemoryJournalRepo()
	svc, _ := newTestService(repo)
	caller := ident()

	receiptID := uuid.New()
	svc.WithSources(stubSourceReader{receipt: &SourceDocument{
		ID:     receiptID,
		Number: "REC-003",
		Amount: decimal.RequireFromString("40.00"),
	}})

	_, err := svc.GenerateFromReceipt(context.Background(), caller, receiptID)
	require.True(t, finance.HasCode(err, finance.CodeTemplateMissing))
	require.Empty(t, repo.entries)
}

func TestGenerateFromPaymentBill(t *testing.T) {
	repo := newMemoryJournalRepo()
	svc, _ := newTestService(repo)
	caller := ident()
	repo.templates[SourceAutoPayment] = activeTemplate(SourceAutoPayment)

	billID := uuid.New()
	svc.WithSources(stubSourceReader{payment: &SourceDocument{
		ID:        billID,
		Number:    "PAY-1763114400000",
		PartyName: "Steel Supply Co",
		Amount:    decimal.RequireFromString("1200.50"),
	}})

	entry, err := svc.GenerateFromPaymentBill(context.Background(), caller, billID)
	require.NoError(t, err)
	require.Equal(t, SourceAutoPayment, entry.SourceType)
	require.Equal(t, "Payment PAY-1763114400000 to Steel Supply Co", entry.Description)
	require.Equal(t, "1200.50", entry.TotalDebit.StringFixed(2))
}

func TestGenerateSourceMissing(t *testing.T) {
	repo := newMemoryJournalRepo()
	svc, _ := newTestService(repo)
	repo.templates[SourceAutoReceipt] = activeTemplate(SourceAutoReceipt)
	svc.WithSources(stubSourceReader{})

	_, err := svc.GenerateFromReceipt(context.Background(), ident(), uuid.New())
	require.True(t, finance.HasCode(err, finance.CodeSourceNotFound))
}

type stubSourceReader struct {
	receipt *SourceDocument
	payment *SourceDocument
}

func (s stubSourceReader) FindReceiptBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (SourceDocument, error) {
	if s.receipt == nil || s.receipt.ID != id {
		return SourceDocument{}, finance.Errf(finance.KindNotFound, finance.CodeSourceNotFound, "receipt bill %s not found", id)
	}
	return *s.receipt, nil
}

func (s stubSourceReader) FindPaymentBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (SourceDocument, error) {
	if s.payment == nil || s.payment.ID != id {
		return SourceDocument{}, finance.Errf(finance.KindNotFound, finance.CodeSourceNotFound, "payment bill %s not found", id)
	}
	return *s.payment, nil
}

type countingTemplateRepo struct {
	lookups  atomic.Int64
	template VoucherTemplate
}

func (r *countingTemplateRepo) ActiveTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error) {
	r.lookups.Add(1)
	return r.template, nil
}

func TestTemplateCacheServesFromMemory(t *testing.T) {
	repo := &countingTemplateRepo{template: *activeTemplate(SourceAutoReceipt)}
	cache := NewTemplateCache(repo, time.Minute)
	tenantID := uuid.New()

	for i := 0; i < 5; i++ {
		tmpl, err := cache.ActiveTemplate(context.Background(), tenantID, SourceAutoReceipt)
		require.NoError(t, err)
		require.Equal(t, repo.template.ID, tmpl.ID)
	}
	require.Equal(t, int64(1), repo.lookups.Load())
}

func TestTemplateCacheExpiry(t *testing.T) {
	repo := &countingTemplateRepo{template: *activeTemplate(SourceAutoReceipt)}
	cache := NewTemplateCache(repo, time.Minute)
	current := time.Date(2025, time.November, 14, 10, 0, 0, 0, time.UTC)
	cache.WithNow(func() time.Time { return current })
	tenantID := uuid.New()

	_, err := cache.ActiveTemplate(context.Background(), tenantID, SourceAutoReceipt)
	require.NoError(t, err)
	current = current.Add(2 * time.Minute)
	_, err = cache.ActiveTemplate(context.Background(), tenantID, SourceAutoReceipt)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.lookups.Load())
}

func TestTemplateCacheInvalidate(t *testing.T) {
	repo := &countingTemplateRepo{template: *activeTemplate(SourceAutoReceipt)}
	cache := NewTemplateCache(repo, time.Hour)
	tenantID := uuid.New()

	_, err := cache.ActiveTemplate(context.Background(), tenantID, SourceAutoReceipt)
	require.NoError(t, err)
	cache.Invalidate(tenantID, SourceAutoReceipt)
	_, err = cache.ActiveTemplate(context.Background(), tenantID, SourceAutoReceipt)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.lookups.Load())
}
