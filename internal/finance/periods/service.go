package periods

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository encapsulates period persistence.
type Repository interface {
	// GetOrCreate treats "already exists" as success: concurrent first access
	// to the same month must not fail either caller.
	GetOrCreate(ctx context.Context, tenantID uuid.UUID, year, month, quarter int) (Period, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes period operations available within a transaction.
type TxRepository interface {
	GetPeriodForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Period, error)
	CountUnpostedEntries(ctx context.Context, tenantID, periodID uuid.UUID) (int, error)
	MarkClosed(ctx context.Context, tenantID, id, closedBy uuid.UUID, closedAt time.Time) error
	AppendAudit(ctx context.Context, rec shared.AuditRecord) error
}

// Service owns the OPEN/CLOSED lifecycle of monthly accounting periods and
// gates all postings elsewhere in the engine.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetOrCreateCurrentPeriod resolves the period covering today, creating it
// lazily in OPEN state on first access.
func (s *Service) GetOrCreateCurrentPeriod(ctx context.Context, ident shared.Identity) (Period, error) {
	now := s.now()
	return s.repo.GetOrCreate(ctx, ident.TenantID, now.Year(), int(now.Month()), QuarterOf(now.Month()))
}

// IsPeriodOpen reports whether the period accepts postings.
func (s *Service) IsPeriodOpen(ctx context.Context, ident shared.Identity, id uuid.UUID) (bool, error) {
	period, err := s.repo.GetByID(ctx, ident.TenantID, id)
	if err != nil {
		return false, err
	}
	return period.Status == StatusOpen, nil
}

// GetPeriod returns one period by id within the tenant scope.
func (s *Service) GetPeriod(ctx context.Context, ident shared.Identity, id uuid.UUID) (Period, error) {
	return s.repo.GetByID(ctx, ident.TenantID, id)
}

// ClosePeriod freezes a period. The transition is irreversible and refused
// while any journal entry in the period is still DRAFT or PENDING_REVIEW.
func (s *Service) ClosePeriod(ctx context.Context, ident shared.Identity, id uuid.UUID) (Period, error) {
	var closed Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		if period.Status == StatusClosed {
			return finance.Errf(finance.KindStateConflict, finance.CodeAlreadyClosed,
				"period %s is already closed", period.Name())
		}
		unposted, err := tx.CountUnpostedEntries(ctx, ident.TenantID, period.ID)
		if err != nil {
			return err
		}
		if unposted > 0 {
			return finance.Errf(finance.KindStateConflict, finance.CodeHasDraftEntries,
				"period %s still has %d draft or pending-review entries", period.Name(), unposted)
		}
		closedAt := s.now()
		if err := tx.MarkClosed(ctx, ident.TenantID, period.ID, ident.UserID, closedAt); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, shared.AuditRecord{
			TenantID:  ident.TenantID,
			UserID:    ident.UserID,
			Action:    "UPDATE",
			TableName: "accounting_periods",
			RecordID:  period.ID.String(),
			OldValues: map[string]any{"status": string(StatusOpen)},
			NewValues: map[string]any{"status": string(StatusClosed)},
		}); err != nil {
			return err
		}
		closed = period
		closed.Status = StatusClosed
		closed.ClosedBy = &ident.UserID
		closed.ClosedAt = &closedAt
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return closed, nil
}
