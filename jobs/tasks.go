package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeCommissionClawback reverses sales commission after a refund
	// bill is paid out.
	TaskTypeCommissionClawback = "finance:commission_clawback"
	// TaskTypeLedgerIntegrity scans posted journal entries for debit/credit
	// imbalances.
	TaskTypeLedgerIntegrity = "finance:ledger_integrity"
)

// CommissionClawbackPayload identifies the order whose commission must be
// reversed and the tenant/user context of the triggering refund.
type CommissionClawbackPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   uuid.UUID `json:"user_id"`
	OrderID  uuid.UUID `json:"order_id"`
}

// NewCommissionClawbackTask constructs an Asynq task.
func NewCommissionClawbackTask(payload CommissionClawbackPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCommissionClawback, data), nil
}

// ClawbackFunc performs the actual commission reversal against the sales
// subsystem. The worker binary injects the concrete implementation.
type ClawbackFunc func(ctx context.Context, ident shared.Identity, orderID uuid.UUID) error

// NewCommissionClawbackHandler builds the handler for clawback tasks.
func NewCommissionClawbackHandler(logger *slog.Logger, fn ClawbackFunc, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("commission_clawback")
		var payload CommissionClawbackPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		ident := shared.Identity{TenantID: payload.TenantID, UserID: payload.UserID}
		if err := tracker.End(fn(ctx, ident, payload.OrderID)); err != nil {
			logger.Warn("commission clawback failed",
				slog.String("order_id", payload.OrderID.String()),
				slog.Any("error", err))
			return err
		}
		logger.Info("commission clawback processed",
			slog.String("order_id", payload.OrderID.String()),
			slog.String("tenant_id", payload.TenantID.String()))
		return nil
	}
}

// NewLedgerIntegrityTask constructs the nightly integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLedgerIntegrity, nil)
}

// NewLedgerIntegrityHandler builds a handler that re-sums every posted
// journal entry and logs any whose lines no longer balance.
func NewLedgerIntegrityHandler(logger *slog.Logger, pool *pgxpool.Pool, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		const query = `
			SELECT e.id, e.voucher_no,
			       COALESCE(SUM(l.debit_amount), 0),
			       COALESCE(SUM(l.credit_amount), 0)
			FROM journal_entries e
			JOIN journal_entry_lines l ON l.entry_id = e.id
			WHERE e.status = 'POSTED'
			GROUP BY e.id, e.voucher_no
			HAVING COALESCE(SUM(l.debit_amount), 0) <> COALESCE(SUM(l.credit_amount), 0)`
		rows, err := pool.Query(ctx, query)
		if err != nil {
			return tracker.End(err)
		}
		defer rows.Close()
		flagged := 0
		for rows.Next() {
			var (
				id             uuid.UUID
				voucherNo      string
				debits, credit string
			)
			if err := rows.Scan(&id, &voucherNo, &debits, &credit); err != nil {
				return tracker.End(err)
			}
			flagged++
			logger.Error("posted entry out of balance",
				slog.String("entry_id", id.String()),
				slog.String("voucher_no", voucherNo),
				slog.String("debit_total", debits),
				slog.String("credit_total", credit))
		}
		if err := rows.Err(); err != nil {
			return tracker.End(err)
		}
		metrics.AddImbalances(flagged)
		logger.Info("ledger integrity scan finished", slog.Int("flagged", flagged))
		return tracker.End(nil)
	}
}
