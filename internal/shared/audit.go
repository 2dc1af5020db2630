package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRecord documents one mutation. It is written inside the same
// transaction as the mutation it describes; an unaudited financial change
// is a correctness violation, so insert failures abort the transaction.
type AuditRecord struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Action    string
	TableName string
	RecordID  string
	OldValues map[string]any
	NewValues map[string]any
	Details   map[string]any
}

// InsertAudit appends an audit row within the given transaction.
func InsertAudit(ctx context.Context, tx pgx.Tx, rec AuditRecord) error {
	if rec.Action == "" || rec.TableName == "" || rec.RecordID == "" {
		return errors.New("shared: audit record requires action/table/record id")
	}
	oldJSON, err := marshalNullable(rec.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalNullable(rec.NewValues)
	if err != nil {
		return err
	}
	detailsJSON, err := marshalNullable(rec.Details)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO audit_logs (tenant_id, user_id, action, table_name, record_id, old_values, new_values, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.TenantID, rec.UserID, rec.Action, rec.TableName, rec.RecordID, oldJSON, newJSON, detailsJSON, time.Now())
	return err
}

// InsertFinanceAudit appends a row to the finance-specific audit trail kept
// separate from the generic one for voucher generation traceability.
func InsertFinanceAudit(ctx context.Context, tx pgx.Tx, rec AuditRecord) error {
	if rec.Action == "" || rec.RecordID == "" {
		return errors.New("shared: finance audit record requires action/record id")
	}
	detailsJSON, err := marshalNullable(rec.Details)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO finance_audit_logs (tenant_id, user_id, action, record_id, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.TenantID, rec.UserID, rec.Action, rec.RecordID, detailsJSON, time.Now())
	return err
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
