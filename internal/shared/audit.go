package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditOp enumerates the operations the audit log accepts.
type AuditOp string

const (
	AuditInsert        AuditOp = "INSERT"
	AuditUpdate        AuditOp = "UPDATE"
	AuditDelete        AuditOp = "DELETE"
	AuditSecurityEvent AuditOp = "SECURITY_EVENT"
)

// AuditEntry describes one state mutation. OldValue and NewValue are
// serialised as JSON; security events carry RecordID 0 and a structured
// NewValue payload.
type AuditEntry struct {
	Table    string
	Op       AuditOp
	RecordID int64
	OldValue any
	NewValue any
	Actor    string
	At       time.Time
}

// AuditExecutor is the slice of pgx.Tx the recorder needs. Passing the
// enclosing transaction is what ties every mutation to its audit row:
// if the insert fails the whole unit of work rolls back.
type AuditExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditRecorder appends entries to the audit_log table.
type AuditRecorder struct{}

// NewAuditRecorder returns a new AuditRecorder.
func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

// ErrAuditEntryInvalid indicates a malformed audit entry.
var ErrAuditEntryInvalid = errors.New("shared: audit entry requires table, operation and actor")

// Record appends the entry on the supplied transaction.
func (r *AuditRecorder) Record(ctx context.Context, tx AuditExecutor, entry AuditEntry) error {
	if r == nil || tx == nil {
		return errors.New("shared: audit recorder not initialised")
	}
	if entry.Table == "" || entry.Op == "" || entry.Actor == "" {
		return ErrAuditEntryInvalid
	}
	oldJSON, err := marshalValue(entry.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalValue(entry.NewValue)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = tx.Exec(ctx, `INSERT INTO audit_log (table_name, operation, record_id, old_value, new_value, actor, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, entry.Table, string(entry.Op), entry.RecordID, oldJSON, newJSON, entry.Actor, at)
	return err
}

// RecordSecurityEvent appends a security-relevant event. These share the
// append-only guarantee of mutation entries.
func (r *AuditRecorder) RecordSecurityEvent(ctx context.Context, tx AuditExecutor, actor string, payload any) error {
	return r.Record(ctx, tx, AuditEntry{
		Table:    "security_events",
		Op:       AuditSecurityEvent,
		RecordID: 0,
		NewValue: payload,
		Actor:    actor,
	})
}

func marshalValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
