package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type capturedExec struct {
	sql  string
	args []any
}

type fakeExecutor struct {
	execs []capturedExec
	err   error
}

func (f *fakeExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, capturedExec{sql: sql, args: args})
	return pgconn.CommandTag{}, f.err
}

func TestRecordWritesAuditRow(t *testing.T) {
	exec := &fakeExecutor{}
	recorder := NewAuditRecorder()
	at := time.Date(2025, time.March, 7, 10, 0, 0, 0, time.UTC)

	err := recorder.Record(context.Background(), exec, AuditEntry{
		Table:    "loans",
		Op:       AuditUpdate,
		RecordID: 42,
		OldValue: map[string]any{"status": "ACTIVE"},
		NewValue: map[string]any{"status": "COMPLETED"},
		Actor:    "treasurer@karonga",
		At:       at,
	})
	require.NoError(t, err)
	require.Len(t, exec.execs, 1)

	got := exec.execs[0]
	require.Contains(t, got.sql, "INSERT INTO audit_log")
	require.Equal(t, "loans", got.args[0])
	require.Equal(t, string(AuditUpdate), got.args[1])
	require.Equal(t, int64(42), got.args[2])
	require.JSONEq(t, `{"status":"ACTIVE"}`, string(got.args[3].([]byte)))
	require.JSONEq(t, `{"status":"COMPLETED"}`, string(got.args[4].([]byte)))
	require.Equal(t, "treasurer@karonga", got.args[5])
	require.Equal(t, at, got.args[6])
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	exec := &fakeExecutor{}
	recorder := NewAuditRecorder()

	for _, entry := range []AuditEntry{
		{Op: AuditInsert, Actor: SystemActor},
		{Table: "loans", Actor: SystemActor},
		{Table: "loans", Op: AuditInsert},
	} {
		err := recorder.Record(context.Background(), exec, entry)
		require.ErrorIs(t, err, ErrAuditEntryInvalid)
	}
	require.Empty(t, exec.execs)
}

func TestRecordNilValuesStayNil(t *testing.T) {
	exec := &fakeExecutor{}
	recorder := NewAuditRecorder()

	err := recorder.Record(context.Background(), exec, AuditEntry{
		Table: "contributions",
		Op:    AuditInsert,
		Actor: SystemActor,
	})
	require.NoError(t, err)
	require.Nil(t, exec.execs[0].args[3])
	require.Nil(t, exec.execs[0].args[4])
}

func TestRecordSecurityEvent(t *testing.T) {
	exec := &fakeExecutor{}
	recorder := NewAuditRecorder()

	err := recorder.RecordSecurityEvent(context.Background(), exec, "treasurer@karonga", map[string]any{
		"event":  "year_lock_override",
		"year":   2025,
		"remote": "10.0.0.4",
	})
	require.NoError(t, err)
	require.Len(t, exec.execs, 1)

	got := exec.execs[0]
	require.Equal(t, "security_events", got.args[0])
	require.Equal(t, string(AuditSecurityEvent), got.args[1])
	require.Equal(t, int64(0), got.args[2])
	require.Nil(t, got.args[3])
	require.JSONEq(t, `{"event":"year_lock_override","year":2025,"remote":"10.0.0.4"}`, string(got.args[4].([]byte)))
	require.Equal(t, "treasurer@karonga", got.args[5])
}
