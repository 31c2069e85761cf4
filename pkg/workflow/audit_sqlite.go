package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS workflow_steps (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	workflow_id TEXT    NOT NULL,
	run_id      TEXT    NOT NULL DEFAULT '',
	name        TEXT    NOT NULL DEFAULT '',
	step        INTEGER NOT NULL,
	agent_id    TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	output      TEXT,
	error       TEXT    NOT NULL DEFAULT '',
	started_ms  INTEGER NOT NULL DEFAULT 0,
	finished_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS workflow_steps_by_workflow ON workflow_steps(workflow_id, seq);
CREATE INDEX IF NOT EXISTS workflow_steps_by_status ON workflow_steps(status);
`

const auditColumns = "workflow_id, run_id, name, step, agent_id, status, output, error, started_ms, finished_ms"

// SQLiteAuditStore persists step audit events in a SQLite table. Timestamps
// are stored as Unix milliseconds in UTC.
type SQLiteAuditStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteAuditStore creates the schema in db if needed. The caller keeps
// ownership of db.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("audit store: nil database")
	}
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("audit store: create schema: %w", err)
	}
	return &SQLiteAuditStore{db: db}, nil
}

// OpenSQLiteAuditStore opens dsn with the pure Go sqlite driver. The
// returned store owns the connection and Close releases it.
func OpenSQLiteAuditStore(dsn string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit store: open %s: %w", dsn, err)
	}
	s, err := NewSQLiteAuditStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the connection if the store opened it.
func (s *SQLiteAuditStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Record implements AuditStore.
func (s *SQLiteAuditStore) Record(ctx context.Context, ev AuditEvent) error {
	output, err := encodeAuditOutput(ev.Output)
	if err != nil {
		return fmt.Errorf("audit store: encode output of step %d: %w", ev.Step, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO workflow_steps ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		ev.WorkflowID, ev.RunID, ev.Name, ev.Step, ev.AgentID, ev.Status,
		string(output), ev.Error, toMillis(ev.StartedAt), toMillis(ev.FinishedAt),
	)
	return err
}

// List implements AuditStore. Events come back in insertion order.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	var (
		conds []string
		args  []any
	)
	for _, f := range []struct{ column, value string }{
		{"workflow_id", filter.WorkflowID},
		{"agent_id", filter.AgentID},
		{"status", filter.Status},
	} {
		if f.value != "" {
			conds = append(conds, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	var q strings.Builder
	q.WriteString("SELECT " + auditColumns + " FROM workflow_steps")
	if len(conds) > 0 {
		q.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	q.WriteString(" ORDER BY seq")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanAuditEvent(rows *sql.Rows) (AuditEvent, error) {
	var (
		ev                AuditEvent
		output            sql.NullString
		started, finished int64
	)
	err := rows.Scan(&ev.WorkflowID, &ev.RunID, &ev.Name, &ev.Step, &ev.AgentID, &ev.Status,
		&output, &ev.Error, &started, &finished)
	if err != nil {
		return ev, err
	}
	// Output that no longer decodes is dropped rather than failing the listing.
	if out, err := decodeAuditOutput([]byte(output.String)); err == nil {
		ev.Output = out
	}
	ev.StartedAt = fromMillis(started)
	ev.FinishedAt = fromMillis(finished)
	return ev, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
