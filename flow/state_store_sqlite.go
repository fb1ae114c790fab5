package flow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	automation "github.com/goliatone/go-automation"
)

// SQLiteStateStore persists paused executions in a SQLite table. Each row
// holds the execution as a JSON document next to the indexed columns.
type SQLiteStateStore struct {
	db    *sql.DB
	table string

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewSQLiteStateStore builds a store using db and table, which defaults to
// "paused_executions".
func NewSQLiteStateStore(db *sql.DB, table string) *SQLiteStateStore {
	if table = strings.TrimSpace(table); table == "" {
		table = "paused_executions"
	}
	return &SQLiteStateStore{db: db, table: table}
}

func (s *SQLiteStateStore) Save(ctx context.Context, paused PausedExecution) error {
	id := strings.TrimSpace(paused.ExecutionID)
	if err := s.ready(ctx); err != nil {
		return automation.WrapStateStoreError("save", id, err)
	}
	if id == "" {
		return automation.WrapStateStoreError("save", id, errExecutionIDRequired)
	}
	paused.ExecutionID = id
	payload, err := json.Marshal(paused)
	if err != nil {
		return automation.WrapStateStoreError("save", id, err)
	}
	q := fmt.Sprintf(`INSERT OR REPLACE INTO %s (execution_id, automation, cursor, deadline, paused_at, payload) VALUES (?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		id,
		paused.Automation,
		paused.Cursor,
		formatTimestamp(paused.Deadline),
		formatTimestamp(paused.PausedAt),
		string(payload),
	)
	return automation.WrapStateStoreError("save", id, err)
}

func (s *SQLiteStateStore) FindByID(ctx context.Context, executionID string) (*PausedExecution, error) {
	id := strings.TrimSpace(executionID)
	if err := s.ready(ctx); err != nil {
		return nil, automation.WrapStateStoreError("find", id, err)
	}
	if id == "" {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT payload FROM %s WHERE execution_id = ?`, s.table)
	var payload string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, automation.WrapStateStoreError("find", id, err)
	}
	p, err := decodePaused(payload)
	if err != nil {
		return nil, automation.WrapStateStoreError("find", id, err)
	}
	return &p, nil
}

func (s *SQLiteStateStore) FindAll(ctx context.Context) ([]PausedExecution, error) {
	if err := s.ready(ctx); err != nil {
		return nil, automation.WrapStateStoreError("find_all", "", err)
	}
	q := fmt.Sprintf(`SELECT payload FROM %s ORDER BY paused_at, execution_id`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, automation.WrapStateStoreError("find_all", "", err)
	}
	defer rows.Close()

	var out []PausedExecution
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, automation.WrapStateStoreError("find_all", "", err)
		}
		p, err := decodePaused(payload)
		if err != nil {
			return nil, automation.WrapStateStoreError("find_all", "", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, automation.WrapStateStoreError("find_all", "", err)
	}
	return out, nil
}

func (s *SQLiteStateStore) Remove(ctx context.Context, executionID string) error {
	id := strings.TrimSpace(executionID)
	if err := s.ready(ctx); err != nil {
		return automation.WrapStateStoreError("remove", id, err)
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE execution_id = ?`, s.table)
	_, err := s.db.ExecContext(ctx, q, id)
	return automation.WrapStateStoreError("remove", id, err)
}

func (s *SQLiteStateStore) ready(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not configured")
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		execution_id TEXT PRIMARY KEY,
		automation TEXT NOT NULL,
		cursor INTEGER NOT NULL,
		deadline TEXT,
		paused_at TEXT NOT NULL,
		payload TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

// timestampLayout is fixed width so the text columns sort chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timestampLayout)
}
