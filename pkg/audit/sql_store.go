package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLStore keeps the audit trail in the audit_logs table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id          VARCHAR(64) PRIMARY KEY,
	timestamp   TIMESTAMP NOT NULL,
	tenant_id   VARCHAR(64) NOT NULL,
	event_type  VARCHAR(64) NOT NULL,
	status      VARCHAR(20) NOT NULL,
	user_id     VARCHAR(64) NOT NULL DEFAULT '',
	role        VARCHAR(32) NOT NULL DEFAULT '',
	request_id  VARCHAR(100) NOT NULL DEFAULT '',
	method      VARCHAR(10) NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	metadata    TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_time ON audit_logs (tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs (timestamp)
`

// Migrate creates the table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate audit_logs: %w", err)
		}
	}
	return nil
}

const eventColumns = `id, timestamp, tenant_id, event_type, status, user_id, role,
	request_id, method, path, status_code, message, metadata`

// Log inserts one event. ID and Timestamp must already be set.
func (s *SQLStore) Log(ctx context.Context, event *Event) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, event.Timestamp.UTC(), event.TenantID, string(event.EventType), string(event.Status),
		event.UserID, event.Role, event.RequestID, event.Method, event.Path, event.StatusCode,
		event.Message, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Search returns a tenant's events, newest first.
func (s *SQLStore) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	filter, err := filter.normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	add("tenant_id = $%d", filter.TenantID)
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		add("timestamp >= $%d", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		add("timestamp < $%d", filter.Until.UTC())
	}
	args = append(args, filter.Limit)

	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE %s ORDER BY timestamp DESC, id LIMIT $%d`,
		eventColumns, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search audit events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than before and reports how many went.
func (s *SQLStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup audit events: %w", err)
	}
	return res.RowsAffected()
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e                 Event
		eventType, status string
		metadata          sql.NullString
	)
	err := rows.Scan(&e.ID, &e.Timestamp, &e.TenantID, &eventType, &status, &e.UserID, &e.Role,
		&e.RequestID, &e.Method, &e.Path, &e.StatusCode, &e.Message, &metadata)
	if err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	e.EventType = EventType(eventType)
	e.Status = EventStatus(status)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

var _ Store = (*SQLStore)(nil)
