package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joseairosa/codesalvage-sub000/internal/domain"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const schema = `
CREATE TABLE IF NOT EXISTS sales (
	id                     TEXT PRIMARY KEY,
	buyer_id               TEXT NOT NULL,
	seller_id              TEXT NOT NULL,
	amount_cents           BIGINT NOT NULL,
	payment_status         TEXT NOT NULL DEFAULT 'pending',
	escrow_status          TEXT NOT NULL DEFAULT 'held',
	escrow_release_at      TIMESTAMPTZ,
	released_at            TIMESTAMPTZ,
	repository_url         TEXT NOT NULL DEFAULT '',
	seller_github_token    TEXT NOT NULL DEFAULT '',
	seller_github_username TEXT NOT NULL DEFAULT '',
	buyer_github_username  TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS repo_transfers (
	id                     TEXT PRIMARY KEY,
	sale_id                TEXT NOT NULL UNIQUE REFERENCES sales(id),
	repo_full_name         TEXT NOT NULL,
	method                 TEXT NOT NULL,
	status                 TEXT NOT NULL,
	seller_github_username TEXT NOT NULL DEFAULT '',
	buyer_github_username  TEXT NOT NULL DEFAULT '',
	initiated_at           TIMESTAMPTZ NOT NULL,
	invitation_sent_at     TIMESTAMPTZ,
	accepted_at            TIMESTAMPTZ,
	transfer_initiated_at  TIMESTAMPTZ,
	completed_at           TIMESTAMPTZ,
	failed_at              TIMESTAMPTZ,
	last_error             TEXT NOT NULL DEFAULT '',
	retry_count            INT NOT NULL DEFAULT 0,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	action_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	details     TEXT NOT NULL DEFAULT '',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sales_auto_transfer
	ON sales (escrow_status, escrow_release_at);
CREATE INDEX IF NOT EXISTS idx_notifications_user
	ON notifications (user_id, created_at DESC);
`

// EnsureSchema creates the engine's tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- Notifications ---

// CreateNotification inserts a user-facing notice.
func (s *PostgresStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	query := `INSERT INTO notifications (id, user_id, kind, title, message, action_url)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, n.ID, n.UserID, n.Kind, n.Title, n.Message, n.ActionURL)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications for a user.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, user_id, kind, title, message, action_url, created_at
	          FROM notifications WHERE user_id = $1
	          ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.ActionURL, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- Audit ---

// WriteAudit persists one audit record.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(query, uuid.NewString(), userID, action, resource, resourceID, details, ip, userAgent)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

// ListAuditLogs returns audit logs, optionally filtered by action.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs`
	args := []any{}
	if action != "" {
		query += ` WHERE action = $1`
		args = append(args, action)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
