package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

// PostgresStore owns the connection pool and the relational side of the
// schema: migrations and the settings record.
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
		db.Close()
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

// Migrate creates the pgvector extension and tables if they are missing.
// dimension fixes the width of the embedding column.
func (s *PostgresStore) Migrate(ctx context.Context, dimension int) error {
	// No ANN index: pgvector's hnsw/ivfflat cap out at 2000 dimensions, so
	// queries run as an exact scan.
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS items (
			id          BIGINT PRIMARY KEY,
			seq         BIGSERIAL NOT NULL,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL,
			star_count  INTEGER NOT NULL DEFAULT 0,
			topics      TEXT[] NOT NULL DEFAULT '{}',
			content     TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS item_embeddings (
			item_id   BIGINT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS index_settings (
			id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			batch_size  INTEGER NOT NULL,
			max_retries INTEGER NOT NULL,
			page_size   INTEGER NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS audit_logs (
			id          BIGSERIAL PRIMARY KEY,
			principal   TEXT NOT NULL DEFAULT '',
			method      TEXT NOT NULL,
			path        TEXT NOT NULL,
			status      INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at DESC);`, dimension)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// --- Settings ---

// LoadSettings returns the stored indexing settings, if any.
func (s *PostgresStore) LoadSettings(ctx context.Context) (domain.IndexSettings, bool, error) {
	query := `SELECT batch_size, max_retries, page_size FROM index_settings WHERE id = 1`

	var st domain.IndexSettings
	err := s.db.QueryRowContext(ctx, query).Scan(&st.BatchSize, &st.MaxRetries, &st.PageSize)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IndexSettings{}, false, nil
	}
	if err != nil {
		return domain.IndexSettings{}, false, fmt.Errorf("load settings: %w", err)
	}
	return st.Clamp(), true, nil
}

// SaveSettings inserts or replaces the single settings row.
func (s *PostgresStore) SaveSettings(ctx context.Context, st domain.IndexSettings) error {
	query := `
		INSERT INTO index_settings (id, batch_size, max_retries, page_size)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			batch_size = EXCLUDED.batch_size,
			max_retries = EXCLUDED.max_retries,
			page_size = EXCLUDED.page_size,
			updated_at = NOW()`

	st = st.Clamp()
	if _, err := s.db.ExecContext(ctx, query, st.BatchSize, st.MaxRetries, st.PageSize); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// --- Audit Logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(rec domain.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT INTO audit_logs (principal, method, path, status, duration_ms, ip, user_agent, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		rec.Principal, rec.Method, rec.Path, rec.Status, rec.DurationMS, rec.IP, rec.UserAgent, createdAt,
	)
	return err
}

// ListAuditLogs returns recent audit logs, optionally filtered by HTTP method.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, method string) ([]domain.AuditLog, error) {
	query := `SELECT id, principal, method, path, status, duration_ms, ip, user_agent, created_at
	          FROM audit_logs`
	args := []any{}
	argIdx := 1

	if method != "" {
		query += fmt.Sprintf(" WHERE method = $%d", argIdx)
		args = append(args, strings.ToUpper(method))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.Principal, &l.Method, &l.Path, &l.Status,
			&l.DurationMS, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

var (
	_ port.SettingsStore = (*PostgresStore)(nil)
	_ port.AuditStore    = (*PostgresStore)(nil)
)
