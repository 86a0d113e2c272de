package port

import (
	"context"

	"github.com/arturoeanton/go-star-search/internal/domain"
)

// VectorStore is the capability the indexer and search service need from a
// storage engine: keyed items, at most one embedding each, and cosine k-NN.
type VectorStore interface {
	// Upsert writes all records or none. Each item row and its embedding are
	// fully replaced; a record without an embedding drops any stored one.
	Upsert(ctx context.Context, records []domain.Record) error

	// Query returns at most k items with embeddings, best score first.
	// Equal scores keep store insertion order.
	Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)

	// Count returns the number of stored items, embedded or not.
	Count(ctx context.Context) (int, error)

	// Clear removes every item and embedding.
	Clear(ctx context.Context) error

	Close() error
}

// SettingsStore persists the indexing settings record.
type SettingsStore interface {
	// LoadSettings returns the stored settings and whether a record existed.
	LoadSettings(ctx context.Context) (domain.IndexSettings, bool, error)
	SaveSettings(ctx context.Context, s domain.IndexSettings) error
}

// AuditStore persists API audit records.
type AuditStore interface {
	WriteAudit(rec domain.AuditLog) error
	// ListAuditLogs returns the newest records first. An empty method
	// matches every record.
	ListAuditLogs(ctx context.Context, limit int, method string) ([]domain.AuditLog, error)
}
