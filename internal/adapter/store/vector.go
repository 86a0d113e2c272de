package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// VectorStore handles pgvector-specific operations for items and embeddings.
type VectorStore struct {
	store     *PostgresStore
	dimension int
	writeMu   sync.Mutex
}

// NewVectorStore creates a vector store backed by the given Postgres store.
func NewVectorStore(store *PostgresStore, dimension int) *VectorStore {
	return &VectorStore{store: store, dimension: dimension}
}

// Upsert writes every record in one transaction. Item rows are replaced in
// full; a record without an embedding deletes the stored one.
func (v *VectorStore) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, v.dimension); err != nil {
		return err
	}

	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, name, description, url, star_count, topics, content, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			star_count = EXCLUDED.star_count,
			topics = EXCLUDED.topics,
			content = EXCLUDED.content,
			updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer itemStmt.Close()

	embedStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO item_embeddings (item_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (item_id) DO UPDATE SET embedding = EXCLUDED.embedding`)
	if err != nil {
		return fmt.Errorf("prepare embeddings: %w", err)
	}
	defer embedStmt.Close()

	dropStmt, err := tx.PrepareContext(ctx, `DELETE FROM item_embeddings WHERE item_id = $1`)
	if err != nil {
		return fmt.Errorf("prepare embedding delete: %w", err)
	}
	defer dropStmt.Close()

	for _, r := range records {
		it := r.Item
		topics := it.Topics
		if topics == nil {
			topics = []string{}
		}
		if _, err := itemStmt.ExecContext(ctx,
			it.ID, it.Name, it.Description, it.URL, it.StarCount, pq.Array(topics), it.Content,
		); err != nil {
			return fmt.Errorf("upsert item %d: %w", it.ID, err)
		}

		if r.HasEmbedding() {
			_, err = embedStmt.ExecContext(ctx, it.ID, pgvector.NewVector(r.Embedding))
		} else {
			_, err = dropStmt.ExecContext(ctx, it.ID)
		}
		if err != nil {
			return fmt.Errorf("write embedding %d: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query performs a cosine similarity search over items that have embeddings.
func (v *VectorStore) Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if v.dimension > 0 && len(vector) != v.dimension {
		return nil, fmt.Errorf("%w: query has %d components, want %d", port.ErrDimensionMismatch, len(vector), v.dimension)
	}

	query := `SELECT i.id, i.name, i.description, i.url, i.star_count, i.topics, i.content, i.updated_at,
	                 1 - (e.embedding <=> $1) AS score
	          FROM items i
	          LEFT JOIN item_embeddings e ON e.item_id = i.id
	          WHERE e.embedding IS NOT NULL
	          ORDER BY e.embedding <=> $1, i.seq
	          LIMIT $2`

	rows, err := v.store.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		var topics []string
		if err := rows.Scan(
			&r.Item.ID, &r.Item.Name, &r.Item.Description, &r.Item.URL, &r.Item.StarCount,
			pq.Array(&topics), &r.Item.Content, &r.Item.UpdatedAt, &r.Score,
		); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		r.Item.Topics = topics
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar: %w", err)
	}
	return results, nil
}

// Count returns the number of item rows.
func (v *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Clear deletes every embedding and item.
func (v *VectorStore) Clear(ctx context.Context) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_embeddings`); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying Postgres store.
func (v *VectorStore) Close() error {
	return v.store.Close()
}

var _ port.VectorStore = (*VectorStore)(nil)
