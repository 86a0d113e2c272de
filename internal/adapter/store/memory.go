package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

type memoryEntry struct {
	record domain.Record
	seq    int64
}

// MemoryStore is an in-process vector store with brute-force cosine search.
// It also keeps the settings record, so it can back a whole app in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	entries   map[int64]*memoryEntry
	nextSeq   int64
	settings  *domain.IndexSettings
}

// NewMemoryStore creates an empty store. A dimension of zero disables the
// embedding length check.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		entries:   make(map[int64]*memoryEntry),
	}
}

// Upsert replaces each record in full. Validation runs before any write so a
// rejected call leaves the store untouched.
func (m *MemoryStore) Upsert(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRecords(records, m.dimension); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		rec := copyRecord(r)
		if e, ok := m.entries[rec.Item.ID]; ok {
			e.record = rec
			continue
		}
		m.nextSeq++
		m.entries[rec.Item.ID] = &memoryEntry{record: rec, seq: m.nextSeq}
	}
	return nil
}

// Query ranks embedded items by cosine similarity to vector.
func (m *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if m.dimension > 0 && len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d components, want %d", port.ErrDimensionMismatch, len(vector), m.dimension)
	}

	m.mu.RLock()
	type scored struct {
		result domain.SearchResult
		seq    int64
	}
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.record.HasEmbedding() {
			continue
		}
		candidates = append(candidates, scored{
			result: domain.SearchResult{
				Item:  copyRecord(e.record).Item,
				Score: cosineSimilarity(vector, e.record.Embedding),
			},
			seq: e.seq,
		})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	results := make([]domain.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.result
	}
	return results, nil
}

// Count returns the number of stored items.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Clear removes every item.
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[int64]*memoryEntry)
	return nil
}

// Get returns the stored record for id.
func (m *MemoryStore) Get(id int64) (domain.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.Record{}, false
	}
	return copyRecord(e.record), true
}

func (m *MemoryStore) Close() error { return nil }

// LoadSettings returns the settings saved with SaveSettings.
func (m *MemoryStore) LoadSettings(ctx context.Context) (domain.IndexSettings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return domain.IndexSettings{}, false, nil
	}
	return *m.settings, true, nil
}

// SaveSettings keeps a clamped copy of s.
func (m *MemoryStore) SaveSettings(ctx context.Context, s domain.IndexSettings) error {
	s = s.Clamp()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func copyRecord(r domain.Record) domain.Record {
	r.Item.Topics = slices.Clone(r.Item.Topics)
	r.Embedding = slices.Clone(r.Embedding)
	return r
}

var (
	_ port.VectorStore   = (*MemoryStore)(nil)
	_ port.SettingsStore = (*MemoryStore)(nil)
)
