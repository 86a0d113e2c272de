package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/observability"
	"github.com/arturoeanton/go-star-search/internal/port"
)

// DefaultSearchLimit is used when a caller passes k <= 0.
const DefaultSearchLimit = 10

// SearchService answers free-text queries against the indexed stars.
type SearchService struct {
	embedder port.EmbeddingProvider
	store    port.VectorStore
}

// NewSearchService creates a new search service.
func NewSearchService(embedder port.EmbeddingProvider, store port.VectorStore) *SearchService {
	return &SearchService{embedder: embedder, store: store}
}

// Search embeds the query once and returns the k nearest items.
func (s *SearchService) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, port.ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}

	ctx, span := observability.StartSearchSpan(ctx, s.embedder.ModelName(), k)
	defer span.End()

	slog.Debug("search", "query", query, "k", k)

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Query(ctx, vector, k)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("query store: %w", err)
	}
	return results, nil
}
