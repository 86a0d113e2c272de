package domain

// DefaultEmbeddingDimension is the vector length produced by text-embedding-3-large.
const DefaultEmbeddingDimension = 3072

// Record is an item together with its embedding. A nil Embedding means the
// item is stored but excluded from similarity search.
type Record struct {
	Item      Item
	Embedding []float32
}

// HasEmbedding reports whether the record carries a vector.
func (r Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// SearchResult is returned by semantic search, including similarity score.
type SearchResult struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"` // 1 - cosine distance
}
