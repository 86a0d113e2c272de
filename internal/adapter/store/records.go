package store

import (
	"fmt"
	"math"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

// validateRecords rejects a batch before anything is written.
func validateRecords(records []domain.Record, dimension int) error {
	for _, r := range records {
		if r.Item.ID == 0 {
			return fmt.Errorf("record %q has no id", r.Item.Name)
		}
		if r.HasEmbedding() && dimension > 0 && len(r.Embedding) != dimension {
			return fmt.Errorf("%w: item %d has %d components, want %d",
				port.ErrDimensionMismatch, r.Item.ID, len(r.Embedding), dimension)
		}
	}
	return nil
}

// cosineSimilarity returns 1 - cosine distance. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
