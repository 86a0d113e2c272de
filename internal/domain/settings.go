package domain

import (
	"encoding/json"
	"math"
)

// Bounds for the tunable indexing settings.
const (
	MinBatchSize  = 1
	MaxBatchSize  = 50
	MinMaxRetries = 1
	MaxMaxRetries = 10
	MinPageSize   = 1
	MaxPageSize   = 100
)

// IndexSettings controls how an indexing run pages and batches its work.
type IndexSettings struct {
	BatchSize  int `json:"batch_size"  yaml:"batch_size"  mapstructure:"batch_size"`
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	PageSize   int `json:"page_size"   yaml:"page_size"   mapstructure:"page_size"`
}

// DefaultIndexSettings returns the settings used before any update.
func DefaultIndexSettings() IndexSettings {
	return IndexSettings{BatchSize: 5, MaxRetries: 5, PageSize: 30}
}

// Clamp returns a copy with every field forced into its allowed range.
func (s IndexSettings) Clamp() IndexSettings {
	s.BatchSize = clamp(s.BatchSize, MinBatchSize, MaxBatchSize)
	s.MaxRetries = clamp(s.MaxRetries, MinMaxRetries, MaxMaxRetries)
	s.PageSize = clamp(s.PageSize, MinPageSize, MaxPageSize)
	return s
}

// Apply merges a loosely typed patch (as decoded from JSON or flags) into s.
// Numeric values are clamped into range; anything non-numeric for a field is
// ignored and the previous value is kept. Unknown keys are ignored.
func (s IndexSettings) Apply(patch map[string]any) IndexSettings {
	if n, ok := numeric(patch["batch_size"]); ok {
		s.BatchSize = n
	}
	if n, ok := numeric(patch["max_retries"]); ok {
		s.MaxRetries = n
	}
	if n, ok := numeric(patch["page_size"]); ok {
		s.PageSize = n
	}
	return s.Clamp()
}

func numeric(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		f = float64(n)
	case int32:
		return int(n), true
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	// Saturate before converting so huge inputs still clamp to the max.
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(f), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
