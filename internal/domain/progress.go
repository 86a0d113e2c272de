package domain

import "time"

// Phase labels a progress event.
type Phase string

const (
	PhaseFetching  Phase = "fetching"
	PhaseEmbedding Phase = "embedding"
)

// RunState is the state of the indexing state machine.
type RunState string

const (
	StateIdle      RunState = "idle"
	StatePaging    RunState = "paging"
	StateEmbedding RunState = "embedding"
	StateFailed    RunState = "failed"
)

// ProgressEvent is emitted while a run fetches content and embeds batches.
type ProgressEvent struct {
	Phase   Phase  `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Label   string `json:"label"`
	Detail  string `json:"detail"`
}

// RunResult holds the final counts of a run. NextPage is zero when every
// starred item is already indexed.
type RunResult struct {
	Page              int       `json:"page"`
	Indexed           int       `json:"indexed"`
	Total             int       `json:"total"`
	NextPage          int       `json:"next_page,omitempty"`
	Fetched           int       `json:"fetched"`
	ContentFailures   int       `json:"content_failures"`
	EmbeddingFailures int       `json:"embedding_failures"`
	ShortCircuited    bool      `json:"short_circuited,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
}

// HasMore reports whether a continuation page is available.
func (r RunResult) HasMore() bool {
	return r.NextPage > 0
}

// IndexStatus is a point-in-time view of the indexer.
type IndexStatus struct {
	State     RunState      `json:"state"`
	Indexed   int           `json:"indexed"`
	Total     int           `json:"total"`
	NextPage  int           `json:"next_page,omitempty"`
	Settings  IndexSettings `json:"settings"`
	LastRun   *RunResult    `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// ContinuationPage returns the page to request next, or zero when indexed
// already covers total.
func ContinuationPage(indexed, total, pageSize int) int {
	if indexed >= total || pageSize <= 0 {
		return 0
	}
	return (indexed+pageSize-1)/pageSize + 1
}
