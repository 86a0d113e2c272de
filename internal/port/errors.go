package port

import (
	"errors"
	"fmt"

	"github.com/arturoeanton/go-star-search/internal/domain"
)

// Sentinel errors used across ports.
var (
	ErrProviderAuth      = errors.New("provider rejected credential")
	ErrRateOrNetwork     = errors.New("provider rate limited or unreachable")
	ErrLengthExceeded    = errors.New("input exceeds provider context length")
	ErrStorage           = errors.New("vector store write failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrAlreadyRunning    = errors.New("indexing run already in progress")
	ErrEmptyQuery        = errors.New("query text is empty")
)

// Item stages used in ItemError.
const (
	StageContent   = "content"
	StageEmbedding = "embedding"
)

// ItemError is a failure confined to a single item. It is absorbed by the
// indexer and never aborts a batch or page.
type ItemError struct {
	ItemID int64
	Name   string
	Stage  string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s (%d) %s: %v", e.Name, e.ItemID, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// RunError is a run-level failure, annotated with where the run stopped so the
// caller can resume or report it.
type RunError struct {
	Page  int
	Phase domain.RunState
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("index page %d (%s): %v", e.Page, e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
