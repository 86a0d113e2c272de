package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/gofiber/fiber/v3"
)

// Snapshot states reported by the tracker.
const (
	RunIdle     = "idle"
	RunRunning  = "running"
	RunComplete = "complete"
	RunError    = "error"
)

// RunSnapshot is the latest known state of the indexing run.
type RunSnapshot struct {
	Status    string                `json:"status"`
	Page      int                   `json:"page,omitempty"`
	Event     *domain.ProgressEvent `json:"event,omitempty"`
	Result    *domain.RunResult     `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func (s RunSnapshot) done() bool {
	return s.Status == RunComplete || s.Status == RunError
}

// ProgressTracker receives indexer notifications and fans them out to SSE
// subscribers. Sends never block: a slow subscriber drops updates.
type ProgressTracker struct {
	mu   sync.RWMutex
	last RunSnapshot
	subs map[chan RunSnapshot]struct{}
}

// NewProgressTracker creates an idle tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		last: RunSnapshot{Status: RunIdle, UpdatedAt: time.Now()},
		subs: make(map[chan RunSnapshot]struct{}),
	}
}

func (t *ProgressTracker) Started(page int) {
	t.update(func(s *RunSnapshot) {
		*s = RunSnapshot{Status: RunRunning, Page: page}
	})
}

func (t *ProgressTracker) Progress(ev domain.ProgressEvent) {
	t.update(func(s *RunSnapshot) {
		s.Event = &ev
	})
}

func (t *ProgressTracker) Finished(res domain.RunResult) {
	t.update(func(s *RunSnapshot) {
		s.Status = RunComplete
		s.Page = res.Page
		s.Result = &res
	})
}

func (t *ProgressTracker) Failed(page int, err error) {
	t.update(func(s *RunSnapshot) {
		s.Status = RunError
		s.Page = page
		s.Error = err.Error()
	})
}

func (t *ProgressTracker) update(fn func(*RunSnapshot)) {
	t.mu.Lock()
	fn(&t.last)
	t.last.UpdatedAt = time.Now()
	snapshot := t.last
	subs := make([]chan RunSnapshot, 0, len(t.subs))
	for ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Snapshot returns the latest state.
func (t *ProgressTracker) Snapshot() RunSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Subscribe returns a channel that receives every subsequent update, along
// with the state at the moment of subscribing. No update falls between the
// two.
func (t *ProgressTracker) Subscribe() (chan RunSnapshot, RunSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan RunSnapshot, 32)
	t.subs[ch] = struct{}{}
	return ch, t.last
}

// Unsubscribe removes and closes ch.
func (t *ProgressTracker) Unsubscribe(ch chan RunSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
}

var _ port.Notifier = (*ProgressTracker)(nil)

// StreamSSE streams run updates via Server-Sent Events until the run ends.
// When no run is in flight the current snapshot is sent once.
func (h *IndexHandler) StreamSSE(c fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	ch, snapshot := h.tracker.Subscribe()
	if snapshot.Status != RunRunning {
		h.tracker.Unsubscribe(ch)
		return c.SendString(sseEvent(snapshot))
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(ch)

		fmt.Fprint(w, sseEvent(snapshot))
		w.Flush()

		timeout := time.After(h.streamTimeout)
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprint(w, sseEvent(update))
				if err := w.Flush(); err != nil {
					return
				}
				if update.done() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "page", snapshot.Page)
				return
			}
		}
	})
}

func sseEvent(s RunSnapshot) string {
	eventType := "progress"
	switch s.Status {
	case RunComplete, RunError, RunIdle:
		eventType = s.Status
	}
	data, _ := json.Marshal(s)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}
