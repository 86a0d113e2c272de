package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

const testDim = 3

func starred(names ...string) []domain.Item {
	items := make([]domain.Item, len(names))
	for i, n := range names {
		items[i] = domain.Item{
			ID:          int64(i + 1),
			Name:        n,
			Description: "about " + n,
			URL:         "https://github.com/" + n,
		}
	}
	return items
}

type fakeSource struct {
	mu         sync.Mutex
	items      []domain.Item
	content    map[string]string
	contentErr map[string]error
	total      int
	totalErr   error
	listErr    error
	listCalls  int

	// When set, ListStarred signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSource) ListStarred(ctx context.Context, page, pageSize int) ([]domain.Item, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := (page - 1) * pageSize
	if start >= len(f.items) {
		return nil, nil
	}
	end := min(start+pageSize, len(f.items))
	return slices.Clone(f.items[start:end]), nil
}

func (f *fakeSource) GetContent(ctx context.Context, item domain.Item) (string, error) {
	if err := f.contentErr[item.Name]; err != nil {
		return "", err
	}
	return f.content[item.Name], nil
}

func (f *fakeSource) TotalStarredCount(ctx context.Context) (int, error) {
	if f.totalErr != nil {
		return 0, f.totalErr
	}
	if f.total > 0 {
		return f.total, nil
	}
	return len(f.items), nil
}

func (f *fakeSource) ValidateCredential(ctx context.Context) (bool, error) {
	return true, nil
}

// fakeEmbedder maps documents to vectors by repository name. Documents start
// with "Repository: <name>"; anything else is looked up verbatim.
type fakeEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	batchErr  func(call int) error
	oneErr    func(key, text string) error
	batches   int
	oneInputs []string
}

func (e *fakeEmbedder) ModelName() string { return "fake-embedding" }
func (e *fakeEmbedder) Dimension() int    { return testDim }

func (e *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.oneInputs = append(e.oneInputs, text)
	e.mu.Unlock()

	key := docKey(text)
	if e.oneErr != nil {
		if err := e.oneErr(key, text); err != nil {
			return nil, err
		}
	}
	return e.vector(key), nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	call := e.batches
	e.mu.Unlock()

	if e.batchErr != nil {
		if err := e.batchErr(call); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(docKey(t))
	}
	return out, nil
}

func (e *fakeEmbedder) vector(key string) []float32 {
	if v, ok := e.vectors[key]; ok {
		return slices.Clone(v)
	}
	return []float32{1, 1, 1}
}

func (e *fakeEmbedder) oneCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.oneInputs)
}

func docKey(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	if name, ok := strings.CutPrefix(first, "Repository: "); ok {
		return name
	}
	return text
}

func failOn(names ...string) func(string, string) error {
	return func(key, _ string) error {
		if slices.Contains(names, key) {
			return errors.New("embedding rejected")
		}
		return nil
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	started  []int
	events   []domain.ProgressEvent
	finished []domain.RunResult
	failed   []error
}

func (r *recordingNotifier) Started(page int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, page)
}

func (r *recordingNotifier) Progress(ev domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) Finished(res domain.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
}

func (r *recordingNotifier) Failed(page int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

type panickingNotifier struct{ port.NopNotifier }

func (panickingNotifier) Progress(domain.ProgressEvent) { panic("listener bug") }
func (panickingNotifier) Finished(domain.RunResult)     { panic("listener bug") }

// failingStore wraps a store and rejects upserts after the first okUpserts.
type failingStore struct {
	port.VectorStore
	mu        sync.Mutex
	okUpserts int
	upserts   int
}

func (s *failingStore) Upsert(ctx context.Context, records []domain.Record) error {
	s.mu.Lock()
	s.upserts++
	n := s.upserts
	s.mu.Unlock()
	if n > s.okUpserts {
		return errors.New("disk full")
	}
	return s.VectorStore.Upsert(ctx, records)
}
