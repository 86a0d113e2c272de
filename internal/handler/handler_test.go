package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arturoeanton/go-star-search/internal/adapter/store"
	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/arturoeanton/go-star-search/internal/service"
	"github.com/gofiber/fiber/v3"
)

type stubSource struct {
	items   []domain.Item
	valid   bool
	entered chan struct{}
	release chan struct{}
}

func (s *stubSource) ListStarred(ctx context.Context, page, pageSize int) ([]domain.Item, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	start := (page - 1) * pageSize
	if start >= len(s.items) {
		return nil, nil
	}
	return s.items[start:min(start+pageSize, len(s.items))], nil
}

func (s *stubSource) GetContent(ctx context.Context, item domain.Item) (string, error) {
	return "readme for " + item.Name, nil
}

func (s *stubSource) TotalStarredCount(ctx context.Context) (int, error) {
	return len(s.items), nil
}

func (s *stubSource) ValidateCredential(ctx context.Context) (bool, error) {
	return s.valid, nil
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) ModelName() string { return "stub" }
func (e *stubEmbedder) Dimension() int    { return 3 }

func (e *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := e.EmbedOne(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type testEnv struct {
	app      *fiber.App
	source   *stubSource
	embedder *stubEmbedder
	store    *store.MemoryStore
	indexer  *service.Indexer
	tracker  *ProgressTracker
}

func newTestEnv(t *testing.T, names ...string) *testEnv {
	t.Helper()
	items := make([]domain.Item, len(names))
	for i, n := range names {
		items[i] = domain.Item{ID: int64(i + 1), Name: n, URL: "https://github.com/" + n}
	}

	env := &testEnv{
		source:   &stubSource{items: items},
		embedder: &stubEmbedder{},
		store:    store.NewMemoryStore(3),
		tracker:  NewProgressTracker(),
	}
	ix, err := service.NewIndexer(context.Background(), env.source, env.embedder, env.store, env.store, env.tracker, 0)
	if err != nil {
		t.Fatal(err)
	}
	env.indexer = ix

	env.app = fiber.New()
	api := env.app.Group("/api/v1")
	NewIndexHandler(ix, env.tracker).Register(api)
	NewSearchHandler(service.NewSearchService(env.embedder, env.store)).Register(api)
	NewSettingsHandler(ix, env.source).Register(api)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestIndexRunAndSearch(t *testing.T) {
	env := newTestEnv(t, "a/one", "b/two")

	status, body := env.do(t, http.MethodPost, "/api/v1/index/run?wait=true", `{"page": 1}`)
	if status != http.StatusOK {
		t.Fatalf("run status = %d, body %v", status, body)
	}
	if body["indexed"] != float64(2) {
		t.Errorf("indexed = %v, want 2", body["indexed"])
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/search", `{"query": "cli tools", "k": 1}`)
	if status != http.StatusOK {
		t.Fatalf("search status = %d, body %v", status, body)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty query", `{"query": "  "}`, http.StatusBadRequest},
		{"malformed body", `{"query":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := env.do(t, http.MethodPost, "/api/v1/search", tt.body); status != tt.want {
				t.Errorf("status = %d, want %d (%v)", status, tt.want, body)
			}
		})
	}
}

func TestSearchProviderErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.err = fmt.Errorf("openai: %w", port.ErrProviderAuth)

	status, _ := env.do(t, http.MethodPost, "/api/v1/search", `{"query": "x"}`)
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", status)
	}
}

func TestIndexRunConflictWhileRunning(t *testing.T) {
	env := newTestEnv(t, "a/one")
	env.source.entered = make(chan struct{})
	env.source.release = make(chan struct{})

	status, body := env.do(t, http.MethodPost, "/api/v1/index/run", "")
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, body %v", status, body)
	}
	<-env.source.entered

	if status, _ := env.do(t, http.MethodPost, "/api/v1/index/run", `{"page": 2}`); status != http.StatusConflict {
		t.Errorf("second run status = %d, want 409", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/api/v1/index/reindex", ""); status != http.StatusConflict {
		t.Errorf("reindex status = %d, want 409", status)
	}
	close(env.source.release)
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPut, "/api/v1/settings", `{"batch_size": 999, "page_size": "abc", "max_retries": 2}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["batch_size"] != float64(domain.MaxBatchSize) || body["page_size"] != float64(30) || body["max_retries"] != float64(2) {
		t.Errorf("settings = %v", body)
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/settings", "")
	if body["batch_size"] != float64(domain.MaxBatchSize) {
		t.Errorf("GET settings = %v", body)
	}

	if status, _ := env.do(t, http.MethodPut, "/api/v1/settings", `not json`); status != http.StatusBadRequest {
		t.Errorf("malformed PUT status = %d, want 400", status)
	}
}

func TestValidateSource(t *testing.T) {
	env := newTestEnv(t)
	_, body := env.do(t, http.MethodGet, "/api/v1/source/validate", "")
	if body["valid"] != false {
		t.Errorf("valid = %v, want false", body["valid"])
	}
}

func TestIndexStatus(t *testing.T) {
	env := newTestEnv(t, "a/one", "b/two")
	status, body := env.do(t, http.MethodGet, "/api/v1/index/status", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	idx, _ := body["index"].(map[string]any)
	if idx["total"] != float64(2) || idx["state"] != string(domain.StateIdle) {
		t.Errorf("index status = %v", idx)
	}
}

func TestStreamWhenIdleSendsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/index/stream", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(raw), "event: idle\ndata: ") {
		t.Errorf("stream body = %q", raw)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{port.ErrAlreadyRunning, http.StatusConflict},
		{port.ErrEmptyQuery, http.StatusBadRequest},
		{&port.RunError{Page: 1, Err: port.ErrProviderAuth}, http.StatusUnauthorized},
		{fmt.Errorf("x: %w", port.ErrRateOrNetwork), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
