package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arturoeanton/go-star-search/internal/adapter/store"
	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/service"
)

type staticSource struct{ items []domain.Item }

func (s staticSource) ListStarred(ctx context.Context, page, pageSize int) ([]domain.Item, error) {
	start := (page - 1) * pageSize
	if start >= len(s.items) {
		return nil, nil
	}
	return s.items[start:min(start+pageSize, len(s.items))], nil
}
func (staticSource) GetContent(context.Context, domain.Item) (string, error) { return "", nil }
func (s staticSource) TotalStarredCount(context.Context) (int, error)        { return len(s.items), nil }
func (staticSource) ValidateCredential(context.Context) (bool, error)        { return true, nil }

type unitEmbedder struct{}

func (unitEmbedder) ModelName() string { return "unit" }
func (unitEmbedder) Dimension() int    { return 2 }
func (unitEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (unitEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	src := staticSource{items: []domain.Item{
		{ID: 1, Name: "spf13/cobra", Description: "CLI framework", URL: "https://github.com/spf13/cobra"},
		{ID: 2, Name: "gofiber/fiber", URL: "https://github.com/gofiber/fiber"},
	}}
	vs := store.NewMemoryStore(2)
	ix, err := service.NewIndexer(context.Background(), src, unitEmbedder{}, vs, vs, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(service.NewSearchService(unitEmbedder{}, vs), ix, "0")
}

func call(t *testing.T, s *Server, body string) JSONRPCResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))
	var resp JSONRPCResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestToolsList(t *testing.T) {
	resp := call(t, newTestServer(t), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	raw, _ := json.Marshal(resp.Result)
	for _, name := range []string{"search_stars", "index_page", "index_status"} {
		if !strings.Contains(string(raw), name) {
			t.Errorf("tools/list missing %s", name)
		}
	}
}

func TestIndexThenSearch(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"index_page","arguments":{"page":1}}}`)
	if resp.Error != nil {
		t.Fatalf("index_page: %+v", resp.Error)
	}

	resp = call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search_stars","arguments":{"query":"cli","k":5}}}`)
	if resp.Error != nil {
		t.Fatalf("search_stars: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	if !strings.Contains(string(raw), "spf13/cobra") || !strings.Contains(string(raw), "gofiber/fiber") {
		t.Errorf("search result = %s", raw)
	}

	resp = call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"index_status"}}`)
	raw, _ = json.Marshal(resp.Result)
	if !strings.Contains(string(raw), "2 of 2 indexed") {
		t.Errorf("index_status = %s", raw)
	}
}

func TestRPCErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{`, -32700},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, -32601},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, -32603},
		{"empty query", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_stars","arguments":{"query":" "}}}`, -32603},
	}
	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, s, tt.body)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.code)
			}
		})
	}
}
