package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", srv.URL)
}

func TestListStarred(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/starred" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		for key, want := range map[string]string{"per_page": "2", "page": "3", "sort": "created", "direction": "asc"} {
			if got := q.Get(key); got != want {
				t.Errorf("query %s = %q, want %q", key, got, want)
			}
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got != apiVersion {
			t.Errorf("X-GitHub-Api-Version = %q", got)
		}
		w.Write([]byte(`[
			{"id": 1, "full_name": "a/one", "description": "first", "html_url": "https://github.com/a/one", "stargazers_count": 10, "topics": ["go"]},
			{"id": 2, "full_name": "b/two", "description": null, "html_url": "https://github.com/b/two", "stargazers_count": 3}
		]`))
	})

	items, err := c.ListStarred(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("ListStarred: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != 1 || items[0].Name != "a/one" || items[0].Description != "first" || items[0].StarCount != 10 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Description != "" || items[1].Topics == nil || len(items[1].Topics) != 0 {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestGetContent(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/a/one/readme":
			if got := r.Header.Get("Accept"); got != "application/vnd.github.raw+json" {
				t.Errorf("Accept = %q", got)
			}
			w.Write([]byte("# One\nhello"))
		case "/repos/b/none/readme":
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	})

	tests := []struct {
		name    string
		item    domain.Item
		want    string
		wantErr bool
	}{
		{"readme", domain.Item{Name: "a/one"}, "# One\nhello", false},
		{"missing readme", domain.Item{Name: "b/none"}, "", false},
		{"server error", domain.Item{Name: "c/err"}, "", true},
		{"malformed name", domain.Item{Name: "noslash"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.GetContent(context.Background(), tt.item)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTotalStarredCount(t *testing.T) {
	tests := []struct {
		name string
		link string
		body string
		want int
	}{
		{
			name: "link header",
			link: `<https://api.github.com/user/starred?per_page=1&page=2>; rel="next", <https://api.github.com/user/starred?per_page=1&page=57>; rel="last"`,
			body: `[{"id":1}]`,
			want: 57,
		},
		{"single repo", "", `[{"id":1}]`, 1},
		{"none", "", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("per_page") != "1" {
					t.Errorf("per_page = %q", r.URL.Query().Get("per_page"))
				}
				if tt.link != "" {
					w.Header().Set("Link", tt.link)
				}
				w.Write([]byte(tt.body))
			})
			got, err := c.TotalStarredCount(context.Background())
			if err != nil {
				t.Fatalf("TotalStarredCount: %v", err)
			}
			if got != tt.want {
				t.Errorf("TotalStarredCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    error
	}{
		{"unauthorized", http.StatusUnauthorized, nil, port.ErrProviderAuth},
		{"rate limited", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, port.ErrRateOrNetwork},
		{"too many requests", http.StatusTooManyRequests, nil, port.ErrRateOrNetwork},
		{"server error", http.StatusServiceUnavailable, nil, port.ErrRateOrNetwork},
		{"forbidden", http.StatusForbidden, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			})
			_, err := c.ListStarred(context.Background(), 1, 30)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.want == nil && (errors.Is(err, port.ErrProviderAuth) || errors.Is(err, port.ErrRateOrNetwork)) {
				t.Errorf("err = %v, want unclassified", err)
			}
		})
	}
}

func TestNetworkFailureIsRateOrNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := NewClient("x", srv.URL)
	srv.Close()

	_, err := c.ListStarred(context.Background(), 1, 30)
	if !errors.Is(err, port.ErrRateOrNetwork) {
		t.Errorf("err = %v, want ErrRateOrNetwork", err)
	}
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"valid", http.StatusOK, true},
		{"invalid", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/user" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{}`))
			})
			ok, err := c.ValidateCredential(context.Background())
			if err != nil {
				t.Fatalf("ValidateCredential: %v", err)
			}
			if ok != tt.want {
				t.Errorf("ValidateCredential = %v, want %v", ok, tt.want)
			}
		})
	}
}
