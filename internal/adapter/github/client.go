package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

const (
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
)

var lastPageRe = regexp.MustCompile(`[?&]page=(\d+)[^>]*>;\s*rel="last"`)

// Client implements port.SourceProvider against the GitHub REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a GitHub client for the user owning token. An empty
// baseURL targets api.github.com.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type starredRepo struct {
	ID              int64    `json:"id"`
	FullName        string   `json:"full_name"`
	Description     *string  `json:"description"`
	HTMLURL         string   `json:"html_url"`
	StargazersCount int      `json:"stargazers_count"`
	Topics          []string `json:"topics"`
}

// ListStarred returns one page of the authenticated user's starred repos,
// oldest star first.
func (c *Client) ListStarred(ctx context.Context, page, pageSize int) ([]domain.Item, error) {
	params := url.Values{
		"per_page":  {strconv.Itoa(pageSize)},
		"page":      {strconv.Itoa(page)},
		"sort":      {"created"},
		"direction": {"asc"},
	}

	resp, err := c.get(ctx, "/user/starred?"+params.Encode(), "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("github: list starred: %w", err)
	}
	defer resp.Body.Close()

	var repos []starredRepo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("github: decode starred: %w", err)
	}

	items := make([]domain.Item, len(repos))
	for i, r := range repos {
		items[i] = r.toItem()
	}
	return items, nil
}

// GetContent fetches the raw readme of item. A repo without a readme yields "".
func (c *Client) GetContent(ctx context.Context, item domain.Item) (string, error) {
	owner, repo, ok := strings.Cut(item.Name, "/")
	if !ok {
		return "", fmt.Errorf("github: malformed repo name %q", item.Name)
	}

	path := fmt.Sprintf("/repos/%s/%s/readme", url.PathEscape(owner), url.PathEscape(repo))
	resp, err := c.get(ctx, path, "application/vnd.github.raw+json")
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("github: readme %s: %w", item.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("github: read readme %s: %w", item.Name, err)
	}
	return string(body), nil
}

// TotalStarredCount asks for one repo per page and reads the page count off
// the Link header, which equals the number of starred repos.
func (c *Client) TotalStarredCount(ctx context.Context) (int, error) {
	resp, err := c.get(ctx, "/user/starred?per_page=1", "application/vnd.github+json")
	if err != nil {
		return 0, fmt.Errorf("github: count starred: %w", err)
	}
	defer resp.Body.Close()

	if m := lastPageRe.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, nil
		}
	}

	// No pagination: at most one starred repo.
	var repos []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return 0, fmt.Errorf("github: decode starred: %w", err)
	}
	return len(repos), nil
}

// ValidateCredential reports whether the token is accepted by GET /user.
func (c *Client) ValidateCredential(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/user", "application/vnd.github+json")
	if err != nil {
		if errors.Is(err, port.ErrProviderAuth) {
			return false, nil
		}
		return false, fmt.Errorf("github: validate credential: %w", err)
	}
	resp.Body.Close()
	return true, nil
}

// get performs an authenticated GET and maps failure statuses onto port errors.
// The caller owns the response body on success.
func (c *Client) get(ctx context.Context, path, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrRateOrNetwork, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, classify(resp, body)
}

type statusError struct {
	code int
	body string
	kind error
}

func (e *statusError) Error() string {
	if e.kind != nil {
		return fmt.Sprintf("%v (%d): %s", e.kind, e.code, e.body)
	}
	return fmt.Sprintf("github API error (%d): %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return e.kind }

func classify(resp *http.Response, body []byte) error {
	se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		se.kind = port.ErrProviderAuth
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0",
		resp.StatusCode >= 500:
		se.kind = port.ErrRateOrNetwork
	}
	return se
}

func (r starredRepo) toItem() domain.Item {
	item := domain.Item{
		ID:        r.ID,
		Name:      r.FullName,
		URL:       r.HTMLURL,
		StarCount: r.StargazersCount,
		Topics:    r.Topics,
	}
	if r.Description != nil {
		item.Description = *r.Description
	}
	if item.Topics == nil {
		item.Topics = []string{}
	}
	return item
}

var _ port.SourceProvider = (*Client)(nil)
