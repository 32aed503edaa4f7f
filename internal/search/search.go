// Package search implements the two lookup backends offered to the model:
// DuckDuckGo's HTML endpoint for general web queries and the MediaWiki
// action API for encyclopedia lookups.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/voxhollow/sibyl/internal/webtext"
)

// DefaultResultCount is used when the caller does not say how many results
// it wants.
const DefaultResultCount = 10

// WebResult is one DuckDuckGo hit.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	Link    string `json:"link"`
}

// WikiResult is one Wikipedia entry. Disambiguation and missing pages keep
// their title but carry a placeholder summary and no URL.
type WikiResult struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}

// Client queries both backends.
type Client struct {
	client    *http.Client
	ddgBase   string
	wikiBase  string
	userAgent string
}

// Option is a functional option for [NewClient].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Client) { s.client = c }
}

// WithDuckDuckGoBase overrides the DuckDuckGo endpoint (tests).
func WithDuckDuckGoBase(base string) Option {
	return func(s *Client) { s.ddgBase = base }
}

// WithWikipediaBase overrides the MediaWiki API endpoint (tests).
func WithWikipediaBase(base string) Option {
	return func(s *Client) { s.wikiBase = base }
}

// WithUserAgent overrides the User-Agent header sent on requests.
func WithUserAgent(ua string) Option {
	return func(s *Client) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// NewClient returns a Client pointed at the public endpoints.
func NewClient(opts ...Option) *Client {
	s := &Client{
		client:    &http.Client{Timeout: 15 * time.Second},
		ddgBase:   "https://html.duckduckgo.com",
		wikiBase:  "https://en.wikipedia.org/w/api.php",
		userAgent: webtext.BrowserUserAgent,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// get issues a GET with the browser User-Agent both backends expect.
func (s *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("search: get %s: status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

// encodeQuery builds a query string from pairs.
func encodeQuery(pairs map[string]string) string {
	v := url.Values{}
	for k, val := range pairs {
		v.Set(k, val)
	}
	return v.Encode()
}
