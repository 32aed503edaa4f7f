// Package webtext fetches web pages and reduces them to plain text small
// enough to hand to a language model. Only static HTML is handled; pages
// that require script execution come back mostly empty, which the model can
// say out loud.
package webtext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// BrowserUserAgent is sent on outbound requests. Several sites serve an
// interstitial or an empty shell to obvious bot agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// MaxTextLength caps the extracted text handed back to the caller.
const MaxTextLength = 8000

// defaultAttempts is how many times a fetch is tried before giving up.
const defaultAttempts = 3

// Fetcher retrieves pages with retry and extracts their text.
type Fetcher struct {
	client    *http.Client
	attempts  int
	backoff   time.Duration
	userAgent string
}

// Option is a functional option for [NewFetcher].
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithBackoff overrides the delay between attempts. Tests use zero.
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) { f.backoff = d }
}

// WithUserAgent overrides the User-Agent header sent on requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewFetcher returns a Fetcher with three attempts and a 2 s backoff.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 20 * time.Second},
		attempts:  defaultAttempts,
		backoff:   2 * time.Second,
		userAgent: BrowserUserAgent,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs url and returns its extracted text, truncated to
// MaxTextLength. Network failures and 5xx responses are retried with
// backoff; the last error is returned once attempts are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.backoff):
			}
		}

		text, err := f.fetchOnce(ctx, url)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("webtext: failed to open %s after %d attempts: %w", url, f.attempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("webtext: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webtext: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("webtext: get %s: status %d", url, resp.StatusCode)
	}

	text := Extract(resp.Body)
	if len(text) > MaxTextLength {
		text = text[:MaxTextLength]
	}
	return text, nil
}

// Extract tokenizes HTML from r and returns the visible text joined with
// single spaces. Script and style contents are skipped.
func Extract(r io.Reader) string {
	tok := html.NewTokenizer(r)
	var (
		parts    []string
		skipping string
	)
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skipping = string(name)
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			if string(name) == skipping {
				skipping = ""
			}
		case html.TextToken:
			if skipping != "" {
				continue
			}
			if t := strings.TrimSpace(string(tok.Text())); t != "" {
				parts = append(parts, t)
			}
		}
	}
}
