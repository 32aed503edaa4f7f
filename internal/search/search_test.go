package search_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxhollow/sibyl/internal/search"
)

const ddgPage = `<html><body>
<div class="result">
  <a class="result__a" href="https://example.com/one">First <b>Result</b></a>
  <a class="result__snippet" href="https://example.com/one">Snippet one.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/two">Second Result</a>
</div>
<a class="nav-link" href="/next">More</a>
</body></html>`

func TestWeb_ParsesResultAnchors(t *testing.T) {
	t.Parallel()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/html/" {
			t.Errorf("path = %q, want /html/", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("User-Agent = %q, want a browser string", ua)
		}
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	c := search.NewClient(search.WithDuckDuckGoBase(srv.URL))
	results, err := c.Web(context.Background(), "go programming", 10)
	if err != nil {
		t.Fatalf("Web: %v", err)
	}
	if gotQuery != "go programming" {
		t.Errorf("query = %q, want it forwarded verbatim", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Title != "First Result" || results[0].Link != "https://example.com/one" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[0].Snippet != "Snippet one." {
		t.Errorf("first snippet = %q, want Snippet one.", results[0].Snippet)
	}
	if results[1].Snippet != "" {
		t.Errorf("second snippet = %q, want empty", results[1].Snippet)
	}
}

func TestWeb_HonorsCount(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	c := search.NewClient(search.WithDuckDuckGoBase(srv.URL))
	results, err := c.Web(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Web: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

// fakeWiki serves opensearch and extract responses keyed by title.
func fakeWiki(t *testing.T, titles []string, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "opensearch":
			w.Header().Set("Content-Type", "application/json")
			out := `["` + q.Get("search") + `",[`
			for i, title := range titles {
				if i > 0 {
					out += ","
				}
				out += `"` + title + `"`
			}
			out += `],[],[]]`
			_, _ = w.Write([]byte(out))
		case "query":
			title := q.Get("titles")
			if q.Get("exsentences") != "2" {
				t.Errorf("exsentences = %q, want 2", q.Get("exsentences"))
			}
			body, ok := pages[title]
			if !ok {
				body = `{"query":{"pages":[{"title":"` + title + `","missing":true}]}}`
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		default:
			t.Errorf("unexpected action %q", q.Get("action"))
		}
	}))
}

func TestWikipedia_SummariesAndPlaceholders(t *testing.T) {
	t.Parallel()
	srv := fakeWiki(t,
		[]string{"Go (programming language)", "Go", "Gone"},
		map[string]string{
			"Go (programming language)": `{"query":{"pages":[{"title":"Go (programming language)",` +
				`"extract":"Go is a programming language. It was designed at Google.",` +
				`"fullurl":"https://en.wikipedia.org/wiki/Go_(programming_language)"}]}}`,
			"Go": `{"query":{"pages":[{"title":"Go","extract":"Go may refer to:",` +
				`"fullurl":"https://en.wikipedia.org/wiki/Go","pageprops":{"disambiguation":""}}]}}`,
		})
	defer srv.Close()

	c := search.NewClient(search.WithWikipediaBase(srv.URL))
	results, err := c.Wikipedia(context.Background(), "go", 10)
	if err != nil {
		t.Fatalf("Wikipedia: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !strings.Contains(results[0].Summary, "designed at Google") || results[0].URL == "" {
		t.Errorf("first result = %+v, want summary and url", results[0])
	}
	if results[1].Summary != "Disambiguation page, multiple meanings exist" || results[1].URL != "" {
		t.Errorf("disambiguation result = %+v", results[1])
	}
	if results[2].Summary != "Page does not exist." {
		t.Errorf("missing result = %+v", results[2])
	}
}

func TestWikipedia_EmptySearch(t *testing.T) {
	t.Parallel()
	srv := fakeWiki(t, nil, nil)
	defer srv.Close()

	c := search.NewClient(search.WithWikipediaBase(srv.URL))
	results, err := c.Wikipedia(context.Background(), "zzzz", 10)
	if err != nil {
		t.Fatalf("Wikipedia: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}
