package search

import (
	"context"
	"encoding/json"
	"fmt"
)

// placeholder summaries for pages that have no usable extract.
const (
	summaryDisambiguation = "Disambiguation page, multiple meanings exist"
	summaryMissing        = "Page does not exist."
)

// Wikipedia looks query up via the MediaWiki action API: an opensearch call
// for matching titles, then a two-sentence plain-text extract per title.
// Disambiguation and missing pages become placeholder entries rather than
// errors so the model sees the full candidate list. At most count entries
// are returned.
func (s *Client) Wikipedia(ctx context.Context, query string, count int) ([]WikiResult, error) {
	if count < 1 {
		count = DefaultResultCount
	}

	titles, err := s.openSearch(ctx, query, count)
	if err != nil {
		return nil, err
	}

	results := make([]WikiResult, 0, len(titles))
	for _, title := range titles {
		entry, err := s.extract(ctx, title)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, nil
}

// openSearch returns up to limit page titles matching query.
func (s *Client) openSearch(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := s.get(ctx, s.wikiBase+"?"+encodeQuery(map[string]string{
		"action": "opensearch",
		"search": query,
		"limit":  fmt.Sprint(limit),
		"format": "json",
	}))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Opensearch replies with a four-element mixed array:
	// [query, [titles], [descriptions], [urls]].
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("search: decode opensearch response: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("search: opensearch response has %d elements", len(raw))
	}
	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, fmt.Errorf("search: decode opensearch titles: %w", err)
	}
	return titles, nil
}

// extract fetches the two-sentence summary and canonical URL for one title.
func (s *Client) extract(ctx context.Context, title string) (WikiResult, error) {
	resp, err := s.get(ctx, s.wikiBase+"?"+encodeQuery(map[string]string{
		"action":        "query",
		"prop":          "extracts|info|pageprops",
		"inprop":        "url",
		"exsentences":   "2",
		"explaintext":   "1",
		"redirects":     "1",
		"titles":        title,
		"format":        "json",
		"formatversion": "2",
	}))
	if err != nil {
		return WikiResult{}, err
	}
	defer resp.Body.Close()

	var decoded struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Extract   string `json:"extract"`
				FullURL   string `json:"fullurl"`
				Missing   bool   `json:"missing"`
				PageProps struct {
					Disambiguation *string `json:"disambiguation"`
				} `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return WikiResult{}, fmt.Errorf("search: decode extract response: %w", err)
	}
	if len(decoded.Query.Pages) == 0 {
		return WikiResult{Title: title, Summary: summaryMissing}, nil
	}

	page := decoded.Query.Pages[0]
	switch {
	case page.Missing:
		return WikiResult{Title: title, Summary: summaryMissing}, nil
	case page.PageProps.Disambiguation != nil:
		return WikiResult{Title: title, Summary: summaryDisambiguation}, nil
	}
	return WikiResult{Title: title, Summary: page.Extract, URL: page.FullURL}, nil
}
