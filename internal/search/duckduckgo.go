package search

import (
	"context"
	"strings"

	"golang.org/x/net/html"
)

// Web runs a DuckDuckGo HTML search and returns up to count results in page
// order. A count below one selects DefaultResultCount.
func (s *Client) Web(ctx context.Context, query string, count int) ([]WebResult, error) {
	if count < 1 {
		count = DefaultResultCount
	}

	resp, err := s.get(ctx, s.ddgBase+"/html/?"+encodeQuery(map[string]string{"q": query}))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	results := parseDuckDuckGo(doc)
	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

// parseDuckDuckGo walks the result page. Titles and links come from anchors
// with class result__a; the snippet is the nearest following element with
// class result__snippet and attaches to the last seen result.
func parseDuckDuckGo(doc *html.Node) []WebResult {
	var results []WebResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				results = append(results, WebResult{
					Title: nodeText(n),
					Link:  attr(n, "href"),
				})
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = nodeText(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates the text nodes under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
