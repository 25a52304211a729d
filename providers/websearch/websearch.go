// Package websearch defines the contract for live web search used to enrich
// answers with current rates and news.
package websearch

import (
	"context"
	"fmt"
	"strings"
)

// Query is a search request. Empty IncludeDomains lets the implementation
// apply its own defaults.
type Query struct {
	Text           string
	MaxResults     int
	IncludeDomains []string
}

// Result is one search hit. Content is plain text or markdown.
type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// Searcher performs web searches. No results is an empty slice and a nil
// error.
type Searcher interface {
	Search(ctx context.Context, query Query) ([]Result, error)
}

// Format renders results as numbered blocks for a generation prompt.
func Format(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[Web Source %d]\nURL: %s\n", i+1, r.URL)
		if r.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", r.Title)
		}
		fmt.Fprintf(&b, "Content: %s\n", r.Content)
	}
	return b.String()
}
