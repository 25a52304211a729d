package tavily

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/websearch"
)

const (
	baseURL    = "https://api.tavily.com"
	envAPIKey  = "TAVILY_API_KEY"
	maxResults = 20

	defaultMaxResults = 5
	defaultTimeout    = 15 * time.Second
)

// DefaultDomains is the allow-list applied when a query names none.
var DefaultDomains = []string{
	"firs.gov.ng",
	"budget.gov.ng",
	"pwc.com/ng",
	"kpmg.com/ng",
	"nairametrics.com",
	"businessday.ng",
}

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("tavily: " + envAPIKey + " is not set")

var _ websearch.Searcher = (*Searcher)(nil)

// Searcher calls the Tavily /search endpoint.
type Searcher struct {
	apiKey  string
	baseURL string
	domains []string
	client  *http.Client
}

// New returns a Searcher reading TAVILY_API_KEY from the environment.
func New() *Searcher {
	return &Searcher{
		apiKey:  os.Getenv(envAPIKey),
		baseURL: baseURL,
		domains: DefaultDomains,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// WithAPIKey sets the API key.
func (s *Searcher) WithAPIKey(apiKey string) *Searcher {
	s.apiKey = apiKey
	return s
}

// WithBaseURL overrides the API base URL.
func (s *Searcher) WithBaseURL(url string) *Searcher {
	s.baseURL = strings.TrimRight(url, "/")
	return s
}

// WithDomains replaces the default allow-list. An empty list searches the
// whole web.
func (s *Searcher) WithDomains(domains []string) *Searcher {
	s.domains = domains
	return s
}

// WithHttpClient replaces the HTTP client.
func (s *Searcher) WithHttpClient(client *http.Client) *Searcher {
	s.client = client
	return s
}

// Search runs a basic-depth search.
func (s *Searcher) Search(ctx context.Context, query websearch.Query) ([]websearch.Result, error) {
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	n := query.MaxResults
	if n <= 0 {
		n = defaultMaxResults
	}
	if n > maxResults {
		n = maxResults
	}

	domains := query.IncludeDomains
	if len(domains) == 0 {
		domains = s.domains
	}

	request := searchRequest{
		Query:          query.Text,
		SearchDepth:    "basic",
		MaxResults:     n,
		IncludeDomains: domains,
	}

	_, response, err := utils.DoPostSync[searchResponse](ctx, s.client, s.baseURL+"/search", s.apiKey, request)
	if err != nil {
		return nil, fmt.Errorf("tavily: search: %w", err)
	}

	results := make([]websearch.Result, 0, len(response.Results))
	for _, item := range response.Results {
		content := cleanSnippet(item.Content)
		if content == "" {
			continue
		}
		results = append(results, websearch.Result{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.URL,
			Content: content,
			Score:   item.Score,
		})
	}
	return results, nil
}

// cleanSnippet converts HTML fragments to markdown; plain text is returned
// trimmed. Conversion failures keep the raw text.
func cleanSnippet(content string) string {
	content = strings.TrimSpace(content)
	if !looksLikeHTML(content) {
		return content
	}
	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(markdown)
}

func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	return open >= 0 && strings.IndexByte(s[open:], '>') > 0
}
