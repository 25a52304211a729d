// Package httpknowledge is a knowledge.Provider that calls a retrieval service
// over HTTP: POST {base}/query with a JSON body and optional bearer key.
package httpknowledge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/knowledge"
)

const (
	envBaseURL = "KNOWLEDGE_BASE_URL"
	envAPIKey  = "KNOWLEDGE_API_KEY"

	defaultTimeout = 15 * time.Second
	defaultTopK    = 3
)

var _ knowledge.Provider = (*Client)(nil)

// Client talks to the retrieval service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type queryResponse struct {
	Passages []knowledge.Passage `json:"passages"`
}

// New reads KNOWLEDGE_BASE_URL and KNOWLEDGE_API_KEY from the environment.
func New() *Client {
	return &Client{
		baseURL: strings.TrimRight(os.Getenv(envBaseURL), "/"),
		apiKey:  os.Getenv(envAPIKey),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// WithBaseURL overrides the service URL.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithAPIKey sets the bearer key.
func (c *Client) WithAPIKey(apiKey string) *Client {
	c.apiKey = apiKey
	return c
}

// WithHttpClient replaces the HTTP client.
func (c *Client) WithHttpClient(client *http.Client) *Client {
	c.client = client
	return c
}

// Retrieve returns passages ordered by score, at most query.TopK of them.
func (c *Client) Retrieve(ctx context.Context, query knowledge.Query) ([]knowledge.Passage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: %s is not set", knowledge.ErrUnavailable, envBaseURL)
	}
	if query.TopK <= 0 {
		query.TopK = defaultTopK
	}

	_, out, err := utils.DoPostSync[queryResponse](ctx, c.client, c.baseURL+"/query", c.apiKey, query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", knowledge.ErrUnavailable, err)
	}

	passages := make([]knowledge.Passage, 0, len(out.Passages))
	for _, p := range out.Passages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		passages = append(passages, p)
		if len(passages) == query.TopK {
			break
		}
	}
	return passages, nil
}
