// Package knowledge defines the contract for the external retrieval service
// that returns document passages relevant to a query. Indexing, embeddings and
// similarity search live behind this interface.
package knowledge

import (
	"context"
	"errors"
)

// Domains understood by the retrieval service.
const (
	DomainTax      = "tax"
	DomainPayroll  = "payroll"
	DomainCombined = "combined"
)

// ErrUnavailable wraps transport or service failures.
var ErrUnavailable = errors.New("knowledge: retrieval unavailable")

// Query is a retrieval request.
type Query struct {
	Text   string `json:"query"`
	Domain string `json:"domain"`
	TopK   int    `json:"top_k"`
}

// Passage is one retrieved excerpt, most relevant first.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Kind   string  `json:"type,omitempty"`
	Score  float64 `json:"score"`
}

// Provider retrieves passages for a query. An empty slice with a nil error
// means nothing relevant was found.
type Provider interface {
	Retrieve(ctx context.Context, query Query) ([]Passage, error)
}
