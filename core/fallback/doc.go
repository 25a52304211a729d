// Package fallback implements the provider fallback client: an ordered list of
// generation backends tried one after another until one produces text.
//
// The client remembers the last backend that succeeded (a process-wide sticky
// preference) and starts every call there, so a broken primary is not retried
// on each request. Each backend gets at most one attempt per call, plus
// optional transient retries governed by [RetryConfig]. Every attempt is
// bounded by a per-call timeout.
//
// Basic usage:
//
//	client, err := fallback.New([]fallback.Backend{
//	    {Name: "groq", Provider: openai.NewGroq()},
//	    {Name: "cohere", Provider: openai.NewCohere()},
//	}, fallback.WithCallTimeout(30*time.Second))
//
//	text, used, err := client.Generate(ctx, "What is the VAT rate?")
//	if errors.Is(err, fallback.ErrAllProvidersUnavailable) {
//	    // degrade
//	}
package fallback
