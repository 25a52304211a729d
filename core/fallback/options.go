package fallback

import (
	"time"

	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/observability"
)

// DefaultCallTimeout bounds a single backend attempt.
const DefaultCallTimeout = 30 * time.Second

type config struct {
	callTimeout time.Duration
	retry       RetryConfig
	generation  *ai.GenerationConfig
	observer    observability.Provider
}

// Option configures a Client.
type Option func(*config)

// WithCallTimeout sets the timeout applied to each backend attempt.
// Non-positive values keep the default.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithRetry enables transient retries on each backend.
func WithRetry(retry RetryConfig) Option {
	return func(c *config) {
		c.retry = retry
	}
}

// WithGenerationConfig sets generation parameters used when a request does
// not carry its own.
func WithGenerationConfig(gc ai.GenerationConfig) Option {
	return func(c *config) {
		c.generation = &gc
	}
}

// WithObserver attaches an observability provider.
func WithObserver(observer observability.Provider) Option {
	return func(c *config) {
		if observer != nil {
			c.observer = observer
		}
	}
}
