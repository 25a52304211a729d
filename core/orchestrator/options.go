package orchestrator

import (
	"time"

	"github.com/leofalp/taxassist/core/handlers"
	"github.com/leofalp/taxassist/core/prompts"
	"github.com/leofalp/taxassist/core/router"
	"github.com/leofalp/taxassist/core/synth"
	"github.com/leofalp/taxassist/providers/observability"
)

const (
	// DefaultMaxQueryRunes bounds the accepted query length.
	DefaultMaxQueryRunes = 1000

	// MaxThreadIDLength bounds thread ids.
	MaxThreadIDLength = 128

	// DefaultRequestTimeout bounds a Chat call when the caller sets no
	// earlier deadline.
	DefaultRequestTimeout = 90 * time.Second

	// DefaultCommitTimeout bounds the commit stage, which runs detached
	// from the request deadline.
	DefaultCommitTimeout = 10 * time.Second

	// DefaultLockTimeout bounds the wait for the thread lock.
	DefaultLockTimeout = 30 * time.Second
)

type config struct {
	maxQueryRunes  int
	requestTimeout time.Duration
	commitTimeout  time.Duration
	lockTimeout    time.Duration
	observer       observability.Provider
	now            func() time.Time

	routerOpts  []router.Option
	handlerOpts []handlers.Option
	synthOpts   []synth.Option
	promptOpts  []prompts.Option
}

func defaultConfig() config {
	return config{
		maxQueryRunes:  DefaultMaxQueryRunes,
		requestTimeout: DefaultRequestTimeout,
		commitTimeout:  DefaultCommitTimeout,
		lockTimeout:    DefaultLockTimeout,
		observer:       observability.Nop(),
		now:            time.Now,
	}
}

// Option configures an Orchestrator.
type Option func(*config)

// WithMaxQueryRunes sets the maximum query length in runes.
func WithMaxQueryRunes(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxQueryRunes = n
		}
	}
}

// WithRequestTimeout sets the per-request deadline. Zero disables it and
// leaves only the caller's deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.requestTimeout = d
		}
	}
}

// WithCommitTimeout sets the commit stage's own deadline.
func WithCommitTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.commitTimeout = d
		}
	}
}

// WithLockTimeout sets how long a request waits for its thread lock before
// answering without memory.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithObserver attaches an observability provider. It is passed on to the
// components the orchestrator builds itself.
func WithObserver(observer observability.Provider) Option {
	return func(c *config) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithRouterOptions forwards options to the default classifier.
func WithRouterOptions(opts ...router.Option) Option {
	return func(c *config) {
		c.routerOpts = append(c.routerOpts, opts...)
	}
}

// WithHandlerOptions forwards options to the default domain handlers.
func WithHandlerOptions(opts ...handlers.Option) Option {
	return func(c *config) {
		c.handlerOpts = append(c.handlerOpts, opts...)
	}
}

// WithSynthOptions forwards options to the default synthesizer.
func WithSynthOptions(opts ...synth.Option) Option {
	return func(c *config) {
		c.synthOpts = append(c.synthOpts, opts...)
	}
}

// WithPromptOptions forwards options to the default prompt suggester.
func WithPromptOptions(opts ...prompts.Option) Option {
	return func(c *config) {
		c.promptOpts = append(c.promptOpts, opts...)
	}
}

// withClock replaces the clock used for turn timestamps.
func withClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
