package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/leofalp/taxassist/core/fallback"
	"github.com/leofalp/taxassist/core/handlers"
	"github.com/leofalp/taxassist/core/orchestrator"
	"github.com/leofalp/taxassist/core/prompts"
	"github.com/leofalp/taxassist/core/router"
	"github.com/leofalp/taxassist/core/synth"
	"github.com/leofalp/taxassist/internal/config"
	"github.com/leofalp/taxassist/internal/threadlock"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/ai/gemini"
	"github.com/leofalp/taxassist/providers/ai/openai"
	"github.com/leofalp/taxassist/providers/knowledge"
	"github.com/leofalp/taxassist/providers/knowledge/httpknowledge"
	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/memory/cached"
	"github.com/leofalp/taxassist/providers/memory/inmemory"
	"github.com/leofalp/taxassist/providers/memory/pgmemory"
	"github.com/leofalp/taxassist/providers/memory/sqlitememory"
	"github.com/leofalp/taxassist/providers/observability"
	"github.com/leofalp/taxassist/providers/websearch"
	"github.com/leofalp/taxassist/providers/websearch/tavily"
)

func buildProvider(p config.ProviderConfig) (ai.Provider, error) {
	var provider ai.Provider
	switch p.Type {
	case config.ProviderOpenAI:
		provider = openai.New()
	case config.ProviderGroq:
		provider = openai.NewGroq()
	case config.ProviderCohere:
		provider = openai.NewCohere()
	case config.ProviderGemini:
		provider = gemini.New()
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", p.Name, p.Type)
	}

	provider = provider.WithAPIKey(p.APIKey)
	if p.BaseURL != "" {
		provider = provider.WithBaseURL(p.BaseURL)
	}
	return provider, nil
}

func buildGenerator(cfg *config.Config, observer observability.Provider) (*fallback.Client, error) {
	backends := make([]fallback.Backend, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		provider, err := buildProvider(p)
		if err != nil {
			return nil, err
		}
		backends = append(backends, fallback.Backend{Name: p.Name, Provider: provider, Model: p.Model})
	}

	generation := ai.GenerationConfig{MaxTokens: cfg.Fallback.MaxTokens}
	if cfg.Fallback.Temperature != nil {
		generation.Temperature = float32(*cfg.Fallback.Temperature)
	}

	return fallback.New(backends,
		fallback.WithCallTimeout(cfg.Fallback.CallTimeout),
		fallback.WithRetry(fallback.RetryConfig{
			MaxRetries:     cfg.Fallback.MaxRetries,
			InitialBackoff: cfg.Fallback.InitialBackoff,
			MaxBackoff:     cfg.Fallback.MaxBackoff,
		}),
		fallback.WithGenerationConfig(generation),
		fallback.WithObserver(observer),
	)
}

func buildStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (memory.Store, error) {
	var store memory.Store
	switch cfg.Driver {
	case config.StorePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse store dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect store: %w", err)
		}
		pg := pgmemory.New(pool, pgmemory.WithTableName(cfg.Table), pgmemory.WithOwnedPool())
		if cfg.Migrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		store = pg
	case config.StoreSQLite:
		sqlite, err := sqlitememory.Open(cfg.Path, sqlitememory.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		store = sqlite
	default:
		store = inmemory.New()
	}

	if cfg.CacheTTL > 0 && cfg.Driver != config.StoreMemory {
		store = cached.New(store, cfg.CacheTTL)
	}
	return store, nil
}

func buildLocker(ctx context.Context, cfg config.LockConfig) (threadlock.Locker, error) {
	if cfg.Driver != config.LockRedis {
		return threadlock.NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return threadlock.NewRedis(client, threadlock.WithLease(cfg.Lease)), nil
}

// buildKnowledge returns nil when retrieval is not configured.
func buildKnowledge(cfg config.KnowledgeConfig) knowledge.Provider {
	if cfg.BaseURL == "" {
		return nil
	}
	return httpknowledge.New().WithBaseURL(cfg.BaseURL).WithAPIKey(cfg.APIKey)
}

// buildSearch returns nil when web search is not configured.
func buildSearch(cfg config.WebSearchConfig) websearch.Searcher {
	if cfg.APIKey == "" {
		return nil
	}
	searcher := tavily.New().WithAPIKey(cfg.APIKey)
	if cfg.BaseURL != "" {
		searcher = searcher.WithBaseURL(cfg.BaseURL)
	}
	if len(cfg.Domains) > 0 {
		searcher = searcher.WithDomains(cfg.Domains)
	}
	return searcher
}

func orchestratorOptions(cfg *config.Config, observer observability.Provider) []orchestrator.Option {
	oc := cfg.Orchestrator

	handlerOpts := []handlers.Option{
		handlers.WithKnowledgeTimeout(cfg.Knowledge.Timeout),
		handlers.WithSearchTimeout(cfg.WebSearch.Timeout),
		handlers.WithHistoryTurns(oc.HandlerHistory),
		handlers.WithWebEnrichment(oc.WebEnrichment),
		handlers.WithAssessment(oc.Assessment),
	}
	if len(cfg.WebSearch.Domains) > 0 {
		handlerOpts = append(handlerOpts, handlers.WithSearchDomains(cfg.WebSearch.Domains))
	}

	return []orchestrator.Option{
		orchestrator.WithObserver(observer),
		orchestrator.WithRequestTimeout(oc.RequestTimeout),
		orchestrator.WithCommitTimeout(oc.CommitTimeout),
		orchestrator.WithLockTimeout(cfg.Lock.Timeout),
		orchestrator.WithMaxQueryRunes(oc.MaxQueryRunes),
		orchestrator.WithRouterOptions(router.WithHistoryWindow(oc.RouterHistory)),
		orchestrator.WithHandlerOptions(handlerOpts...),
		orchestrator.WithSynthOptions(synth.WithHistoryTurns(oc.HandlerHistory)),
		orchestrator.WithPromptOptions(prompts.WithTTL(oc.PromptsTTL)),
	}
}
