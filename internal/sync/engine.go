// Package sync implements the sync engine (C6): it diffs memory
// documents and session transcripts against stored file hashes, indexes
// what changed, and performs a crash-safe full reindex into a fresh
// store generation when the active fingerprint no longer matches the
// configuration in force.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/openclaw/memindex/internal/batch"
	"github.com/openclaw/memindex/internal/chunk"
	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/embed"
	idxerrors "github.com/openclaw/memindex/internal/errors"
	"github.com/openclaw/memindex/internal/store"
)

// fallbackEligiblePattern matches the error classes that justify
// switching providers mid-sync.
var fallbackEligiblePattern = regexp.MustCompile(`(?i)embedding|embeddings|batch`)

// syncKey is the single singleflight key: one engine owns exactly one
// store, so there is never more than one sync worth coalescing — sync()
// is serialized, at most one runs at a time.
const syncKey = "sync"

// Status reports the engine's current provider and the most recent
// fallback event, if any — consumed by the manager facade's status().
type Status struct {
	Provider        string
	FallbackFrom    string
	FallbackWhy     string
	FallbackApplied bool
}

// Engine is the per-agent sync coordinator. It owns the provider, the
// batch orchestrator, and the store handle, swapping all three in place
// when a full reindex or a provider fallback occurs.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	mu              sync.Mutex
	store           *store.Store
	provider        embed.Provider
	providerKind    embed.ProviderKind
	providerKey     string
	fallbackApplied bool
	fallbackFrom    embed.ProviderKind
	fallbackWhy     string

	orch    *batch.Orchestrator
	chunker *chunk.Chunker

	sf singleflight.Group
}

// New constructs the sync engine: resolves the embedding provider via
// the factory's auto-selection rule, builds the batch orchestrator, and
// opens no store
// of its own — st is owned by the caller (the manager facade, C9).
func New(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	result, err := embed.New(ctx, providerConfigFrom(cfg.Provider))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		provider:     result.Provider,
		providerKind: result.Kind,
		chunker:      chunk.New(),
	}
	e.providerKey = providerKeyFor(cfg.Provider, e.providerKind, e.provider.Model())
	e.orch = e.newOrchestrator()

	if result.FallbackFrom != "" {
		e.fallbackApplied = true
		e.fallbackFrom = result.FallbackFrom
		e.fallbackWhy = result.FallbackWhy
		logger.Warn("embedding provider fell back at construction",
			"from", result.FallbackFrom, "to", result.Kind, "why", result.FallbackWhy)
	}

	return e, nil
}

func (e *Engine) newOrchestrator() *batch.Orchestrator {
	return batch.New(e.provider, batch.Config{
		MaxBatchTokens: batch.MaxBatchTokens,
		JobMode:        e.cfg.Batch.Enabled,
		Concurrency:    e.cfg.Batch.Concurrency,
		PollInterval:   msToDuration(e.cfg.Batch.PollIntervalMs),
		Timeout:        minutesToDuration(e.cfg.Batch.TimeoutMinutes),
		BatchTimeout:   embed.BatchTimeout(e.providerKind),
	})
}

// providerConfigFrom translates config.ProviderConfig into the embed
// package's locally-restated shape (avoids an import cycle, per
// embed/factory.go's own comment).
func providerConfigFrom(p config.ProviderConfig) embed.ProviderConfig {
	return embed.ProviderConfig{
		Primary:  p.Primary,
		Fallback: p.Fallback,

		LocalModelPath: p.Local.ModelPath,
		LocalCacheDir:  p.Local.CacheDir,
		LocalModel:     p.Local.Model,

		OpenAIBaseURL:    p.OpenAI.BaseURL,
		OpenAIModel:      p.OpenAI.Model,
		OpenAIAPIKey:     p.OpenAI.APIKey,
		OpenAIAPIKeyEnvs: p.OpenAI.APIKeyEnvs,
		OpenAIHeaders:    p.OpenAI.Headers,

		GeminiBaseURL:    p.Gemini.BaseURL,
		GeminiModel:      p.Gemini.Model,
		GeminiAPIKey:     p.Gemini.APIKey,
		GeminiAPIKeyEnvs: p.Gemini.APIKeyEnvs,
		GeminiHeaders:    p.Gemini.Headers,
	}
}

// Store returns the engine's current store handle. It changes identity
// across a full reindex, so callers (the manager facade) must re-fetch
// it after each Sync call rather than caching it.
func (e *Engine) Store() *store.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// Provider returns the embedding provider currently in force, for
// callers (the query engine) that need to embed a query with whatever
// model the index was actually built against.
func (e *Engine) Provider() embed.Provider {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.provider
}

// Status reports the current provider and fallback state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Provider:        string(e.providerKind),
		FallbackFrom:    string(e.fallbackFrom),
		FallbackWhy:     e.fallbackWhy,
		FallbackApplied: e.fallbackApplied,
	}
}

// Close releases the provider and store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.provider.Close()
	return e.store.Close()
}

// Sync runs one sync, coalescing concurrent callers onto a single
// in-flight run. reason is one of session-start,
// search, watch, interval, session-delta, fallback, or an explicit
// caller-supplied string.
func (e *Engine) Sync(ctx context.Context, reason string, force bool) error {
	_, err, _ := e.sf.Do(syncKey, func() (any, error) {
		return nil, e.runSync(ctx, reason, force)
	})
	return err
}

func (e *Engine) runSync(ctx context.Context, reason string, force bool) error {
	e.mu.Lock()
	st := e.store
	provider := e.provider
	providerKind := e.providerKind
	providerKey := e.providerKey
	orch := e.orch
	fallbackApplied := e.fallbackApplied
	e.mu.Unlock()

	err := e.attemptSync(ctx, st, provider, providerKind, providerKey, orch, force)
	if err == nil {
		return nil
	}

	if !fallbackApplied && fallbackEligiblePattern.MatchString(err.Error()) {
		if applied, ferr := e.applyFallback(ctx, providerKind, err); applied {
			if ferr != nil {
				return ferr
			}
			return e.runSync(ctx, "fallback", true)
		}
	}
	return err
}

// attemptSync decides whether a full reindex or an incremental diff is
// required and dispatches accordingly.
func (e *Engine) attemptSync(ctx context.Context, st *store.Store, provider embed.Provider, providerKind embed.ProviderKind, providerKey string, orch *batch.Orchestrator, force bool) error {
	stored, ok, err := st.GetFingerprint()
	if err != nil {
		return err
	}

	want := currentFingerprint(e.cfg, provider.Model(), string(providerKind), providerKey, 0)
	full := needsFullReindex(force, stored, ok, want, st.VectorAvailable())

	if full {
		newStore, err := fullReindex(ctx, e.cfg, st, orch, string(providerKind), provider, want)
		if err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeIndexFailed, err)
		}
		e.mu.Lock()
		e.store = newStore
		e.mu.Unlock()
		if st != newStore {
			_ = st.Close()
		}
		return nil
	}

	ic := indexContext{
		Store:           st,
		Chunker:         e.chunker,
		ChunkOpts:       chunk.Options{Tokens: e.cfg.Chunking.Tokens, Overlap: e.cfg.Chunking.Overlap},
		Orchestrator:    orch,
		Provider:        string(providerKind),
		Model:           provider.Model(),
		ProviderKey:     providerKey,
		CacheEnabled:    e.cfg.Cache.Enabled,
		MaxCacheEntries: e.cfg.Cache.MaxEntries,
	}
	if err := incrementalSync(ctx, e.cfg, ic); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeIndexFailed, err)
	}

	finalFP := want
	if st.VectorAvailable() {
		finalFP.VectorDims = st.VectorDims()
	} else if stored.VectorDims > 0 {
		finalFP.VectorDims = stored.VectorDims
	}
	return st.SetFingerprint(finalFP)
}

// applyFallback constructs the configured fallback provider (if one is
// configured and different from the one currently in force) and swaps it
// in, recomputing the provider key and rebuilding the batch orchestrator.
func (e *Engine) applyFallback(ctx context.Context, failedKind embed.ProviderKind, cause error) (applied bool, err error) {
	fallbackKind := embed.ProviderKind(e.cfg.Provider.Fallback)
	if fallbackKind == "" || fallbackKind == failedKind {
		return false, nil
	}

	result, berr := embed.New(ctx, embed.ProviderConfig{
		Primary:        string(fallbackKind),
		LocalModelPath: e.cfg.Provider.Local.ModelPath,
		LocalCacheDir:  e.cfg.Provider.Local.CacheDir,
		LocalModel:     e.cfg.Provider.Local.Model,
		OpenAIBaseURL:  e.cfg.Provider.OpenAI.BaseURL,
		OpenAIModel:    e.cfg.Provider.OpenAI.Model,
		OpenAIAPIKey:   e.cfg.Provider.OpenAI.APIKey,
		OpenAIHeaders:  e.cfg.Provider.OpenAI.Headers,
		GeminiBaseURL:  e.cfg.Provider.Gemini.BaseURL,
		GeminiModel:    e.cfg.Provider.Gemini.Model,
		GeminiAPIKey:   e.cfg.Provider.Gemini.APIKey,
		GeminiHeaders:  e.cfg.Provider.Gemini.Headers,
	})
	if berr != nil {
		return true, idxerrors.New(idxerrors.ErrCodeNoProvider,
			fmt.Sprintf("provider %q failed (%v) and fallback %q also failed to construct: %v", failedKind, cause, fallbackKind, berr), berr)
	}

	e.mu.Lock()
	_ = e.provider.Close()
	e.provider = result.Provider
	e.providerKind = fallbackKind
	e.providerKey = providerKeyFor(e.cfg.Provider, fallbackKind, result.Provider.Model())
	e.fallbackApplied = true
	e.fallbackFrom = failedKind
	e.fallbackWhy = cause.Error()
	e.orch = e.newOrchestrator()
	e.mu.Unlock()

	e.logger.Warn("sync provider fallback applied",
		"from", failedKind, "to", fallbackKind, "why", cause.Error())
	return true, nil
}
