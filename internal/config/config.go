// Package config defines the layered configuration for a per-agent memory
// index (the "OpenClawConfig" of the design): resolved paths, chunking,
// query weights, provider selection, batch behavior, caching, storage, and
// sync triggers. It mirrors the nesting and default-resolution style the
// rest of this lineage uses for its own config package, one sub-struct per
// configuration area named in the design.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source names the two corpora the index covers.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceSessions Source = "sessions"
)

// Config is the complete configuration for one agent's memory index.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Query      QueryConfig      `yaml:"query" json:"query"`
	Provider   ProviderConfig   `yaml:"provider" json:"provider"`
	Batch      BatchConfig      `yaml:"batch" json:"batch"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Sync       SyncConfig       `yaml:"sync" json:"sync"`
}

// PathsConfig resolves the workspace and which sources participate.
type PathsConfig struct {
	// WorkspaceDir is the agent's workspace root; MEMORY.md, memory.md, and
	// memory/ are discovered relative to it.
	WorkspaceDir string `yaml:"workspace_dir" json:"workspace_dir"`
	// ExtraPaths are additional memory files/directories outside the
	// workspace root. Symlinks anywhere in these paths are rejected.
	ExtraPaths []string `yaml:"extra_paths" json:"extra_paths"`
	// Sources restricts indexing/search to a subset of {memory, sessions}.
	// Empty means both.
	Sources []Source `yaml:"sources" json:"sources"`
	// SessionsDir is the directory holding this agent's ldjson transcripts.
	SessionsDir string `yaml:"sessions_dir" json:"sessions_dir"`
}

// ChunkingConfig configures the Markdown chunker (C1).
type ChunkingConfig struct {
	// Tokens is the target chunk size, in the 1-char-per-token estimate
	// used throughout (a tunable constant, not a real tokenizer).
	Tokens int `yaml:"tokens" json:"tokens"`
	// Overlap is the number of lines carried into the head of the next
	// chunk.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// QueryConfig configures the query engine (C8).
type QueryConfig struct {
	MaxResults          int     `yaml:"max_results" json:"max_results"`
	MinScore            float64 `yaml:"min_score" json:"min_score"`
	Hybrid              bool    `yaml:"hybrid" json:"hybrid"`
	VectorWeight        float64 `yaml:"vector_weight" json:"vector_weight"`
	TextWeight          float64 `yaml:"text_weight" json:"text_weight"`
	CandidateMultiplier float64 `yaml:"candidate_multiplier" json:"candidate_multiplier"`
}

// ProviderConfig selects and configures the embedding provider (C2).
type ProviderConfig struct {
	// Primary is "auto", "local", "openai", or "gemini".
	Primary string `yaml:"primary" json:"primary"`
	// Fallback is attempted once if Primary fails to construct.
	Fallback string `yaml:"fallback" json:"fallback"`

	Local  LocalProviderConfig  `yaml:"local" json:"local"`
	OpenAI RemoteProviderConfig `yaml:"openai" json:"openai"`
	Gemini RemoteProviderConfig `yaml:"gemini" json:"gemini"`
}

// LocalProviderConfig configures the local GGUF-family embedding model.
type LocalProviderConfig struct {
	ModelPath string `yaml:"model_path" json:"model_path"`
	CacheDir  string `yaml:"cache_dir" json:"cache_dir"`
	Model     string `yaml:"model" json:"model"`
}

// RemoteProviderConfig configures an OpenAI- or Gemini-compatible remote
// embedding provider.
type RemoteProviderConfig struct {
	BaseURL string            `yaml:"base_url" json:"base_url"`
	Model   string            `yaml:"model" json:"model"`
	APIKey  string            `yaml:"api_key" json:"-"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	// APIKeyEnvs names the environment variables consulted, in order, when
	// APIKey is empty — the supplemented provider API-key fallback chain.
	// The OpenAI-compatible provider tries OPENAI_API_KEY then
	// OPENROUTER_API_KEY (an OpenRouter deployment can stand in for OpenAI
	// proper); Gemini has just the one.
	APIKeyEnvs []string `yaml:"api_key_envs" json:"api_key_envs"`
}

// BatchConfig configures the batch orchestrator (C5).
type BatchConfig struct {
	Enabled        bool `yaml:"enabled" json:"enabled"`
	Concurrency    int  `yaml:"concurrency" json:"concurrency"`
	PollIntervalMs int  `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	TimeoutMinutes int  `yaml:"timeout_minutes" json:"timeout_minutes"`
}

// CacheConfig configures the persistent embedding cache (C3).
type CacheConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxEntries int  `yaml:"max_entries" json:"max_entries"`
}

// StoreConfig configures the sqlite-backed store (C4).
type StoreConfig struct {
	Path               string `yaml:"path" json:"path"`
	VectorEnabled      bool   `yaml:"vector_enabled" json:"vector_enabled"`
	VectorExtensionPath string `yaml:"vector_extension_path" json:"vector_extension_path"`
}

// SyncConfig configures when syncs run (C6/C7).
type SyncConfig struct {
	OnSearch       bool `yaml:"on_search" json:"on_search"`
	OnSessionStart bool `yaml:"on_session_start" json:"on_session_start"`
	Watch          bool `yaml:"watch" json:"watch"`
	WatchDebounceMs int `yaml:"watch_debounce_ms" json:"watch_debounce_ms"`
	IntervalMinutes int `yaml:"interval_minutes" json:"interval_minutes"`

	Session SessionSyncConfig `yaml:"session" json:"session"`
}

// SessionSyncConfig configures the transcript delta tracker (C7).
type SessionSyncConfig struct {
	DeltaBytes    int `yaml:"delta_bytes" json:"delta_bytes"`
	DeltaMessages int `yaml:"delta_messages" json:"delta_messages"`
	DebounceMs    int `yaml:"debounce_ms" json:"debounce_ms"`
}

// Default returns a fully-populated configuration with this package's
// documented defaults, rooted at workspaceDir.
func Default(workspaceDir string) Config {
	return Config{
		Paths: PathsConfig{
			WorkspaceDir: workspaceDir,
			Sources:      []Source{SourceMemory, SourceSessions},
			SessionsDir:  filepath.Join(workspaceDir, ".memindex", "sessions"),
		},
		Chunking: ChunkingConfig{
			Tokens:  400,
			Overlap: 40,
		},
		Query: QueryConfig{
			MaxResults:          10,
			MinScore:            0.0,
			Hybrid:              true,
			VectorWeight:        0.6,
			TextWeight:          0.4,
			CandidateMultiplier: 4,
		},
		Provider: ProviderConfig{
			Primary:  "auto",
			Fallback: "local",
			Local: LocalProviderConfig{
				CacheDir: filepath.Join(workspaceDir, ".memindex", "models"),
			},
			OpenAI: RemoteProviderConfig{
				BaseURL:    "https://api.openai.com/v1",
				Model:      "text-embedding-3-small",
				APIKeyEnvs: []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"},
			},
			Gemini: RemoteProviderConfig{
				BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
				Model:      "text-embedding-004",
				APIKeyEnvs: []string{"GEMINI_API_KEY"},
			},
		},
		Batch: BatchConfig{
			Enabled:        true,
			Concurrency:    2,
			PollIntervalMs: 2000,
			TimeoutMinutes: 10,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 20000,
		},
		Store: StoreConfig{
			Path:          filepath.Join(workspaceDir, ".memindex", "index.db"),
			VectorEnabled: true,
		},
		Sync: SyncConfig{
			OnSearch:        true,
			OnSessionStart:  true,
			Watch:           true,
			WatchDebounceMs: 500,
			IntervalMinutes: 0,
			Session: SessionSyncConfig{
				DeltaBytes:    2000,
				DeltaMessages: 5,
				DebounceMs:    5000,
			},
		},
	}
}

// Validate checks the configuration for internal consistency, resolving
// the provider API keys from environment variables where omitted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		return fmt.Errorf("config: paths.workspace_dir is required")
	}
	if c.Chunking.Tokens <= 0 {
		return fmt.Errorf("config: chunking.tokens must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Tokens {
		return fmt.Errorf("config: chunking.overlap must be in [0, tokens)")
	}
	if c.Query.MaxResults <= 0 {
		return fmt.Errorf("config: query.max_results must be positive")
	}
	if c.Query.CandidateMultiplier <= 0 {
		c.Query.CandidateMultiplier = 4
	}
	switch c.Provider.Primary {
	case "auto", "local", "openai", "gemini":
	default:
		return fmt.Errorf("config: provider.primary %q is not one of auto|local|openai|gemini", c.Provider.Primary)
	}

	resolveAPIKey(&c.Provider.OpenAI)
	resolveAPIKey(&c.Provider.Gemini)

	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	return nil
}

// resolveAPIKey fills APIKey from the first non-empty variable in
// APIKeyEnvs when unset — the supplemented provider API-key fallback
// chain. An explicit APIKey always wins over the environment.
func resolveAPIKey(rc *RemoteProviderConfig) {
	if rc.APIKey != "" {
		return
	}
	for _, name := range rc.APIKeyEnvs {
		if v := os.Getenv(name); v != "" {
			rc.APIKey = v
			return
		}
	}
}

// HasSource reports whether the given source is enabled.
func (c *Config) HasSource(s Source) bool {
	if len(c.Paths.Sources) == 0 {
		return true
	}
	for _, have := range c.Paths.Sources {
		if have == s {
			return true
		}
	}
	return false
}
