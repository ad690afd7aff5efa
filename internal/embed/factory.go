package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// ProviderConfig is the subset of config.ProviderConfig the factory needs,
// restated locally to avoid an import cycle with the config package.
type ProviderConfig struct {
	Primary  string
	Fallback string

	LocalModelPath string
	LocalCacheDir  string
	LocalModel     string

	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIAPIKey     string
	OpenAIAPIKeyEnvs []string
	OpenAIHeaders    map[string]string

	GeminiBaseURL    string
	GeminiModel      string
	GeminiAPIKey     string
	GeminiAPIKeyEnvs []string
	GeminiHeaders    map[string]string
}

// Result is the outcome of New: the constructed provider plus a record of
// whether a fallback occurred, for status reporting.
type Result struct {
	Provider     Provider
	Kind         ProviderKind
	FallbackFrom ProviderKind
	FallbackWhy  string
}

// New constructs a provider per cfg.Primary, with ordered auto-selection
// when Primary is "auto" and a single fallback attempt otherwise.
func New(ctx context.Context, cfg ProviderConfig) (*Result, error) {
	if cfg.Primary == "auto" || cfg.Primary == "" {
		return newAuto(cfg)
	}
	return newExplicit(ctx, cfg, ProviderKind(cfg.Primary))
}

// newAuto tries Local (only if a model path is configured and resolvable),
// then OpenAI, then Gemini, skipping any candidate that fails purely for
// lack of an API key rather than treating it as a hard failure.
func newAuto(cfg ProviderConfig) (*Result, error) {
	var reasons []string

	if cfg.LocalModelPath != "" {
		if _, err := os.Stat(cfg.LocalModelPath); err == nil {
			return &Result{Provider: NewLocalProvider(cfg.LocalModelPath, cfg.LocalCacheDir, cfg.LocalModel), Kind: KindLocal}, nil
		} else {
			reasons = append(reasons, fmt.Sprintf("local: model path unresolvable (%v)", err))
		}
	} else {
		reasons = append(reasons, "local: no model_path configured")
	}

	if cfg.OpenAIAPIKey != "" {
		return &Result{Provider: NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIAPIKey, cfg.OpenAIHeaders), Kind: KindOpenAI}, nil
	}
	reasons = append(reasons, "openai: missing API key, set "+envGuidance(cfg.OpenAIAPIKeyEnvs))

	if cfg.GeminiAPIKey != "" {
		return &Result{Provider: NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey, cfg.GeminiHeaders), Kind: KindGemini}, nil
	}
	reasons = append(reasons, "gemini: missing API key, set "+envGuidance(cfg.GeminiAPIKeyEnvs))

	return nil, idxerrors.New(idxerrors.ErrCodeNoProvider,
		"no embedding provider available: "+strings.Join(reasons, "; "), nil)
}

// newExplicit constructs the named primary provider, attempting cfg.Fallback
// once if construction fails.
func newExplicit(ctx context.Context, cfg ProviderConfig, kind ProviderKind) (*Result, error) {
	provider, err := build(cfg, kind)
	if err == nil {
		return &Result{Provider: provider, Kind: kind}, nil
	}

	if cfg.Fallback == "" || ProviderKind(cfg.Fallback) == kind {
		return nil, idxerrors.New(idxerrors.ErrCodeNoProvider,
			fmt.Sprintf("provider %q failed and no fallback configured: %v", kind, err), err)
	}

	fallbackKind := ProviderKind(cfg.Fallback)
	fallbackProvider, fallbackErr := build(cfg, fallbackKind)
	if fallbackErr != nil {
		return nil, idxerrors.New(idxerrors.ErrCodeNoProvider,
			fmt.Sprintf("provider %q failed (%v) and fallback %q also failed: %v", kind, err, fallbackKind, fallbackErr), fallbackErr)
	}

	return &Result{
		Provider:     fallbackProvider,
		Kind:         fallbackKind,
		FallbackFrom: kind,
		FallbackWhy:  err.Error(),
	}, nil
}

// envGuidance names the environment variable(s) that would resolve a
// missing-key error, in fallback order, for the "surface with guidance"
// error-handling rule.
func envGuidance(envs []string) string {
	if len(envs) == 0 {
		return "an API key in config"
	}
	return strings.Join(envs, " or ")
}

func build(cfg ProviderConfig, kind ProviderKind) (Provider, error) {
	switch kind {
	case KindLocal:
		if cfg.LocalModelPath == "" {
			return nil, idxerrors.New(idxerrors.ErrCodeProviderSetup, "local: no model_path configured", nil)
		}
		if _, err := os.Stat(cfg.LocalModelPath); err != nil {
			return nil, idxerrors.New(idxerrors.ErrCodeProviderSetup, fmt.Sprintf("local: model path unresolvable: %v", err), err)
		}
		return NewLocalProvider(cfg.LocalModelPath, cfg.LocalCacheDir, cfg.LocalModel), nil
	case KindOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, idxerrors.New(idxerrors.ErrCodeProviderMissingKey, "openai: missing API key, set "+envGuidance(cfg.OpenAIAPIKeyEnvs), nil)
		}
		return NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIAPIKey, cfg.OpenAIHeaders), nil
	case KindGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, idxerrors.New(idxerrors.ErrCodeProviderMissingKey, "gemini: missing API key, set "+envGuidance(cfg.GeminiAPIKeyEnvs), nil)
		}
		return NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey, cfg.GeminiHeaders), nil
	default:
		return nil, idxerrors.New(idxerrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown provider kind %q", kind), nil)
	}
}
