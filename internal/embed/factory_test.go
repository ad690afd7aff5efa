package embed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Auto_PrefersLocalWhenModelPathResolvable(t *testing.T) {
	// Given: a local model file that exists
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("stub"), 0o644))

	cfg := ProviderConfig{
		Primary:        "auto",
		LocalModelPath: modelPath,
		LocalCacheDir:  dir,
		OpenAIAPIKey:   "should-not-be-used",
	}

	// When: constructing with auto selection
	result, err := New(context.Background(), cfg)

	// Then: Local wins over a configured OpenAI key
	require.NoError(t, err)
	assert.Equal(t, KindLocal, result.Kind)
}

func TestNew_Auto_FallsThroughToOpenAIWhenNoLocalModel(t *testing.T) {
	// Given: no local model path, but an OpenAI key
	cfg := ProviderConfig{
		Primary:      "auto",
		OpenAIAPIKey: "key",
	}

	result, err := New(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, KindOpenAI, result.Kind)
}

func TestNew_Auto_FallsThroughToGeminiWhenOpenAIKeyMissing(t *testing.T) {
	cfg := ProviderConfig{
		Primary:      "auto",
		GeminiAPIKey: "key",
	}

	result, err := New(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, KindGemini, result.Kind)
}

func TestNew_Auto_NoProviderAvailable(t *testing.T) {
	// Given: no local model and no API keys anywhere
	cfg := ProviderConfig{Primary: "auto"}

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding provider available")
}

func TestNew_Explicit_FallsBackOnceWhenPrimaryFails(t *testing.T) {
	// Given: an explicit primary (openai) that's missing its key, and a
	// fallback (gemini) that has one
	cfg := ProviderConfig{
		Primary:      "openai",
		Fallback:     "gemini",
		GeminiAPIKey: "key",
	}

	result, err := New(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, KindGemini, result.Kind)
	assert.Equal(t, KindOpenAI, result.FallbackFrom)
	assert.NotEmpty(t, result.FallbackWhy)
}

func TestNew_Explicit_NoFallbackConfiguredFails(t *testing.T) {
	cfg := ProviderConfig{Primary: "openai"}

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
}

func TestNew_Explicit_FallbackAlsoFails(t *testing.T) {
	cfg := ProviderConfig{Primary: "openai", Fallback: "gemini"}

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback")
}

func TestNew_Explicit_MissingKeyErrorNamesEnvVars(t *testing.T) {
	cfg := ProviderConfig{
		Primary:          "openai",
		OpenAIAPIKeyEnvs: []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"},
	}

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestNew_Explicit_PrimarySucceedsNoFallbackRecorded(t *testing.T) {
	cfg := ProviderConfig{Primary: "gemini", Fallback: "openai", GeminiAPIKey: "key"}

	result, err := New(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, KindGemini, result.Kind)
	assert.Empty(t, result.FallbackFrom)
}
