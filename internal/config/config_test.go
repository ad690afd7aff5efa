package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PopulatesAllAreas(t *testing.T) {
	cfg := Default("/tmp/ws")

	assert.Equal(t, "/tmp/ws", cfg.Paths.WorkspaceDir)
	assert.ElementsMatch(t, []Source{SourceMemory, SourceSessions}, cfg.Paths.Sources)
	assert.Equal(t, 400, cfg.Chunking.Tokens)
	assert.Less(t, cfg.Chunking.Overlap, cfg.Chunking.Tokens)
	assert.True(t, cfg.Query.Hybrid)
	assert.Equal(t, "auto", cfg.Provider.Primary)
	assert.True(t, cfg.Batch.Enabled)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Store.VectorEnabled)
	assert.True(t, cfg.Sync.Watch)
}

func TestValidate_RejectsEmptyWorkspace(t *testing.T) {
	cfg := Default("")
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsBadOverlap(t *testing.T) {
	cfg := Default("/tmp/ws")
	cfg.Chunking.Overlap = cfg.Chunking.Tokens
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default("/tmp/ws")
	cfg.Provider.Primary = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidate_ResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	cfg := Default("/tmp/ws")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sk-test-123", cfg.Provider.OpenAI.APIKey)
}

func TestValidate_ExplicitAPIKeyWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg := Default("/tmp/ws")
	cfg.Provider.OpenAI.APIKey = "sk-explicit"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sk-explicit", cfg.Provider.OpenAI.APIKey)
}

func TestValidate_FallsBackToOpenRouterKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-123")
	cfg := Default("/tmp/ws")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sk-or-123", cfg.Provider.OpenAI.APIKey)
}

func TestValidate_PrefersOpenAIKeyOverOpenRouterKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("OPENROUTER_API_KEY", "sk-or")
	cfg := Default("/tmp/ws")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sk-openai", cfg.Provider.OpenAI.APIKey)
}

func TestHasSource(t *testing.T) {
	cfg := Default("/tmp/ws")
	assert.True(t, cfg.HasSource(SourceMemory))
	assert.True(t, cfg.HasSource(SourceSessions))

	cfg.Paths.Sources = []Source{SourceMemory}
	assert.True(t, cfg.HasSource(SourceMemory))
	assert.False(t, cfg.HasSource(SourceSessions))
}
