package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSearch_UnavailableReturnsEmptyNotError(t *testing.T) {
	s := openTestStore(t)
	require.False(t, s.VectorAvailable())

	hits, err := s.VectorSearch(context.Background(), []float32{0.1, 0.2}, "m", []Source{SourceMemory}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordSearch_RanksByBM25AndFiltersByModelAndSource(t *testing.T) {
	s := openTestStore(t)
	require.True(t, s.FTSAvailable())

	require.NoError(t, s.ReplaceChunks("notes.md", []Chunk{
		{ID: "c1", Path: "notes.md", Source: SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "the quick brown fox jumps"},
		{ID: "c2", Path: "notes.md", Source: SourceMemory, StartLine: 3, EndLine: 4, ChunkHash: "h2", Model: "m1", Text: "fox fox fox everywhere fox"},
		{ID: "c3", Path: "other.md", Source: SourceSessions, StartLine: 1, EndLine: 1, ChunkHash: "h3", Model: "m1", Text: "fox fox fox"},
		{ID: "c4", Path: "notes.md", Source: SourceMemory, StartLine: 5, EndLine: 5, ChunkHash: "h4", Model: "m2", Text: "fox fox fox fox"},
	}))

	hits, err := s.KeywordSearch(context.Background(), "fox", "m1", []Source{SourceMemory}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c2", hits[0].ID, "a chunk mentioning the term more often should rank first")

	var ids []string
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.NotContains(t, ids, "c3", "a different source should be excluded")
	assert.NotContains(t, ids, "c4", "a different model should be excluded")
}

func TestKeywordSearch_EmptyQueryReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	hits, err := s.KeywordSearch(context.Background(), "   ", "m", []Source{SourceMemory}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordSearch_NoMatchesReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReplaceChunks("notes.md", []Chunk{
		{ID: "c1", Path: "notes.md", Source: SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "alpha beta gamma"},
	}))

	hits, err := s.KeywordSearch(context.Background(), "zephyr", "m1", []Source{SourceMemory}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordSearch_NoSourceFilterMatchesAllSources(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ReplaceChunks("notes.md", []Chunk{
		{ID: "c1", Path: "notes.md", Source: SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "wombat"},
	}))
	require.NoError(t, s.ReplaceChunks("session.jsonl", []Chunk{
		{ID: "c2", Path: "session.jsonl", Source: SourceSessions, StartLine: 1, EndLine: 1, ChunkHash: "h2", Model: "m1", Text: "wombat"},
	}))

	hits, err := s.KeywordSearch(context.Background(), "wombat", "m1", nil, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSanitizeFTSQuery_QuotesTermsAndJoinsWithOr(t *testing.T) {
	assert.Equal(t, `"fox" OR "jumps"`, sanitizeFTSQuery("fox jumps"))
	assert.Equal(t, "", sanitizeFTSQuery("   "))
	assert.Equal(t, `"NEAR"`, sanitizeFTSQuery("NEAR"))
}
