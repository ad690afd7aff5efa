package search

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/embed"
	"github.com/openclaw/memindex/internal/store"
)

const (
	assertEventuallyTimeout = 2 * time.Second
	assertEventuallyTick    = 10 * time.Millisecond
)

// fakeProvider is a minimal embed.Provider double: EmbedQuery is
// overridable per test so a query can be steered to an all-zero vector
// or a populated one.
type fakeProvider struct {
	model      string
	embedQuery func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeProvider) ID() string    { return "fake" }
func (f *fakeProvider) Model() string { return f.model }
func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.embedQuery != nil {
		return f.embedQuery(ctx, text)
	}
	return []float32{0.1, 0.2}, nil
}
func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}
func (f *fakeProvider) Dimensions() int { return 2 }
func (f *fakeProvider) Close() error    { return nil }

// fakeSyncer is a Syncer double backed by a real in-memory store (so
// FTS search is genuine) and a fake provider. The store is opened
// without the vector extension, matching how these tests run without
// the real sqlite-vec binary, so vector search always comes back empty
// — the hybrid-merge logic itself is covered separately in merge_test.go.
type fakeSyncer struct {
	st        *store.Store
	provider  *fakeProvider
	syncCalls int32
}

func newFakeSyncer(t *testing.T) *fakeSyncer {
	t.Helper()
	st, err := store.Open(":memory:", false, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &fakeSyncer{st: st, provider: &fakeProvider{model: "m1"}}
}

func (f *fakeSyncer) Store() *store.Store    { return f.st }
func (f *fakeSyncer) Provider() embed.Provider { return f.provider }
func (f *fakeSyncer) Sync(ctx context.Context, reason string, force bool) error {
	atomic.AddInt32(&f.syncCalls, 1)
	return nil
}

func testConfig() config.Config {
	cfg := config.Default(".")
	cfg.Query.MaxResults = 5
	cfg.Query.MinScore = 0
	cfg.Query.Hybrid = true
	cfg.Query.VectorWeight = 0.6
	cfg.Query.TextWeight = 0.4
	cfg.Query.CandidateMultiplier = 4
	cfg.Sync.OnSearch = false
	return cfg
}

func TestEngine_Search_ReturnsKeywordMatchesRankedByRelevance(t *testing.T) {
	fs := newFakeSyncer(t)
	require.NoError(t, fs.st.ReplaceChunks("notes.md", []store.Chunk{
		{ID: "c1", Path: "notes.md", Source: store.SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "the quick brown fox jumps"},
		{ID: "c2", Path: "notes.md", Source: store.SourceMemory, StartLine: 3, EndLine: 4, ChunkHash: "h2", Model: "m1", Text: "fox fox fox everywhere fox"},
	}))

	e := New(testConfig(), fs, nil)
	results, err := e.Search(context.Background(), Request{Query: "fox", MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestEngine_Search_CapsToMaxResults(t *testing.T) {
	fs := newFakeSyncer(t)
	var chunks []store.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, store.Chunk{
			ID: "c" + string(rune('0'+i)), Path: "notes.md", Source: store.SourceMemory,
			StartLine: i + 1, EndLine: i + 1, ChunkHash: "h", Model: "m1", Text: "wombat content",
		})
	}
	require.NoError(t, fs.st.ReplaceChunks("notes.md", chunks))

	cfg := testConfig()
	e := New(cfg, fs, nil)
	results, err := e.Search(context.Background(), Request{Query: "wombat", MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEngine_Search_FiltersByMinScore(t *testing.T) {
	fs := newFakeSyncer(t)
	require.NoError(t, fs.st.ReplaceChunks("notes.md", []store.Chunk{
		{ID: "c1", Path: "notes.md", Source: store.SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "wombat"},
	}))

	e := New(testConfig(), fs, nil)
	results, err := e.Search(context.Background(), Request{Query: "wombat", MaxResults: 5, MinScore: 2})
	require.NoError(t, err)
	assert.Empty(t, results, "a minScore above any attainable score should filter everything out")
}

func TestEngine_Search_HybridDisabledIgnoresKeywordMatches(t *testing.T) {
	fs := newFakeSyncer(t)
	require.NoError(t, fs.st.ReplaceChunks("notes.md", []store.Chunk{
		{ID: "c1", Path: "notes.md", Source: store.SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "wombat"},
	}))

	cfg := testConfig()
	cfg.Query.Hybrid = false
	e := New(cfg, fs, nil)
	results, err := e.Search(context.Background(), Request{Query: "wombat", MaxResults: 5})
	require.NoError(t, err)
	assert.Empty(t, results, "with hybrid disabled and no vector extension available in this test, there is nothing to return")
}

func TestEngine_Search_WarmsSessionAtMostOnce(t *testing.T) {
	fs := newFakeSyncer(t)
	cfg := testConfig()
	e := New(cfg, fs, nil)

	_, err := e.Search(context.Background(), Request{Query: "x", SessionKey: "s1"})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), Request{Query: "x", SessionKey: "s1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fs.syncCalls) == 1 }, assertEventuallyTimeout, assertEventuallyTick,
		"the same sessionKey should only trigger one warm sync")
}

func TestEngine_Search_SyncOnSearchFiresWhenConfigured(t *testing.T) {
	fs := newFakeSyncer(t)
	cfg := testConfig()
	cfg.Sync.OnSearch = true
	e := New(cfg, fs, nil)

	_, err := e.Search(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fs.syncCalls) >= 1 }, assertEventuallyTimeout, assertEventuallyTick)
}

func TestEngine_Search_AllZeroEmbeddingSkipsVectorSearch(t *testing.T) {
	fs := newFakeSyncer(t)
	fs.provider.embedQuery = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{0, 0, 0}, nil
	}
	require.NoError(t, fs.st.ReplaceChunks("notes.md", []store.Chunk{
		{ID: "c1", Path: "notes.md", Source: store.SourceMemory, StartLine: 1, EndLine: 2, ChunkHash: "h1", Model: "m1", Text: "wombat"},
	}))

	e := New(testConfig(), fs, nil)
	results, err := e.Search(context.Background(), Request{Query: "wombat", MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, results, 1, "keyword match should still surface even though the vector path was skipped")
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSnippet_TruncatesToMaxChars(t *testing.T) {
	long := strings.Repeat("a", snippetMaxChars+50)
	s := snippet(long)
	assert.Len(t, []rune(s), snippetMaxChars)

	short := "hello"
	assert.Equal(t, short, snippet(short))
}

func TestCandidateCount_ComputesFloorClampedRange(t *testing.T) {
	assert.Equal(t, 40, candidateCount(10, 4))
	assert.Equal(t, 1, candidateCount(1, 0.1))
	assert.Equal(t, 200, candidateCount(1000, 4))
	assert.Equal(t, 10, candidateCount(10, 0))
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, isZeroVector([]float32{0, 0, 0}))
	assert.True(t, isZeroVector(nil))
	assert.False(t, isZeroVector([]float32{0, 0.001, 0}))
}
