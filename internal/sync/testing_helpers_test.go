package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/batch"
	"github.com/openclaw/memindex/internal/chunk"
	"github.com/openclaw/memindex/internal/store"
)

const testBatchTimeout = 5 * time.Second

// fakeProvider is a minimal embed.Provider double for sync package tests:
// deterministic, cheap, and countable.
type fakeProvider struct {
	id    string
	model string
	dims  int
	calls int
}

func (f *fakeProvider) ID() string    { return f.id }
func (f *fakeProvider) Model() string { return f.model }
func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}
func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}
func (f *fakeProvider) Dimensions() int { return f.dims }
func (f *fakeProvider) Close() error    { return nil }

func newTestIndexContext(t *testing.T, st *store.Store, p *fakeProvider) indexContext {
	t.Helper()
	return indexContext{
		Store:           st,
		Chunker:         chunk.New(),
		ChunkOpts:       chunk.Options{Tokens: 200, Overlap: 20},
		Orchestrator:    batch.New(p, batch.Config{BatchTimeout: testBatchTimeout}),
		Provider:        p.id,
		Model:           p.model,
		ProviderKey:     "pk",
		CacheEnabled:    true,
		MaxCacheEntries: 1000,
	}
}

func openTestSyncStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", false, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}
