package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/store"
)

func TestIndexOneFile_InsertsChunksAndFileRecord(t *testing.T) {
	st := openTestSyncStore(t)
	p := &fakeProvider{id: "local", model: "m", dims: 1}
	ic := newTestIndexContext(t, st, p)

	target := indexTarget{
		Path:   "MEMORY.md",
		Source: store.SourceMemory,
		Text:   "# Heading\n\nSome paragraph text that is long enough to form a chunk on its own merits here.",
		Hash:   "h1",
	}
	require.NoError(t, indexOneFile(context.Background(), ic, target))

	f, ok, err := st.GetFile("MEMORY.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h1", f.Hash)

	n, err := st.CountChunks()
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestIndexOneFile_SecondIndexOfUnchangedContentReusesCache(t *testing.T) {
	st := openTestSyncStore(t)
	p := &fakeProvider{id: "local", model: "m", dims: 1}
	ic := newTestIndexContext(t, st, p)

	target := indexTarget{
		Path:   "MEMORY.md",
		Source: store.SourceMemory,
		Text:   "Paragraph one is long enough to become its own chunk when split by the chunker.",
		Hash:   "h1",
	}
	require.NoError(t, indexOneFile(context.Background(), ic, target))
	callsAfterFirst := p.calls
	require.Greater(t, callsAfterFirst, 0)

	// Re-indexing the same file with the same chunk hashes should hit the
	// cache and perform zero further provider calls.
	require.NoError(t, indexOneFile(context.Background(), ic, target))
	assert.Equal(t, callsAfterFirst, p.calls)
}

func TestIndexOneFile_EmptyTextClearsChunks(t *testing.T) {
	st := openTestSyncStore(t)
	p := &fakeProvider{id: "local", model: "m", dims: 1}
	ic := newTestIndexContext(t, st, p)

	require.NoError(t, indexOneFile(context.Background(), ic, indexTarget{
		Path:   "MEMORY.md",
		Source: store.SourceMemory,
		Text:   "some content here that is long enough to produce at least one chunk safely",
		Hash:   "h1",
	}))
	n1, _ := st.CountChunks()
	require.Greater(t, n1, 0)

	require.NoError(t, indexOneFile(context.Background(), ic, indexTarget{
		Path:   "MEMORY.md",
		Source: store.SourceMemory,
		Text:   "",
		Hash:   "h2",
	}))
	n2, _ := st.CountChunks()
	assert.Equal(t, 0, n2)
}
