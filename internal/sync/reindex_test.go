package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/batch"
	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/store"
)

func TestFullReindex_InMemory_IndexesMemoryAndSetsFingerprint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte("content long enough to be chunked into at least one piece"), 0o644))

	cfg := config.Default(dir)
	cfg.Store.Path = ":memory:"
	cfg.Paths.Sources = []config.Source{config.SourceMemory}

	p := &fakeProvider{id: "local", model: "m", dims: 1}
	orch := batch.New(p, batch.Config{BatchTimeout: testBatchTimeout})

	newStore, err := fullReindex(context.Background(), cfg, nil, orch, "local", p, store.Fingerprint{Provider: "local", Model: "m", ProviderKey: "pk"})
	require.NoError(t, err)
	defer newStore.Close()

	f, ok, err := newStore.GetFile("MEMORY.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, f.Hash)

	fp, ok, err := newStore.GetFingerprint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "local", fp.Provider)
}

func TestFullReindex_OnDisk_SwapsSymlinkAndCleansOldGeneration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte("some memory content that is long enough to chunk safely here"), 0o644))

	cfg := config.Default(dir)
	cfg.Store.Path = filepath.Join(dir, ".memindex", "index.db")
	cfg.Paths.Sources = []config.Source{config.SourceMemory}

	p := &fakeProvider{id: "local", model: "m", dims: 1}
	orch := batch.New(p, batch.Config{BatchTimeout: testBatchTimeout})

	st1, err := fullReindex(context.Background(), cfg, nil, orch, "local", p, store.Fingerprint{Provider: "local", Model: "m", ProviderKey: "pk"})
	require.NoError(t, err)

	info, err := os.Lstat(cfg.Store.Path)
	require.NoError(t, err)
	assert.True(t, info.Mode()&os.ModeSymlink != 0, "store path should be a symlink after a full reindex")

	firstTarget, err := os.Readlink(cfg.Store.Path)
	require.NoError(t, err)

	st2, err := fullReindex(context.Background(), cfg, st1, orch, "local", p, store.Fingerprint{Provider: "local", Model: "m", ProviderKey: "pk"})
	require.NoError(t, err)
	require.NoError(t, st1.Close())
	defer st2.Close()

	secondTarget, err := os.Readlink(cfg.Store.Path)
	require.NoError(t, err)
	assert.NotEqual(t, firstTarget, secondTarget)

	if !filepath.IsAbs(firstTarget) {
		firstTarget = filepath.Join(filepath.Dir(cfg.Store.Path), firstTarget)
	}
	_, statErr := os.Stat(firstTarget)
	assert.True(t, os.IsNotExist(statErr), "old generation file should be removed after a successful swap")
}

func TestFullReindex_SeedsCacheFromLiveStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte("content long enough to be chunked into at least one piece"), 0o644))

	cfg := config.Default(dir)
	cfg.Store.Path = ":memory:"
	cfg.Paths.Sources = []config.Source{config.SourceMemory}

	prior := openTestSyncStore(t)
	require.NoError(t, prior.UpsertCacheEntries([]store.CacheEntry{
		{Provider: "local", Model: "m", ProviderKey: "pk", Hash: "preexisting", Embedding: []float32{9}, UpdatedAt: 1},
	}))

	p := &fakeProvider{id: "local", model: "m", dims: 1}
	orch := batch.New(p, batch.Config{BatchTimeout: testBatchTimeout})

	newStore, err := fullReindex(context.Background(), cfg, prior, orch, "local", p, store.Fingerprint{Provider: "local", Model: "m", ProviderKey: "pk"})
	require.NoError(t, err)
	defer newStore.Close()

	loaded, err := newStore.LoadCacheEntries("local", "m", "pk", []string{"preexisting"})
	require.NoError(t, err)
	assert.Contains(t, loaded, "preexisting")
}
