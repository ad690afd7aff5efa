package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/google/uuid"

	"github.com/openclaw/memindex/internal/batch"
	"github.com/openclaw/memindex/internal/chunk"
	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/embed"
	idxerrors "github.com/openclaw/memindex/internal/errors"
	"github.com/openclaw/memindex/internal/store"
)

// genPath names one generation of the store's backing file, e.g.
// "index.db.gen-<uuid>". cfg.Store.Path itself becomes a symlink pointing
// at the current generation, swapped atomically on reindex success: "on
// success remove the backup" is implemented here as atomically
// repointing a generation symlink then deleting the previous
// generation's files.
func genPath(basePath string, id uuid.UUID) string {
	return fmt.Sprintf("%s.gen-%s", basePath, id.String())
}

// fullReindex builds a brand-new generation of the store from scratch,
// indexes every currently-discoverable memory document and session
// transcript into it, and — only on success — atomically repoints
// cfg.Store.Path at the new generation via renameio's atomic symlink
// swap. It returns a fresh handle opened at cfg.Store.Path (i.e. at the
// new generation), leaving the caller's previous handle untouched and
// still serving reads against the old generation's files until the
// caller closes it — readers holding the old handle keep reading the old
// files even after the rename.
func fullReindex(ctx context.Context, cfg config.Config, current *store.Store, orch *batch.Orchestrator, providerKind string, provider embed.Provider, fp store.Fingerprint) (*store.Store, error) {
	basePath := cfg.Store.Path
	if basePath == ":memory:" {
		return fullReindexInMemory(ctx, cfg, current, orch, providerKind, provider, fp)
	}

	lockDir := filepath.Dir(basePath)
	lock := embed.NewFileLock(lockDir)
	if err := lock.Lock(); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer func() { _ = lock.Unlock() }()

	genID, err := uuid.NewRandom()
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	newPath := genPath(basePath, genID)

	oldTarget, hadSymlink := readExistingGeneration(basePath)

	newStore, err := store.Open(newPath, cfg.Store.VectorEnabled, cfg.Store.VectorExtensionPath)
	if err != nil {
		return nil, err
	}
	// On any failure past this point, the half-built generation is
	// discarded and the caller's previous handle/symlink remain in force.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = newStore.Close()
			_ = os.Remove(newPath)
			_ = os.Remove(newPath + "-wal")
			_ = os.Remove(newPath + "-shm")
		}
	}()

	if current != nil {
		if entries, err := current.DumpCacheEntries(); err == nil && len(entries) > 0 {
			_ = newStore.UpsertCacheEntries(entries)
		}
	}

	ic := indexContext{
		Store:           newStore,
		Chunker:         chunk.New(),
		ChunkOpts:       chunk.Options{Tokens: cfg.Chunking.Tokens, Overlap: cfg.Chunking.Overlap},
		Orchestrator:    orch,
		Provider:        providerKind,
		Model:           provider.Model(),
		ProviderKey:     fp.ProviderKey,
		CacheEnabled:    cfg.Cache.Enabled,
		MaxCacheEntries: cfg.Cache.MaxEntries,
	}

	if err := indexAllInto(ctx, cfg, ic); err != nil {
		return nil, err
	}

	finalFP := fp
	if newStore.VectorAvailable() {
		finalFP.VectorDims = newStore.VectorDims()
	}
	if err := newStore.SetFingerprint(finalFP); err != nil {
		return nil, err
	}
	if err := newStore.PruneCacheIfNeeded(cfg.Cache.MaxEntries); err != nil {
		return nil, err
	}
	if err := newStore.Close(); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}

	if err := renameio.Symlink(newPath, basePath); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	succeeded = true

	if hadSymlink {
		_ = os.Remove(oldTarget)
		_ = os.Remove(oldTarget + "-wal")
		_ = os.Remove(oldTarget + "-shm")
	}

	reopened, err := store.Open(basePath, cfg.Store.VectorEnabled, cfg.Store.VectorExtensionPath)
	if err != nil {
		return nil, err
	}
	return reopened, nil
}

// readExistingGeneration reports the file a pre-existing symlink at
// basePath points at, and whether basePath was a symlink at all. A
// basePath that is instead a plain, pre-generation-scheme database file
// is left alone — renameio.Symlink below will replace it with a symlink,
// and the original content survives under its own name as an unreferenced
// file (never deleted automatically, since it isn't a generation this
// scheme created).
func readExistingGeneration(basePath string) (target string, ok bool) {
	info, err := os.Lstat(basePath)
	if err != nil {
		return "", false
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return "", false
	}
	target, err = os.Readlink(basePath)
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(basePath), target)
	}
	return target, true
}

// fullReindexInMemory handles the ":memory:" store path used in tests:
// there is nothing to swap on disk, so a full reindex simply rebuilds the
// same in-process store's contents.
func fullReindexInMemory(ctx context.Context, cfg config.Config, current *store.Store, orch *batch.Orchestrator, providerKind string, provider embed.Provider, fp store.Fingerprint) (*store.Store, error) {
	st, err := store.Open(":memory:", cfg.Store.VectorEnabled, cfg.Store.VectorExtensionPath)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if entries, err := current.DumpCacheEntries(); err == nil && len(entries) > 0 {
			_ = st.UpsertCacheEntries(entries)
		}
	}
	ic := indexContext{
		Store:           st,
		Chunker:         chunk.New(),
		ChunkOpts:       chunk.Options{Tokens: cfg.Chunking.Tokens, Overlap: cfg.Chunking.Overlap},
		Orchestrator:    orch,
		Provider:        providerKind,
		Model:           provider.Model(),
		ProviderKey:     fp.ProviderKey,
		CacheEnabled:    cfg.Cache.Enabled,
		MaxCacheEntries: cfg.Cache.MaxEntries,
	}
	if err := indexAllInto(ctx, cfg, ic); err != nil {
		_ = st.Close()
		return nil, err
	}
	finalFP := fp
	if st.VectorAvailable() {
		finalFP.VectorDims = st.VectorDims()
	}
	if err := st.SetFingerprint(finalFP); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// indexAllInto enumerates every memory document and session transcript
// currently on disk and indexes each into ic.Store — the body of a full
// reindex, also reused by nothing else (incremental sync instead diffs
// against stored hashes; see engine.go).
func indexAllInto(ctx context.Context, cfg config.Config, ic indexContext) error {
	files, err := scanMemoryFiles(cfg.Paths.WorkspaceDir, cfg.Paths.ExtraPaths)
	if err != nil {
		return err
	}
	for _, f := range files {
		text, err := os.ReadFile(f.AbsPath)
		if err != nil {
			continue
		}
		t := indexTarget{
			Path:    f.Path,
			Source:  store.SourceMemory,
			Text:    string(text),
			Hash:    f.Hash,
			MtimeMs: f.MtimeMs,
			Size:    f.Size,
		}
		if err := indexOneFile(ctx, ic, t); err != nil {
			return err
		}
	}

	sessions, err := scanSessionFiles(cfg)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		t := indexTarget{
			Path:    s.Path,
			Source:  store.SourceSessions,
			Text:    s.Text,
			Hash:    s.Hash,
			MtimeMs: s.MtimeMs,
			Size:    s.Size,
		}
		if err := indexOneFile(ctx, ic, t); err != nil {
			return err
		}
	}
	return nil
}
