package sync

import (
	"context"
	"time"

	"github.com/openclaw/memindex/internal/batch"
	"github.com/openclaw/memindex/internal/chunk"
	"github.com/openclaw/memindex/internal/store"
)

// indexTarget is either a memory document or a rendered session
// transcript — the two things indexOneFile knows how to chunk and embed.
type indexTarget struct {
	Path    string
	Source  store.Source
	Text    string
	Hash    string
	MtimeMs int64
	Size    int64
}

// indexContext bundles the collaborators indexOneFile needs, so both the
// incremental path (engine.go) and the full-reindex path (reindex.go) can
// share one implementation against whichever store they're targeting.
type indexContext struct {
	Store       *store.Store
	Chunker     *chunk.Chunker
	ChunkOpts   chunk.Options
	Orchestrator *batch.Orchestrator
	Provider    string // providerKind, e.g. "local"/"openai"/"gemini"
	Model       string
	ProviderKey string
	CacheEnabled bool
	MaxCacheEntries int
}

// indexOneFile chunks a target, fills embeddings (cache-first, then the
// batch orchestrator for misses), and replaces its chunk set in st as one
// transactional unit: its old chunks/vectors/FTS rows are deleted and new
// ones inserted together. The file record is upserted afterwards, outside
// that transaction. With the cache enabled, indexing the same file twice
// without a content change performs zero provider calls.
func indexOneFile(ctx context.Context, ic indexContext, t indexTarget) error {
	chunks := ic.Chunker.Chunk(t.Text, ic.ChunkOpts)
	if len(chunks) == 0 {
		if err := ic.Store.ReplaceChunks(t.Path, nil); err != nil {
			return err
		}
		return ic.Store.UpsertFile(store.FileRecord{
			Path:    t.Path,
			Source:  t.Source,
			Hash:    t.Hash,
			MtimeMs: t.MtimeMs,
			Size:    t.Size,
		})
	}

	now := time.Now().UnixMilli()
	storeChunks := make([]store.Chunk, len(chunks))
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		id := store.ChunkID(t.Source, t.Path, c.StartLine, c.EndLine, c.Hash, ic.Model)
		storeChunks[i] = store.Chunk{
			ID:        id,
			Path:      t.Path,
			Source:    t.Source,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			ChunkHash: c.Hash,
			Model:     ic.Model,
			Text:      c.Text,
			UpdatedAt: now,
		}
		hashes[i] = c.Hash
	}

	cached := map[string][]float32{}
	if ic.CacheEnabled {
		var err error
		cached, err = ic.Store.LoadCacheEntries(ic.Provider, ic.Model, ic.ProviderKey, hashes)
		if err != nil {
			return err
		}
	}

	var missItems []batch.Item
	missIndex := map[string]int{} // batch item ID -> storeChunks index, keyed by chunk hash (unique within one file's chunk set)
	for i, h := range hashes {
		if _, ok := cached[h]; ok {
			storeChunks[i].Embedding = cached[h]
			continue
		}
		missItems = append(missItems, batch.Item{ID: h, Text: storeChunks[i].Text, Tokens: ic.ChunkOpts.Tokens})
		missIndex[h] = i
	}

	if len(missItems) > 0 {
		vecs, err := ic.Orchestrator.EmbedAll(ctx, missItems)
		if err != nil {
			return err
		}
		var newEntries []store.CacheEntry
		for h, idx := range missIndex {
			vec, ok := vecs[h]
			if !ok {
				continue
			}
			storeChunks[idx].Embedding = vec
			if ic.CacheEnabled {
				newEntries = append(newEntries, store.CacheEntry{
					Provider:    ic.Provider,
					Model:       ic.Model,
					ProviderKey: ic.ProviderKey,
					Hash:        h,
					Embedding:   vec,
					UpdatedAt:   now,
				})
			}
		}
		if ic.CacheEnabled && len(newEntries) > 0 {
			if err := ic.Store.UpsertCacheEntries(newEntries); err != nil {
				return err
			}
			if err := ic.Store.PruneCacheIfNeeded(ic.MaxCacheEntries); err != nil {
				return err
			}
		}
	}

	if err := ic.Store.ReplaceChunks(t.Path, storeChunks); err != nil {
		return err
	}
	return ic.Store.UpsertFile(store.FileRecord{
		Path:    t.Path,
		Source:  t.Source,
		Hash:    t.Hash,
		MtimeMs: t.MtimeMs,
		Size:    t.Size,
	})
}
