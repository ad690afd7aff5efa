package sync

import (
	"context"
	"os"

	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/store"
)

// incrementalSync enumerates the current
// set of memory documents and session transcripts, index any whose
// content hash differs from the stored files.hash, and delete file
// records (with their chunks/vectors/FTS rows) for paths no longer
// present on disk.
func incrementalSync(ctx context.Context, cfg config.Config, ic indexContext) error {
	if cfg.HasSource(config.SourceMemory) {
		if err := diffAndIndexMemory(ctx, cfg, ic); err != nil {
			return err
		}
	}
	if cfg.HasSource(config.SourceSessions) {
		if err := diffAndIndexSessions(ctx, cfg, ic); err != nil {
			return err
		}
	}
	return nil
}

func diffAndIndexMemory(ctx context.Context, cfg config.Config, ic indexContext) error {
	entries, err := scanMemoryFiles(cfg.Paths.WorkspaceDir, cfg.Paths.ExtraPaths)
	if err != nil {
		return err
	}
	return diffAndIndex(ctx, ic, store.SourceMemory, entries, func(e fileEntry) (indexTarget, error) {
		text, err := os.ReadFile(e.AbsPath)
		if err != nil {
			return indexTarget{}, err
		}
		return indexTarget{
			Path:    e.Path,
			Source:  store.SourceMemory,
			Text:    string(text),
			Hash:    e.Hash,
			MtimeMs: e.MtimeMs,
			Size:    e.Size,
		}, nil
	})
}

func diffAndIndexSessions(ctx context.Context, cfg config.Config, ic indexContext) error {
	transcripts, err := scanSessionFiles(cfg)
	if err != nil {
		return err
	}
	entries := make([]fileEntry, len(transcripts))
	byPath := make(map[string]sessionTranscript, len(transcripts))
	for i, t := range transcripts {
		entries[i] = fileEntry{Path: t.Path, AbsPath: t.AbsPath, MtimeMs: t.MtimeMs, Size: t.Size, Hash: t.Hash}
		byPath[t.Path] = t
	}
	return diffAndIndex(ctx, ic, store.SourceSessions, entries, func(e fileEntry) (indexTarget, error) {
		t := byPath[e.Path]
		return indexTarget{
			Path:    t.Path,
			Source:  store.SourceSessions,
			Text:    t.Text,
			Hash:    t.Hash,
			MtimeMs: t.MtimeMs,
			Size:    t.Size,
		}, nil
	})
}

// diffAndIndex is the shared enumerate/diff/delete shape for one source:
// reindex any entry whose hash differs from the stored record (or that
// has no stored record yet), then delete stored records for paths no
// longer present.
func diffAndIndex(ctx context.Context, ic indexContext, source store.Source, current []fileEntry, build func(fileEntry) (indexTarget, error)) error {
	seen := make(map[string]bool, len(current))
	for _, e := range current {
		seen[e.Path] = true

		existing, ok, err := ic.Store.GetFile(e.Path)
		if err != nil {
			return err
		}
		if ok && existing.Hash == e.Hash {
			continue
		}

		target, err := build(e)
		if err != nil {
			continue // unreadable file: skip, leave prior state intact
		}
		if err := indexOneFile(ctx, ic, target); err != nil {
			return err
		}
	}

	stored, err := ic.Store.ListFiles(source)
	if err != nil {
		return err
	}
	for _, f := range stored {
		if !seen[f.Path] {
			if err := ic.Store.DeleteFile(f.Path); err != nil {
				return err
			}
		}
	}
	return nil
}
