package store

import (
	"encoding/json"
	"fmt"
	"strings"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// maxCachePlaceholders caps the IN-clause size per query: lookups run in
// batches of at most 400 placeholders.
const maxCachePlaceholders = 400

// LoadCacheEntries returns hash -> embedding for every hash present in the
// embedding cache under the given (provider, model, providerKey) tuple.
// Disabled caches should simply not call this.
func (s *Store) LoadCacheEntries(provider, model, providerKey string, hashes []string) (map[string][]float32, error) {
	result := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	for start := 0; start < len(hashes); start += maxCachePlaceholders {
		end := start + maxCachePlaceholders
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)+3)
		args = append(args, provider, model, providerKey)
		for i, h := range batch {
			placeholders[i] = "?"
			args = append(args, h)
		}

		query := fmt.Sprintf(
			`SELECT hash, embedding FROM embedding_cache
			 WHERE provider = ? AND model = ? AND provider_key = ? AND hash IN (%s)`,
			strings.Join(placeholders, ","),
		)
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}

		for rows.Next() {
			var hash, raw string
			if err := rows.Scan(&hash, &raw); err != nil {
				rows.Close()
				return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
			}
			var vec []float32
			if err := json.Unmarshal([]byte(raw), &vec); err != nil {
				rows.Close()
				return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
			}
			result[hash] = vec
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		rows.Close()
	}

	return result, nil
}

// UpsertCacheEntries replaces-on-conflict the given cache entries.
func (s *Store) UpsertCacheEntries(entries []CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		`INSERT INTO embedding_cache (provider, model, provider_key, hash, embedding, dims, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider, model, provider_key, hash) DO UPDATE SET
			embedding=excluded.embedding, dims=excluded.dims, updated_at=excluded.updated_at`,
	)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		raw, err := json.Marshal(e.Embedding)
		if err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
		}
		dims := e.Dims
		if dims == 0 {
			dims = len(e.Embedding)
		}
		if _, err := stmt.Exec(e.Provider, e.Model, e.ProviderKey, e.Hash, string(raw), dims, e.UpdatedAt); err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return nil
}

// DumpCacheEntries returns every embedding_cache row, for seeding a fresh
// generation's cache from the live store ahead of a full reindex.
func (s *Store) DumpCacheEntries() ([]CacheEntry, error) {
	rows, err := s.db.Query(`SELECT provider, model, provider_key, hash, embedding, dims, updated_at FROM embedding_cache`)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer rows.Close()

	var out []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var raw string
		if err := rows.Scan(&e.Provider, &e.Model, &e.ProviderKey, &e.Hash, &raw, &e.Dims, &e.UpdatedAt); err != nil {
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Embedding); err != nil {
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneCacheIfNeeded deletes the oldest entries until the cache's row
// count is at or below maxEntries. maxEntries <= 0 disables pruning.
func (s *Store) PruneCacheIfNeeded(maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&count); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	if count <= maxEntries {
		return nil
	}

	excess := count - maxEntries
	_, err := s.db.Exec(
		`DELETE FROM embedding_cache WHERE rowid IN (
			SELECT rowid FROM embedding_cache ORDER BY updated_at ASC LIMIT ?
		)`, excess,
	)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return nil
}
