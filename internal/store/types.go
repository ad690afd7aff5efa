// Package store implements the embedded relational store (C4): a single
// sqlite database file holding file records, chunks, the persistent
// embedding cache, the active index fingerprint, and two virtual tables —
// a vec0-style vector index and an FTS5 keyword index — kept in lockstep
// under one connection.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Source names the corpus a file record belongs to.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceSessions Source = "sessions"
)

// FileRecord is one row of the files table: the last-indexed state of a
// single document.
type FileRecord struct {
	Path    string
	Source  Source
	Hash    string
	MtimeMs int64
	Size    int64
}

// Chunk is one row of the chunks table, optionally mirrored into the
// vector and FTS virtual tables.
type Chunk struct {
	ID        string
	Path      string
	Source    Source
	StartLine int
	EndLine   int
	ChunkHash string
	Model     string
	Text      string
	Embedding []float32 // nil when the provider call hasn't completed yet
	UpdatedAt int64
}

// CacheEntry is one row of embedding_cache.
type CacheEntry struct {
	Provider    string
	Model       string
	ProviderKey string
	Hash        string
	Embedding   []float32
	Dims        int
	UpdatedAt   int64
}

// Fingerprint is the JSON value stored under meta key memory_index_meta_v1.
// Any disagreement with the configuration currently in force triggers a
// full reindex.
type Fingerprint struct {
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	ProviderKey  string `json:"providerKey"`
	ChunkTokens  int    `json:"chunkTokens"`
	ChunkOverlap int    `json:"chunkOverlap"`
	VectorDims   int    `json:"vectorDims,omitempty"`
}

// MetaKey is the singleton key holding the active Fingerprint.
const MetaKey = "memory_index_meta_v1"

// ChunkID computes the deterministic, content-addressable primary key for
// a chunk: a hash of source, path, line range, chunk hash, and model —
// idempotent across re-indexing identical content.
func ChunkID(source Source, path string, startLine, endLine int, chunkHash, model string) string {
	h := sha256.New()
	h.Write([]byte(string(source)))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(endLine)))
	h.Write([]byte{0})
	h.Write([]byte(chunkHash))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}
