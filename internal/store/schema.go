package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// vectorExtensionLoadTimeout bounds how long loading the vec0-style
// extension may take before vector storage is marked unavailable —
// loading is guarded by a single cached future and a 30s timeout.
const vectorExtensionLoadTimeout = 30 * time.Second

var driverSeq int64

// registerDriver registers a sqlite3 driver variant, unique to this Open
// call, whose ConnectHook loads extensionPath. Each Store gets its own
// driver name so concurrently-open stores with different extension paths
// never share a ConnectHook closure.
func registerDriver(extensionPath string) string {
	name := fmt.Sprintf("sqlite3_memindex_%d", atomic.AddInt64(&driverSeq, 1))
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if extensionPath == "" {
				return nil
			}
			return conn.LoadExtension(extensionPath, "sqlite3_vec_init")
		},
	})
	return name
}

// Store owns the single sqlite connection backing one manager: one store
// handle per manager, all mutations go through it.
type Store struct {
	db   *sql.DB
	path string

	extensionOnce sync.Once
	extensionErr  error

	mu              sync.RWMutex
	extensionLoaded bool
	vectorAvailable bool
	ftsAvailable    bool
	vectorDims      int
}

// Open creates or opens the store at path, applies WAL pragmas, attempts
// to load the vector extension (if vectorEnabled), and creates the base
// schema plus whichever virtual tables are available.
func Open(path string, vectorEnabled bool, vectorExtensionPath string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
			}
		}
	}

	drv := registerDriver(vectorExtensionPath)
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = path
	}

	db, err := sql.Open(drv, dsn)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = OFF",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
	}

	if err := s.createBaseSchema(); err != nil {
		_ = db.Close()
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}

	if vectorEnabled {
		if err := s.probeVectorExtension(); err == nil {
			s.extensionLoaded = true
			// Reopening an existing store: recreate chunks_vec at the
			// dimensionality recorded in meta, if any (idempotent — does
			// not touch existing rows).
			if fp, ok, _ := s.GetFingerprint(); ok && fp.VectorDims > 0 {
				_ = s.EnsureVectorTable(fp.VectorDims)
			}
		}
	}
	_ = s.tryCreateFTSTable()

	return s, nil
}

func (s *Store) createBaseSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS files (
	path      TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	hash      TEXT NOT NULL,
	mtime_ms  INTEGER NOT NULL,
	size      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	source     TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	chunk_hash TEXT NOT NULL,
	model      TEXT NOT NULL,
	text       TEXT NOT NULL,
	embedding  TEXT,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_path_source ON chunks(path, source);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	provider_key TEXT NOT NULL,
	hash         TEXT NOT NULL,
	embedding    TEXT NOT NULL,
	dims         INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (provider, model, provider_key, hash)
);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_updated_at ON embedding_cache(updated_at);
`
	_, err := s.db.Exec(schema)
	return err
}

// probeVectorExtension forces the ConnectHook to run at least once
// (guarded by a once-per-Store cached future and vectorExtensionLoadTimeout),
// reporting whether the vec0-style extension loaded successfully. It does
// not create or touch chunks_vec — callers decide table state separately,
// since dimensionality is not known until a fingerprint or a live embedding
// says so.
func (s *Store) probeVectorExtension() error {
	done := make(chan error, 1)
	go func() {
		s.extensionOnce.Do(func() {
			_, s.extensionErr = s.db.Exec("SELECT 1")
		})
		done <- s.extensionErr
	}()

	select {
	case err := <-done:
		if err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeVectorUnavailable, err)
		}
		return nil
	case <-time.After(vectorExtensionLoadTimeout):
		return idxerrors.New(idxerrors.ErrCodeVectorUnavailable, "vector extension load timed out", nil)
	}
}

// EnsureVectorTable creates chunks_vec at the given dimensionality if it
// does not already exist, without touching any existing rows. Used when
// reopening a store whose fingerprint already names a known dimensionality.
func (s *Store) EnsureVectorTable(dims int) error {
	if dims <= 0 {
		return idxerrors.New(idxerrors.ErrCodeVectorUnavailable, "vector dims must be positive", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.extensionLoaded {
		return idxerrors.New(idxerrors.ErrCodeVectorUnavailable, "vector extension not loaded", nil)
	}
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(id TEXT PRIMARY KEY, embedding FLOAT[%d])", dims)
	if _, err := s.db.Exec(stmt); err != nil {
		s.vectorAvailable = false
		return idxerrors.Wrap(idxerrors.ErrCodeVectorUnavailable, err)
	}
	s.vectorAvailable = true
	s.vectorDims = dims
	return nil
}

// RebuildVectorTable drops and recreates chunks_vec at the given
// dimensionality. Dimension changes force a drop and rebuild.
func (s *Store) RebuildVectorTable(dims int) error {
	if dims <= 0 {
		return idxerrors.New(idxerrors.ErrCodeVectorUnavailable, "vector dims must be positive", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.extensionLoaded {
		return idxerrors.New(idxerrors.ErrCodeVectorUnavailable, "vector extension not loaded", nil)
	}
	if _, err := s.db.Exec("DROP TABLE IF EXISTS chunks_vec"); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeVectorUnavailable, err)
	}
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE chunks_vec USING vec0(id TEXT PRIMARY KEY, embedding FLOAT[%d])", dims)
	if _, err := s.db.Exec(stmt); err != nil {
		s.vectorAvailable = false
		return idxerrors.Wrap(idxerrors.ErrCodeVectorUnavailable, err)
	}
	s.vectorAvailable = true
	s.vectorDims = dims
	return nil
}

func (s *Store) tryCreateFTSTable() error {
	const stmt = `CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	text,
	id UNINDEXED,
	path UNINDEXED,
	source UNINDEXED,
	model UNINDEXED,
	start_line UNINDEXED,
	end_line UNINDEXED
)`
	if _, err := s.db.Exec(stmt); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeFtsUnavailable, err)
	}
	s.ftsAvailable = true
	return nil
}

// ExtensionLoaded reports whether the vec0-style extension loaded
// successfully, independent of whether chunks_vec has been built yet.
func (s *Store) ExtensionLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extensionLoaded
}

// VectorAvailable reports whether chunks_vec is usable.
func (s *Store) VectorAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectorAvailable
}

// FTSAvailable reports whether chunks_fts is usable.
func (s *Store) FTSAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ftsAvailable
}

// VectorDims returns the dimensionality chunks_vec is currently built for,
// or 0 if unknown/unavailable.
func (s *Store) VectorDims() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectorDims
}

// Path returns the underlying database file path.
func (s *Store) Path() string { return s.path }

// DB returns the underlying connection, for callers (telemetry persistence)
// that need to share this store's single connection rather than open their
// own. The returned *sql.DB must not be closed by the caller.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection, checkpointing WAL first.
func (s *Store) Close() error {
	if s.path != ":memory:" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
