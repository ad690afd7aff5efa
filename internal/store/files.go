package store

import (
	"database/sql"
	"errors"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// UpsertFile inserts or replaces a file record.
func (s *Store) UpsertFile(f FileRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO files (path, source, hash, mtime_ms, size) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET source=excluded.source, hash=excluded.hash, mtime_ms=excluded.mtime_ms, size=excluded.size`,
		f.Path, string(f.Source), f.Hash, f.MtimeMs, f.Size,
	)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return nil
}

// GetFile returns the file record for path, or ok=false if absent.
func (s *Store) GetFile(path string) (FileRecord, bool, error) {
	row := s.db.QueryRow(`SELECT path, source, hash, mtime_ms, size FROM files WHERE path = ?`, path)
	var f FileRecord
	var source string
	if err := row.Scan(&f.Path, &source, &f.Hash, &f.MtimeMs, &f.Size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, false, nil
		}
		return FileRecord{}, false, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	f.Source = Source(source)
	return f, true, nil
}

// ListFiles returns every file record, optionally restricted to source.
func (s *Store) ListFiles(source Source) ([]FileRecord, error) {
	var rows *sql.Rows
	var err error
	if source == "" {
		rows, err = s.db.Query(`SELECT path, source, hash, mtime_ms, size FROM files`)
	} else {
		rows, err = s.db.Query(`SELECT path, source, hash, mtime_ms, size FROM files WHERE source = ?`, string(source))
	}
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var f FileRecord
		var src string
		if err := rows.Scan(&f.Path, &src, &f.Hash, &f.MtimeMs, &f.Size); err != nil {
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		f.Source = Source(src)
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFile removes a file record and every chunk (plus vector/FTS
// mirrors) belonging to it, as one transactional unit — files present in
// the table but missing on disk are deleted together with their chunks.
func (s *Store) DeleteFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteChunksForPathTx(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	if err := tx.Commit(); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return nil
}
