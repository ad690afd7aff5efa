package store

import (
	"database/sql"
	"encoding/json"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// ReplaceChunks deletes a file's existing chunks (and their vector/FTS
// mirrors) and inserts the given replacement set, as one transaction:
// indexing a file deletes its old chunks/vectors/FTS rows then inserts
// new ones together.
func (s *Store) ReplaceChunks(path string, chunks []Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteChunksForPathTx(tx, path); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := s.insertChunkTx(tx, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return nil
}

func (s *Store) deleteChunksForPathTx(tx *sql.Tx, path string) error {
	rows, err := tx.Query(`SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}

	if s.VectorAvailable() {
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM chunks_vec WHERE id = ?`, id); err != nil {
				return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
			}
		}
	}
	if s.FTSAvailable() {
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM chunks_fts WHERE id = ?`, id); err != nil {
				return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
			}
		}
	}
	return nil
}

func (s *Store) insertChunkTx(tx *sql.Tx, c Chunk) error {
	var embeddingJSON []byte
	if c.Embedding != nil {
		var err error
		embeddingJSON, err = json.Marshal(c.Embedding)
		if err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
		}
	}

	_, err := tx.Exec(
		`INSERT INTO chunks (id, path, source, start_line, end_line, chunk_hash, model, text, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Path, string(c.Source), c.StartLine, c.EndLine, c.ChunkHash, c.Model, c.Text, string(embeddingJSON), c.UpdatedAt,
	)
	if err != nil {
		return idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}

	if s.VectorAvailable() && len(c.Embedding) > 0 {
		vecJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
		}
		if _, err := tx.Exec(`INSERT INTO chunks_vec (id, embedding) VALUES (?, ?)`, c.ID, string(vecJSON)); err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeVectorUnavailable, err)
		}
	}

	if s.FTSAvailable() {
		_, err := tx.Exec(
			`INSERT INTO chunks_fts (id, text, path, source, model, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Text, c.Path, string(c.Source), c.Model, c.StartLine, c.EndLine,
		)
		if err != nil {
			return idxerrors.Wrap(idxerrors.ErrCodeFtsUnavailable, err)
		}
	}

	return nil
}

// GetChunk returns a single chunk row by id.
func (s *Store) GetChunk(id string) (Chunk, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, path, source, start_line, end_line, chunk_hash, model, text, updated_at FROM chunks WHERE id = ?`, id)
	var c Chunk
	var source string
	if err := row.Scan(&c.ID, &c.Path, &source, &c.StartLine, &c.EndLine, &c.ChunkHash, &c.Model, &c.Text, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Chunk{}, false, nil
		}
		return Chunk{}, false, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	c.Source = Source(source)
	return c, true, nil
}

// CountChunks returns the number of chunk rows, for status reporting.
func (s *Store) CountChunks() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return n, nil
}
