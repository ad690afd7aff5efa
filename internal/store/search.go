package store

import (
	"context"
	"encoding/json"
	"strings"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// vectorOverfetch widens the internal vec0 k beyond the caller's requested
// limit, since the subsequent join against chunks narrows the candidate set
// by source and model and would otherwise starve the final result count.
const vectorOverfetch = 4

// VectorHit is one row returned by VectorSearch: a chunk id plus its
// distance to the query vector and enough of the chunk row to build a
// result without a second round trip.
type VectorHit struct {
	ID        string
	Distance  float32
	Path      string
	Source    Source
	StartLine int
	EndLine   int
	Text      string
}

// KeywordHit is one row returned by KeywordSearch: a chunk id plus its BM25
// rank and enough of the chunk row to build a result without a second
// round trip.
type KeywordHit struct {
	ID        string
	Rank      float64
	Path      string
	Source    Source
	StartLine int
	EndLine   int
	Text      string
}

// VectorSearch runs a kNN search over chunks_vec restricted to model and
// the given source set. Returns an empty slice, not an
// error, when vector storage isn't available — callers decide whether
// that should fall back to keyword-only.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, model string, sources []Source, limit int) ([]VectorHit, error) {
	if !s.VectorAvailable() || limit <= 0 || len(queryVec) == 0 {
		return nil, nil
	}

	vecJSON, err := json.Marshal(queryVec)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}

	placeholders, args := sourceInClause(sources)
	query := `
		SELECT c.id, cv.distance, c.path, c.source, c.start_line, c.end_line, c.text
		FROM (
			SELECT id, distance FROM chunks_vec WHERE embedding MATCH ? AND k = ?
		) cv
		JOIN chunks c ON c.id = cv.id
		WHERE c.model = ?`
	queryArgs := []any{string(vecJSON), limit * vectorOverfetch, model}
	if placeholders != "" {
		query += " AND c.source IN (" + placeholders + ")"
		queryArgs = append(queryArgs, args...)
	}
	query += " ORDER BY cv.distance LIMIT ?"
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeVectorUnavailable, err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		var source string
		if err := rows.Scan(&h.ID, &h.Distance, &h.Path, &source, &h.StartLine, &h.EndLine, &h.Text); err != nil {
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		h.Source = Source(source)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return hits, nil
}

// KeywordSearch runs a BM25-ranked full-text search over chunks_fts,
// restricted to model and the given source set. Returns an
// empty slice, not an error, when FTS isn't available.
func (s *Store) KeywordSearch(ctx context.Context, queryText, model string, sources []Source, limit int) ([]KeywordHit, error) {
	if !s.FTSAvailable() || limit <= 0 {
		return nil, nil
	}
	expr := sanitizeFTSQuery(queryText)
	if expr == "" {
		return nil, nil
	}

	placeholders, args := sourceInClause(sources)
	query := `
		SELECT id, bm25(chunks_fts), path, source, start_line, end_line, text
		FROM chunks_fts
		WHERE chunks_fts MATCH ? AND model = ?`
	queryArgs := []any{expr, model}
	if placeholders != "" {
		query += " AND source IN (" + placeholders + ")"
		queryArgs = append(queryArgs, args...)
	}
	query += " ORDER BY bm25(chunks_fts) LIMIT ?"
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		// fts5 rejects malformed MATCH expressions; treat that as no
		// results rather than a store failure.
		if isFTSSyntaxError(err) {
			return nil, nil
		}
		return nil, idxerrors.Wrap(idxerrors.ErrCodeFtsUnavailable, err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		var source string
		if err := rows.Scan(&h.ID, &h.Rank, &h.Path, &source, &h.StartLine, &h.EndLine, &h.Text); err != nil {
			return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
		}
		h.Source = Source(source)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeStoreCorruption, err)
	}
	return hits, nil
}

func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "syntax error")
}

func sourceInClause(sources []Source) (string, []any) {
	if len(sources) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(sources))
	args := make([]any, len(sources))
	for i, src := range sources {
		placeholders[i] = "?"
		args[i] = string(src)
	}
	return strings.Join(placeholders, ","), args
}

// sanitizeFTSQuery turns free text into an fts5 MATCH expression: every
// token is double-quoted so characters meaningful to fts5's own query
// syntax (hyphens, colons, asterisks) are taken literally, then the
// quoted tokens are OR'd together so a multi-word query still matches
// chunks containing only some of the words, leaving bm25() to rank the
// better-covered ones first.
func sanitizeFTSQuery(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
