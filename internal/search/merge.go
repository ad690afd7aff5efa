package search

import (
	"github.com/openclaw/memindex/internal/store"
)

// merged is one candidate surviving the union of the vector and keyword
// hit lists, carrying enough of the chunk row to build a Result without
// a further store round trip.
type merged struct {
	id        string
	path      string
	source    store.Source
	startLine int
	endLine   int
	text      string
	vectorRaw float64
	textRaw   float64
	score     float64
}

// vectorRawScore turns a vec0 distance into a score where larger is
// better and the value is always positive, so max-normalization never
// inverts the ordering the way dividing a negative raw score by a
// negative max would.
func vectorRawScore(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}

// textRawScore turns an fts5 bm25() rank (negative, lower is better)
// into a score where larger is better.
func textRawScore(rank float64) float64 {
	s := -rank
	if s < 0 {
		return 0
	}
	return s
}

// mergeHybrid implements the hybrid merge: normalize each list's raw scores
// by its own max (0 if the list is empty or degenerate), then blend by
// the configured weights. A candidate present in only one list gets 0
// for the other side rather than being dropped — the weighted sum still
// gives it a meaningful score.
func mergeHybrid(vectorHits []store.VectorHit, keywordHits []store.KeywordHit, vectorWeight, textWeight float64) []merged {
	byID := make(map[string]*merged, len(vectorHits)+len(keywordHits))
	var maxVector, maxText float64

	for _, h := range vectorHits {
		raw := vectorRawScore(h.Distance)
		if raw > maxVector {
			maxVector = raw
		}
		byID[h.ID] = &merged{
			id: h.ID, path: h.Path, source: h.Source,
			startLine: h.StartLine, endLine: h.EndLine, text: h.Text,
			vectorRaw: raw,
		}
	}

	for _, h := range keywordHits {
		raw := textRawScore(h.Rank)
		if raw > maxText {
			maxText = raw
		}
		m, ok := byID[h.ID]
		if !ok {
			m = &merged{
				id: h.ID, path: h.Path, source: h.Source,
				startLine: h.StartLine, endLine: h.EndLine, text: h.Text,
			}
			byID[h.ID] = m
		}
		m.textRaw = raw
	}

	out := make([]merged, 0, len(byID))
	for _, m := range byID {
		v := 0.0
		if maxVector > 0 {
			v = m.vectorRaw / maxVector
		}
		t := 0.0
		if maxText > 0 {
			t = m.textRaw / maxText
		}
		m.score = vectorWeight*v + textWeight*t
		out = append(out, *m)
	}
	return out
}
