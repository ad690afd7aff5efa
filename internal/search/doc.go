// Package search implements the query engine: hybrid retrieval over the
// vector and keyword virtual tables the store maintains, merged by
// per-list max-normalized weighted sum so the blend stays proportional
// to how confident each side actually was, not just its rank.
package search
