package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/embed"
	"github.com/openclaw/memindex/internal/store"
)

// snippetMaxChars bounds how much of a chunk's text is surfaced with a
// result: the leading slice, not a centered excerpt around the match.
const snippetMaxChars = 700

// maxCandidates is the absolute ceiling on how many rows either search
// path fetches before merging, independent of maxResults*candidateMultiplier.
const maxCandidates = 200

// Request is one search call's parameters.
type Request struct {
	Query      string
	MaxResults int
	MinScore   float64
	// SessionKey, if set, warms that session's sync once per process
	// lifetime of this Engine before searching.
	SessionKey string
}

// Result is one ranked chunk.
type Result struct {
	ChunkID   string
	Path      string
	Source    config.Source
	StartLine int
	EndLine   int
	Snippet   string
	Score     float64
}

// Syncer is the slice of the sync engine the query engine depends on:
// the live store and provider it currently indexes with, and the
// ability to trigger a sync. Satisfied by *sync.Engine; an interface
// here so tests can exercise the merge/filter/cap logic without a real
// provider or store wiring.
type Syncer interface {
	Store() *store.Store
	Provider() embed.Provider
	Sync(ctx context.Context, reason string, force bool) error
}

// Engine runs searches against one agent's store and sync engine. It
// holds no index state of its own beyond the per-sessionKey warm-once
// set.
type Engine struct {
	cfg    config.Config
	sync   Syncer
	logger *slog.Logger

	mu     sync.Mutex
	warmed map[string]struct{}
}

// New constructs a query engine over an already-running sync engine.
func New(cfg config.Config, sync Syncer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		sync:   sync,
		logger: logger,
		warmed: make(map[string]struct{}),
	}
}

// Search runs one query: optional session warm, optional sync-on-search,
// hybrid (or vector-only) retrieval, merge, filter, cap.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	e.warmSessionOnce(req.SessionKey)

	if e.cfg.Sync.OnSearch {
		go func() {
			if err := e.sync.Sync(context.Background(), "search", false); err != nil {
				e.logger.Warn("sync-on-search failed", "error", err)
			}
		}()
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = e.cfg.Query.MaxResults
	}
	candidates := candidateCount(maxResults, e.cfg.Query.CandidateMultiplier)

	st := e.sync.Store()
	provider := e.sync.Provider()
	sources := translateSources(e.cfg.Paths.Sources)
	model := provider.Model()

	var (
		keywordHits []store.KeywordHit
		queryVec    []float32
	)

	hybrid := e.cfg.Query.Hybrid
	g, gctx := errgroup.WithContext(ctx)
	if hybrid {
		g.Go(func() error {
			hits, err := st.KeywordSearch(gctx, req.Query, model, sources, candidates)
			if err != nil {
				return err
			}
			keywordHits = hits
			return nil
		})
	}
	g.Go(func() error {
		vec, err := provider.EmbedQuery(gctx, req.Query)
		if err != nil {
			return err
		}
		queryVec = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var vectorHits []store.VectorHit
	if !isZeroVector(queryVec) {
		hits, err := st.VectorSearch(ctx, queryVec, model, sources, candidates)
		if err != nil {
			return nil, err
		}
		vectorHits = hits
	}

	if !hybrid {
		keywordHits = nil
	}

	merged := mergeHybrid(vectorHits, keywordHits, e.cfg.Query.VectorWeight, e.cfg.Query.TextWeight)

	minScore := req.MinScore
	if minScore <= 0 {
		minScore = e.cfg.Query.MinScore
	}

	results := make([]Result, 0, len(merged))
	for _, m := range merged {
		if m.score < minScore {
			continue
		}
		results = append(results, Result{
			ChunkID:   m.id,
			Path:      m.path,
			Source:    config.Source(m.source),
			StartLine: m.startLine,
			EndLine:   m.endLine,
			Snippet:   snippet(m.text),
			Score:     m.score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// WarmSession fires the same once-per-sessionKey warm sync Search does
// internally, for callers (the manager facade) that want to warm a
// session up front rather than on the first search.
func (e *Engine) WarmSession(sessionKey string) {
	e.warmSessionOnce(sessionKey)
}

func (e *Engine) warmSessionOnce(sessionKey string) {
	if sessionKey == "" {
		return
	}
	e.mu.Lock()
	_, already := e.warmed[sessionKey]
	if !already {
		e.warmed[sessionKey] = struct{}{}
	}
	e.mu.Unlock()
	if already {
		return
	}
	go func() {
		if err := e.sync.Sync(context.Background(), "session-start", false); err != nil {
			e.logger.Warn("session warm sync failed", "sessionKey", sessionKey, "error", err)
		}
	}()
}

// candidateCount bounds how many rows either search path fetches before
// merging: proportional to maxResults, but never more than maxCandidates.
func candidateCount(maxResults int, multiplier float64) int {
	if multiplier <= 0 {
		multiplier = 1
	}
	n := int(math.Floor(float64(maxResults) * multiplier))
	if n < 1 {
		n = 1
	}
	if n > maxCandidates {
		n = maxCandidates
	}
	return n
}

func translateSources(sources []config.Source) []store.Source {
	if len(sources) == 0 {
		return nil
	}
	out := make([]store.Source, len(sources))
	for i, s := range sources {
		out[i] = store.Source(s)
	}
	return out
}

func isZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= snippetMaxChars {
		return text
	}
	return string(r[:snippetMaxChars])
}
