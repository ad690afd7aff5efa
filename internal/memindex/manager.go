package memindex

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openclaw/memindex/internal/async"
	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/search"
	"github.com/openclaw/memindex/internal/store"
	syncengine "github.com/openclaw/memindex/internal/sync"
	"github.com/openclaw/memindex/internal/telemetry"
	"github.com/openclaw/memindex/internal/watch"
)

// Status is the manager's externally-visible health and activity summary,
// consumed by callers that want to show an agent its index state without
// reaching into the store directly.
type Status struct {
	Provider           string
	FallbackFrom       string
	FallbackWhy        string
	VectorAvailable    bool
	FTSAvailable       bool
	EmbeddingAvailable bool
	ConstructionError  string
	QueryCount         int64
	ZeroResultCount    int64
	Progress           async.IndexProgressSnapshot
	Preflight          []PreflightResult
}

// Manager is the per-agent facade (C9): it owns one store, one sync
// engine, one query engine, and one trigger supervisor, and exposes the
// narrow operation set an agent runtime calls.
type Manager struct {
	agentID string
	cfg     config.Config
	logger  *slog.Logger

	st         *store.Store
	syncEngine *syncengine.Engine
	searchEng  *search.Engine
	supervisor *watch.Supervisor
	metrics    *telemetry.QueryMetrics
	indexer    *async.BackgroundIndexer
	progress   *async.IndexProgress
	preflight  []PreflightResult

	constructErr error

	mu     sync.Mutex
	closed bool
}

// newManager opens the store, runs preflight probes, constructs the sync
// and query engines, and starts the trigger supervisor. A provider
// construction failure (ProviderSetup/ProviderMissingKey) does not fail
// construction — it is recorded and surfaced the first time Search, Sync,
// or WarmSession is actually called, per the error-handling design's
// "surface with guidance" rule for those kinds; the disk/fd/writability
// preflight checks and vector/FTS availability degrade individually and
// never block construction either.
func newManager(ctx context.Context, agentID string, cfg config.Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dataDir := filepath.Dir(cfg.Store.Path)
	indexer := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})

	m := &Manager{
		agentID:   agentID,
		cfg:       cfg,
		logger:    logger,
		indexer:   indexer,
		progress:  indexer.Progress(),
		preflight: runPreflight(cfg),
	}

	// A lock file left behind by a killed-mid-index previous run means the
	// incremental fingerprint in the store can't be trusted; force a full
	// resync this startup instead of trusting it.
	forceStartupSync := async.HasIncompleteLock(dataDir)

	st, err := store.Open(cfg.Store.Path, cfg.Store.VectorEnabled, cfg.Store.VectorExtensionPath)
	if err != nil {
		return nil, err
	}
	m.st = st
	m.metrics = telemetry.NewQueryMetrics(newMetricsStore(st, logger))

	se, err := syncengine.New(ctx, cfg, st, logger)
	if err != nil {
		m.constructErr = err
		logger.Warn("sync engine construction failed, manager starting in degraded mode", "agent", agentID, "error", err)
		m.progress.SetError(err.Error())
		return m, nil
	}
	m.syncEngine = se
	m.searchEng = search.New(cfg, se, logger)
	m.supervisor = watch.NewSupervisor(cfg, se, logger)
	if err := m.supervisor.Start(ctx, cfg); err != nil {
		_ = st.Close()
		return nil, err
	}

	indexer.IndexFunc = func(ctx context.Context, _ *async.IndexProgress) error {
		return se.Sync(ctx, "startup", forceStartupSync)
	}
	indexer.Start(context.Background())

	return m, nil
}

// newMetricsStore shares the manager's own sqlite connection for persistent
// query telemetry, falling back to in-memory-only counters if the telemetry
// tables can't be created (e.g. a read-only filesystem). The store itself
// is never closed here — it's the same connection st.Close() already owns.
func newMetricsStore(st *store.Store, logger *slog.Logger) telemetry.QueryMetricsStore {
	if err := telemetry.InitTelemetrySchema(st.DB()); err != nil {
		logger.Warn("telemetry schema init failed, metrics stay in-memory only", "error", err)
		return nil
	}
	mstore, err := telemetry.NewSQLiteMetricsStore(st.DB())
	if err != nil {
		logger.Warn("telemetry store construction failed, metrics stay in-memory only", "error", err)
		return nil
	}
	return mstore
}

// Search runs a query through the query engine, recording latency and
// result-count telemetry.
func (m *Manager) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	if err := m.degradedErr(); err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := m.searchEng.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	m.metrics.Record(telemetry.QueryEvent{
		Query:       req.Query,
		ResultCount: len(results),
		Latency:     time.Since(start),
		Timestamp:   start,
	})
	return results, nil
}

// Sync triggers an explicit sync. Unlike fire-and-forget syncs from
// search/session warm, the caller sees the outcome.
func (m *Manager) Sync(ctx context.Context, reason string, force bool) error {
	if err := m.degradedErr(); err != nil {
		return err
	}
	return m.syncEngine.Sync(ctx, reason, force)
}

// WarmSession fires a "session-start" sync for the given key, gated by
// cfg.Sync.OnSessionStart, via the query engine's own warm-once tracking
// (so a caller-driven warm and a search-driven warm for the same key never
// double-fire).
func (m *Manager) WarmSession(sessionKey string) {
	if m.degradedErr() != nil || !m.cfg.Sync.OnSessionStart || sessionKey == "" {
		return
	}
	m.searchEng.WarmSession(sessionKey)
}

// Status reports the manager's current health.
func (m *Manager) Status() Status {
	s := Status{
		Preflight:  m.preflight,
		Progress:   m.progress.Snapshot(),
	}
	if m.constructErr != nil {
		s.ConstructionError = m.constructErr.Error()
	}
	if m.st != nil {
		s.VectorAvailable = m.st.VectorAvailable()
		s.FTSAvailable = m.st.FTSAvailable()
	}
	if m.syncEngine != nil {
		s.EmbeddingAvailable = true
		ss := m.syncEngine.Status()
		s.Provider = ss.Provider
		s.FallbackFrom = ss.FallbackFrom
		s.FallbackWhy = ss.FallbackWhy
	}
	if snap := m.metrics.Snapshot(); snap != nil {
		s.QueryCount = snap.TotalQueries
		s.ZeroResultCount = snap.ZeroResultCount
	}
	return s
}

// ProbeVectorAvailability reports whether the vec0-style virtual table
// loaded successfully for this store.
func (m *Manager) ProbeVectorAvailability() bool {
	return m.st != nil && m.st.VectorAvailable()
}

// ProbeEmbeddingAvailability reports whether an embedding provider is in
// force. False means Search/Sync/WarmSession will return constructErr.
func (m *Manager) ProbeEmbeddingAvailability() bool {
	return m.syncEngine != nil
}

func (m *Manager) degradedErr() error {
	if m.constructErr != nil {
		return m.constructErr
	}
	return nil
}

// Close stops the trigger supervisor, flushes telemetry, and closes the
// store. Safe to call more than once; later calls return nil.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.indexer != nil {
		m.indexer.Stop()
	}
	if m.supervisor != nil {
		m.supervisor.Stop()
	}
	if m.syncEngine != nil {
		_ = m.syncEngine.Close()
	}
	_ = m.metrics.Close()
	if m.st != nil {
		return m.st.Close()
	}
	return nil
}
