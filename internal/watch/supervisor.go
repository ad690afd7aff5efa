package watch

import (
	"context"
	"log/slog"

	"github.com/openclaw/memindex/internal/config"
	syncengine "github.com/openclaw/memindex/internal/sync"
)

// Supervisor owns the three trigger sources a running agent needs
// beyond an explicit or on-search/on-session-start sync call: the
// memory-document watcher, the session-transcript delta tracker, and
// the interval timer. The manager facade (C9) constructs one per
// engine and starts/stops it alongside.
type Supervisor struct {
	memory   *MemoryWatcher
	session  *SessionDeltaTracker
	interval *IntervalSyncer
}

func NewSupervisor(cfg config.Config, engine *syncengine.Engine, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		memory:   NewMemoryWatcher(cfg, engine, logger),
		session:  NewSessionDeltaTracker(cfg, engine, logger),
		interval: NewIntervalSyncer(cfg, engine, logger),
	}
}

// Start enables whichever triggers the configuration requests:
// cfg.Sync.Watch gates both the memory watcher and the session delta
// tracker, cfg.Sync.IntervalMinutes gates the interval timer
// independently.
func (s *Supervisor) Start(ctx context.Context, cfg config.Config) error {
	if cfg.Sync.Watch {
		if err := s.memory.Start(ctx); err != nil {
			return err
		}
		if err := s.session.Start(ctx); err != nil {
			return err
		}
	}
	s.interval.Start(ctx)
	return nil
}

// Stop releases every trigger source. Safe to call once per Start.
func (s *Supervisor) Stop() {
	s.memory.Stop()
	s.session.Stop()
	s.interval.Stop()
}
