package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw/memindex/internal/config"
	syncengine "github.com/openclaw/memindex/internal/sync"
)

// IntervalSyncer requests a sync on a fixed period, independent of file
// activity.
type IntervalSyncer struct {
	interval time.Duration
	engine   *syncengine.Engine
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewIntervalSyncer(cfg config.Config, engine *syncengine.Engine, logger *slog.Logger) *IntervalSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntervalSyncer{
		interval: time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
		engine:   engine,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the interval timer in the background and returns
// immediately. A non-positive interval disables it entirely.
func (s *IntervalSyncer) Start(ctx context.Context) {
	if s.interval <= 0 {
		close(s.doneCh)
		return
	}
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.engine.Sync(ctx, "interval", false); err != nil {
					s.logger.Warn("interval sync failed", "error", err)
				}
			}
		}
	}()
}

// Stop blocks until the timer goroutine has exited. Safe to call
// multiple times.
func (s *IntervalSyncer) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}
