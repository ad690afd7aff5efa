package watch

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw/memindex/internal/config"
	syncengine "github.com/openclaw/memindex/internal/sync"
)

// sessionDebounceWindow is fixed at 5s —
// unlike the memory watcher's window, it is not configurable.
const sessionDebounceWindow = 5 * time.Second

// sessionState is the per-transcript byte/message accounting the delta
// tracker carries across fires.
type sessionState struct {
	lastSize        int64
	pendingBytes    int64
	pendingMessages int64
}

// SessionDeltaTracker watches this agent's session transcripts for
// growth and requests a sync once either the pending byte count or the
// pending message count crosses its configured threshold. A threshold
// of zero or less means "any positive delta
// triggers".
type SessionDeltaTracker struct {
	cfg    config.Config
	engine *syncengine.Engine
	logger *slog.Logger

	debounce *debouncer

	mu      sync.Mutex
	state   map[string]*sessionState
	pending map[string]struct{}

	fsWatcher *fsnotify.Watcher
	started   bool
	stopped   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewSessionDeltaTracker(cfg config.Config, engine *syncengine.Engine, logger *slog.Logger) *SessionDeltaTracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &SessionDeltaTracker{
		cfg:     cfg,
		engine:  engine,
		logger:  logger,
		state:   map[string]*sessionState{},
		pending: map[string]struct{}{},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	t.debounce = newDebouncer(sessionDebounceWindow, t.fire)
	return t
}

// Start begins watching cfg.Paths.SessionsDir. A missing or disabled
// sessions source is a no-op, not an error.
func (t *SessionDeltaTracker) Start(ctx context.Context) error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()

	if t.cfg.Paths.SessionsDir == "" || !t.cfg.HasSource(config.SourceSessions) {
		close(t.doneCh)
		return nil
	}
	dir := t.cfg.Paths.SessionsDir

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn("fsnotify unavailable for session watch, falling back to polling", "error", err)
		go func() {
			defer close(t.doneCh)
			pollLoop(ctx, t.stopCh, pollInterval, func() map[string]snapshot {
				return scanFlatDir(dir)
			}, func() {
				for path := range scanFlatDir(dir) {
					t.enqueue(path)
				}
			})
		}()
		return nil
	}

	t.mu.Lock()
	t.fsWatcher = fsw
	t.mu.Unlock()

	if err := fsw.Add(dir); err != nil {
		t.logger.Warn("failed to watch sessions directory", "path", dir, "error", err)
	}

	go func() {
		defer close(t.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t.enqueue(event.Name)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				t.logger.Warn("session watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (t *SessionDeltaTracker) enqueue(path string) {
	t.mu.Lock()
	t.pending[path] = struct{}{}
	t.mu.Unlock()
	t.debounce.arm()
}

func (t *SessionDeltaTracker) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(t.pending))
	for p := range t.pending {
		paths = append(paths, p)
	}
	t.pending = map[string]struct{}{}
	t.mu.Unlock()

	var dirty bool
	for _, p := range paths {
		if t.processPath(p) {
			dirty = true
		}
	}
	if !dirty {
		return
	}
	if err := t.engine.Sync(context.Background(), "session-delta", false); err != nil {
		t.logger.Warn("session-delta sync failed", "error", err)
	}
}

// processPath runs one transcript through the delta state machine and
// reports whether it crossed a threshold this round.
func (t *SessionDeltaTracker) processPath(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	size := info.Size()

	thresholdBytes := int64(t.cfg.Sync.Session.DeltaBytes)
	thresholdMessages := int64(t.cfg.Sync.Session.DeltaMessages)

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[path]
	if !ok {
		st = &sessionState{}
		t.state[path] = st
	}

	scanFrom := st.lastSize
	if size < st.lastSize {
		// The file shrank (truncated or rotated): the old baseline no
		// longer means anything, so the whole current file counts as new.
		st.pendingBytes += size
		scanFrom = 0
	} else {
		st.pendingBytes += size - st.lastSize
	}
	st.lastSize = size

	byteTriggered := (thresholdBytes <= 0 && st.pendingBytes > 0) ||
		(thresholdBytes > 0 && st.pendingBytes >= thresholdBytes)

	msgTriggered := false
	if !byteTriggered {
		if n, err := countNewlines(path, scanFrom, size); err == nil {
			st.pendingMessages += n
		}
		msgTriggered = (thresholdMessages <= 0 && st.pendingMessages > 0) ||
			(thresholdMessages > 0 && st.pendingMessages >= thresholdMessages)
	}

	if !byteTriggered && !msgTriggered {
		return false
	}

	if thresholdBytes > 0 {
		st.pendingBytes -= thresholdBytes
		if st.pendingBytes < 0 {
			st.pendingBytes = 0
		}
	} else {
		st.pendingBytes = 0
	}
	if thresholdMessages > 0 {
		st.pendingMessages -= thresholdMessages
		if st.pendingMessages < 0 {
			st.pendingMessages = 0
		}
	} else {
		st.pendingMessages = 0
	}
	return true
}

// countNewlines counts '\n' bytes in path's [from, to) range.
func countNewlines(path string, from, to int64) (int64, error) {
	if to <= from {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return 0, err
	}

	r := bufio.NewReader(io.LimitReader(f, to-from))
	var n int64
	buf := make([]byte, 32*1024)
	for {
		c, err := r.Read(buf)
		for i := 0; i < c; i++ {
			if buf[i] == '\n' {
				n++
			}
		}
		if err != nil {
			break
		}
	}
	return n, nil
}

// Stop releases the tracker's resources. Safe to call multiple times.
func (t *SessionDeltaTracker) Stop() {
	t.mu.Lock()
	if t.stopped || !t.started {
		t.stopped = true
		t.mu.Unlock()
		return
	}
	t.stopped = true
	fsw := t.fsWatcher
	t.mu.Unlock()

	close(t.stopCh)
	t.debounce.stop()
	if fsw != nil {
		_ = fsw.Close()
	}
	<-t.doneCh
}
