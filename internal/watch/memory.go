package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw/memindex/internal/config"
	syncengine "github.com/openclaw/memindex/internal/sync"
)

const pollInterval = 2 * time.Second

// MemoryWatcher watches MEMORY.md, memory.md, memory/, and each
// non-symlink extraPath. On any add/change/unlink under one of those
// roots it arms a debounce timer that requests a watch-triggered sync
// once things settle.
type MemoryWatcher struct {
	cfg    config.Config
	engine *syncengine.Engine
	logger *slog.Logger

	debounce *debouncer

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	started   bool
	stopped   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewMemoryWatcher(cfg config.Config, engine *syncengine.Engine, logger *slog.Logger) *MemoryWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &MemoryWatcher{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	window := time.Duration(cfg.Sync.WatchDebounceMs) * time.Millisecond
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	w.debounce = newDebouncer(window, w.fire)
	return w
}

// resolveMemoryRoots returns the absolute file and directory roots to
// watch: MEMORY.md/memory.md (tracked even before they exist, so their
// creation is caught), memory/ if present, and each extraPath that isn't
// itself a symlink.
func resolveMemoryRoots(cfg config.Config) (fileRoots, dirRoots []string) {
	ws := cfg.Paths.WorkspaceDir
	for _, name := range []string{"MEMORY.md", "memory.md"} {
		fileRoots = append(fileRoots, filepath.Join(ws, name))
	}

	memDir := filepath.Join(ws, "memory")
	if info, err := os.Lstat(memDir); err == nil {
		if info.Mode()&os.ModeSymlink == 0 && info.IsDir() {
			dirRoots = append(dirRoots, memDir)
		}
	} else if os.IsNotExist(err) {
		dirRoots = append(dirRoots, memDir)
	}

	for _, extra := range cfg.Paths.ExtraPaths {
		info, err := os.Lstat(extra)
		if err != nil {
			if os.IsNotExist(err) {
				fileRoots = append(fileRoots, extra)
			}
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if info.IsDir() {
			dirRoots = append(dirRoots, extra)
		} else {
			fileRoots = append(fileRoots, extra)
		}
	}
	return fileRoots, dirRoots
}

// Start begins watching in the background and returns immediately.
func (w *MemoryWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	fileRoots, dirRoots := resolveMemoryRoots(w.cfg)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable for memory watch, falling back to polling", "error", err)
		go func() {
			defer close(w.doneCh)
			pollLoop(ctx, w.stopCh, pollInterval, func() map[string]snapshot {
				return scanPaths(fileRoots, dirRoots)
			}, w.debounce.arm)
		}()
		return nil
	}

	w.mu.Lock()
	w.fsWatcher = fsw
	w.mu.Unlock()

	watchedDirs := map[string]struct{}{}
	for _, f := range fileRoots {
		dir := filepath.Dir(f)
		if _, ok := watchedDirs[dir]; ok {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch memory file's parent directory", "path", dir, "error", err)
			continue
		}
		watchedDirs[dir] = struct{}{}
	}
	for _, d := range dirRoots {
		if err := w.addRecursive(d); err != nil {
			w.logger.Warn("failed to watch memory directory", "path", d, "error", err)
		}
	}

	relevant := func(path string) bool {
		for _, f := range fileRoots {
			if path == f {
				return true
			}
		}
		for _, d := range dirRoots {
			if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}

	go func() {
		defer close(w.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = w.addRecursive(event.Name)
					}
				}
				if relevant(event.Name) {
					w.debounce.arm()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("memory watcher error", "error", err)
			}
		}
	}()
	return nil
}

// addRecursive adds root and every subdirectory beneath it to the
// fsnotify watcher, since fsnotify only watches one level at a time.
func (w *MemoryWatcher) addRecursive(root string) error {
	w.mu.Lock()
	fsw := w.fsWatcher
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}

func (w *MemoryWatcher) fire() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	if err := w.engine.Sync(context.Background(), "watch", false); err != nil {
		w.logger.Warn("watch-triggered sync failed", "error", err)
	}
}

// Stop releases the watcher's resources. Safe to call multiple times.
func (w *MemoryWatcher) Stop() {
	w.mu.Lock()
	if w.stopped || !w.started {
		w.stopped = true
		w.mu.Unlock()
		return
	}
	w.stopped = true
	fsw := w.fsWatcher
	w.mu.Unlock()

	close(w.stopCh)
	w.debounce.stop()
	if fsw != nil {
		_ = fsw.Close()
	}
	<-w.doneCh
}
