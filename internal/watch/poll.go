package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// snapshot is the cheap per-file state the polling fallback compares
// across scans.
type snapshot struct {
	modTime time.Time
	size    int64
}

// pollLoop is the fsnotify fallback shared by the memory watcher and the
// session tracker: periodically re-scan, and call onChange whenever the
// scan differs from the previous one — a single "something changed"
// signal rather than one event per path; see debouncer's doc comment for
// why per-path granularity isn't needed here.
func pollLoop(ctx context.Context, stopCh <-chan struct{}, interval time.Duration, scan func() map[string]snapshot, onChange func()) {
	prev := scan()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			cur := scan()
			if snapshotsDiffer(prev, cur) {
				onChange()
			}
			prev = cur
		}
	}
}

func snapshotsDiffer(a, b map[string]snapshot) bool {
	if len(a) != len(b) {
		return true
	}
	for k, v := range b {
		if av, ok := a[k]; !ok || av != v {
			return true
		}
	}
	return false
}

// scanPaths stats each file root and walks each directory root, keying
// the result by absolute path.
func scanPaths(fileRoots, dirRoots []string) map[string]snapshot {
	out := map[string]snapshot{}
	for _, f := range fileRoots {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			out[f] = snapshot{modTime: info.ModTime(), size: info.Size()}
		}
	}
	for _, d := range dirRoots {
		_ = filepath.WalkDir(d, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if de.IsDir() {
				return nil
			}
			info, err := de.Info()
			if err != nil {
				return nil
			}
			out[path] = snapshot{modTime: info.ModTime(), size: info.Size()}
			return nil
		})
	}
	return out
}

// scanFlatDir stats the immediate files in dir, non-recursively — used
// for the sessions directory, which holds one ldjson file per transcript.
func scanFlatDir(dir string) map[string]snapshot {
	out := map[string]snapshot{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[filepath.Join(dir, e.Name())] = snapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return out
}
