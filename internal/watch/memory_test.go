package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/config"
)

func TestResolveMemoryRoots_TracksKnownFilesMemoryDirAndExtraPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "memory"), 0o755))
	extraFile := filepath.Join(dir, "extra.md")
	require.NoError(t, os.WriteFile(extraFile, []byte("x"), 0o644))

	cfg := config.Default(dir)
	cfg.Paths.ExtraPaths = []string{extraFile}

	fileRoots, dirRoots := resolveMemoryRoots(cfg)
	assert.Contains(t, fileRoots, filepath.Join(dir, "MEMORY.md"))
	assert.Contains(t, fileRoots, filepath.Join(dir, "memory.md"))
	assert.Contains(t, fileRoots, extraFile)
	assert.Contains(t, dirRoots, filepath.Join(dir, "memory"))
}

func TestResolveMemoryRoots_RejectsSymlinkedExtraPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.md")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link.md")
	require.NoError(t, os.Symlink(target, link))

	cfg := config.Default(dir)
	cfg.Paths.ExtraPaths = []string{link}

	fileRoots, _ := resolveMemoryRoots(cfg)
	assert.NotContains(t, fileRoots, link)
}

func TestMemoryWatcher_FiresOnRelevantChangeOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte("hello"), 0o644))

	cfg := config.Default(dir)
	cfg.Sync.WatchDebounceMs = 20

	w := NewMemoryWatcher(cfg, nil, nil)
	var fired int32
	w.debounce = newDebouncer(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	time.Sleep(150 * time.Millisecond) // let the watches register

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired), "a change outside the watched roots should not arm the debounce")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte("hello again"), 0o644))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) > 0 }, 2*time.Second, 10*time.Millisecond)
}
