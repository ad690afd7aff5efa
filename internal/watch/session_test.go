package watch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/config"
)

func newTestTracker(t *testing.T, deltaBytes, deltaMessages int) (*SessionDeltaTracker, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.Paths.SessionsDir = filepath.Join(dir, "sessions")
	cfg.Sync.Session.DeltaBytes = deltaBytes
	cfg.Sync.Session.DeltaMessages = deltaMessages
	require.NoError(t, os.MkdirAll(cfg.Paths.SessionsDir, 0o755))
	tr := NewSessionDeltaTracker(cfg, nil, nil)
	return tr, cfg.Paths.SessionsDir
}

func TestSessionDeltaTracker_TriggersOnMessageThresholdNotBytes(t *testing.T) {
	tr, dir := newTestTracker(t, 8192, 20)
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	require.False(t, tr.processPath(path))

	lines := make([]string, 30)
	for i := range lines {
		lines[i] = `{"type":"message","message":{"role":"user","content":"hi"}}`
	}
	content := strings.Join(lines, "\n") + "\n"
	require.Less(t, len(content), 8192)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	assert.True(t, tr.processPath(path), "30 message lines should cross a deltaMessages=20 threshold")

	st := tr.state[path]
	require.NotNil(t, st)
	assert.EqualValues(t, 10, st.pendingMessages, "pending messages should decrement by the threshold, not reset to zero")
	assert.EqualValues(t, 0, st.pendingBytes, "pending bytes stayed under threshold, so it clamps to zero rather than going negative")
}

func TestSessionDeltaTracker_TriggersOnByteThreshold(t *testing.T) {
	tr, dir := newTestTracker(t, 100, 0)
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	require.False(t, tr.processPath(path))

	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 150)), 0o644))
	assert.True(t, tr.processPath(path))

	st := tr.state[path]
	assert.EqualValues(t, 50, st.pendingBytes)
}

func TestSessionDeltaTracker_ZeroThresholdTriggersOnAnyPositiveDelta(t *testing.T) {
	tr, dir := newTestTracker(t, 0, 0)
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, tr.processPath(path), "a threshold of zero means any positive delta triggers")
}

func TestSessionDeltaTracker_NoChangeDoesNotTrigger(t *testing.T) {
	tr, dir := newTestTracker(t, 100, 10)
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("same content, unchanged"), 0o644))
	require.False(t, tr.processPath(path))
	require.False(t, tr.processPath(path))
}

func TestSessionDeltaTracker_ShrunkFileResetsBaselineAndCountsWholeFile(t *testing.T) {
	tr, dir := newTestTracker(t, 1000, 0)
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 500)), 0o644))
	require.False(t, tr.processPath(path))

	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("y", 50)), 0o644))
	tr.processPath(path)

	st := tr.state[path]
	assert.EqualValues(t, 50, st.lastSize)
	assert.EqualValues(t, 550, st.pendingBytes, "a shrunk file adds its entire current size (50) to the 500 bytes already pending, not a negative delta")
}

func TestSessionDeltaTracker_MissingFileIsNotAnError(t *testing.T) {
	tr, dir := newTestTracker(t, 10, 10)
	assert.False(t, tr.processPath(filepath.Join(dir, "missing.jsonl")))
}
