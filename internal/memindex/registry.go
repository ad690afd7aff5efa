package memindex

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openclaw/memindex/internal/config"
)

// registryCapacity bounds how many agent managers stay alive at once —
// evicting the least-recently-used one (and closing its store) when a new
// agent needs a slot, the same pattern the provider query cache (C8) uses
// for repeated queries.
const registryCapacity = 64

// registryKey identifies one manager instance: the same agent, workspace,
// and settings fingerprint must always resolve to the same Manager so
// concurrent callers share one store handle and one in-flight sync.
type registryKey struct {
	agentID             string
	workspaceDir        string
	settingsFingerprint string
}

var (
	registryOnce sync.Once
	registry     *lru.Cache[registryKey, *Manager]
	registryMu   sync.Mutex
)

func getRegistry() *lru.Cache[registryKey, *Manager] {
	registryOnce.Do(func() {
		c, _ := lru.NewWithEvict[registryKey, *Manager](registryCapacity, func(_ registryKey, evicted *Manager) {
			_ = evicted.Close()
		})
		registry = c
	})
	return registry
}

// Get returns the singleton Manager for (agentID, workspaceDir,
// settingsFingerprint), constructing one if this is the first call for
// that identity. settingsFingerprint should change whenever the caller's
// effective configuration changes, so a config edit gets a fresh manager
// rather than reusing a stale one.
func Get(ctx context.Context, agentID, workspaceDir, settingsFingerprint string, cfg config.Config, logger *slog.Logger) (*Manager, error) {
	key := registryKey{agentID: agentID, workspaceDir: workspaceDir, settingsFingerprint: settingsFingerprint}

	registryMu.Lock()
	defer registryMu.Unlock()

	r := getRegistry()
	if m, ok := r.Get(key); ok {
		return m, nil
	}

	m, err := newManager(ctx, agentID, cfg, logger)
	if err != nil {
		return nil, err
	}
	r.Add(key, m)
	return m, nil
}

// Evict removes and closes the manager for the given identity, if one
// exists. Used when an agent's workspace is torn down explicitly rather
// than left for LRU eviction.
func Evict(agentID, workspaceDir, settingsFingerprint string) {
	key := registryKey{agentID: agentID, workspaceDir: workspaceDir, settingsFingerprint: settingsFingerprint}

	registryMu.Lock()
	defer registryMu.Unlock()

	r := getRegistry()
	if m, ok := r.Get(key); ok {
		r.Remove(key)
		_ = m.Close()
	}
}
