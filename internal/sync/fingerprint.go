package sync

import (
	"github.com/openclaw/memindex/internal/config"
	"github.com/openclaw/memindex/internal/embed"
	"github.com/openclaw/memindex/internal/store"
)

// currentFingerprint derives the fingerprint that the active configuration
// and provider imply — compared against the one persisted in meta to
// decide whether a full reindex is required.
func currentFingerprint(cfg config.Config, providerModel, providerKind, providerKey string, vectorDims int) store.Fingerprint {
	return store.Fingerprint{
		Model:        providerModel,
		Provider:     providerKind,
		ProviderKey:  providerKey,
		ChunkTokens:  cfg.Chunking.Tokens,
		ChunkOverlap: cfg.Chunking.Overlap,
		VectorDims:   vectorDims,
	}
}

// needsFullReindex decides whether a full reindex is required: force, an absent stored
// fingerprint, any mismatch in provider/model/providerKey/chunking, or
// vector storage having become available without meta recording its
// dimensionality, all force a full reindex. vectorNowAvailable reflects
// st.VectorAvailable() (independent of the fingerprint that may be stale).
func needsFullReindex(force bool, stored store.Fingerprint, storedOK bool, want store.Fingerprint, vectorNowAvailable bool) bool {
	if force || !storedOK {
		return true
	}
	if stored.Provider != want.Provider || stored.Model != want.Model || stored.ProviderKey != want.ProviderKey {
		return true
	}
	if stored.ChunkTokens != want.ChunkTokens || stored.ChunkOverlap != want.ChunkOverlap {
		return true
	}
	if vectorNowAvailable && stored.VectorDims <= 0 {
		return true
	}
	return false
}

// providerKeyFor computes the provider-key used in a fingerprint for a
// given provider kind under the active configuration.
func providerKeyFor(cfg config.ProviderConfig, kind embed.ProviderKind, model string) string {
	switch kind {
	case embed.KindLocal:
		return embed.ProviderKey(string(kind), "", model, nil)
	case embed.KindOpenAI:
		return embed.ProviderKey(string(kind), cfg.OpenAI.BaseURL, model, cfg.OpenAI.Headers)
	case embed.KindGemini:
		return embed.ProviderKey(string(kind), cfg.Gemini.BaseURL, model, cfg.Gemini.Headers)
	default:
		return embed.ProviderKey(string(kind), "", model, nil)
	}
}
