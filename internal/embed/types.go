// Package embed implements the embedding provider abstraction (C2): a
// uniform embedQuery/embedBatch capability over a Local GGUF-family model,
// an OpenAI-compatible remote, and a Gemini-compatible remote, with
// auto-selection and ordered fallback.
package embed

import (
	"context"
	"math"
	"time"
)

// Single-query and batch-call timeout ceilings differ between the
// in-process Local provider and HTTP-bound remote providers.
const (
	RemoteQueryTimeout = 60 * time.Second
	LocalQueryTimeout  = 5 * time.Minute
	RemoteBatchTimeout = 2 * time.Minute
	LocalBatchTimeout  = 10 * time.Minute
)

// ProviderKind names the three provider variants.
type ProviderKind string

const (
	KindLocal  ProviderKind = "local"
	KindOpenAI ProviderKind = "openai"
	KindGemini ProviderKind = "gemini"
)

// Provider is the uniform embedding capability. Each variant (Local,
// OpenAI-compatible, Gemini-compatible) implements this with its own
// transport.
type Provider interface {
	// ID identifies the provider variant, e.g. "local", "openai", "gemini".
	ID() string
	// Model returns the model identifier in use.
	Model() string
	// EmbedQuery embeds a single piece of text, typically a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds multiple texts, typically chunk contents.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the embedding width once known. May return 0
	// before the first successful call for providers that only learn
	// their dimensionality from a live response.
	Dimensions() int
	// Close releases any held resources (a loaded local model, idle
	// connections).
	Close() error
}

// QueryTimeout returns the single-query timeout appropriate for kind.
func QueryTimeout(kind ProviderKind) time.Duration {
	if kind == KindLocal {
		return LocalQueryTimeout
	}
	return RemoteQueryTimeout
}

// BatchTimeout returns the batch-call timeout appropriate for kind.
func BatchTimeout(kind ProviderKind) time.Duration {
	if kind == KindLocal {
		return LocalBatchTimeout
	}
	return RemoteBatchTimeout
}

// normalizeVector L2-normalizes v to unit length, sanitizing any
// non-finite component to zero first: the Local provider normalizes to
// unit length and sanitizes non-finite values to zero.
func normalizeVector(v []float32) []float32 {
	out := make([]float32, len(v))
	var sumSquares float64
	for i, val := range v {
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		out[i] = float32(f)
		sumSquares += f * f
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude <= 1e-10 {
		return out
	}
	for i, val := range out {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
