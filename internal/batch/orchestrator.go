package batch

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	idxerrors "github.com/openclaw/memindex/internal/errors"

	"github.com/openclaw/memindex/internal/embed"
)

// endpointUnavailablePattern flags a batch-job submission error as an
// explicit "endpoint not available" signal rather than a transient
// failure.
var endpointUnavailablePattern = regexp.MustCompile(`(?i)not (available|supported|found)|404|no such (endpoint|route)`)

// Config configures one Orchestrator instance: the token budget per
// batch, whether provider-side batch jobs are tried, request concurrency,
// the job poll interval and overall job timeout, and the per-call timeout.
type Config struct {
	MaxBatchTokens int
	// JobMode enables attempting provider-side batch jobs before falling
	// back to per-request embedding.
	JobMode      bool
	Concurrency  int
	PollInterval time.Duration
	Timeout      time.Duration
	// BatchTimeout bounds a single per-request EmbedBatch call,
	// typically embed.BatchTimeout(kind).
	BatchTimeout time.Duration
}

// Orchestrator packs chunks into batches and embeds them, preferring a
// provider's asynchronous batch-job API when enabled and not yet
// disabled by repeated failure, and otherwise issuing per-batch HTTP
// calls with retry.
type Orchestrator struct {
	provider embed.Provider
	cfg      Config
	latch    *FailureLatch
}

// New creates an Orchestrator over provider with cfg, applying defaults
// for unset fields.
func New(provider embed.Provider, cfg Config) *Orchestrator {
	if cfg.MaxBatchTokens <= 0 {
		cfg.MaxBatchTokens = MaxBatchTokens
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = embed.RemoteBatchTimeout
	}
	return &Orchestrator{provider: provider, cfg: cfg, latch: NewFailureLatch(BatchFailureLimit)}
}

// Latch exposes the orchestrator's failure latch for status reporting.
func (o *Orchestrator) Latch() *FailureLatch { return o.latch }

// EmbedAll embeds every item and returns a map from Item.ID to its
// embedding. Items whose text failed to embed via an independently
// failing batch-job result line are simply absent from the result map;
// callers should treat a missing id as "needs re-embedding".
func (o *Orchestrator) EmbedAll(ctx context.Context, items []Item) (map[string][]float32, error) {
	if len(items) == 0 {
		return map[string][]float32{}, nil
	}

	batches := PackBatches(items, o.cfg.MaxBatchTokens)

	jobProvider, supportsJobs := o.provider.(embed.BatchJobProvider)
	useJobs := o.cfg.JobMode && supportsJobs && jobProvider.SupportsBatchJobs() && !o.latch.Disabled()

	if useJobs {
		results, err := o.embedViaJobs(ctx, jobProvider, batches)
		if err == nil {
			return results, nil
		}
		// Transparent fallback within the same call: subsequent work
		// falls back to per-request embedding.
	}

	return o.embedViaRequests(ctx, batches)
}

func (o *Orchestrator) embedViaRequests(ctx context.Context, batches [][]Item) (map[string][]float32, error) {
	results := make(map[string][]float32)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			res, err := o.embedOneBatch(gctx, b)
			if err != nil {
				return err
			}
			mu.Lock()
			for id, vec := range res {
				results[id] = vec
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedOneBatch issues a single EmbedBatch call with retry, under
// cfg.BatchTimeout, retrying the whole call once more on a bare timeout.
// A further timeout after that retry is counted as a batch failure.
func (o *Orchestrator) embedOneBatch(ctx context.Context, items []Item) (map[string][]float32, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}

	call := func() ([][]float32, error) {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
		defer cancel()
		return embedBatchWithRetry(cctx, o.provider, texts)
	}

	vecs, err := call()
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		vecs, err = call()
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			o.latch.RecordFailure(1)
		}
	}
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeProviderCall, err)
	}
	if len(vecs) != len(items) {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall, "embedding count mismatch", nil)
	}

	out := make(map[string][]float32, len(items))
	for i, it := range items {
		out[it.ID] = vecs[i]
	}
	return out, nil
}

func (o *Orchestrator) embedViaJobs(ctx context.Context, provider embed.BatchJobProvider, batches [][]Item) (map[string][]float32, error) {
	results := make(map[string][]float32)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			res, err := o.runOneJob(gctx, provider, b)
			if err != nil {
				return err
			}
			mu.Lock()
			for id, vec := range res {
				results[id] = vec
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) runOneJob(ctx context.Context, provider embed.BatchJobProvider, batch []Item) (map[string][]float32, error) {
	items := make([]embed.BatchItem, len(batch))
	for i, it := range batch {
		items[i] = embed.BatchItem{CustomID: it.ID, Text: it.Text}
	}

	jobID, err := provider.SubmitBatch(ctx, items)
	if err != nil {
		if endpointUnavailablePattern.MatchString(err.Error()) {
			o.latch.RecordEndpointUnavailable()
		} else {
			o.latch.RecordFailure(1)
		}
		return nil, idxerrors.Wrap(idxerrors.ErrCodeBatchJobFailed, err)
	}

	deadline := time.Now().Add(o.cfg.Timeout)
	for {
		status, err := provider.PollBatch(ctx, jobID)
		if err != nil {
			o.latch.RecordFailure(1)
			return nil, idxerrors.Wrap(idxerrors.ErrCodeBatchJobFailed, err)
		}

		switch status {
		case embed.BatchJobCompleted:
			raw, err := provider.DownloadBatch(ctx, jobID)
			if err != nil {
				o.latch.RecordFailure(1)
				return nil, idxerrors.Wrap(idxerrors.ErrCodeBatchJobFailed, err)
			}
			out := make(map[string][]float32, len(raw))
			for _, r := range raw {
				if r.Err != "" {
					continue
				}
				out[r.CustomID] = r.Embedding
			}
			o.latch.RecordSuccess()
			return out, nil
		case embed.BatchJobFailed:
			o.latch.RecordFailure(1)
			return nil, idxerrors.New(idxerrors.ErrCodeBatchJobFailed, "batch job reported failed status", nil)
		}

		if time.Now().After(deadline) {
			o.latch.RecordFailure(1)
			return nil, idxerrors.New(idxerrors.ErrCodeBatchJobFailed, "batch job timed out", nil)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}
