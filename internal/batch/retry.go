package batch

import (
	"context"
	"math/rand"
	"regexp"
	"time"

	"github.com/openclaw/memindex/internal/embed"
)

// retryablePattern matches error messages worth retrying.
// Case-insensitive since provider error bodies
// are not consistently cased.
var retryablePattern = regexp.MustCompile(`(?i)rate_limit|too many requests|429|resource exhausted|5xx|cloudflare`)

func isRetryableMessage(err error) bool {
	return err != nil && retryablePattern.MatchString(err.Error())
}

const (
	retryMaxAttempts  = 3
	retryInitialDelay = 500 * time.Millisecond
	retryMaxDelay     = 8 * time.Second
	retryJitterFrac   = 0.2
)

// jittered returns d scaled by a uniformly random factor in
// [1-retryJitterFrac, 1+retryJitterFrac].
func jittered(d time.Duration) time.Duration {
	factor := 1 + (rand.Float64()*2*retryJitterFrac - retryJitterFrac)
	return time.Duration(float64(d) * factor)
}

// embedBatchWithRetry calls provider.EmbedBatch, making up to
// retryMaxAttempts attempts in all when the error matches retryablePattern, with
// exponential backoff from retryInitialDelay doubling and capped at
// retryMaxDelay, plus up to ±20% jitter.
func embedBatchWithRetry(ctx context.Context, provider embed.Provider, texts []string) ([][]float32, error) {
	delay := retryInitialDelay
	var lastErr error

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		vecs, err := provider.EmbedBatch(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if attempt == retryMaxAttempts || !isRetryableMessage(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return nil, lastErr
}
