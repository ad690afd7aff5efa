package batch

import "sync"

// BatchFailureLimit is the failure-count threshold that permanently
// disables provider-side batch-job mode for the rest of the process.
const BatchFailureLimit = 2

// FailureLatch is the batch manager's global failure counter. It is a
// latch, not a circuit breaker: once tripped it never re-enables, even
// though the underlying counter resets to zero on success while still
// untripped. Guarded by its own mutex so concurrent batch submissions
// serialize their updates.
type FailureLatch struct {
	mu       sync.Mutex
	limit    int
	failures int
	disabled bool
}

// NewFailureLatch creates a latch that trips once failures reach limit.
func NewFailureLatch(limit int) *FailureLatch {
	if limit <= 0 {
		limit = BatchFailureLimit
	}
	return &FailureLatch{limit: limit}
}

// Disabled reports whether the latch has tripped.
func (l *FailureLatch) Disabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disabled
}

// RecordFailure increments the counter by max(1, attempts) and trips the
// latch once the limit is reached. A no-op once already disabled.
func (l *FailureLatch) RecordFailure(attempts int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled {
		return
	}
	if attempts < 1 {
		attempts = 1
	}
	l.failures += attempts
	if l.failures >= l.limit {
		l.disabled = true
	}
}

// RecordEndpointUnavailable trips the latch immediately, modeling an
// explicit "batch endpoint not available" signal distinct from a
// transient failure.
func (l *FailureLatch) RecordEndpointUnavailable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled {
		return
	}
	l.failures += l.limit
	l.disabled = true
}

// RecordSuccess resets the counter to zero. A no-op once disabled —
// the latch does not re-enable itself.
func (l *FailureLatch) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled {
		return
	}
	l.failures = 0
}

// Failures returns the current counter value, for status reporting.
func (l *FailureLatch) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}
