package embed

import "context"

// BatchJobStatus is the lifecycle state of a provider-side batch job.
type BatchJobStatus string

const (
	BatchJobPending   BatchJobStatus = "pending"
	BatchJobRunning   BatchJobStatus = "running"
	BatchJobCompleted BatchJobStatus = "completed"
	BatchJobFailed    BatchJobStatus = "failed"
)

// BatchItem is one request line in a provider-side batch job, keyed by a
// caller-assigned CustomID so results can be mapped back after the job
// completes out of order.
type BatchItem struct {
	CustomID string
	Text     string
}

// BatchItemResult is one completed line of a batch job's result file.
type BatchItemResult struct {
	CustomID  string
	Embedding []float32
	Err       string // non-empty if this item failed independently of the job
}

// BatchJobProvider is implemented by providers that support submitting an
// asynchronous, provider-hosted batch embedding job instead of issuing
// per-request HTTP calls. Not all providers implement it;
// the Local provider never does.
type BatchJobProvider interface {
	Provider
	// SupportsBatchJobs reports whether this deployment has batch-job
	// endpoints configured at all, distinct from transient failures.
	SupportsBatchJobs() bool
	// SubmitBatch uploads items as a single job and returns its job ID.
	SubmitBatch(ctx context.Context, items []BatchItem) (jobID string, err error)
	// PollBatch returns the job's current status.
	PollBatch(ctx context.Context, jobID string) (BatchJobStatus, error)
	// DownloadBatch retrieves results for a completed job.
	DownloadBatch(ctx context.Context, jobID string) ([]BatchItemResult, error)
}
