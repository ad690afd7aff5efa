package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memindex/internal/embed"
)

// fakeJobProvider implements embed.BatchJobProvider for orchestrator
// tests, with controllable submit/poll/download behavior.
type fakeJobProvider struct {
	fakeEmbedProvider
	mu sync.Mutex

	supports bool

	submitErr   error
	pollSeq     []embed.BatchJobStatus // consumed once per PollBatch call, last value sticks
	pollErr     error
	results     map[string][]float32
	downloadErr error

	submitCalls int
	pollCalls   int
}

func (f *fakeJobProvider) SupportsBatchJobs() bool { return f.supports }

func (f *fakeJobProvider) SubmitBatch(ctx context.Context, items []embed.BatchItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *fakeJobProvider) PollBatch(ctx context.Context, jobID string) (embed.BatchJobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErr != nil {
		return "", f.pollErr
	}
	if len(f.pollSeq) == 0 {
		return embed.BatchJobCompleted, nil
	}
	idx := f.pollCalls - 1
	if idx >= len(f.pollSeq) {
		idx = len(f.pollSeq) - 1
	}
	return f.pollSeq[idx], nil
}

func (f *fakeJobProvider) DownloadBatch(ctx context.Context, jobID string) ([]embed.BatchItemResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	var out []embed.BatchItemResult
	for id, vec := range f.results {
		out = append(out, embed.BatchItemResult{CustomID: id, Embedding: vec})
	}
	return out, nil
}

func TestOrchestrator_EmbedAll_PerRequestFallback_WhenJobModeDisabled(t *testing.T) {
	p := &fakeEmbedProvider{}
	o := New(p, Config{JobMode: false, BatchTimeout: time.Second, Concurrency: 2})

	items := []Item{{ID: "a", Text: "alpha", Tokens: 10}, {ID: "b", Text: "beta", Tokens: 10}}
	results, err := o.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, results, "a")
	assert.Contains(t, results, "b")
}

func TestOrchestrator_EmbedAll_Empty_ReturnsEmptyMap(t *testing.T) {
	p := &fakeEmbedProvider{}
	o := New(p, Config{})
	results, err := o.EmbedAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOrchestrator_EmbedAll_UsesJobModeWhenSupported(t *testing.T) {
	jp := &fakeJobProvider{supports: true, results: map[string][]float32{"a": {1, 2}, "b": {3, 4}}}
	o := New(jp, Config{JobMode: true, Concurrency: 1, PollInterval: time.Millisecond, Timeout: time.Second, BatchTimeout: time.Second})

	items := []Item{{ID: "a", Text: "alpha", Tokens: 10}, {ID: "b", Text: "beta", Tokens: 10}}
	results, err := o.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, results["a"])
	assert.Equal(t, []float32{3, 4}, results["b"])
	assert.Equal(t, 1, jp.submitCalls)
	assert.False(t, o.Latch().Disabled())
}

func TestOrchestrator_EmbedAll_JobSubmitFails_FallsBackToPerRequest(t *testing.T) {
	jp := &fakeJobProvider{supports: true, submitErr: errors.New("internal error")}
	o := New(jp, Config{JobMode: true, Concurrency: 1, PollInterval: time.Millisecond, Timeout: time.Second, BatchTimeout: time.Second})

	items := []Item{{ID: "a", Text: "alpha", Tokens: 10}}
	results, err := o.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	assert.Contains(t, results, "a")
	assert.Equal(t, 1, o.Latch().Failures())
}

func TestOrchestrator_EmbedAll_EndpointUnavailable_TripsLatchImmediately(t *testing.T) {
	jp := &fakeJobProvider{supports: true, submitErr: errors.New("batch endpoint not available")}
	o := New(jp, Config{JobMode: true, Concurrency: 1, PollInterval: time.Millisecond, Timeout: time.Second, BatchTimeout: time.Second})

	_, err := o.EmbedAll(context.Background(), []Item{{ID: "a", Text: "alpha", Tokens: 10}})
	require.NoError(t, err) // falls back transparently
	assert.True(t, o.Latch().Disabled())
}

func TestOrchestrator_EmbedAll_LatchDisabled_SkipsJobModeEntirely(t *testing.T) {
	jp := &fakeJobProvider{supports: true, results: map[string][]float32{"a": {1}}}
	o := New(jp, Config{JobMode: true, Concurrency: 1, PollInterval: time.Millisecond, Timeout: time.Second, BatchTimeout: time.Second})
	o.latch.RecordEndpointUnavailable()

	_, err := o.EmbedAll(context.Background(), []Item{{ID: "a", Text: "alpha", Tokens: 10}})
	require.NoError(t, err)
	assert.Equal(t, 0, jp.submitCalls)
}

func TestOrchestrator_EmbedAll_JobFailedStatus_FallsBackAndRecordsFailure(t *testing.T) {
	jp := &fakeJobProvider{supports: true, pollSeq: []embed.BatchJobStatus{embed.BatchJobFailed}}
	o := New(jp, Config{JobMode: true, Concurrency: 1, PollInterval: time.Millisecond, Timeout: time.Second, BatchTimeout: time.Second})

	items := []Item{{ID: "a", Text: "alpha", Tokens: 10}}
	results, err := o.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	assert.Contains(t, results, "a")
	assert.Equal(t, 1, o.Latch().Failures())
}

func TestOrchestrator_EmbedAll_JobTimesOut_FallsBackAndRecordsFailure(t *testing.T) {
	jp := &fakeJobProvider{supports: true, pollSeq: []embed.BatchJobStatus{embed.BatchJobRunning}}
	o := New(jp, Config{JobMode: true, Concurrency: 1, PollInterval: time.Millisecond, Timeout: 5 * time.Millisecond, BatchTimeout: time.Second})

	items := []Item{{ID: "a", Text: "alpha", Tokens: 10}}
	results, err := o.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	assert.Contains(t, results, "a")
}
