package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForUser(t *testing.T) {
	ie := New(ErrCodeProviderSetup, "local model library not found", nil).
		WithSuggestion("run the model download step first")

	out := FormatForUser(ie)
	assert.Contains(t, out, "local model library not found")
	assert.Contains(t, out, "run the model download step first")

	assert.Equal(t, "boom", FormatForUser(errors.New("boom")))
	assert.Equal(t, "", FormatForUser(nil))
}

func TestFormatJSON(t *testing.T) {
	ie := New(ErrCodeBatchJobFailed, "batch endpoint returned 500", errors.New("http 500"))

	raw, err := FormatJSON(ie)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"code":"ERR_304_BATCH_JOB_FAILED"`)
	assert.Contains(t, string(raw), `"retryable":true`)
}

func TestFormatForLog(t *testing.T) {
	ie := New(ErrCodePathDenied, "symlink rejected", nil).WithDetail("path", "memory/x.md")

	fields := FormatForLog(ie)
	assert.Equal(t, ErrCodePathDenied, fields["error_code"])
	assert.Equal(t, "memory/x.md", fields["detail_path"])

	assert.Nil(t, FormatForLog(nil))
}
