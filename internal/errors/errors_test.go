package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("connection refused")

	ie := New(ErrCodeProviderCall, "embedding call failed", originalErr)

	require.NotNil(t, ie)
	assert.Equal(t, originalErr, ie.Unwrap())
	assert.True(t, errors.Is(ie, originalErr))
}

func TestIndexError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodePathDenied, "outside workspace", nil)
	b := New(ErrCodePathDenied, "different message, same code", nil)
	c := New(ErrCodeInternal, "unrelated", nil)

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestNew_DerivesCategorySeverityRetryable(t *testing.T) {
	cases := []struct {
		code      string
		category  Category
		retryable bool
		degrades  bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false, false},
		{ErrCodeStoreCorruption, CategoryIO, false, false},
		{ErrCodeVectorUnavailable, CategoryIO, false, true},
		{ErrCodeFtsUnavailable, CategoryIO, false, true},
		{ErrCodeProviderCall, CategoryProvider, true, false},
		{ErrCodeBatchJobFailed, CategoryProvider, true, false},
		{ErrCodePathDenied, CategoryValidation, false, false},
		{ErrCodeInternal, CategoryInternal, false, false},
	}

	for _, tc := range cases {
		ie := New(tc.code, "message", nil)
		assert.Equal(t, tc.category, ie.Category, tc.code)
		assert.Equal(t, tc.retryable, ie.Retryable, tc.code)
		assert.Equal(t, tc.degrades, ie.Degrades, tc.code)
	}
}

func TestIndexError_WithDetailAndSuggestion(t *testing.T) {
	ie := New(ErrCodePathDenied, "path outside workspace", nil).
		WithDetail("path", "../secrets.md").
		WithSuggestion("requested paths must resolve within the workspace root")

	assert.Equal(t, "../secrets.md", ie.Details["path"])
	assert.Contains(t, ie.Error(), "requested paths must resolve")
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeProviderCall, "rate limited", nil)))
	assert.False(t, IsRetryable(New(ErrCodeConfigInvalid, "bad config", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestDegrades(t *testing.T) {
	assert.True(t, Degrades(New(ErrCodeVectorUnavailable, "extension failed to load", nil)))
	assert.False(t, Degrades(New(ErrCodeStoreCorruption, "swap failed", nil)))
}

func TestGetCodeAndCategory(t *testing.T) {
	ie := New(ErrCodeProviderMissingKey, "no API key", nil)
	assert.Equal(t, ErrCodeProviderMissingKey, GetCode(ie))
	assert.Equal(t, CategoryProvider, GetCategory(ie))

	assert.Equal(t, "", GetCode(errors.New("plain")))
}
