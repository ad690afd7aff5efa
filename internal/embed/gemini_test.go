package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_EmbedBatch_ReturnsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 2)

		resp := geminiBatchResponse{}
		resp.Embeddings = []struct {
			Values []float32 `json:"values"`
		}{
			{Values: []float32{0.1, 0.1}},
			{Values: []float32{0.2, 0.2}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewGeminiProvider(server.URL, "text-embedding-004", "test-key", nil)

	out, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0.1, 0.1}, out[0])
	assert.Equal(t, []float32{0.2, 0.2}, out[1])
	assert.Equal(t, 2, p.Dimensions())
}

func TestGeminiProvider_EmbedBatch_PropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiBatchResponse{Error: &struct {
			Message string `json:"message"`
		}{Message: "quota exceeded"}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewGeminiProvider(server.URL, "m", "k", nil)

	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGeminiProvider_EmbedBatch_IncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiBatchResponse{}
		resp.Embeddings = []struct {
			Values []float32 `json:"values"`
		}{{Values: []float32{0.1}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewGeminiProvider(server.URL, "m", "k", nil)

	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestGeminiProvider_EmbedBatch_EmptyInputReturnsNil(t *testing.T) {
	p := NewGeminiProvider("http://unused", "m", "k", nil)
	out, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGeminiProvider_ID(t *testing.T) {
	p := NewGeminiProvider("http://unused", "m", "k", nil)
	assert.Equal(t, "gemini", p.ID())
}
