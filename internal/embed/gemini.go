package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// GeminiProvider embeds text against a Gemini-compatible batchEmbedContents
// endpoint. Gemini has no file-upload batch-job API comparable to OpenAI's,
// so it satisfies only the synchronous Provider interface, not
// BatchJobProvider.
type GeminiProvider struct {
	baseURL string
	model   string
	apiKey  string
	headers map[string]string
	client  *http.Client

	mu   sync.Mutex
	dims int
}

// NewGeminiProvider constructs a provider against baseURL/model. apiKey is
// sent via the x-goog-api-key header.
func NewGeminiProvider(baseURL, model, apiKey string, extraHeaders map[string]string) *GeminiProvider {
	headers := make(map[string]string, len(extraHeaders))
	for k, v := range extraHeaders {
		headers[k] = v
	}
	return &GeminiProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		headers: headers,
		client:  &http.Client{Timeout: RemoteBatchTimeout},
	}
}

func (p *GeminiProvider) ID() string    { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }
func (p *GeminiProvider) Close() error  { return nil }

func (p *GeminiProvider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims
}

func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type geminiContentPart struct {
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type geminiBatchRequest struct {
	Requests []geminiSingleRequest `json:"requests"`
}

type geminiSingleRequest struct {
	Model   string            `json:"model"`
	Content geminiContentPart `json:"content"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, RemoteBatchTimeout)
	defer cancel()

	modelPath := "models/" + p.model
	reqBody := geminiBatchRequest{Requests: make([]geminiSingleRequest, len(texts))}
	for i, text := range texts {
		part := geminiContentPart{}
		part.Parts = []struct {
			Text string `json:"text"`
		}{{Text: text}}
		reqBody.Requests[i] = geminiSingleRequest{Model: modelPath, Content: part}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents", p.baseURL, modelPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	p.applyHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall, err.Error(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeProviderCall, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall,
			fmt.Sprintf("gemini embedContent call failed: %d %s", resp.StatusCode, string(raw)), nil)
	}

	var parsed geminiBatchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeProviderCall, err)
	}
	if parsed.Error != nil {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall, parsed.Error.Message, nil)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall,
			fmt.Sprintf("gemini embeddings response incomplete: got %d of %d", len(parsed.Embeddings), len(texts)), nil)
	}

	out := make([][]float32, len(texts))
	for i, e := range parsed.Embeddings {
		out[i] = e.Values
	}

	p.mu.Lock()
	if len(out) > 0 {
		p.dims = len(out[0])
	}
	p.mu.Unlock()

	return out, nil
}

func (p *GeminiProvider) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-goog-api-key", p.apiKey)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
}
