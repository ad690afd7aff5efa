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

// OpenAIProvider embeds text against any OpenAI-compatible embeddings
// endpoint (OpenAI itself, or a compatible gateway such as OpenRouter),
// grounded on the picoclaw reference implementation's raw net/http
// embedding client, extended with the batch-job upload/poll/download API.
type OpenAIProvider struct {
	baseURL string
	model   string
	apiKey  string
	headers map[string]string
	client  *http.Client

	mu   sync.Mutex
	dims int
}

// NewOpenAIProvider constructs a provider against baseURL/model. apiKey is
// sent as a Bearer token; extraHeaders are merged in verbatim (and are
// included in the provider key, minus the Authorization header itself).
func NewOpenAIProvider(baseURL, model, apiKey string, extraHeaders map[string]string) *OpenAIProvider {
	headers := make(map[string]string, len(extraHeaders))
	for k, v := range extraHeaders {
		headers[k] = v
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		headers: headers,
		client:  &http.Client{Timeout: RemoteBatchTimeout},
	}
}

func (p *OpenAIProvider) ID() string    { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }
func (p *OpenAIProvider) Close() error  { return nil }

func (p *OpenAIProvider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, RemoteBatchTimeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
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
			fmt.Sprintf("openai embeddings call failed: %d %s", resp.StatusCode, string(raw)), nil)
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeProviderCall, err)
	}
	if parsed.Error != nil {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall, parsed.Error.Message, nil)
	}

	out := make([][]float32, len(texts))
	filled := 0
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
		filled++
	}
	if filled != len(texts) {
		return nil, idxerrors.New(idxerrors.ErrCodeProviderCall,
			fmt.Sprintf("openai embeddings response incomplete: got %d of %d", filled, len(texts)), nil)
	}

	p.mu.Lock()
	if len(out) > 0 {
		p.dims = len(out[0])
	}
	p.mu.Unlock()

	return out, nil
}

func (p *OpenAIProvider) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
}

// --- batch-job mode ---

func (p *OpenAIProvider) SupportsBatchJobs() bool { return p.baseURL != "" }

type openAIBatchLine struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     openAIEmbeddingRequest `json:"body"`
}

// SubmitBatch uploads an ldjson request file and creates a batch job,
// mirroring OpenAI's Files + Batches APIs.
func (p *OpenAIProvider) SubmitBatch(ctx context.Context, items []BatchItem) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		line := openAIBatchLine{
			CustomID: item.CustomID,
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body:     openAIEmbeddingRequest{Model: p.model, Input: []string{item.Text}},
		}
		if err := enc.Encode(line); err != nil {
			return "", idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
		}
	}

	fileID, err := p.uploadFile(ctx, buf.Bytes())
	if err != nil {
		return "", err
	}
	return p.createBatchJob(ctx, fileID)
}

func (p *OpenAIProvider) uploadFile(ctx context.Context, ldjson []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/files", bytes.NewReader(ldjson))
	if err != nil {
		return "", idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	p.applyHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed, err.Error(), err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed,
			fmt.Sprintf("file upload failed: %d %s", resp.StatusCode, string(raw)), nil)
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", idxerrors.Wrap(idxerrors.ErrCodeBatchJobFailed, err)
	}
	return parsed.ID, nil
}

func (p *OpenAIProvider) createBatchJob(ctx context.Context, fileID string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"input_file_id":     fileID,
		"endpoint":          "/v1/embeddings",
		"completion_window": "24h",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return "", idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	p.applyHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed, err.Error(), err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed,
			fmt.Sprintf("batch job create failed: %d %s", resp.StatusCode, string(raw)), nil)
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", idxerrors.Wrap(idxerrors.ErrCodeBatchJobFailed, err)
	}
	return parsed.ID, nil
}

func (p *OpenAIProvider) PollBatch(ctx context.Context, jobID string) (BatchJobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/batches/"+jobID, nil)
	if err != nil {
		return "", idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	p.applyHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed, err.Error(), err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed, "endpoint not available", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", idxerrors.New(idxerrors.ErrCodeBatchJobFailed,
			fmt.Sprintf("batch poll failed: %d %s", resp.StatusCode, string(raw)), nil)
	}
	var parsed struct {
		Status       string `json:"status"`
		OutputFileID string `json:"output_file_id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", idxerrors.Wrap(idxerrors.ErrCodeBatchJobFailed, err)
	}
	switch parsed.Status {
	case "completed":
		return BatchJobCompleted, nil
	case "failed", "expired", "cancelled":
		return BatchJobFailed, nil
	case "in_progress", "finalizing", "validating":
		return BatchJobRunning, nil
	default:
		return BatchJobPending, nil
	}
}

func (p *OpenAIProvider) DownloadBatch(ctx context.Context, jobID string) ([]BatchItemResult, error) {
	// Resolve the output file id, then stream its ldjson content.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/batches/"+jobID, nil)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	p.applyHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, idxerrors.New(idxerrors.ErrCodeBatchJobFailed, err.Error(), err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var job struct {
		OutputFileID string `json:"output_file_id"`
	}
	if err := json.Unmarshal(raw, &job); err != nil || job.OutputFileID == "" {
		return nil, idxerrors.New(idxerrors.ErrCodeBatchJobFailed, "batch job has no output file", nil)
	}

	contentReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/files/"+job.OutputFileID+"/content", nil)
	if err != nil {
		return nil, idxerrors.Wrap(idxerrors.ErrCodeInternal, err)
	}
	p.applyHeaders(contentReq)
	contentResp, err := p.client.Do(contentReq)
	if err != nil {
		return nil, idxerrors.New(idxerrors.ErrCodeBatchJobFailed, err.Error(), err)
	}
	defer contentResp.Body.Close()

	var results []BatchItemResult
	dec := json.NewDecoder(contentResp.Body)
	for dec.More() {
		var line struct {
			CustomID string `json:"custom_id"`
			Response struct {
				Body struct {
					Data []struct {
						Embedding []float32 `json:"embedding"`
					} `json:"data"`
				} `json:"body"`
			} `json:"response"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := dec.Decode(&line); err != nil {
			break
		}
		r := BatchItemResult{CustomID: line.CustomID}
		if line.Error != nil {
			r.Err = line.Error.Message
		} else if len(line.Response.Body.Data) > 0 {
			r.Embedding = line.Response.Body.Data[0].Embedding
		}
		results = append(results, r)
	}
	return results, nil
}
