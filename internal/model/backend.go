package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Completer is the generation backend the gateway delegates to.
type Completer interface {
	Complete(ctx context.Context, params GenerationParams) (*Completion, error)
	Ping(ctx context.Context) error
}

// Completion is a single generation result from the backend.
type Completion struct {
	Text            string
	TokensGenerated int
}

// Backend is an OpenAI-compatible completions client. It targets local
// runtimes such as llama.cpp or vLLM and passes the sampling knobs those
// servers accept beyond the base API (top_k, repetition_penalty).
type Backend struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client
}

// NewBackend creates a client for the completions API rooted at apiURL
// (including the /v1 segment when the server uses one).
func NewBackend(apiURL, apiKey, model string, timeout time.Duration) *Backend {
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Backend{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete runs one completion request and maps the first choice.
func (b *Backend) Complete(ctx context.Context, params GenerationParams) (*Completion, error) {
	body := map[string]any{
		"prompt":      params.Prompt,
		"max_tokens":  params.MaxNewTokens,
		"temperature": params.Temperature,
		"top_p":       params.TopP,
	}
	if b.model != "" {
		body["model"] = b.model
	}
	if !params.DoSample {
		// Greedy decoding in OpenAI terms.
		body["temperature"] = 0
	}
	if params.TopK > 0 {
		body["top_k"] = params.TopK
	}
	if params.RepetitionPenalty > 0 {
		body["repetition_penalty"] = params.RepetitionPenalty
	}
	if params.NumReturnSequences > 1 {
		body["n"] = params.NumReturnSequences
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.apiURL+"/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseBackendError(resp.StatusCode, data)
	}

	var result completionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in backend response")
	}

	return &Completion{
		Text:            result.Choices[0].Text,
		TokensGenerated: result.Usage.CompletionTokens,
	}, nil
}

// Ping checks backend reachability via the models listing endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", b.apiURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseBackendError(resp.StatusCode, data)
	}
	return nil
}

// Completions API response types.
type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

type completionChoice struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// BackendError is a structured error from the generation backend.
type BackendError struct {
	StatusCode int
	Message    string
	Raw        string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
}

// IsTransient returns true if the error is worth retrying.
func (e *BackendError) IsTransient() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// parseBackendError parses a non-200 HTTP response body into a BackendError.
func parseBackendError(statusCode int, body []byte) *BackendError {
	be := &BackendError{
		StatusCode: statusCode,
		Raw:        string(body),
	}

	// OpenAI-compat format: {"error": {"message": "..."}}
	var openaiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &openaiErr) == nil && openaiErr.Error.Message != "" {
		be.Message = openaiErr.Error.Message
		return be
	}

	// Fallback: first line of body
	s := strings.TrimSpace(string(body))
	if idx := strings.IndexByte(s, '\n'); idx > 0 {
		s = s[:idx]
	}
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	be.Message = s
	return be
}
