package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/errs"
)

// Ollama calls a local Ollama server. The embeddings endpoint accepts one
// prompt per call, so batches are issued as sequential requests. Output
// dimensions are not supported and silently ignored.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func newOllama(cfg config.Config) *Ollama {
	baseURL := cfg.OllamaBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.OllamaModel
	if model == "" {
		model = "nomic-embed-text"
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: sharedClient,
	}
}

func (o *Ollama) Name() string         { return NameOllama }
func (o *Ollama) DefaultModel() string { return o.model }

// RequiredConfigKeys is empty: a default local endpoint always exists.
func (o *Ollama) RequiredConfigKeys() []string { return nil }
func (o *Ollama) Configured() bool             { return true }

func (o *Ollama) Embed(ctx context.Context, req Request) ([]Result, error) {
	callCtx, cancel := callContext(ctx, req.Timeout)
	defer cancel()

	out := make([]Result, 0, len(req.Texts))
	for _, text := range req.Texts {
		vector, err := o.embedOne(callCtx, req.Model, text)
		if err != nil {
			return nil, err
		}
		out = append(out, Result{
			Text:     text,
			Vector:   vector,
			Provider: NameOllama,
			Model:    req.Model,
		})
	}
	return out, nil
}

func (o *Ollama) embedOne(ctx context.Context, model, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: Ollama request failed: %v", errs.ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: Ollama embeddings request failed (%d): %s", errs.ErrProvider, resp.StatusCode, string(raw))
	}

	var apiResp struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode Ollama response: %v", errs.ErrProvider, err)
	}
	if apiResp.Embedding == nil {
		return nil, fmt.Errorf("%w: Ollama response missing embedding vector", errs.ErrProvider)
	}
	return apiResp.Embedding, nil
}
