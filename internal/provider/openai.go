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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// USD per one million input tokens.
var openAIPricePer1M = map[string]float64{
	"text-embedding-3-small": 0.02,
	"text-embedding-3-large": 0.13,
	"text-embedding-ada-002": 0.10,
}

// OpenAI calls the OpenAI embeddings API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAI(cfg config.Config) *OpenAI {
	baseURL := cfg.OpenAIBaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedClient,
	}
}

func (o *OpenAI) Name() string         { return NameOpenAI }
func (o *OpenAI) DefaultModel() string { return "text-embedding-3-small" }

func (o *OpenAI) RequiredConfigKeys() []string { return []string{"openai_api_key"} }
func (o *OpenAI) Configured() bool             { return o.apiKey != "" }

func (o *OpenAI) Embed(ctx context.Context, req Request) ([]Result, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: missing OpenAI API key, set EMBX_OPENAI_API_KEY or openai_api_key in config", errs.ErrConfiguration)
	}

	payload := map[string]any{
		"model": req.Model,
		"input": req.Texts,
	}
	if req.Dimensions > 0 {
		payload["dimensions"] = req.Dimensions
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := callContext(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenAI request failed: %v", errs.ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: OpenAI embeddings request failed (%d): %s", errs.ErrProvider, resp.StatusCode, string(raw))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Usage struct {
			PromptTokens *int `json:"prompt_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode OpenAI response: %v", errs.ErrProvider, err)
	}

	if len(apiResp.Data) != len(req.Texts) {
		return nil, fmt.Errorf("%w: OpenAI response size does not match request size", errs.ErrProvider)
	}

	// Per-item cost is the request's token total split evenly across texts,
	// priced by the model's published rate. Unknown models carry no cost.
	var perItemCost *float64
	if apiResp.Usage.PromptTokens != nil {
		if price, ok := openAIPricePer1M[req.Model]; ok && len(req.Texts) > 0 {
			perItemTokens := float64(*apiResp.Usage.PromptTokens) / float64(len(req.Texts))
			perItemCost = floatPtr(perItemTokens / 1_000_000 * price)
		}
	}

	out := make([]Result, len(req.Texts))
	for i, row := range apiResp.Data {
		out[i] = Result{
			Text:        req.Texts[i],
			Vector:      row.Embedding,
			Provider:    NameOpenAI,
			Model:       req.Model,
			InputTokens: apiResp.Usage.PromptTokens,
			CostUSD:     perItemCost,
		}
	}
	return out, nil
}
