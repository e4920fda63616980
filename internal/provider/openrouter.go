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

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter calls the OpenRouter embeddings API. Cost comes straight from
// the response usage block rather than a local price table.
type OpenRouter struct {
	apiKey     string
	baseURL    string
	referer    string
	title      string
	httpClient *http.Client
}

func newOpenRouter(cfg config.Config) *OpenRouter {
	baseURL := cfg.OpenRouterBaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &OpenRouter{
		apiKey:     cfg.OpenRouterAPIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		referer:    cfg.OpenRouterReferer,
		title:      cfg.OpenRouterTitle,
		httpClient: sharedClient,
	}
}

func (o *OpenRouter) Name() string         { return NameOpenRouter }
func (o *OpenRouter) DefaultModel() string { return "openai/text-embedding-3-small" }

func (o *OpenRouter) RequiredConfigKeys() []string { return []string{"openrouter_api_key"} }
func (o *OpenRouter) Configured() bool             { return o.apiKey != "" }

func (o *OpenRouter) Embed(ctx context.Context, req Request) ([]Result, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: missing OpenRouter API key, set EMBX_OPENROUTER_API_KEY or openrouter_api_key in config", errs.ErrConfiguration)
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
	if o.referer != "" {
		httpReq.Header.Set("HTTP-Referer", o.referer)
	}
	if o.title != "" {
		httpReq.Header.Set("X-Title", o.title)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenRouter request failed: %v", errs.ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: OpenRouter embeddings request failed (%d): %s", errs.ErrProvider, resp.StatusCode, string(raw))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens *int     `json:"prompt_tokens"`
			Cost         *float64 `json:"cost"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode OpenRouter response: %v", errs.ErrProvider, err)
	}

	if len(apiResp.Data) != len(req.Texts) {
		return nil, fmt.Errorf("%w: OpenRouter response size does not match request size", errs.ErrProvider)
	}

	out := make([]Result, len(req.Texts))
	for i, row := range apiResp.Data {
		out[i] = Result{
			Text:        req.Texts[i],
			Vector:      row.Embedding,
			Provider:    NameOpenRouter,
			Model:       req.Model,
			InputTokens: apiResp.Usage.PromptTokens,
			CostUSD:     apiResp.Usage.Cost,
		}
	}
	return out, nil
}
