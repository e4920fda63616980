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

const defaultVoyageBaseURL = "https://api.voyageai.com/v1"

// Voyage calls the Voyage AI embeddings API. The API reports no usage cost,
// so results carry neither tokens nor cost.
type Voyage struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newVoyage(cfg config.Config) *Voyage {
	baseURL := cfg.VoyageBaseURL
	if baseURL == "" {
		baseURL = defaultVoyageBaseURL
	}
	return &Voyage{
		apiKey:     cfg.VoyageAPIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedClient,
	}
}

func (v *Voyage) Name() string         { return NameVoyage }
func (v *Voyage) DefaultModel() string { return "voyage-3-lite" }

func (v *Voyage) RequiredConfigKeys() []string { return []string{"voyage_api_key"} }
func (v *Voyage) Configured() bool             { return v.apiKey != "" }

func (v *Voyage) Embed(ctx context.Context, req Request) ([]Result, error) {
	if v.apiKey == "" {
		return nil, fmt.Errorf("%w: missing Voyage API key, set EMBX_VOYAGE_API_KEY or voyage_api_key in config", errs.ErrConfiguration)
	}

	payload := map[string]any{
		"model": req.Model,
		"input": req.Texts,
	}
	if req.Dimensions > 0 {
		payload["output_dimension"] = req.Dimensions
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := callContext(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, v.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: Voyage request failed: %v", errs.ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: Voyage embeddings request failed (%d): %s", errs.ErrProvider, resp.StatusCode, string(raw))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode Voyage response: %v", errs.ErrProvider, err)
	}

	if len(apiResp.Data) != len(req.Texts) {
		return nil, fmt.Errorf("%w: Voyage response size does not match request size", errs.ErrProvider)
	}

	out := make([]Result, len(req.Texts))
	for i, row := range apiResp.Data {
		out[i] = Result{
			Text:     req.Texts[i],
			Vector:   row.Embedding,
			Provider: NameVoyage,
			Model:    req.Model,
		}
	}
	return out, nil
}
