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

const defaultHuggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFace calls the feature-extraction pipeline of the HF inference
// router. Different models return different response shapes, so the decoder
// normalizes rather than assuming one layout. Output dimensions are not
// supported and silently ignored.
type HuggingFace struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newHuggingFace(cfg config.Config) *HuggingFace {
	baseURL := cfg.HuggingFaceBaseURL
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	return &HuggingFace{
		apiKey:     cfg.HuggingFaceAPIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedClient,
	}
}

func (h *HuggingFace) Name() string         { return NameHuggingFace }
func (h *HuggingFace) DefaultModel() string { return "sentence-transformers/all-MiniLM-L6-v2" }

func (h *HuggingFace) RequiredConfigKeys() []string { return []string{"huggingface_api_key"} }
func (h *HuggingFace) Configured() bool             { return h.apiKey != "" }

func (h *HuggingFace) Embed(ctx context.Context, req Request) ([]Result, error) {
	if h.apiKey == "" {
		return nil, fmt.Errorf("%w: missing HuggingFace API key, set EMBX_HUGGINGFACE_API_KEY or huggingface_api_key in config", errs.ErrConfiguration)
	}

	body, err := json.Marshal(map[string]any{
		"inputs": req.Texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := callContext(ctx, req.Timeout)
	defer cancel()

	url := h.baseURL + "/" + req.Model + "/pipeline/feature-extraction"
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: HuggingFace request failed: %v", errs.ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: HuggingFace embeddings request failed (%d): %s", errs.ErrProvider, resp.StatusCode, string(raw))
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode HuggingFace response: %v", errs.ErrProvider, err)
	}

	vectors, err := normalizeFeatureExtraction(decoded, len(req.Texts))
	if err != nil {
		return nil, err
	}

	out := make([]Result, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = Result{
			Text:     text,
			Vector:   vectors[i],
			Provider: NameHuggingFace,
			Model:    req.Model,
		}
	}
	return out, nil
}

// normalizeFeatureExtraction accepts the response layouts seen in the wild:
// a bare vector for a single text, a vector per text, or an object holding
// an "embeddings" or "data" list whose items are either bare vectors or
// {"embedding": [...]} objects.
func normalizeFeatureExtraction(data any, expected int) ([][]float64, error) {
	if expected == 1 {
		if v, ok := asVector(data); ok {
			return [][]float64{v}, nil
		}
	}

	if list, ok := data.([]any); ok && len(list) == expected {
		vectors := make([][]float64, 0, expected)
		allVectors := true
		for _, item := range list {
			v, ok := asVector(item)
			if !ok {
				allVectors = false
				break
			}
			vectors = append(vectors, v)
		}
		if allVectors {
			return vectors, nil
		}
	}

	if obj, ok := data.(map[string]any); ok {
		embedded := obj["embeddings"]
		if embedded == nil {
			embedded = obj["data"]
		}
		if list, ok := embedded.([]any); ok {
			vectors := make([][]float64, 0, len(list))
			for _, item := range list {
				if inner, ok := item.(map[string]any); ok {
					if v, ok := asVector(inner["embedding"]); ok {
						vectors = append(vectors, v)
						continue
					}
				}
				if v, ok := asVector(item); ok {
					vectors = append(vectors, v)
				}
			}
			if len(vectors) == expected {
				return vectors, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: unexpected HuggingFace embedding response shape, use a sentence embedding model compatible with feature-extraction", errs.ErrProvider)
}

func asVector(data any) ([]float64, bool) {
	list, ok := data.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(list))
	for i, item := range list {
		f, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
