package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/errs"
)

func TestOpenAIEmbed(t *testing.T) {
	var gotPayload map[string]any
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.1, 0.2}, "index": 0},
				{"embedding": []float64{0.3, 0.4}, "index": 1},
			},
			"usage": map[string]any{"prompt_tokens": 10},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = server.URL
	p := newOpenAI(cfg)

	results, err := p.Embed(context.Background(), Request{
		Texts:      []string{"hello", "world"},
		Model:      "text-embedding-3-small",
		Dimensions: 256,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "text-embedding-3-small", gotPayload["model"])
	assert.Equal(t, float64(256), gotPayload["dimensions"])

	assert.Equal(t, "hello", results[0].Text)
	assert.Equal(t, []float64{0.1, 0.2}, results[0].Vector)
	assert.Equal(t, NameOpenAI, results[0].Provider)
	assert.False(t, results[0].Cached)

	// 10 tokens split across 2 texts at 0.02 USD per 1M tokens.
	require.NotNil(t, results[0].InputTokens)
	assert.Equal(t, 10, *results[0].InputTokens)
	require.NotNil(t, results[0].CostUSD)
	assert.InDelta(t, 5.0/1_000_000*0.02, *results[0].CostUSD, 1e-15)
}

func TestOpenAIEmbedOmitsUnsetDimensions(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1}, "index": 0}},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = server.URL

	_, err := newOpenAI(cfg).Embed(context.Background(), Request{Texts: []string{"x"}, Model: "m"})
	require.NoError(t, err)
	_, present := gotPayload["dimensions"]
	assert.False(t, present)
}

func TestOpenAIEmbedUnknownModelHasNoCost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":  []map[string]any{{"embedding": []float64{1}, "index": 0}},
			"usage": map[string]any{"prompt_tokens": 10},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = server.URL

	results, err := newOpenAI(cfg).Embed(context.Background(), Request{Texts: []string{"x"}, Model: "future-model"})
	require.NoError(t, err)
	assert.Nil(t, results[0].CostUSD)
	require.NotNil(t, results[0].InputTokens)
}

func TestOpenAIEmbedMissingKeyIsConfigurationFault(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OpenAIBaseURL = server.URL
	p := newOpenAI(cfg)

	assert.False(t, p.Configured())

	_, err := p.Embed(context.Background(), Request{Texts: []string{"x"}, Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Equal(t, 0, calls)
}

func TestOpenAIEmbedHTTPErrorIsProviderFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = server.URL

	_, err := newOpenAI(cfg).Embed(context.Background(), Request{Texts: []string{"x"}, Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrProvider)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIEmbedSizeMismatchIsProviderFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1}, "index": 0}},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = server.URL

	_, err := newOpenAI(cfg).Embed(context.Background(), Request{Texts: []string{"a", "b"}, Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrProvider)
}

func TestVoyageEmbedUsesOutputDimensionKey(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.5, 0.6}}},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.VoyageAPIKey = "vk-test"
	cfg.VoyageBaseURL = server.URL

	results, err := newVoyage(cfg).Embed(context.Background(), Request{
		Texts:      []string{"hello"},
		Model:      "voyage-3-lite",
		Dimensions: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, float64(512), gotPayload["output_dimension"])
	assert.Equal(t, []float64{0.5, 0.6}, results[0].Vector)
	assert.Nil(t, results[0].CostUSD)
	assert.Nil(t, results[0].InputTokens)
}

func TestOllamaEmbedIssuesOneCallPerText(t *testing.T) {
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var payload struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		prompts = append(prompts, payload.Prompt)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float64{float64(len(payload.Prompt))},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OllamaBaseURL = server.URL
	p := newOllama(cfg)

	assert.True(t, p.Configured())
	assert.Empty(t, p.RequiredConfigKeys())

	results, err := p.Embed(context.Background(), Request{
		Texts: []string{"aa", "bbb"},
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"aa", "bbb"}, prompts)
	assert.Equal(t, []float64{2}, results[0].Vector)
	assert.Equal(t, []float64{3}, results[1].Vector)
}

func TestOllamaEmbedMissingVectorIsProviderFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model not found"})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.OllamaBaseURL = server.URL

	_, err := newOllama(cfg).Embed(context.Background(), Request{Texts: []string{"x"}, Model: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrProvider)
}

func TestHuggingFaceEmbedBuildsPipelineURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode([][]float64{{0.1, 0.2}})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.HuggingFaceAPIKey = "hf-test"
	cfg.HuggingFaceBaseURL = server.URL

	results, err := newHuggingFace(cfg).Embed(context.Background(), Request{
		Texts: []string{"hello"},
		Model: "sentence-transformers/all-MiniLM-L6-v2",
	})
	require.NoError(t, err)

	assert.Equal(t, "/sentence-transformers/all-MiniLM-L6-v2/pipeline/feature-extraction", gotPath)
	assert.Equal(t, []float64{0.1, 0.2}, results[0].Vector)
}

func TestNormalizeFeatureExtraction(t *testing.T) {
	roundtrip := func(t *testing.T, raw string) any {
		t.Helper()
		var decoded any
		require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
		return decoded
	}

	tests := []struct {
		name     string
		raw      string
		expected int
		want     [][]float64
		wantErr  bool
	}{
		{
			name:     "bare vector for single text",
			raw:      `[0.1, 0.2]`,
			expected: 1,
			want:     [][]float64{{0.1, 0.2}},
		},
		{
			name:     "vector per text",
			raw:      `[[0.1], [0.2]]`,
			expected: 2,
			want:     [][]float64{{0.1}, {0.2}},
		},
		{
			name:     "embeddings object with bare vectors",
			raw:      `{"embeddings": [[0.1], [0.2]]}`,
			expected: 2,
			want:     [][]float64{{0.1}, {0.2}},
		},
		{
			name:     "data object with embedding items",
			raw:      `{"data": [{"embedding": [0.1]}, {"embedding": [0.2]}]}`,
			expected: 2,
			want:     [][]float64{{0.1}, {0.2}},
		},
		{
			name:     "token level output is rejected",
			raw:      `[[[0.1], [0.2]]]`,
			expected: 1,
			wantErr:  true,
		},
		{
			name:     "wrong count is rejected",
			raw:      `[[0.1]]`,
			expected: 2,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeFeatureExtraction(roundtrip(t, tt.raw), tt.expected)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(config.Default())

	t.Run("names are sorted", func(t *testing.T) {
		assert.Equal(t,
			[]string{"huggingface", "ollama", "openai", "openrouter", "voyage"},
			reg.Names())
	})

	t.Run("known provider", func(t *testing.T) {
		p, err := reg.Get(NameOpenAI)
		require.NoError(t, err)
		assert.Equal(t, NameOpenAI, p.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := reg.Get("cohere")
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.Contains(t, err.Error(), "cohere")
		assert.Contains(t, err.Error(), "ollama")
	})

	t.Run("metadata", func(t *testing.T) {
		meta := reg.AllMetadata()
		require.Len(t, meta, 5)
		byName := map[string]Metadata{}
		for _, m := range meta {
			byName[m.Name] = m
		}
		assert.Equal(t, "text-embedding-3-small", byName[NameOpenAI].DefaultModel)
		assert.False(t, byName[NameOpenAI].Configured)
		assert.True(t, byName[NameOllama].Configured)
		assert.Equal(t, []string{"voyage_api_key"}, byName[NameVoyage].Requires)
	})
}
