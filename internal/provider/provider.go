// Package provider implements the embedding backends embx can talk to.
//
// Each backend is an opaque capability behind the Provider interface: given
// texts, a model, optional output dimensions, and a timeout, it returns one
// vector per text or fails. A Registry maps provider names to configured
// instances and rejects unknown names with a validation error.
package provider

import (
	"context"
	"net/http"
	"time"
)

// Provider names.
const (
	NameOpenAI      = "openai"
	NameOpenRouter  = "openrouter"
	NameVoyage      = "voyage"
	NameOllama      = "ollama"
	NameHuggingFace = "huggingface"
)

// Request carries one embedding call. Model is already resolved to the
// provider default by the caller when empty. Dimensions 0 means unset; its
// meaning is provider specific.
type Request struct {
	Texts      []string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// Result is one embedded text. It is constructed once per text per request
// and never mutated afterwards. Vector length depends on the provider and
// model and is not validated against any global constant.
type Result struct {
	Text        string    `json:"text"`
	Vector      []float64 `json:"vector"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	InputTokens *int      `json:"input_tokens"`
	CostUSD     *float64  `json:"cost_usd"`
	Cached      bool      `json:"cached"`
}

// Provider is a single embedding backend.
type Provider interface {
	// Name returns the registry name of the provider.
	Name() string

	// DefaultModel returns the model used when a request leaves it unset.
	DefaultModel() string

	// RequiredConfigKeys lists the config keys that must be set before the
	// provider can be called.
	RequiredConfigKeys() []string

	// Configured reports whether all required config keys are present.
	Configured() bool

	// Embed returns one result per request text, in request order.
	Embed(ctx context.Context, req Request) ([]Result, error)
}

// sharedClient is reused across providers; per-call timeouts are enforced
// through the request context, not the client.
var sharedClient = &http.Client{}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }
