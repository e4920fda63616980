// Package engine implements cache-aside embedding retrieval and the
// multi-provider comparison fan-out.
//
// EmbedTexts deduplicates work across a batch: cache hits fill their
// positions immediately, all misses go to the provider in a single batched
// call, and fetched vectors are written back to the cache. Input order is
// always preserved, and at most one network call is made per invocation.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/embx-dev/embx/internal/cache"
	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/errs"
	"github.com/embx-dev/embx/internal/provider"
)

// Engine is the retrieval core. It is request-scoped in behavior: every
// operation ends when its caller returns, with no background work.
type Engine struct {
	cfg      config.Config
	registry *provider.Registry
	cache    *cache.Cache
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger for debug events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRegistry overrides the provider registry.
func WithRegistry(r *provider.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithCache overrides the vector cache.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// New builds an engine from the resolved configuration.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = provider.NewRegistry(cfg)
	}
	if e.cache == nil {
		c, err := cache.New(cfg, cache.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.cache = c
	}
	return e, nil
}

// Registry returns the provider registry backing this engine.
func (e *Engine) Registry() *provider.Registry {
	return e.registry
}

// Close releases the cache store.
func (e *Engine) Close() error {
	return e.cache.Close()
}

// EmbedRequest is one retrieval call. Provider and Model fall back to the
// configured defaults; Dimensions 0 means provider default.
type EmbedRequest struct {
	Texts      []string
	Provider   string
	Model      string
	Dimensions int
	UseCache   bool
}

// EmbedTexts returns one result per input text, in input order. Duplicate
// texts produce independent result entries, including independent cache
// hits.
func (e *Engine) EmbedTexts(ctx context.Context, req EmbedRequest) ([]provider.Result, error) {
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", errs.ErrValidation)
	}

	name := req.Provider
	if name == "" {
		name = e.cfg.DefaultProvider
	}
	p, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	ordered := make([]provider.Result, len(req.Texts))
	var missIndices []int
	var missTexts []string

	for i, text := range req.Texts {
		if req.UseCache {
			vector, ok, err := e.cache.Get(ctx, name, model, req.Dimensions, text)
			if err != nil {
				return nil, err
			}
			if ok {
				ordered[i] = provider.Result{
					Text:     text,
					Vector:   vector,
					Provider: name,
					Model:    model,
					Cached:   true,
				}
				continue
			}
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		e.logger.Debug("fetching embeddings",
			zap.String("provider", name),
			zap.String("model", model),
			zap.Int("misses", len(missTexts)),
			zap.Int("batch", len(req.Texts)))

		policy := retryPolicy{
			attempts: e.cfg.RetryAttempts,
			backoff:  time.Duration(e.cfg.RetryBackoffSeconds * float64(time.Second)),
		}
		fetched, err := retryWithBackoff(ctx, policy, func() ([]provider.Result, error) {
			return p.Embed(ctx, provider.Request{
				Texts:      missTexts,
				Model:      model,
				Dimensions: req.Dimensions,
				Timeout:    time.Duration(e.cfg.TimeoutSeconds) * time.Second,
			})
		})
		if err != nil {
			return nil, err
		}
		if len(fetched) != len(missTexts) {
			return nil, fmt.Errorf("%w: provider returned %d results for %d texts",
				errs.ErrProvider, len(fetched), len(missTexts))
		}

		for j, idx := range missIndices {
			ordered[idx] = fetched[j]
			if req.UseCache {
				if err := e.cache.Set(ctx, name, model, req.Dimensions, fetched[j].Text, fetched[j].Vector); err != nil {
					return nil, err
				}
			}
		}
	}

	return ordered, nil
}
