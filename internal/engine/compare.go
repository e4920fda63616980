package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/embx-dev/embx/internal/errs"
	"github.com/embx-dev/embx/internal/ranking"
)

// CompareRequest fans one text out to several providers.
type CompareRequest struct {
	Text            string
	Providers       []string
	Model           string
	Dimensions      int
	UseCache        bool
	ContinueOnError bool
	RankBy          ranking.Criterion
	TopK            int
}

// Compare produces one outcome row per provider.
//
// In continue-on-error mode all providers are called concurrently and every
// provider gets an independent outcome: one provider failing or stalling
// never cancels a sibling's in-flight call, and rows come back in request
// order regardless of completion order. In fail-fast mode providers run
// sequentially and the first failure aborts the comparison with that fault;
// remaining providers are never attempted.
func (e *Engine) Compare(ctx context.Context, req CompareRequest) ([]*ranking.Row, error) {
	if len(req.Providers) == 0 {
		return nil, fmt.Errorf("%w: no providers given", errs.ErrValidation)
	}

	if req.ContinueOnError {
		rows := make([]*ranking.Row, len(req.Providers))
		var g errgroup.Group
		for i, name := range req.Providers {
			i, name := i, name
			g.Go(func() error {
				row, _ := e.compareOne(ctx, req, name)
				rows[i] = row
				return nil
			})
		}
		_ = g.Wait()
		return rows, nil
	}

	rows := make([]*ranking.Row, 0, len(req.Providers))
	for _, name := range req.Providers {
		row, err := e.compareOne(ctx, req, name)
		rows = append(rows, row)
		if err != nil {
			return rows, fmt.Errorf("provider %q failed: %w", name, err)
		}
	}
	return rows, nil
}

// compareOne runs the single-text retrieval against one provider, measuring
// wall time either way. The returned error is nil for ok rows and carries
// the raw fault for error rows so fail-fast callers can propagate it.
func (e *Engine) compareOne(ctx context.Context, req CompareRequest, name string) (*ranking.Row, error) {
	started := time.Now()
	results, err := e.EmbedTexts(ctx, EmbedRequest{
		Texts:      []string{req.Text},
		Provider:   name,
		Model:      req.Model,
		Dimensions: req.Dimensions,
		UseCache:   req.UseCache,
	})
	latencyMs := float64(time.Since(started)) / float64(time.Millisecond)

	if err != nil {
		return ranking.NewErrorRow(name, req.Model, latencyMs, err.Error()), err
	}

	res := results[0]
	return ranking.NewSuccessRow(
		name,
		res.Model,
		len(res.Vector),
		res.Cached,
		latencyMs,
		res.CostUSD,
		res.InputTokens,
		res.Vector,
	), nil
}

// CompareBackends runs the full comparison pipeline: fan-out, quality
// scoring, criterion ordering, rank assignment, and optional top-K
// truncation of the successful set.
func (e *Engine) CompareBackends(ctx context.Context, req CompareRequest) (*ranking.Result, error) {
	criterion := req.RankBy
	if criterion == "" {
		criterion = ranking.CriterionNone
	}
	// Reject a bad criterion before any network call is made.
	if _, err := ranking.ParseCriterion(string(criterion)); err != nil {
		return nil, err
	}

	rows, err := e.Compare(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := ranking.Apply(rows, criterion)
	if err != nil {
		return nil, err
	}
	result.Truncate(req.TopK)
	return result, nil
}
