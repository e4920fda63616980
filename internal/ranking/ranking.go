// Package ranking orders provider comparison rows by latency, cost, or
// semantic agreement.
//
// Rows come in two shapes: the internal Row carries the raw result vector
// used for quality scoring, and PublicRow is the sanitized form exposed at
// the output boundary with the vector stripped. The quality score of a row
// is the mean pairwise cosine similarity between its vector and every other
// successful row's vector, a proxy for how much the providers agree.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/embx-dev/embx/internal/errs"
)

// Row status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Criterion selects the ranking order.
type Criterion string

const (
	CriterionNone    Criterion = "none"
	CriterionLatency Criterion = "latency"
	CriterionCost    Criterion = "cost"
	CriterionQuality Criterion = "quality"
)

// Criteria lists the supported criterion names.
func Criteria() []string {
	return []string{
		string(CriterionNone),
		string(CriterionLatency),
		string(CriterionCost),
		string(CriterionQuality),
	}
}

// ParseCriterion validates a criterion name.
func ParseCriterion(name string) (Criterion, error) {
	switch Criterion(name) {
	case CriterionNone, CriterionLatency, CriterionCost, CriterionQuality:
		return Criterion(name), nil
	}
	return "", fmt.Errorf("%w: unknown rank criterion %q, available: %s",
		errs.ErrValidation, name, strings.Join(Criteria(), ", "))
}

// Row is one provider outcome in a comparison. It is created once per
// provider, mutated only by Apply to set the quality score and rank, and
// never mutated after ranking. The vector is private to this package and
// used only for quality scoring.
type Row struct {
	Provider     string
	Status       string
	Model        string
	Dimensions   *int
	Cached       bool
	LatencyMs    float64
	CostUSD      *float64
	InputTokens  *int
	QualityScore *float64
	Rank         *int
	Error        string

	vector []float64
}

// NewSuccessRow builds an ok row for one provider outcome.
func NewSuccessRow(provider, model string, dimensions int, cached bool, latencyMs float64, costUSD *float64, inputTokens *int, vector []float64) *Row {
	dims := dimensions
	return &Row{
		Provider:    provider,
		Status:      StatusOK,
		Model:       model,
		Dimensions:  &dims,
		Cached:      cached,
		LatencyMs:   latencyMs,
		CostUSD:     costUSD,
		InputTokens: inputTokens,
		vector:      vector,
	}
}

// NewErrorRow builds an error row carrying the fault message. Dimensions,
// cost, and tokens stay absent.
func NewErrorRow(provider, model string, latencyMs float64, message string) *Row {
	return &Row{
		Provider:  provider,
		Status:    StatusError,
		Model:     model,
		LatencyMs: latencyMs,
		Error:     message,
	}
}

// PublicRow is the sanitized external shape of a Row: identical numeric
// fields, no vector.
type PublicRow struct {
	Provider     string   `json:"provider"`
	Status       string   `json:"status"`
	Model        string   `json:"model"`
	Dimensions   *int     `json:"dimensions"`
	Cached       bool     `json:"cached"`
	LatencyMs    float64  `json:"latency_ms"`
	CostUSD      *float64 `json:"cost_usd"`
	InputTokens  *int     `json:"input_tokens"`
	QualityScore *float64 `json:"quality_score"`
	Rank         *int     `json:"rank"`
	Error        string   `json:"error,omitempty"`
}

// Public converts a row to its sanitized shape.
func (r *Row) Public() PublicRow {
	return PublicRow{
		Provider:     r.Provider,
		Status:       r.Status,
		Model:        r.Model,
		Dimensions:   r.Dimensions,
		Cached:       r.Cached,
		LatencyMs:    r.LatencyMs,
		CostUSD:      r.CostUSD,
		InputTokens:  r.InputTokens,
		QualityScore: r.QualityScore,
		Rank:         r.Rank,
		Error:        r.Error,
	}
}

// Sanitize converts rows to their public shape in order.
func Sanitize(rows []*Row) []PublicRow {
	out := make([]PublicRow, len(rows))
	for i, row := range rows {
		out[i] = row.Public()
	}
	return out
}

// Result holds three views over the same rows: the combined rank-or-request
// ordered view, the successful rows, and the error rows. Rows are shared
// references across views, not copies.
type Result struct {
	Rows       []*Row
	Successful []*Row
	Errors     []*Row

	criterion Criterion
}

// Apply partitions rows, scores quality across the successful set, sorts by
// the criterion, and assigns 1-based ranks. Error rows never receive a rank.
// With CriterionNone the original interleaving is preserved and no row is
// ranked.
func Apply(rows []*Row, criterion Criterion) (*Result, error) {
	if _, err := ParseCriterion(string(criterion)); err != nil {
		return nil, err
	}

	var successful, errored []*Row
	for _, row := range rows {
		if row.Status == StatusOK {
			successful = append(successful, row)
		} else {
			errored = append(errored, row)
		}
	}

	assignQualityScores(successful)

	if criterion == CriterionNone {
		combined := make([]*Row, len(rows))
		copy(combined, rows)
		return &Result{
			Rows:       combined,
			Successful: successful,
			Errors:     errored,
			criterion:  criterion,
		}, nil
	}

	sorted := make([]*Row, len(successful))
	copy(sorted, successful)

	// Stable sorts keep ties in original provider request order.
	switch criterion {
	case CriterionLatency:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].LatencyMs < sorted[j].LatencyMs
		})
	case CriterionCost:
		sort.SliceStable(sorted, func(i, j int) bool {
			return costOrInf(sorted[i]) < costOrInf(sorted[j])
		})
	case CriterionQuality:
		sort.SliceStable(sorted, func(i, j int) bool {
			return qualityOrZero(sorted[i]) > qualityOrZero(sorted[j])
		})
	}

	for i, row := range sorted {
		rank := i + 1
		row.Rank = &rank
	}

	combined := make([]*Row, 0, len(rows))
	combined = append(combined, sorted...)
	combined = append(combined, errored...)

	return &Result{
		Rows:       combined,
		Successful: sorted,
		Errors:     errored,
		criterion:  criterion,
	}, nil
}

// Truncate keeps at most topK successful rows. Error rows are never
// truncated, and truncation is a no-op without an active ranking criterion.
func (r *Result) Truncate(topK int) {
	if topK <= 0 || r.criterion == CriterionNone || topK >= len(r.Successful) {
		return
	}
	r.Successful = r.Successful[:topK]
	combined := make([]*Row, 0, len(r.Successful)+len(r.Errors))
	combined = append(combined, r.Successful...)
	combined = append(combined, r.Errors...)
	r.Rows = combined
}

func costOrInf(row *Row) float64 {
	if row.CostUSD == nil {
		return math.Inf(1)
	}
	return *row.CostUSD
}

func qualityOrZero(row *Row) float64 {
	if row.QualityScore == nil {
		return 0
	}
	return *row.QualityScore
}

// assignQualityScores sets the mean pairwise cosine similarity for each
// successful row. A single row with no peers scores 1.0.
func assignQualityScores(rows []*Row) {
	if len(rows) == 0 {
		return
	}
	if len(rows) == 1 {
		score := 1.0
		rows[0].QualityScore = &score
		return
	}

	for _, row := range rows {
		if row.vector == nil {
			zero := 0.0
			row.QualityScore = &zero
			continue
		}

		var sum float64
		var count int
		for _, other := range rows {
			if other == row || other.vector == nil {
				continue
			}
			sum += alignedCosineSimilarity(row.vector, other.vector)
			count++
		}

		score := 0.0
		if count > 0 {
			score = sum / float64(count)
		}
		row.QualityScore = &score
	}
}

// alignedCosineSimilarity compares two vectors over their shared leading
// dimensions. Mismatched lengths are truncated to the shorter vector; a
// zero-norm prefix yields 0.
func alignedCosineSimilarity(a, b []float64) float64 {
	size := len(a)
	if len(b) < size {
		size = len(b)
	}
	if size == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < size; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
