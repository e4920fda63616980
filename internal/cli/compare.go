package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/engine"
	"github.com/embx-dev/embx/internal/errs"
	"github.com/embx-dev/embx/internal/ranking"
)

var (
	compareProviders      string
	compareModel          string
	compareDimensions     int
	compareNoCache        bool
	compareFormat         string
	compareOutput         string
	compareRankBy         string
	compareTop            int
	compareHideErrors     bool
	compareFailFast       bool
	compareOnlyConfigured bool
	compareRequest        requestFlags
)

var compareCmd = &cobra.Command{
	Use:   "compare [text]",
	Short: "Embed one text with several providers and compare the outcomes",
	Long: `Runs the same embedding request against several providers and reports
latency, cost, token usage, and a quality score (mean pairwise cosine
similarity across the successful providers' vectors) per provider.

By default all providers run concurrently and individual failures become
error rows; with --fail-fast providers run in order and the first failure
aborts the comparison.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareProviders, "providers", "", "comma-separated provider names (defaults to all)")
	compareCmd.Flags().StringVarP(&compareModel, "model", "m", "", "model name to force for all providers")
	compareCmd.Flags().IntVar(&compareDimensions, "dimensions", 0, "output dimensions (provider specific)")
	compareCmd.Flags().BoolVar(&compareNoCache, "no-cache", false, "disable the embedding cache for this call")
	compareCmd.Flags().StringVar(&compareFormat, "format", "pretty", "output format: pretty, json, csv, or md")
	compareCmd.Flags().StringVarP(&compareOutput, "output", "o", "", "write output to file")
	compareCmd.Flags().StringVar(&compareRankBy, "rank-by", "none", "rank successful providers by none, latency, cost, or quality")
	compareCmd.Flags().IntVar(&compareTop, "top", 0, "limit successful providers shown (requires a rank criterion)")
	compareCmd.Flags().BoolVar(&compareHideErrors, "hide-errors", false, "omit failed provider rows from output")
	compareCmd.Flags().BoolVar(&compareFailFast, "fail-fast", false, "stop at the first failing provider")
	compareCmd.Flags().BoolVar(&compareOnlyConfigured, "only-configured", false, "skip providers with missing required credentials")
	compareRequest.register(compareCmd)
	rootCmd.AddCommand(compareCmd)
}

func parseProviderList(raw string) []string {
	var names []string
	seen := map[string]bool{}
	for _, item := range strings.Split(raw, ",") {
		name := strings.TrimSpace(item)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func runCompare(cmd *cobra.Command, args []string) error {
	if err := validFormat(compareFormat); err != nil {
		return err
	}
	criterion, err := ranking.ParseCriterion(compareRankBy)
	if err != nil {
		return err
	}
	if compareTop > 0 && criterion == ranking.CriterionNone {
		return fmt.Errorf("%w: --top requires --rank-by latency, cost, or quality", errs.ErrValidation)
	}

	cfg, err := config.Resolve(compareRequest.overrides(cmd))
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
	}()

	names := parseProviderList(compareProviders)
	if len(names) == 0 {
		names = eng.Registry().Names()
	}

	if compareOnlyConfigured {
		configured := map[string]bool{}
		for _, meta := range eng.Registry().AllMetadata() {
			configured[meta.Name] = meta.Configured
		}
		var kept []string
		for _, name := range names {
			if configured[name] {
				kept = append(kept, name)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("%w: no configured providers available, add credentials or drop --only-configured", errs.ErrValidation)
		}
		names = kept
	}

	result, err := eng.CompareBackends(context.Background(), engine.CompareRequest{
		Text:            args[0],
		Providers:       names,
		Model:           compareModel,
		Dimensions:      compareDimensions,
		UseCache:        !compareNoCache,
		ContinueOnError: !compareFailFast,
		RankBy:          criterion,
		TopK:            compareTop,
	})
	if err != nil {
		return err
	}

	view := result.Rows
	if compareHideErrors {
		view = result.Successful
	}
	public := ranking.Sanitize(view)

	switch compareFormat {
	case "json":
		if err := emitJSON(cmd, public, compareOutput); err != nil {
			return err
		}
	case "csv", "md":
		records := make([][]string, len(public))
		for i, row := range public {
			records[i] = rowRecord(row)
		}
		if compareFormat == "csv" {
			if err := emitCSV(cmd, rowHeader(), records, compareOutput); err != nil {
				return err
			}
		} else {
			if err := emitMarkdown(cmd, rowHeader(), records, compareOutput); err != nil {
				return err
			}
		}
	default:
		printCompareTable(cmd, public)
		printBest(cmd, criterion, result.Successful)
	}

	if len(result.Successful) == 0 {
		return fmt.Errorf("%w: all compared providers failed, see output for details", errs.ErrProvider)
	}
	return nil
}

func printCompareTable(cmd *cobra.Command, rows []ranking.PublicRow) {
	cmd.Printf("%-5s %-12s %-7s %-32s %-5s %-7s %-12s %-12s %-10s %s\n",
		"rank", "provider", "status", "model", "dim", "cached", "latency_ms", "cost_usd", "quality", "message")
	for _, row := range rows {
		message := row.Error
		cmd.Printf("%-5s %-12s %-7s %-32s %-5s %-7t %-12.3f %-12s %-10s %s\n",
			fmtIntPtr(row.Rank),
			row.Provider,
			row.Status,
			row.Model,
			fmtIntPtr(row.Dimensions),
			row.Cached,
			row.LatencyMs,
			fmtCostPtr(row.CostUSD),
			fmtScorePtr(row.QualityScore),
			message,
		)
	}
}

func printBest(cmd *cobra.Command, criterion ranking.Criterion, successful []*ranking.Row) {
	if criterion == ranking.CriterionNone || len(successful) == 0 {
		return
	}
	best := successful[0]
	var detail string
	switch criterion {
	case ranking.CriterionCost:
		if best.CostUSD == nil {
			detail = "cost unavailable"
		} else {
			detail = fmt.Sprintf("$%.8f", *best.CostUSD)
		}
	case ranking.CriterionQuality:
		detail = fmt.Sprintf("score %s", fmtScorePtr(best.QualityScore))
	default:
		detail = fmt.Sprintf("%.3f ms", best.LatencyMs)
	}
	cmd.PrintErrf("Best by %s: %s (%s)\n", criterion, best.Provider, detail)
}
