package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/errs"
	"github.com/embx-dev/embx/internal/provider"
	"github.com/embx-dev/embx/internal/ranking"
)

func validFormat(format string) error {
	switch format {
	case "pretty", "json", "csv", "md":
		return nil
	}
	return fmt.Errorf("%w: --format must be one of: pretty, json, csv, md", errs.ErrValidation)
}

// writePayload sends rendered output to a file when --output is set,
// otherwise to stdout.
func writePayload(cmd *cobra.Command, payload, outputPath string) error {
	if outputPath == "" {
		cmd.Print(payload)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(payload), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	cmd.PrintErrf("Wrote output to %s\n", outputPath)
	return nil
}

func emitJSON(cmd *cobra.Command, v any, outputPath string) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	return writePayload(cmd, string(raw)+"\n", outputPath)
}

func emitCSV(cmd *cobra.Command, header []string, records [][]string, outputPath string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return writePayload(cmd, buf.String(), outputPath)
}

func emitMarkdown(cmd *cobra.Command, header []string, records [][]string, outputPath string) error {
	escape := func(value string) string {
		value = strings.ReplaceAll(value, "|", "\\|")
		return strings.ReplaceAll(value, "\n", "<br>")
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, record := range records {
		escaped := make([]string, len(record))
		for i, field := range record {
			escaped[i] = escape(field)
		}
		b.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}
	return writePayload(cmd, b.String(), outputPath)
}

// vectorPreview renders the first few components of a vector for human
// output; full vectors only appear in JSON.
func vectorPreview(vector []float64, size int) string {
	n := len(vector)
	if n > size {
		n = size
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%.5f", vector[i])
	}
	suffix := ""
	if len(vector) > size {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

func fmtIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}

func fmtCostPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.8f", *f)
}

func fmtScorePtr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *f)
}

func resultHeader() []string {
	return []string{"text", "provider", "model", "dimensions", "cached", "input_tokens", "cost_usd", "vector_preview"}
}

func resultRecord(res provider.Result) []string {
	return []string{
		res.Text,
		res.Provider,
		res.Model,
		fmt.Sprintf("%d", len(res.Vector)),
		fmt.Sprintf("%t", res.Cached),
		fmtIntPtr(res.InputTokens),
		fmtCostPtr(res.CostUSD),
		vectorPreview(res.Vector, 6),
	}
}

func emitResults(cmd *cobra.Command, results []provider.Result, format, outputPath string) error {
	switch {
	case format == "json" || (outputPath != "" && format == "pretty"):
		return emitJSON(cmd, results, outputPath)
	case format == "csv" || format == "md":
		records := make([][]string, len(results))
		for i, res := range results {
			records[i] = resultRecord(res)
		}
		if format == "csv" {
			return emitCSV(cmd, resultHeader(), records, outputPath)
		}
		return emitMarkdown(cmd, resultHeader(), records, outputPath)
	}

	for _, res := range results {
		cached := ""
		if res.Cached {
			cached = " (cached)"
		}
		cmd.Printf("%s [%s/%s, %d dims]%s\n", res.Text, res.Provider, res.Model, len(res.Vector), cached)
		cmd.Printf("  %s\n", vectorPreview(res.Vector, 6))
	}
	return nil
}

func rowHeader() []string {
	return []string{"rank", "provider", "status", "model", "dimensions", "cached", "latency_ms", "cost_usd", "input_tokens", "quality_score", "error"}
}

func rowRecord(row ranking.PublicRow) []string {
	return []string{
		fmtIntPtr(row.Rank),
		row.Provider,
		row.Status,
		row.Model,
		fmtIntPtr(row.Dimensions),
		fmt.Sprintf("%t", row.Cached),
		fmt.Sprintf("%.3f", row.LatencyMs),
		fmtCostPtr(row.CostUSD),
		fmtIntPtr(row.InputTokens),
		fmtScorePtr(row.QualityScore),
		row.Error,
	}
}
