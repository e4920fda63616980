package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/engine"
)

var (
	pingProvider   string
	pingModel      string
	pingText       string
	pingDimensions int
	pingUseCache   bool
	pingFormat     string
	pingOutput     string
	pingRequest    requestFlags
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send one small embedding request to check a provider",
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().StringVarP(&pingProvider, "provider", "p", "", "provider name (defaults to configured default_provider)")
	pingCmd.Flags().StringVarP(&pingModel, "model", "m", "", "model name (defaults to the provider default)")
	pingCmd.Flags().StringVar(&pingText, "text", "ping", "input text used for the ping request")
	pingCmd.Flags().IntVar(&pingDimensions, "dimensions", 0, "output dimensions (provider specific)")
	pingCmd.Flags().BoolVar(&pingUseCache, "use-cache", false, "allow cache hits (disabled by default so the provider is actually called)")
	pingCmd.Flags().StringVar(&pingFormat, "format", "pretty", "output format: pretty, json, csv, or md")
	pingCmd.Flags().StringVarP(&pingOutput, "output", "o", "", "write output to file")
	pingRequest.register(pingCmd)
	rootCmd.AddCommand(pingCmd)
}

type pingReport struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Status      string   `json:"status"`
	LatencyMs   float64  `json:"latency_ms"`
	Dimensions  int      `json:"dimensions"`
	Cached      bool     `json:"cached"`
	InputTokens *int     `json:"input_tokens"`
	CostUSD     *float64 `json:"cost_usd"`
}

func runPing(cmd *cobra.Command, args []string) error {
	if err := validFormat(pingFormat); err != nil {
		return err
	}

	cfg, err := config.Resolve(pingRequest.overrides(cmd))
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

	providerName := pingProvider
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}

	started := time.Now()
	results, err := eng.EmbedTexts(context.Background(), engine.EmbedRequest{
		Texts:      []string{pingText},
		Provider:   providerName,
		Model:      pingModel,
		Dimensions: pingDimensions,
		UseCache:   pingUseCache,
	})
	if err != nil {
		return fmt.Errorf("ping failed for provider %q: %w", providerName, err)
	}

	res := results[0]
	report := pingReport{
		Provider:    providerName,
		Model:       res.Model,
		Status:      "ok",
		LatencyMs:   float64(time.Since(started)) / float64(time.Millisecond),
		Dimensions:  len(res.Vector),
		Cached:      res.Cached,
		InputTokens: res.InputTokens,
		CostUSD:     res.CostUSD,
	}

	switch pingFormat {
	case "json":
		return emitJSON(cmd, report, pingOutput)
	case "csv", "md":
		header := []string{"provider", "model", "status", "latency_ms", "dimensions", "cached", "input_tokens", "cost_usd"}
		record := []string{
			report.Provider, report.Model, report.Status,
			fmt.Sprintf("%.3f", report.LatencyMs),
			fmt.Sprintf("%d", report.Dimensions),
			fmt.Sprintf("%t", report.Cached),
			fmtIntPtr(report.InputTokens),
			fmtCostPtr(report.CostUSD),
		}
		if pingFormat == "csv" {
			return emitCSV(cmd, header, [][]string{record}, pingOutput)
		}
		return emitMarkdown(cmd, header, [][]string{record}, pingOutput)
	}

	cmd.Printf("provider:     %s\n", report.Provider)
	cmd.Printf("model:        %s\n", report.Model)
	cmd.Printf("status:       %s\n", report.Status)
	cmd.Printf("latency_ms:   %.3f\n", report.LatencyMs)
	cmd.Printf("dimensions:   %d\n", report.Dimensions)
	cmd.Printf("cached:       %t\n", report.Cached)
	cmd.Printf("input_tokens: %s\n", fmtIntPtr(report.InputTokens))
	cmd.Printf("cost_usd:     %s\n", fmtCostPtr(report.CostUSD))
	return nil
}
