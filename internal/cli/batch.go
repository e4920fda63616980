package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/engine"
	"github.com/embx-dev/embx/internal/errs"
)

var (
	batchFile       string
	batchProvider   string
	batchModel      string
	batchDimensions int
	batchNoCache    bool
	batchFormat     string
	batchOutput     string
	batchRequest    requestFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Embed newline-separated texts from a file",
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "input file, one text per line (required)")
	batchCmd.Flags().StringVarP(&batchProvider, "provider", "p", "", "provider name (defaults to configured default_provider)")
	batchCmd.Flags().StringVarP(&batchModel, "model", "m", "", "model name (defaults to the provider default)")
	batchCmd.Flags().IntVar(&batchDimensions, "dimensions", 0, "output dimensions (provider specific)")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "disable the embedding cache for this call")
	batchCmd.Flags().StringVar(&batchFormat, "format", "json", "output format: pretty, json, csv, or md")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write output to file")
	batchRequest.register(batchCmd)
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

func readBatchFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read input file: %v", errs.ErrValidation, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var texts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: cannot read input file: %v", errs.ErrValidation, err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: input file contains no texts", errs.ErrValidation)
	}
	return texts, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	if err := validFormat(batchFormat); err != nil {
		return err
	}

	texts, err := readBatchFile(batchFile)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(batchRequest.overrides(cmd))
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

	results, err := eng.EmbedTexts(context.Background(), engine.EmbedRequest{
		Texts:      texts,
		Provider:   batchProvider,
		Model:      batchModel,
		Dimensions: batchDimensions,
		UseCache:   !batchNoCache,
	})
	if err != nil {
		return err
	}

	return emitResults(cmd, results, batchFormat, batchOutput)
}
