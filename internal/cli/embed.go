package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/engine"
)

var (
	embedProvider   string
	embedModel      string
	embedDimensions int
	embedNoCache    bool
	embedFormat     string
	embedOutput     string
	embedRequest    requestFlags
)

var embedCmd = &cobra.Command{
	Use:   "embed [text...]",
	Short: "Embed one or more texts with a single provider",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEmbed,
}

func init() {
	embedCmd.Flags().StringVarP(&embedProvider, "provider", "p", "", "provider name (defaults to configured default_provider)")
	embedCmd.Flags().StringVarP(&embedModel, "model", "m", "", "model name (defaults to the provider default)")
	embedCmd.Flags().IntVar(&embedDimensions, "dimensions", 0, "output dimensions (provider specific)")
	embedCmd.Flags().BoolVar(&embedNoCache, "no-cache", false, "disable the embedding cache for this call")
	embedCmd.Flags().StringVar(&embedFormat, "format", "pretty", "output format: pretty, json, csv, or md")
	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", "", "write output to file")
	embedRequest.register(embedCmd)
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	if err := validFormat(embedFormat); err != nil {
		return err
	}

	cfg, err := config.Resolve(embedRequest.overrides(cmd))
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
		Texts:      args,
		Provider:   embedProvider,
		Model:      embedModel,
		Dimensions: embedDimensions,
		UseCache:   !embedNoCache,
	})
	if err != nil {
		return err
	}

	return emitResults(cmd, results, embedFormat, embedOutput)
}
