// Package cli wires the embx commands. Each command lives in its own file
// and registers itself with the root command in init().
package cli

import (
	"errors"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/errs"
)

var (
	verbose bool
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "embx",
	Short: "Embed text and compare embedding providers",
	Long: `embx retrieves vector embeddings for text from interchangeable
providers (OpenAI, OpenRouter, Voyage, Ollama, HuggingFace), caches results
to avoid redundant paid calls, and can query several providers concurrently
to compare cost, latency, and semantic agreement.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			if l, err := zap.NewDevelopment(); err == nil {
				logger = l
			}
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps fault classes to process exit codes: validation and
// configuration problems exit 2, everything else 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errs.ErrValidation) || errors.Is(err, errs.ErrConfiguration) {
		return 2
	}
	return 1
}
