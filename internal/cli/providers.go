package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/provider"
)

var providersJSON bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered embedding providers",
	RunE:  runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(nil)
	if err != nil {
		return err
	}

	metadata := provider.NewRegistry(cfg).AllMetadata()
	if providersJSON {
		return emitJSON(cmd, metadata, "")
	}

	cmd.Printf("%-13s %-40s %-12s %s\n", "provider", "default_model", "configured", "requires")
	for _, meta := range metadata {
		requires := "none"
		if len(meta.Requires) > 0 {
			requires = strings.Join(meta.Requires, ", ")
		}
		cmd.Printf("%-13s %-40s %-12t %s\n", meta.Name, meta.DefaultModel, meta.Configured, requires)
	}
	return nil
}
