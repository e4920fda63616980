package cli

import (
	"github.com/spf13/cobra"

	"github.com/embx-dev/embx/internal/config"
)

// requestFlags are the retry/timeout knobs shared by every command that
// talks to a provider.
type requestFlags struct {
	retries        int
	retryBackoff   float64
	timeoutSeconds int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.retries, "retries", 0, "retry attempts on provider failure")
	cmd.Flags().Float64Var(&f.retryBackoff, "retry-backoff", 0.5, "initial retry backoff in seconds")
	cmd.Flags().IntVar(&f.timeoutSeconds, "timeout-seconds", 30, "per-request timeout in seconds")
}

// overrides turns only the flags the user actually set into config
// overrides, so config file and env values win otherwise.
func (f *requestFlags) overrides(cmd *cobra.Command) *config.Overrides {
	ov := &config.Overrides{}
	if cmd.Flags().Changed("retries") {
		ov.RetryAttempts = &f.retries
	}
	if cmd.Flags().Changed("retry-backoff") {
		ov.RetryBackoffSeconds = &f.retryBackoff
	}
	if cmd.Flags().Changed("timeout-seconds") {
		ov.TimeoutSeconds = &f.timeoutSeconds
	}
	return ov
}
