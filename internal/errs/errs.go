// Package errs defines the error taxonomy shared across the embx core.
//
// Every fault surfaced by the engine, cache, providers, or ranking wraps
// exactly one of these sentinels so callers can classify with errors.Is:
//
//   - ErrValidation: bad input (unknown provider, empty batch, unknown
//     ranking criterion). Never retried.
//   - ErrConfiguration: missing or malformed configuration (absent API key,
//     bad env value). Never retried.
//   - ErrProvider: a remote call failed. The only class subject to the
//     retry policy.
package errs

import "errors"

var (
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration indicates missing or invalid configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrProvider indicates an embedding provider call failed.
	ErrProvider = errors.New("provider error")
)
