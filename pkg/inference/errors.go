package inference

import (
	"errors"
	"fmt"
)

// Error taxonomy of the evaluation engine. Per-item errors (invalid
// molecules, exhausted retries) are recorded and excluded from metric
// input; only ErrModelUnavailable is fatal to a run.
var (
	// ErrModelUnavailable means readiness was never achieved.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInvalidMolecule marks a single bad input; not retried.
	ErrInvalidMolecule = errors.New("invalid molecule")

	// ErrModel marks a transient backend failure; retried with backoff.
	ErrModel = errors.New("model error")
)

// Unavailable wraps err as a fatal readiness failure.
func Unavailable(model string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, model, err)
}

// Invalid wraps err as a bad-input failure for one molecule.
func Invalid(smiles string, err error) error {
	return fmt.Errorf("%w: %q: %v", ErrInvalidMolecule, smiles, err)
}

// Transient wraps err as a retryable backend failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrModel, err)
}
