// Package inference defines the capability contract a generative molecular
// model must satisfy and a network client implementation of it. The engine
// is polymorphic over this interface; a model is either reachable through a
// local implementation or a remote service, and the rest of the engine
// cannot tell the difference.
package inference

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Embedding is a model-produced latent vector with its shape and padding
// mask.
type Embedding struct {
	Values  []float32 `json:"values"`
	Dim     []int     `json:"dim"`
	PadMask []bool    `json:"pad_mask,omitempty"`
}

// Model is the operation set every benchmarked generative model provides.
// Implementations must return ErrInvalidMolecule for unparseable inputs and
// wrap transient backend failures in ErrModel so callers can retry.
type Model interface {
	// Name identifies the model (and version) for fingerprinting and
	// result stamping.
	Name() string

	// Ready probes the model once; nil means it can serve requests.
	Ready(ctx context.Context) error

	// SmilesToEmbedding embeds a molecule into latent space.
	SmilesToEmbedding(ctx context.Context, smiles string, padding int, radius float64, numRequested int, sanitize bool) (Embedding, error)

	// EmbeddingToSmiles decodes a latent vector back to molecules.
	EmbeddingToSmiles(ctx context.Context, emb Embedding) ([]string, error)

	// FindSimilarsSmiles samples molecules around smiles at the given
	// perturbation radius. The input molecule is echoed as element 0.
	FindSimilarsSmiles(ctx context.Context, smiles string, numRequested int, radius float64, forceUnique, sanitize bool) ([]string, error)

	// InterpolateSmiles samples along the latent path between molecules.
	InterpolateSmiles(ctx context.Context, smiles []string, numPoints int, radius float64, forceUnique, sanitize bool) ([]string, error)
}

// WaitReady polls m's readiness probe with exponential backoff until it
// succeeds or the timeout elapses, then fails with ErrModelUnavailable.
// The timeout is independent of any run-level deadline on ctx.
func WaitReady(ctx context.Context, m Model, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probe := func() (struct{}, error) {
		return struct{}{}, m.Ready(ctx)
	}
	_, err := backoff.Retry(ctx, probe,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		return Unavailable(m.Name(), err)
	}
	return nil
}
