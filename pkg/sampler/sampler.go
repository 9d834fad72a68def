// Package sampler drives batches of sample requests through a model with
// bounded concurrency, consulting the durable sample cache so no expensive
// call is made twice.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	sqlitecache "github.com/gagank1/cheminformatics/pkg/cache/sqlite"
	"github.com/gagank1/cheminformatics/pkg/inference"
	"github.com/gagank1/cheminformatics/pkg/models"
)

// Sampler issues model calls through the cache with a fixed-size worker
// pool. The pool size is the only admission control: a batch larger than
// the pool blocks until workers free up.
type Sampler struct {
	model      inference.Model
	cache      *sqlitecache.Store
	workers    int
	maxRetries int
	log        *slog.Logger
}

// Options tunes a Sampler.
type Options struct {
	// ConcurrentRequests is the worker pool size; defaults to 8.
	ConcurrentRequests int
	// Retries bounds retry attempts for transient model errors;
	// defaults to 3.
	Retries int
	Logger  *slog.Logger
}

// New creates a Sampler over the given model and cache.
func New(model inference.Model, cache *sqlitecache.Store, opts Options) *Sampler {
	if opts.ConcurrentRequests < 1 {
		opts.ConcurrentRequests = 8
	}
	if opts.Retries < 1 {
		opts.Retries = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sampler{
		model:      model,
		cache:      cache,
		workers:    opts.ConcurrentRequests,
		maxRetries: opts.Retries,
		log:        opts.Logger,
	}
}

// Outcome pairs one request with its result or its recorded failure.
type Outcome struct {
	Request models.SampleRequest
	Result  models.SampleResult
	Err     error
}

// SampleBatch resolves every request, from cache where possible and through
// the model otherwise. The returned slice is positionally aligned with
// reqs regardless of completion order. Per-item failures are recorded in
// their Outcome and never abort the batch; only context cancellation
// returns an error.
func (s *Sampler) SampleBatch(ctx context.Context, reqs []models.SampleRequest) ([]Outcome, error) {
	outcomes := make([]Outcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, req := range reqs {
		i, req := i, req
		outcomes[i].Request = req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i].Err = err
				return err
			}
			res, err := s.cache.GetOrCompute(gctx, req, func(cctx context.Context) (models.SampleResult, error) {
				return s.callWithRetry(cctx, req)
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					outcomes[i].Err = err
					return err
				}
				s.log.Error("sample request failed, excluding item",
					"op", string(req.Op), "input", firstSmiles(req), "error", err)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, fmt.Errorf("sampling aborted: %w", err)
	}

	if n := Excluded(outcomes); n > 0 {
		s.log.Warn("batch completed with exclusions", "requested", len(reqs), "excluded", n)
	}
	return outcomes, nil
}

// callWithRetry performs one model call, retrying transient failures with
// exponential backoff up to the retry bound. Invalid-molecule errors are
// permanent and fail immediately.
func (s *Sampler) callWithRetry(ctx context.Context, req models.SampleRequest) (models.SampleResult, error) {
	op := func() (models.SampleResult, error) {
		res, err := s.call(ctx, req)
		if err != nil && !errors.Is(err, inference.ErrModel) {
			return models.SampleResult{}, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxRetries)))
}

// call dispatches req to the model operation it names.
func (s *Sampler) call(ctx context.Context, req models.SampleRequest) (models.SampleResult, error) {
	res := models.SampleResult{
		Model:     s.model.Name(),
		Op:        req.Op,
		CreatedAt: time.Now().UTC(),
	}

	switch req.Op {
	case models.OpEmbed:
		if len(req.Smiles) != 1 {
			return res, inference.Invalid("", fmt.Errorf("embed needs exactly one molecule, got %d", len(req.Smiles)))
		}
		emb, err := s.model.SmilesToEmbedding(ctx, req.Smiles[0], req.Padding, req.Radius, req.NumRequested, req.Sanitize)
		if err != nil {
			return res, err
		}
		res.Embedding = emb.Values
		res.EmbeddingDim = emb.Dim
		res.PadMask = emb.PadMask

	case models.OpDecode:
		smiles, err := s.model.EmbeddingToSmiles(ctx, inference.Embedding{
			Values:  req.Embedding,
			Dim:     req.EmbeddingDim,
			PadMask: req.PadMask,
		})
		if err != nil {
			return res, err
		}
		res.Smiles = smiles

	case models.OpFindSimilar:
		if len(req.Smiles) != 1 {
			return res, inference.Invalid("", fmt.Errorf("find_similar needs exactly one molecule, got %d", len(req.Smiles)))
		}
		smiles, err := s.model.FindSimilarsSmiles(ctx, req.Smiles[0], req.NumRequested, req.Radius, req.ForceUnique, req.Sanitize)
		if err != nil {
			return res, err
		}
		res.Smiles = smiles

	case models.OpInterpolate:
		if len(req.Smiles) < 2 {
			return res, inference.Invalid("", fmt.Errorf("interpolate needs at least two molecules, got %d", len(req.Smiles)))
		}
		smiles, err := s.model.InterpolateSmiles(ctx, req.Smiles, req.NumRequested, req.Radius, req.ForceUnique, req.Sanitize)
		if err != nil {
			return res, err
		}
		res.Smiles = smiles

	default:
		return res, inference.Invalid("", fmt.Errorf("unknown operation %q", req.Op))
	}

	return res, nil
}

// Excluded counts outcomes that failed and are excluded from metric input.
func Excluded(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Successful returns the results of outcomes that completed, preserving
// batch order.
func Successful(outcomes []Outcome) []models.SampleResult {
	out := make([]models.SampleResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			out = append(out, o.Result)
		}
	}
	return out
}

func firstSmiles(req models.SampleRequest) string {
	if len(req.Smiles) > 0 {
		return req.Smiles[0]
	}
	return ""
}
