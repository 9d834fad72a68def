// Package bench orchestrates a benchmark run: it waits for the model,
// loads the datasets, sweeps every enabled metric over its configured
// parameter variants, and persists one result row per variant. A failing
// variant is recorded with its error and never stops the run; only model
// unavailability at startup and run cancellation are fatal.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gagank1/cheminformatics/pkg/chem"
	"github.com/gagank1/cheminformatics/pkg/config"
	"github.com/gagank1/cheminformatics/pkg/dataset"
	"github.com/gagank1/cheminformatics/pkg/inference"
	"github.com/gagank1/cheminformatics/pkg/metrics"
	"github.com/gagank1/cheminformatics/pkg/models"
	"github.com/gagank1/cheminformatics/pkg/output"
	"github.com/gagank1/cheminformatics/pkg/sampler"
)

// Metric names as they appear in result rows.
const (
	MetricValidity        = "validity"
	MetricUnique          = "unique"
	MetricNovelty         = "novelty"
	MetricNearestNeighbor = "nearest_neighbor_correlation"
	MetricModelability    = "modelability"
)

// Runner executes one benchmark run over a model.
type Runner struct {
	cfg     *config.Config
	model   inference.Model
	sampler *sampler.Sampler
	out     output.Writer
	history *History
	log     *slog.Logger
}

// New builds a Runner. out and history may be nil when persistence is not
// wanted, for example in exploratory runs.
func New(cfg *config.Config, model inference.Model, s *sampler.Sampler, out output.Writer, history *History, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, model: model, sampler: s, out: out, history: history, log: log}
}

// Report summarizes one finished run.
type Report struct {
	RunID   string
	Model   string
	Started time.Time
	Elapsed time.Duration
	Results []models.MetricResult
}

// Failed counts result rows that errored instead of scoring.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Run executes every enabled metric. The returned Report holds every
// result row produced, including rows for failed variants. Run returns an
// error only for fatal conditions: model never became ready, datasets
// unreadable, or the run deadline hit.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := inference.WaitReady(ctx, r.model, r.cfg.Sampling.ReadyTimeout); err != nil {
		return nil, fmt.Errorf("model %s: %w", r.model.Name(), err)
	}
	if r.cfg.Sampling.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Sampling.RunTimeout)
		defer cancel()
	}

	bench, err := dataset.LoadBenchmark(r.cfg.Model.BenchmarkData, 0)
	if err != nil {
		return nil, err
	}
	var training *dataset.TrainingSet
	if r.cfg.Metric.Novelty.Enabled {
		training, err = dataset.LoadTrainingSet(r.cfg.Model.TrainingData)
		if err != nil {
			return nil, err
		}
	}

	report := &Report{
		RunID:   uuid.NewString(),
		Model:   r.model.Name(),
		Started: time.Now().UTC(),
	}
	r.log.Info("benchmark run starting",
		"run_id", report.RunID, "model", report.Model, "seeds", len(bench.Smiles))

	mc := r.cfg.Metric
	sweeps := []func(context.Context) []models.MetricResult{
		func(ctx context.Context) []models.MetricResult {
			return r.samplingMetric(ctx, MetricValidity, mc.Validity, bench, nil)
		},
		func(ctx context.Context) []models.MetricResult {
			return r.samplingMetric(ctx, MetricUnique, mc.Unique, bench, nil)
		},
		func(ctx context.Context) []models.MetricResult {
			return r.samplingMetric(ctx, MetricNovelty, mc.Novelty, bench, training)
		},
		func(ctx context.Context) []models.MetricResult {
			return r.nearestNeighbor(ctx, mc.NearestNeighborCorrelation, bench)
		},
		func(ctx context.Context) []models.MetricResult {
			return r.modelability(ctx, mc.Modelability, bench)
		},
	}

	for _, sweep := range sweeps {
		for _, res := range sweep(ctx) {
			res.Model = report.Model
			res.RunID = report.RunID
			res.Timestamp = time.Now().UTC()
			if res.Failed() {
				r.log.Error("metric variant failed",
					"metric", res.Name, "radius", res.Radius, "top_k", res.TopK,
					"property", res.Property, "error", res.Error)
			} else {
				r.log.Info("metric computed",
					"metric", res.Name, "value", res.Value, "radius", res.Radius,
					"top_k", res.TopK, "property", res.Property,
					"excluded", res.Excluded, "run_time_s", res.RunTime)
			}
			if r.out != nil {
				if err := r.out.Write(res); err != nil {
					return report, fmt.Errorf("persist result: %w", err)
				}
			}
			report.Results = append(report.Results, res)
		}
		if ctx.Err() != nil {
			break
		}
	}
	report.Elapsed = time.Since(report.Started)

	if r.history != nil {
		rec := RunRecord{
			RunID:      report.RunID,
			Model:      report.Model,
			StartedAt:  report.Started,
			FinishedAt: report.Started.Add(report.Elapsed),
			Metrics:    len(report.Results),
			Failed:     report.Failed(),
		}
		// History is bookkeeping; record it even when the run deadline
		// already fired.
		if err := r.history.Record(context.WithoutCancel(ctx), rec); err != nil {
			r.log.Error("record run history", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run aborted: %w", err)
	}
	return report, nil
}

// samplingMetric sweeps one sampling-based metric over its radii. All
// three sampling metrics share the same generated molecules per radius;
// the sample cache collapses the repeated batches into one model pass.
func (r *Runner) samplingMetric(ctx context.Context, name string, mc config.MetricConfig, bench *dataset.Benchmark, training *dataset.TrainingSet) []models.MetricResult {
	if !mc.Enabled {
		return nil
	}
	seeds := bench.Head(mc.InputSize)
	numSamples := r.cfg.Sampling.SampleSize

	var out []models.MetricResult
	for _, radius := range mc.Radius {
		if ctx.Err() != nil {
			return out
		}
		start := time.Now()
		res := models.MetricResult{
			Name:       name,
			Radius:     radius,
			NumSamples: numSamples,
			DataSize:   len(seeds),
		}

		sets, excluded, err := r.sampleSets(ctx, seeds, radius)
		res.Excluded = excluded
		if err == nil {
			switch name {
			case MetricValidity:
				res.Value, err = metrics.Validity(sets, numSamples)
			case MetricUnique:
				res.Value, err = metrics.Uniqueness(sets, numSamples, mc.RemoveInvalid)
			case MetricNovelty:
				res.Value, err = metrics.Novelty(sets, training)
			}
		}
		if err != nil {
			res.Error = err.Error()
		}
		res.RunTime = time.Since(start).Seconds()
		out = append(out, res)
	}
	return out
}

// sampleSets generates molecules around every seed at one radius. Failed
// seeds are excluded from the returned sets and counted.
func (r *Runner) sampleSets(ctx context.Context, seeds []string, radius float64) ([]metrics.SampleSet, int, error) {
	reqs := make([]models.SampleRequest, len(seeds))
	for i, s := range seeds {
		reqs[i] = models.SampleRequest{
			Model:        r.model.Name(),
			Op:           models.OpFindSimilar,
			Smiles:       []string{s},
			NumRequested: r.cfg.Sampling.SampleSize,
			Radius:       radius,
			Sanitize:     true,
			Seed:         r.cfg.Sampling.Seed,
		}
	}
	outcomes, err := r.sampler.SampleBatch(ctx, reqs)
	if err != nil {
		return nil, sampler.Excluded(outcomes), err
	}

	sets := make([]metrics.SampleSet, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		sets = append(sets, metrics.NewSampleSet(o.Request.Smiles[0], o.Result.Smiles))
	}
	return sets, sampler.Excluded(outcomes), nil
}

// nearestNeighbor sweeps the embedding-distance correlation over its
// configured top-k values. The embedding batch is identical across
// variants, so everything after the first is served from cache.
func (r *Runner) nearestNeighbor(ctx context.Context, mc config.MetricConfig, bench *dataset.Benchmark) []models.MetricResult {
	if !mc.Enabled {
		return nil
	}
	seeds := bench.Head(mc.InputSize)

	var out []models.MetricResult
	for _, topK := range mc.TopK {
		if ctx.Err() != nil {
			return out
		}
		start := time.Now()
		res := models.MetricResult{
			Name:     MetricNearestNeighbor,
			TopK:     topK,
			DataSize: len(seeds),
		}

		embs, kept, excluded, err := r.embeddings(ctx, seeds, flattenEmbedding)
		res.Excluded = excluded
		if err == nil {
			fps := seedFingerprints(seeds, kept)
			res.Value, err = metrics.NearestNeighborCorrelation(embs, fps, topK)
		}
		if err != nil {
			res.Error = err.Error()
		}
		res.RunTime = time.Since(start).Seconds()
		out = append(out, res)
	}
	return out
}

// modelability sweeps the property-regression metric over the benchmark's
// property columns.
func (r *Runner) modelability(ctx context.Context, mc config.MetricConfig, bench *dataset.Benchmark) []models.MetricResult {
	if !mc.Enabled {
		return nil
	}
	seeds := bench.Head(mc.InputSize)

	props := bench.PropertyNames
	if mc.GeneCnt > 0 && mc.GeneCnt < len(props) {
		props = props[:mc.GeneCnt]
	}

	var out []models.MetricResult
	for _, prop := range props {
		if ctx.Err() != nil {
			return out
		}
		start := time.Now()
		res := models.MetricResult{
			Name:     MetricModelability,
			Property: prop,
			DataSize: len(seeds),
		}

		embs, kept, excluded, err := r.embeddings(ctx, seeds, meanEmbedding)
		res.Excluded = excluded
		if err == nil {
			fps := seedFingerprints(seeds, kept)

			var values []float64
			values, err = bench.Property(prop, mc.InputSize)
			if err == nil {
				y := make([]float64, len(kept))
				for i, idx := range kept {
					y[i] = values[idx]
				}
				var m metrics.ModelabilityResult
				m, err = metrics.Modelability(embs, fps, y, metrics.ModelabilityOptions{
					NSplits:           mc.NSplits,
					NormalizeInputs:   mc.NormalizeInputs,
					ReturnPredictions: mc.ReturnPredictions,
					Seed:              r.cfg.Sampling.Seed,
				})
				res.Value = m.Ratio
				res.EmbeddingError = m.EmbeddingError
				res.FingerprintError = m.FingerprintError
				res.Predictions = m.EmbeddingPred
				res.FingerprintPredictions = m.FingerprintPred
			}
		}
		if err != nil {
			res.Error = err.Error()
		}
		res.RunTime = time.Since(start).Seconds()
		out = append(out, res)
	}
	return out
}

// embeddings embeds every seed and converts each result with vec. It
// returns the vectors, the seed indexes that survived, and the exclusion
// count.
func (r *Runner) embeddings(ctx context.Context, seeds []string, vec func(models.SampleResult) []float64) ([][]float64, []int, int, error) {
	reqs := make([]models.SampleRequest, len(seeds))
	for i, s := range seeds {
		reqs[i] = models.SampleRequest{
			Model:    r.model.Name(),
			Op:       models.OpEmbed,
			Smiles:   []string{s},
			Padding:  r.cfg.Sampling.MaxSeqLen,
			Sanitize: true,
			Seed:     r.cfg.Sampling.Seed,
		}
	}
	outcomes, err := r.sampler.SampleBatch(ctx, reqs)
	if err != nil {
		return nil, nil, sampler.Excluded(outcomes), err
	}

	var vecs [][]float64
	var kept []int
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		vecs = append(vecs, vec(o.Result))
		kept = append(kept, i)
	}
	return vecs, kept, sampler.Excluded(outcomes), nil
}

// flattenEmbedding lays the full padded embedding out as one vector, so
// molecules of different token length stay comparable by Euclidean
// distance. Features at padding positions are zeroed; whatever the model
// emits there must not contribute to distances.
func flattenEmbedding(res models.SampleResult) []float64 {
	out := make([]float64, len(res.Embedding))
	for i, v := range res.Embedding {
		out[i] = float64(v)
	}
	if len(res.EmbeddingDim) < 2 {
		return out
	}
	tokens, features := res.EmbeddingDim[0], res.EmbeddingDim[1]
	if tokens*features != len(res.Embedding) || features == 0 {
		return out
	}
	for t := 0; t < tokens; t++ {
		if t >= len(res.PadMask) || res.PadMask[t] {
			continue
		}
		for f := 0; f < features; f++ {
			out[t*features+f] = 0
		}
	}
	return out
}

// meanEmbedding averages the embedding over its real tokens, using the pad
// mask to skip padding positions. A result without shape information is
// treated as a single token.
func meanEmbedding(res models.SampleResult) []float64 {
	if len(res.EmbeddingDim) < 2 {
		return flattenEmbedding(res)
	}
	tokens, features := res.EmbeddingDim[0], res.EmbeddingDim[1]
	if tokens*features != len(res.Embedding) || features == 0 {
		return flattenEmbedding(res)
	}

	out := make([]float64, features)
	n := 0
	for t := 0; t < tokens; t++ {
		if t < len(res.PadMask) && !res.PadMask[t] {
			continue
		}
		for f := 0; f < features; f++ {
			out[f] += float64(res.Embedding[t*features+f])
		}
		n++
	}
	if n == 0 {
		return out
	}
	for f := range out {
		out[f] /= float64(n)
	}
	return out
}

// seedFingerprints computes structural fingerprints for the seeds at the
// kept indexes.
func seedFingerprints(seeds []string, kept []int) [][]float64 {
	out := make([][]float64, len(kept))
	for i, idx := range kept {
		fp, _ := chem.Fingerprint(seeds[idx], chem.DefaultFingerprintRadius, chem.DefaultFingerprintBits)
		out[i] = fp
	}
	return out
}
