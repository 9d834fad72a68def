package bench

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlitecache "github.com/gagank1/cheminformatics/pkg/cache/sqlite"
	"github.com/gagank1/cheminformatics/pkg/config"
	"github.com/gagank1/cheminformatics/pkg/inference"
	"github.com/gagank1/cheminformatics/pkg/models"
	"github.com/gagank1/cheminformatics/pkg/output"
	"github.com/gagank1/cheminformatics/pkg/sampler"
)

type fakeModel struct {
	name     string
	notReady error
	similars func(smiles string, n int) []string
	embed    func(smiles string) inference.Embedding
}

func (f *fakeModel) Name() string { return f.name }

func (f *fakeModel) Ready(context.Context) error { return f.notReady }

func (f *fakeModel) SmilesToEmbedding(ctx context.Context, smiles string, padding int, radius float64, numRequested int, sanitize bool) (inference.Embedding, error) {
	if f.embed == nil {
		return inference.Embedding{}, errors.New("embed not scripted")
	}
	return f.embed(smiles), nil
}

func (f *fakeModel) EmbeddingToSmiles(ctx context.Context, emb inference.Embedding) ([]string, error) {
	return nil, errors.New("decode not scripted")
}

func (f *fakeModel) FindSimilarsSmiles(ctx context.Context, smiles string, numRequested int, radius float64, forceUnique, sanitize bool) ([]string, error) {
	if f.similars == nil {
		return nil, errors.New("similars not scripted")
	}
	return f.similars(smiles, numRequested), nil
}

func (f *fakeModel) InterpolateSmiles(ctx context.Context, smiles []string, numPoints int, radius float64, forceUnique, sanitize bool) ([]string, error) {
	return nil, errors.New("interpolate not scripted")
}

// newTestModel answers every similarity request with one echo, two valid
// molecules, one invalid string, and one training-set member, independent
// of the seed. Embeddings are two tokens of three features derived from
// the molecule length, so they are distinct per seed and linear in chain
// length.
func newTestModel() *fakeModel {
	return &fakeModel{
		name: "fake-model",
		similars: func(smiles string, n int) []string {
			out := []string{smiles, "CCO", "CCN", "C1CC"}
			for len(out) < n+1 {
				out = append(out, "CCC")
			}
			return out[:n+1]
		},
		embed: func(smiles string) inference.Embedding {
			base := float32(len(smiles))
			return inference.Embedding{
				Values: []float32{base, base + 1, base + 2, base + 2, base + 3, base + 4},
				Dim:    []int{2, 3},
			}
		},
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, dir string, seeds int) *config.Config {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("smiles,logp\n")
	smiles := ""
	for i := 0; i < seeds; i++ {
		smiles += "C"
		sb.WriteString(smiles + "," + strings.Repeat("1", i+1) + "\n")
	}
	benchPath := writeFile(t, dir, "benchmark.csv", sb.String())
	trainPath := writeFile(t, dir, "train.smi", "CCO\nCCC\n")

	cfg := config.Default()
	cfg.Model.Name = "fake-model"
	cfg.Model.BenchmarkData = benchPath
	cfg.Model.TrainingData = trainPath
	cfg.Sampling.DB = filepath.Join(dir, "cache.sqlite3")
	cfg.Sampling.SampleSize = 4
	cfg.Sampling.ConcurrentRequests = 2
	cfg.Sampling.ReadyTimeout = time.Second
	cfg.Metric.Validity = config.MetricConfig{Enabled: true, Radius: []float64{0.1}}
	cfg.Metric.Unique = config.MetricConfig{Enabled: true, Radius: []float64{0.1}}
	cfg.Metric.Novelty = config.MetricConfig{Enabled: true, Radius: []float64{0.1}}
	cfg.Metric.NearestNeighborCorrelation = config.MetricConfig{Enabled: true, TopK: []int{3}}
	cfg.Metric.Modelability = config.MetricConfig{Enabled: true, NSplits: 2, NormalizeInputs: true, ReturnPredictions: true}
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, model inference.Model, out output.Writer, history *History) *Runner {
	t.Helper()
	cache, err := sqlitecache.Open(cfg.Sampling.DB)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })

	log := slog.New(slog.DiscardHandler)
	s := sampler.New(model, cache, sampler.Options{
		ConcurrentRequests: cfg.Sampling.ConcurrentRequests,
		Retries:            cfg.Sampling.Retries,
		Logger:             log,
	})
	return New(cfg, model, s, out, history, log)
}

func TestRunAllMetrics(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 8)

	csvPath := filepath.Join(dir, "results.csv")
	out, err := output.NewCSVWriter(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	history, err := OpenHistory(filepath.Join(dir, "history.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	r := newTestRunner(t, cfg, newTestModel(), out, history)
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// One variant each for validity, unique, novelty, nearest-neighbor
	// correlation, and one modelability row for the logp column.
	if len(rep.Results) != 5 {
		t.Fatalf("got %d results, want 5: %+v", len(rep.Results), rep.Results)
	}
	if n := rep.Failed(); n != 0 {
		t.Fatalf("%d metric variants failed: %+v", n, rep.Results)
	}

	byName := map[string]int{}
	for i, res := range rep.Results {
		byName[res.Name] = i
		if res.RunID != rep.RunID {
			t.Errorf("%s: run_id %q, want %q", res.Name, res.RunID, rep.RunID)
		}
		if res.Model != "fake-model" {
			t.Errorf("%s: model %q", res.Name, res.Model)
		}
		if res.Timestamp.IsZero() {
			t.Errorf("%s: zero timestamp", res.Name)
		}
	}

	// Every seed generates CCO, CCN, CCC, and one invalid string.
	if v := rep.Results[byName[MetricValidity]].Value; v != 0.75 {
		t.Errorf("validity = %v, want 0.75", v)
	}
	// CCO and CCC are in the training set; CCN is the only novel one.
	if v := rep.Results[byName[MetricNovelty]].Value; math.Abs(v-1.0/3) > 1e-12 {
		t.Errorf("novelty = %v, want 1/3", v)
	}
	if v := rep.Results[byName[MetricNearestNeighbor]].Value; v < -1 || v > 1 {
		t.Errorf("nearest-neighbor correlation = %v outside [-1, 1]", v)
	}
	mod := rep.Results[byName[MetricModelability]]
	if mod.Property != "logp" {
		t.Errorf("modelability property = %q, want logp", mod.Property)
	}
	if mod.Value <= 0 {
		t.Errorf("modelability ratio = %v, want positive", mod.Value)
	}
	if len(mod.Predictions) != 8 || len(mod.FingerprintPredictions) != 8 {
		t.Errorf("prediction lengths %d/%d, want 8 from each feature space",
			len(mod.Predictions), len(mod.FingerprintPredictions))
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{MetricValidity, MetricUnique, MetricNovelty, MetricNearestNeighbor, MetricModelability} {
		if !strings.Contains(string(data), name) {
			t.Errorf("results csv missing %s row", name)
		}
	}

	runs, err := history.List(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("history holds %d runs, want 1", len(runs))
	}
	if runs[0].RunID != rep.RunID || runs[0].Metrics != 5 || runs[0].Failed != 0 {
		t.Errorf("history record = %+v", runs[0])
	}
}

func TestFlattenEmbeddingZeroesPadding(t *testing.T) {
	// Two embeddings identical over their real tokens must flatten to the
	// same vector no matter what the model left in the pad region.
	a := models.SampleResult{
		Embedding:    []float32{1, 2, 9, 9},
		EmbeddingDim: []int{2, 2},
		PadMask:      []bool{true, false},
	}
	b := a
	b.Embedding = []float32{1, 2, -5, 7}

	want := []float64{1, 2, 0, 0}
	for _, res := range []models.SampleResult{a, b} {
		got := flattenEmbedding(res)
		if len(got) != len(want) {
			t.Fatalf("flattened length %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("flattened = %v, want %v", got, want)
			}
		}
	}
}

func TestFlattenEmbeddingWithoutMask(t *testing.T) {
	// No pad mask means every token is real.
	res := models.SampleResult{Embedding: []float32{3, 4}, EmbeddingDim: []int{1, 2}}
	got := flattenEmbedding(res)
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("flattened = %v, want [3 4]", got)
	}
}

func TestRunRecordsVariantFailure(t *testing.T) {
	dir := t.TempDir()
	// Two seeds are too few for nearest-neighbor correlation.
	cfg := testConfig(t, dir, 2)
	cfg.Metric.Validity.Enabled = false
	cfg.Metric.Unique.Enabled = false
	cfg.Metric.Novelty.Enabled = false
	cfg.Metric.Modelability.Enabled = false

	r := newTestRunner(t, cfg, newTestModel(), nil, nil)
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("variant failure must not fail the run: %v", err)
	}
	if len(rep.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(rep.Results))
	}
	if !rep.Results[0].Failed() {
		t.Fatalf("expected a failed variant, got %+v", rep.Results[0])
	}
	if rep.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", rep.Failed())
	}
}

func TestRunModelNeverReady(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 4)
	cfg.Sampling.ReadyTimeout = 50 * time.Millisecond

	model := newTestModel()
	model.notReady = errors.New("connection refused")

	r := newTestRunner(t, cfg, model, nil, nil)
	if _, err := r.Run(context.Background()); !errors.Is(err, inference.ErrModelUnavailable) {
		t.Fatalf("want ErrModelUnavailable, got %v", err)
	}
}

func TestHistoryListFilterAndLimit(t *testing.T) {
	history, err := OpenHistory(filepath.Join(t.TempDir(), "h.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	// The history can share a database file with the sample cache, so the
	// connection must wait on locks rather than fail busy.
	var busy int
	if err := history.db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy <= 0 {
		t.Errorf("busy_timeout = %d, want positive", busy)
	}

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, model := range []string{"a", "a", "b"} {
		rec := RunRecord{
			RunID:      string(rune('x' + i)),
			Model:      model,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Metrics:    3,
		}
		if err := history.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := history.List(ctx, "a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("model filter returned %d runs, want 2", len(runs))
	}
	if runs[0].StartedAt.Before(runs[1].StartedAt) {
		t.Error("runs not newest first")
	}

	runs, err = history.List(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Model != "b" {
		t.Errorf("limit 1 returned %+v, want newest run (model b)", runs)
	}
}
