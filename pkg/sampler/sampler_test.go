package sampler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlitecache "github.com/gagank1/cheminformatics/pkg/cache/sqlite"
	"github.com/gagank1/cheminformatics/pkg/inference"
	"github.com/gagank1/cheminformatics/pkg/models"
)

// fakeModel is a scriptable in-process Model.
type fakeModel struct {
	mu       sync.Mutex
	calls    map[string]int
	similars func(smiles string, calls int) ([]string, error)
	delay    func(smiles string) time.Duration

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		calls: map[string]int{},
		similars: func(smiles string, _ int) ([]string, error) {
			return []string{smiles, "CCO", "CCC"}, nil
		},
	}
}

func (f *fakeModel) Name() string                { return "fake" }
func (f *fakeModel) Ready(context.Context) error { return nil }

func (f *fakeModel) FindSimilarsSmiles(ctx context.Context, smiles string, numRequested int, radius float64, forceUnique, sanitize bool) ([]string, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		max := f.maxInflight.Load()
		if cur <= max || f.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(smiles)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls[smiles]++
	n := f.calls[smiles]
	f.mu.Unlock()
	return f.similars(smiles, n)
}

func (f *fakeModel) SmilesToEmbedding(ctx context.Context, smiles string, padding int, radius float64, numRequested int, sanitize bool) (inference.Embedding, error) {
	vals := make([]float32, 4)
	for i, c := range smiles {
		vals[i%4] += float32(c)
	}
	return inference.Embedding{Values: vals, Dim: []int{1, 4}}, nil
}

func (f *fakeModel) EmbeddingToSmiles(ctx context.Context, emb inference.Embedding) ([]string, error) {
	return []string{"CCO"}, nil
}

func (f *fakeModel) InterpolateSmiles(ctx context.Context, smiles []string, numPoints int, radius float64, forceUnique, sanitize bool) ([]string, error) {
	out := append([]string{}, smiles...)
	for i := 0; i < numPoints; i++ {
		out = append(out, "CC")
	}
	return out, nil
}

func newTestSampler(t *testing.T, m inference.Model, workers int) *Sampler {
	t.Helper()
	store, err := sqlitecache.Open(filepath.Join(t.TempDir(), "samples.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(m, store, Options{
		ConcurrentRequests: workers,
		Retries:            3,
		Logger:             slog.New(slog.DiscardHandler),
	})
}

func similarsRequest(smiles string) models.SampleRequest {
	return models.SampleRequest{
		Model:        "fake",
		Op:           models.OpFindSimilar,
		Smiles:       []string{smiles},
		NumRequested: 3,
		Radius:       0.01,
	}
}

func TestSampleBatchPreservesOrder(t *testing.T) {
	fake := newFakeModel()
	// First request is the slowest so completion order inverts
	// submission order.
	delays := map[string]time.Duration{"CCCC": 60 * time.Millisecond, "CCC": 30 * time.Millisecond, "CC": 0}
	fake.delay = func(s string) time.Duration { return delays[s] }

	s := newTestSampler(t, fake, 4)
	reqs := []models.SampleRequest{
		similarsRequest("CCCC"),
		similarsRequest("CCC"),
		similarsRequest("CC"),
	}

	outcomes, err := s.SampleBatch(context.Background(), reqs)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"CCCC", "CCC", "CC"} {
		if outcomes[i].Err != nil {
			t.Fatalf("item %d: %v", i, outcomes[i].Err)
		}
		if outcomes[i].Result.Smiles[0] != want {
			t.Errorf("position %d holds result for %q, want %q", i, outcomes[i].Result.Smiles[0], want)
		}
	}
}

func TestSampleBatchPartialFailure(t *testing.T) {
	fake := newFakeModel()
	fake.similars = func(smiles string, _ int) ([]string, error) {
		if smiles == "BAD" {
			return nil, inference.Transient(errors.New("backend down"))
		}
		return []string{smiles, "CCO"}, nil
	}

	s := newTestSampler(t, fake, 4)
	var reqs []models.SampleRequest
	for i := 0; i < 10; i++ {
		if i == 3 {
			reqs = append(reqs, similarsRequest("BAD"))
		} else {
			reqs = append(reqs, similarsRequest(carbonChain(i+1)))
		}
	}

	outcomes, err := s.SampleBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("partial failure must not abort the batch: %v", err)
	}
	if got := Excluded(outcomes); got != 1 {
		t.Errorf("excluded = %d, want 1", got)
	}
	if got := len(Successful(outcomes)); got != 9 {
		t.Errorf("successful = %d, want 9", got)
	}
	if outcomes[3].Err == nil || !errors.Is(outcomes[3].Err, inference.ErrModel) {
		t.Errorf("item 3 error = %v, want ErrModel", outcomes[3].Err)
	}
	// The failing item was retried up to the bound.
	if fake.calls["BAD"] != 3 {
		t.Errorf("BAD attempts = %d, want 3", fake.calls["BAD"])
	}
}

func TestInvalidMoleculeNotRetried(t *testing.T) {
	fake := newFakeModel()
	fake.similars = func(smiles string, _ int) ([]string, error) {
		return nil, inference.Invalid(smiles, errors.New("unparseable"))
	}

	s := newTestSampler(t, fake, 2)
	outcomes, err := s.SampleBatch(context.Background(), []models.SampleRequest{similarsRequest("C(")})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(outcomes[0].Err, inference.ErrInvalidMolecule) {
		t.Errorf("err = %v, want ErrInvalidMolecule", outcomes[0].Err)
	}
	if fake.calls["C("] != 1 {
		t.Errorf("invalid molecule was called %d times, want 1 (no retries)", fake.calls["C("])
	}
}

func TestTransientFailureRecovers(t *testing.T) {
	fake := newFakeModel()
	fake.similars = func(smiles string, calls int) ([]string, error) {
		if calls < 3 {
			return nil, inference.Transient(errors.New("flaky"))
		}
		return []string{smiles, "CCO"}, nil
	}

	s := newTestSampler(t, fake, 2)
	outcomes, err := s.SampleBatch(context.Background(), []models.SampleRequest{similarsRequest("CC")})
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Err != nil {
		t.Fatalf("expected recovery within retry bound: %v", outcomes[0].Err)
	}
	if fake.calls["CC"] != 3 {
		t.Errorf("attempts = %d, want 3", fake.calls["CC"])
	}
}

func TestBoundedConcurrency(t *testing.T) {
	fake := newFakeModel()
	fake.delay = func(string) time.Duration { return 20 * time.Millisecond }

	const workers = 3
	s := newTestSampler(t, fake, workers)
	var reqs []models.SampleRequest
	for i := 1; i <= 12; i++ {
		reqs = append(reqs, similarsRequest(carbonChain(i)))
	}

	if _, err := s.SampleBatch(context.Background(), reqs); err != nil {
		t.Fatal(err)
	}
	if got := fake.maxInflight.Load(); got > workers {
		t.Errorf("max in-flight calls = %d, want <= %d", got, workers)
	}
}

func TestSampleBatchUsesCache(t *testing.T) {
	fake := newFakeModel()
	s := newTestSampler(t, fake, 2)

	reqs := []models.SampleRequest{similarsRequest("CC"), similarsRequest("CCC")}
	if _, err := s.SampleBatch(context.Background(), reqs); err != nil {
		t.Fatal(err)
	}
	// Second pass over the same requests is served entirely from cache.
	if _, err := s.SampleBatch(context.Background(), reqs); err != nil {
		t.Fatal(err)
	}
	if fake.calls["CC"] != 1 || fake.calls["CCC"] != 1 {
		t.Errorf("calls = %v, want one per distinct request", fake.calls)
	}
}

func TestSampleBatchCancellation(t *testing.T) {
	fake := newFakeModel()
	fake.delay = func(string) time.Duration { return time.Second }

	s := newTestSampler(t, fake, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var reqs []models.SampleRequest
	for i := 1; i <= 4; i++ {
		reqs = append(reqs, similarsRequest(carbonChain(i)))
	}
	_, err := s.SampleBatch(ctx, reqs)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

// carbonChain returns a simple valid alkane SMILES of length n.
func carbonChain(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'C'
	}
	return string(b)
}
