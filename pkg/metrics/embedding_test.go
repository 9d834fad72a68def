package metrics

import (
	"errors"
	"math"
	"testing"
)

func TestSpearman(t *testing.T) {
	if got := spearman([]float64{1, 2, 3, 4}, []float64{10, 20, 30, 40}); math.Abs(got-1) > 1e-12 {
		t.Errorf("monotone increasing pair: rho = %v, want 1", got)
	}
	if got := spearman([]float64{1, 2, 3, 4}, []float64{40, 30, 20, 10}); math.Abs(got+1) > 1e-12 {
		t.Errorf("monotone decreasing pair: rho = %v, want -1", got)
	}
	// Rank correlation ignores nonlinear but monotone scaling.
	if got := spearman([]float64{1, 2, 3, 4}, []float64{1, 100, 10000, 1000000}); math.Abs(got-1) > 1e-12 {
		t.Errorf("monotone nonlinear pair: rho = %v, want 1", got)
	}
}

func TestRanksWithTies(t *testing.T) {
	got := ranks([]float64{10, 20, 20, 30})
	want := []float64{0, 1.5, 1.5, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranks = %v, want %v", got, want)
		}
	}
}

func TestNearestNeighborCorrelationPerfect(t *testing.T) {
	// Fingerprints with all pairwise Tanimoto distances distinct, and
	// 1-D embeddings laid out so every molecule's embedding distance
	// ordering matches its fingerprint distance ordering exactly.
	fingerprints := [][]float64{
		{1, 1, 0, 0, 0, 0},
		{1, 1, 1, 1, 0, 0},
		{1, 1, 1, 1, 1, 1},
		{0, 0, 0, 1, 1, 1},
	}
	embeddings := [][]float64{{0}, {2}, {3}, {5}}

	for _, topK := range []int{0, 2, 3, 100} {
		rho, err := NearestNeighborCorrelation(embeddings, fingerprints, topK)
		if err != nil {
			t.Fatalf("topK=%d: %v", topK, err)
		}
		if math.Abs(rho-1) > 1e-12 {
			t.Errorf("topK=%d: rho = %v, want 1", topK, rho)
		}
	}
}

func TestNearestNeighborCorrelationInverted(t *testing.T) {
	fingerprints := [][]float64{
		{1, 1, 0, 0, 0, 0},
		{1, 1, 1, 1, 0, 0},
		{1, 1, 1, 1, 1, 1},
		{0, 0, 0, 1, 1, 1},
	}
	// A layout whose per-row distance orderings are the exact reverse
	// of the fingerprint-distance orderings for every molecule.
	embeddings := [][]float64{{0}, {3}, {-2}, {1}}

	rho, err := NearestNeighborCorrelation(embeddings, fingerprints, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(rho+1) > 1e-12 {
		t.Errorf("rho = %v, want -1 for fully inverted layout", rho)
	}
}

func TestNearestNeighborCorrelationErrors(t *testing.T) {
	two := [][]float64{{0}, {1}}
	if _, err := NearestNeighborCorrelation(two, two, 0); !errors.Is(err, ErrComputation) {
		t.Errorf("tiny input: want ErrComputation, got %v", err)
	}
	if _, err := NearestNeighborCorrelation(two, [][]float64{{0}}, 0); !errors.Is(err, ErrComputation) {
		t.Errorf("length mismatch: want ErrComputation, got %v", err)
	}
}
