package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gagank1/cheminformatics/pkg/chem"
)

// NearestNeighborCorrelation measures how well distance in embedding space
// tracks ground-truth chemical similarity: for each molecule, the Spearman
// correlation between its embedding-space distances and its Tanimoto
// fingerprint distances over the topK nearest neighbors (by fingerprint
// distance), averaged over all molecules. topK <= 0 uses every neighbor.
func NearestNeighborCorrelation(embeddings, fingerprints [][]float64, topK int) (float64, error) {
	n := len(embeddings)
	if n != len(fingerprints) {
		return 0, fmt.Errorf("%w: %d embeddings vs %d fingerprints", ErrComputation, n, len(fingerprints))
	}
	if n < 3 {
		return 0, fmt.Errorf("%w: nearest-neighbor correlation needs at least 3 molecules, got %d", ErrComputation, n)
	}
	if topK <= 0 || topK > n-1 {
		topK = n - 1
	}

	embDist := pairwise(embeddings, chem.Euclidean)
	fpDist := pairwise(fingerprints, chem.TanimotoDistance)

	sum, rows := 0.0, 0
	for i := 0; i < n; i++ {
		neighbors := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				neighbors = append(neighbors, j)
			}
		}
		sort.Slice(neighbors, func(a, b int) bool {
			return fpDist[i][neighbors[a]] < fpDist[i][neighbors[b]]
		})
		neighbors = neighbors[:topK]

		a := make([]float64, topK)
		b := make([]float64, topK)
		for k, j := range neighbors {
			a[k] = embDist[i][j]
			b[k] = fpDist[i][j]
		}
		rho := spearman(a, b)
		if !math.IsNaN(rho) {
			sum += rho
			rows++
		}
	}
	if rows == 0 {
		return 0, fmt.Errorf("%w: all neighbor rankings degenerate", ErrComputation)
	}
	return sum / float64(rows), nil
}

func pairwise(vecs [][]float64, dist func(a, b []float64) float64) [][]float64 {
	n := len(vecs)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := dist(vecs[i], vecs[j])
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out
}

// spearman is the rank correlation of a and b: Pearson correlation of
// their ranks, with tied values assigned their average rank.
func spearman(a, b []float64) float64 {
	return stat.Correlation(ranks(a), ranks(b), nil)
}

func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j) / 2
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}
