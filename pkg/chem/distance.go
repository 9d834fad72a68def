package chem

import "math"

// Tanimoto returns the Tanimoto similarity of two binary fingerprints.
// Two empty fingerprints are defined as similarity 0 so invalid molecules
// (all-zero vectors) never look identical to each other.
func Tanimoto(a, b []float64) float64 {
	var both, either float64
	for i := range a {
		if a[i] != 0 && b[i] != 0 {
			both++
		}
		if a[i] != 0 || b[i] != 0 {
			either++
		}
	}
	if either == 0 {
		return 0
	}
	return both / either
}

// TanimotoDistance is 1 - Tanimoto similarity.
func TanimotoDistance(a, b []float64) float64 {
	return 1 - Tanimoto(a, b)
}

// Euclidean returns the Euclidean distance between two vectors.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
