package metrics

import (
	"fmt"

	"github.com/gagank1/cheminformatics/pkg/dataset"
	"github.com/gagank1/cheminformatics/pkg/models"
)

// Validity is the fraction of generated molecules that parse to a valid
// structure, over numSamples requested per seed. Sets that generated fewer
// than numSamples molecules count the shortfall as invalid.
func Validity(sets []SampleSet, numSamples int) (float64, error) {
	if len(sets) == 0 || numSamples <= 0 {
		return 0, fmt.Errorf("%w: validity needs sampled data", ErrComputation)
	}
	valid := 0
	for _, set := range sets {
		for _, rec := range capSamples(set, numSamples) {
			if rec.Valid {
				valid++
			}
		}
	}
	return float64(valid) / float64(len(sets)*numSamples), nil
}

// Uniqueness is the fraction of generated molecules that are distinct
// canonical strings within each seed's sample set. removeInvalid drops
// unparseable molecules before counting.
func Uniqueness(sets []SampleSet, numSamples int, removeInvalid bool) (float64, error) {
	if len(sets) == 0 || numSamples <= 0 {
		return 0, fmt.Errorf("%w: uniqueness needs sampled data", ErrComputation)
	}
	distinct := 0
	for _, set := range sets {
		seen := map[string]struct{}{}
		for _, rec := range capSamples(set, numSamples) {
			if removeInvalid && !rec.Valid {
				continue
			}
			seen[rec.Smiles] = struct{}{}
		}
		distinct += len(seen)
	}
	return float64(distinct) / float64(len(sets)*numSamples), nil
}

// Novelty is the fraction of valid generated molecules absent from the
// training set. Invalid molecules are always excluded first: novelty is
// undefined for structures that do not exist.
func Novelty(sets []SampleSet, training *dataset.TrainingSet) (float64, error) {
	valid, novel := 0, 0
	for _, set := range sets {
		for _, rec := range set.Generated {
			if !rec.Valid {
				continue
			}
			valid++
			if !training.Contains(rec.Smiles) {
				novel++
			}
		}
	}
	if valid == 0 {
		return 0, fmt.Errorf("%w: no valid generated molecules for novelty", ErrComputation)
	}
	return float64(novel) / float64(valid), nil
}

func capSamples(set SampleSet, numSamples int) []models.MoleculeRecord {
	if len(set.Generated) > numSamples {
		return set.Generated[:numSamples]
	}
	return set.Generated
}
