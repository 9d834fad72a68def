// Package metrics implements the evaluation metrics: validity, uniqueness,
// novelty, nearest-neighbor correlation, and modelability. Every metric is
// an independent, side-effect-free function over molecule records; a
// failing metric reports its error without touching its siblings.
package metrics

import (
	"errors"

	"github.com/gagank1/cheminformatics/pkg/chem"
	"github.com/gagank1/cheminformatics/pkg/models"
)

// ErrComputation marks a metric that could not be computed from the data
// it was given (for example too few molecules for a fold split). It is
// recorded per metric and never aborts sibling metrics.
var ErrComputation = errors.New("metric computation error")

// SampleSet holds the generated molecules for one seed molecule at one
// radius.
type SampleSet struct {
	Input     string
	Generated []models.MoleculeRecord
}

// NewSampleSet builds a SampleSet from raw model output. The model echoes
// the input molecule as element 0 of generated; it is skipped. The
// remaining strings are parsed once into records with validity and
// fingerprints fixed at construction.
func NewSampleSet(input string, generated []string) SampleSet {
	if len(generated) > 0 {
		generated = generated[1:]
	}
	records := make([]models.MoleculeRecord, len(generated))
	for i, s := range generated {
		records[i] = chem.NewRecord(s, models.SourceGenerated)
	}
	return SampleSet{Input: input, Generated: records}
}
