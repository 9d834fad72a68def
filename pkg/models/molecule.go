package models

// MoleculeSource tells where a molecule record came from.
type MoleculeSource string

const (
	SourceGenerated MoleculeSource = "generated"
	SourceTraining  MoleculeSource = "training"
	SourceReference MoleculeSource = "reference"
)

// MoleculeRecord is a parsed molecule. Validity and the structural
// fingerprint are computed once at construction and never mutated.
type MoleculeRecord struct {
	Smiles      string         `json:"smiles"`
	Valid       bool           `json:"valid"`
	Fingerprint []float64      `json:"fingerprint,omitempty"`
	Source      MoleculeSource `json:"source"`
}
