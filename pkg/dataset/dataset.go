// Package dataset loads the benchmark inputs: seed molecules with optional
// property columns, and the training set used for novelty membership tests.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gagank1/cheminformatics/pkg/chem"
)

// smilesColumns are the recognized names of the molecule column.
var smilesColumns = []string{"canonical_smiles", "smiles"}

// Benchmark holds the evaluation seed molecules and any numeric property
// columns found alongside them (physchem descriptors or per-gene
// bioactivity labels). Property values align positionally with Smiles;
// missing values are NaN.
type Benchmark struct {
	Smiles        []string
	PropertyNames []string
	Properties    map[string][]float64
}

// LoadBenchmark reads a CSV of seed molecules. The molecule column is
// identified by header name; every other column that parses numerically is
// kept as a property. limit > 0 caps the number of rows.
func LoadBenchmark(path string, limit int) (*Benchmark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open benchmark data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read benchmark header: %w", err)
	}

	smilesIdx := -1
	for _, name := range smilesColumns {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				smilesIdx = i
				break
			}
		}
		if smilesIdx >= 0 {
			break
		}
	}
	if smilesIdx < 0 {
		return nil, fmt.Errorf("benchmark data %s: no smiles column in header %v", path, header)
	}

	b := &Benchmark{Properties: map[string][]float64{}}
	for i, col := range header {
		if i == smilesIdx {
			continue
		}
		name := strings.TrimSpace(col)
		b.PropertyNames = append(b.PropertyNames, name)
		b.Properties[name] = nil
	}

	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if limit > 0 && len(b.Smiles) >= limit {
			break
		}
		smiles := strings.TrimSpace(row[smilesIdx])
		if smiles == "" {
			continue
		}
		b.Smiles = append(b.Smiles, smiles)
		for i, col := range header {
			if i == smilesIdx {
				continue
			}
			name := strings.TrimSpace(col)
			v, perr := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if perr != nil {
				v = math.NaN()
			}
			b.Properties[name] = append(b.Properties[name], v)
		}
	}

	if len(b.Smiles) == 0 {
		return nil, fmt.Errorf("benchmark data %s: no molecules", path)
	}
	return b, nil
}

// Head returns the first n seed molecules; n <= 0 means all of them.
func (b *Benchmark) Head(n int) []string {
	if n <= 0 || n >= len(b.Smiles) {
		return b.Smiles
	}
	return b.Smiles[:n]
}

// Property returns the values of one property column restricted to the
// first n rows (n <= 0 means all).
func (b *Benchmark) Property(name string, n int) ([]float64, error) {
	vals, ok := b.Properties[name]
	if !ok {
		return nil, fmt.Errorf("no property column %q", name)
	}
	if n <= 0 || n >= len(vals) {
		return vals, nil
	}
	return vals[:n], nil
}

// TrainingSet is a canonical-string membership index over the molecules a
// model was trained on.
type TrainingSet struct {
	known map[string]struct{}
}

// LoadTrainingSet reads training molecules from a CSV (using the smiles
// column) or a plain one-molecule-per-line file. Entries are canonicalized
// so membership tests are representation-independent.
func LoadTrainingSet(path string) (*TrainingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open training data: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("training data %s: empty", path)
	}

	col := 0
	start := 0
	first := strings.Split(lines[0], ",")
	for i, c := range first {
		for _, name := range smilesColumns {
			if strings.EqualFold(strings.TrimSpace(c), name) {
				col = i
				start = 1
			}
		}
	}

	ts := NewTrainingSet()
	for _, line := range lines[start:] {
		fields := strings.Split(line, ",")
		if col >= len(fields) {
			continue
		}
		s := strings.TrimSpace(fields[col])
		if s == "" {
			continue
		}
		ts.Add(s)
	}
	if ts.Len() == 0 {
		return nil, fmt.Errorf("training data %s: no molecules", path)
	}
	return ts, nil
}

// NewTrainingSet returns an empty membership index.
func NewTrainingSet() *TrainingSet {
	return &TrainingSet{known: map[string]struct{}{}}
}

// Add canonicalizes s and inserts it.
func (t *TrainingSet) Add(s string) {
	t.known[chem.CanonicalOrSelf(s)] = struct{}{}
}

// Contains reports whether s (in any valid writing) is a training
// molecule.
func (t *TrainingSet) Contains(s string) bool {
	_, ok := t.known[chem.CanonicalOrSelf(s)]
	return ok
}

// Len returns the number of distinct training molecules.
func (t *TrainingSet) Len() int { return len(t.known) }
