package chem

import (
	"hash/fnv"
	"sort"

	"github.com/gagank1/cheminformatics/pkg/models"
)

// DefaultFingerprintBits is the fingerprint width used across the metric
// engine.
const DefaultFingerprintBits = 512

// DefaultFingerprintRadius is the circular environment radius.
const DefaultFingerprintRadius = 2

// Fingerprint computes a hashed circular (Morgan-style) bit fingerprint of
// s. Invalid molecules get an all-zero vector, which also marks them as
// failed in fingerprint space.
func Fingerprint(s string, radius, nbits int) ([]float64, bool) {
	mol, err := ParseSmiles(s)
	if err != nil {
		return make([]float64, nbits), false
	}
	return mol.Fingerprint(radius, nbits), true
}

// Fingerprint folds each atom's environment up to the given radius into a
// fixed-width bit vector.
func (m *Mol) Fingerprint(radius, nbits int) []float64 {
	fp := make([]float64, nbits)
	hashes := make([]uint64, len(m.Atoms))
	for i, a := range m.Atoms {
		hashes[i] = atomHash(a, m.degree(i), m.implicitHydrogens(i))
		fp[hashes[i]%uint64(nbits)] = 1
	}
	for r := 0; r < radius; r++ {
		next := make([]uint64, len(m.Atoms))
		for i := range m.Atoms {
			env := make([]uint64, 0, 4)
			for _, j := range m.neighbors(i) {
				b := m.bondBetween(i, j)
				ord := uint64(b.Order)
				if b.Aromatic {
					ord = 9
				}
				env = append(env, hashes[j]*16+ord)
			}
			sort.Slice(env, func(a, b int) bool { return env[a] < env[b] })
			h := fnv.New64a()
			writeUint64(h, hashes[i])
			for _, e := range env {
				writeUint64(h, e)
			}
			next[i] = h.Sum64()
			fp[next[i]%uint64(nbits)] = 1
		}
		hashes = next
	}
	return fp
}

func atomHash(a Atom, degree, hcount int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(a.Symbol))
	b := []byte{0, byte(degree), byte(hcount), byte(a.Charge + 8)}
	if a.Aromatic {
		b[0] = 1
	}
	h.Write(b)
	return h.Sum64()
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
}

// NewRecord builds a MoleculeRecord for s: canonicalized when valid, with
// validity and fingerprint computed exactly once.
func NewRecord(s string, source models.MoleculeSource) models.MoleculeRecord {
	mol, err := ParseSmiles(s)
	if err != nil {
		return models.MoleculeRecord{
			Smiles:      s,
			Valid:       false,
			Fingerprint: make([]float64, DefaultFingerprintBits),
			Source:      source,
		}
	}
	return models.MoleculeRecord{
		Smiles:      mol.canonicalString(),
		Valid:       true,
		Fingerprint: mol.Fingerprint(DefaultFingerprintRadius, DefaultFingerprintBits),
		Source:      source,
	}
}
