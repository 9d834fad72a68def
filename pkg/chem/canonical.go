package chem

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical parses s and rewrites it in a normalized form: atoms ordered by
// an iteratively refined Morgan-style invariant, redundant branch syntax
// removed, chirality annotations dropped. Equal molecules written with
// different atom orderings map to the same string for all but pathological
// symmetric cases, which is sufficient for uniqueness and set-membership
// comparisons over generated samples.
func Canonical(s string) (string, error) {
	mol, err := ParseSmiles(s)
	if err != nil {
		return "", err
	}
	return mol.canonicalString(), nil
}

// CanonicalOrSelf returns the canonical form of s, or s unchanged when it
// does not parse. Useful when normalizing mixed lists where invalid
// entries must be preserved for counting.
func CanonicalOrSelf(s string) string {
	c, err := Canonical(s)
	if err != nil {
		return s
	}
	return c
}

func (m *Mol) canonicalString() string {
	ranks := m.canonicalRanks()

	w := &walker{
		m:        m,
		ranks:    ranks,
		visited:  make([]bool, len(m.Atoms)),
		children: make([][]int, len(m.Atoms)),
		rings:    make([][]ringRef, len(m.Atoms)),
		seen:     map[[2]int]bool{},
	}

	order := make([]int, len(m.Atoms))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ranks[order[a]] < ranks[order[b]] })

	var roots []int
	for _, start := range order {
		if !w.visited[start] {
			roots = append(roots, start)
			w.classify(start, -1)
		}
	}

	var sb strings.Builder
	for i, root := range roots {
		if i > 0 {
			sb.WriteByte('.')
		}
		w.emit(&sb, root)
	}
	return sb.String()
}

type ringRef struct {
	id   int
	bond Bond
}

// walker performs the canonical output in two passes: classify splits
// bonds into spanning-tree and ring-closure bonds and assigns closure
// digits to both endpoints, emit then writes the string with every
// atom's digits known up front.
type walker struct {
	m        *Mol
	ranks    []int
	visited  []bool
	children [][]int
	rings    [][]ringRef
	seen     map[[2]int]bool
	nextRing int
}

func (w *walker) classify(at, from int) {
	w.visited[at] = true
	next := w.m.neighbors(at)
	sort.Slice(next, func(a, b int) bool { return w.ranks[next[a]] < w.ranks[next[b]] })

	for _, n := range next {
		if n == from {
			continue
		}
		key := bondKey(at, n)
		if w.seen[key] {
			continue
		}
		if w.visited[n] {
			w.seen[key] = true
			w.nextRing++
			ref := ringRef{id: w.nextRing, bond: w.m.bondBetween(at, n)}
			w.rings[at] = append(w.rings[at], ref)
			w.rings[n] = append(w.rings[n], ref)
			continue
		}
		w.seen[key] = true
		w.children[at] = append(w.children[at], n)
		w.classify(n, at)
	}
}

func (w *walker) emit(sb *strings.Builder, at int) {
	sb.WriteString(w.m.atomString(at))
	for _, ref := range w.rings[at] {
		sb.WriteString(bondString(ref.bond))
		if ref.id < 10 {
			fmt.Fprintf(sb, "%d", ref.id)
		} else {
			fmt.Fprintf(sb, "%%%02d", ref.id)
		}
	}
	kids := w.children[at]
	for i, n := range kids {
		last := i == len(kids)-1
		if !last {
			sb.WriteByte('(')
		}
		sb.WriteString(bondString(w.m.bondBetween(at, n)))
		w.emit(sb, n)
		if !last {
			sb.WriteByte(')')
		}
	}
}

func bondKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func bondString(b Bond) string {
	if b.Aromatic {
		return ""
	}
	switch b.Order {
	case 2:
		return "="
	case 3:
		return "#"
	case 4:
		return "$"
	}
	return ""
}

func (m *Mol) atomString(i int) string {
	a := m.Atoms[i]
	needBracket := a.Charge != 0 || a.Isotope != 0 ||
		(a.Bracket && a.HCount != m.freeValenceHydrogens(i))
	if _, organic := organicValence[a.Symbol]; !organic {
		needBracket = true
	}

	sym := a.Symbol
	if a.Aromatic {
		sym = strings.ToLower(sym)
	}
	if !needBracket {
		return sym
	}

	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope != 0 {
		fmt.Fprintf(&sb, "%d", a.Isotope)
	}
	sb.WriteString(sym)
	h := a.HCount
	if !a.Bracket {
		h = m.implicitHydrogens(i)
	}
	if h == 1 {
		sb.WriteByte('H')
	} else if h > 1 {
		fmt.Fprintf(&sb, "H%d", h)
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		fmt.Fprintf(&sb, "+%d", a.Charge)
	case a.Charge < -1:
		fmt.Fprintf(&sb, "-%d", -a.Charge)
	}
	sb.WriteByte(']')
	return sb.String()
}

// freeValenceHydrogens is what the implicit hydrogen count would be if the
// atom were written without brackets; bracket atoms matching it can be
// emitted bare.
func (m *Mol) freeValenceHydrogens(i int) int {
	a := m.Atoms[i]
	allowed, ok := organicValence[a.Symbol]
	if !ok {
		return -1
	}
	sum := (m.bondOrderSum2(i) + 1) / 2
	for _, v := range allowed {
		if sum <= v {
			return v - sum
		}
	}
	return -1
}

// canonicalRanks assigns each atom a rank from iteratively refined
// invariants: start from local atom properties, then fold in sorted
// neighbor ranks until the partition stops splitting. Remaining ties are
// broken one class at a time, lowest class first, re-refining after each
// break.
func (m *Mol) canonicalRanks() []int {
	n := len(m.Atoms)
	keys := make([]string, n)
	for i, a := range m.Atoms {
		keys[i] = fmt.Sprintf("%s|%t|%d|%d|%d|%d",
			a.Symbol, a.Aromatic, a.Charge, m.degree(i), m.implicitHydrogens(i), m.bondOrderSum2(i))
	}
	ranks := rankStrings(keys)

	for {
		ranks = m.refine(ranks)
		if countClasses(ranks) == n {
			return ranks
		}
		if !breakLowestTie(ranks) {
			return ranks
		}
	}
}

// breakLowestTie promotes one member of the lowest tied class into its own
// class, shifting every higher rank up. Reports false when no ties remain.
func breakLowestTie(ranks []int) bool {
	n := len(ranks)
	for r := 0; r < n; r++ {
		var tied []int
		for i, ri := range ranks {
			if ri == r {
				tied = append(tied, i)
			}
		}
		if len(tied) < 2 {
			continue
		}
		keep := tied[0]
		for i := range ranks {
			if ranks[i] > r || (ranks[i] == r && i != keep) {
				ranks[i]++
			}
		}
		return true
	}
	return false
}

func (m *Mol) refine(ranks []int) []int {
	n := len(m.Atoms)
	for iter := 0; iter < n; iter++ {
		keys := make([]string, n)
		for i := range m.Atoms {
			neigh := make([]int, 0, 4)
			for _, j := range m.neighbors(i) {
				b := m.bondBetween(i, j)
				ord := b.Order * 10
				if b.Aromatic {
					ord = 15
				}
				neigh = append(neigh, ranks[j]*100+ord)
			}
			sort.Ints(neigh)
			keys[i] = fmt.Sprintf("%06d|%v", ranks[i], neigh)
		}
		next := rankStrings(keys)
		if countClasses(next) == countClasses(ranks) {
			return next
		}
		ranks = next
	}
	return ranks
}

func rankStrings(keys []string) []int {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	pos := map[string]int{}
	for _, k := range sorted {
		if _, ok := pos[k]; !ok {
			pos[k] = len(pos)
		}
	}
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = pos[k]
	}
	return out
}

func countClasses(ranks []int) int {
	seen := map[int]struct{}{}
	for _, r := range ranks {
		seen[r] = struct{}{}
	}
	return len(seen)
}
