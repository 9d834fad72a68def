// Package chem implements the small slice of cheminformatics the benchmark
// engine needs: SMILES parsing and validity checking, an invariant-based
// canonical form, hashed circular fingerprints, and distance measures.
package chem

import (
	"fmt"
	"sort"
	"strings"
)

// Atom is a parsed SMILES atom.
type Atom struct {
	Symbol   string
	Aromatic bool
	Charge   int
	Isotope  int
	// HCount is the explicit hydrogen count from a bracket atom, -1 when
	// left implicit.
	HCount  int
	Bracket bool
}

// Bond connects two atoms by index. Order is 1, 2, or 3; aromatic bonds
// carry order 1 with Aromatic set.
type Bond struct {
	From, To int
	Order    int
	Aromatic bool
}

// Mol is a parsed molecule graph.
type Mol struct {
	Atoms []Atom
	Bonds []Bond
	adj   [][]int // bond indexes per atom
}

// organicValence holds the default valences of the SMILES organic subset.
var organicValence = map[string][]int{
	"B": {3}, "C": {4}, "N": {3, 5}, "O": {2}, "P": {3, 5},
	"S": {2, 4, 6}, "F": {1}, "Cl": {1}, "Br": {1}, "I": {1},
}

// ParseSmiles parses s into a molecule graph. It rejects syntax errors
// (unbalanced brackets, parentheses, or ring closures) and organic-subset
// atoms whose bond order sum exceeds every allowed valence.
func ParseSmiles(s string) (*Mol, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty smiles")
	}
	p := &parser{in: s, mol: &Mol{}, prev: -1, rings: map[int]ringOpen{}}
	if err := p.run(); err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	if err := p.mol.checkValence(); err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	p.mol.buildAdjacency()
	return p.mol, nil
}

// Validate reports whether s parses as a chemically plausible molecule.
func Validate(s string) bool {
	_, err := ParseSmiles(s)
	return err == nil
}

type ringOpen struct {
	atom int
	bond byte
}

type parser struct {
	in    string
	pos   int
	mol   *Mol
	prev  int
	stack []int
	bond  byte
	rings map[int]ringOpen
}

func (p *parser) run() error {
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		switch {
		case c == '[':
			a, err := p.readBracketAtom()
			if err != nil {
				return err
			}
			p.addAtom(a)
		case c == '(':
			if p.prev < 0 {
				return fmt.Errorf("branch before first atom")
			}
			p.stack = append(p.stack, p.prev)
			p.pos++
		case c == ')':
			if len(p.stack) == 0 {
				return fmt.Errorf("unmatched ')'")
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++
		case c == '-' || c == '=' || c == '#' || c == '$' || c == ':' || c == '/' || c == '\\':
			if p.bond != 0 {
				return fmt.Errorf("consecutive bond symbols")
			}
			p.bond = c
			p.pos++
		case c == '.':
			p.prev = -1
			p.bond = 0
			p.pos++
		case c >= '0' && c <= '9':
			if err := p.ringClosure(int(c - '0')); err != nil {
				return err
			}
			p.pos++
		case c == '%':
			if p.pos+2 >= len(p.in) || !isDigit(p.in[p.pos+1]) || !isDigit(p.in[p.pos+2]) {
				return fmt.Errorf("bad ring closure at %d", p.pos)
			}
			n := int(p.in[p.pos+1]-'0')*10 + int(p.in[p.pos+2]-'0')
			if err := p.ringClosure(n); err != nil {
				return err
			}
			p.pos += 3
		default:
			a, ok := p.readOrganicAtom()
			if !ok {
				return fmt.Errorf("unexpected character %q at %d", c, p.pos)
			}
			p.addAtom(a)
		}
	}
	if len(p.stack) != 0 {
		return fmt.Errorf("unmatched '('")
	}
	if len(p.rings) != 0 {
		return fmt.Errorf("unclosed ring bond")
	}
	if len(p.mol.Atoms) == 0 {
		return fmt.Errorf("no atoms")
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *parser) readOrganicAtom() (Atom, bool) {
	rest := p.in[p.pos:]
	for _, sym := range [...]string{"Cl", "Br", "B", "C", "N", "O", "P", "S", "F", "I"} {
		if strings.HasPrefix(rest, sym) {
			p.pos += len(sym)
			return Atom{Symbol: sym, HCount: -1}, true
		}
	}
	switch rest[0] {
	case 'b', 'c', 'n', 'o', 'p', 's':
		p.pos++
		return Atom{Symbol: strings.ToUpper(rest[:1]), Aromatic: true, HCount: -1}, true
	}
	return Atom{}, false
}

func (p *parser) readBracketAtom() (Atom, error) {
	end := strings.IndexByte(p.in[p.pos:], ']')
	if end < 0 {
		return Atom{}, fmt.Errorf("unmatched '['")
	}
	body := p.in[p.pos+1 : p.pos+end]
	p.pos += end + 1
	if body == "" {
		return Atom{}, fmt.Errorf("empty bracket atom")
	}

	a := Atom{Bracket: true, HCount: 0}
	i := 0
	for i < len(body) && isDigit(body[i]) {
		a.Isotope = a.Isotope*10 + int(body[i]-'0')
		i++
	}
	if i >= len(body) {
		return Atom{}, fmt.Errorf("bracket atom %q has no element", body)
	}
	c := body[i]
	if c >= 'a' && c <= 'z' {
		a.Aromatic = true
		a.Symbol = strings.ToUpper(body[i : i+1])
		i++
	} else if c >= 'A' && c <= 'Z' {
		a.Symbol = body[i : i+1]
		i++
		if i < len(body) && body[i] >= 'a' && body[i] <= 'z' {
			a.Symbol += body[i : i+1]
			i++
		}
	} else {
		return Atom{}, fmt.Errorf("bad element in bracket atom %q", body)
	}

	for i < len(body) {
		switch body[i] {
		case 'H':
			i++
			a.HCount = 1
			if i < len(body) && isDigit(body[i]) {
				a.HCount = int(body[i] - '0')
				i++
			}
		case '+', '-':
			sign := 1
			if body[i] == '-' {
				sign = -1
			}
			i++
			n := 1
			if i < len(body) && isDigit(body[i]) {
				n = int(body[i] - '0')
				i++
			} else {
				for i < len(body) && (body[i] == '+' || body[i] == '-') {
					n++
					i++
				}
			}
			a.Charge = sign * n
		case '@':
			// Chirality markers are accepted and dropped.
			i++
		default:
			return Atom{}, fmt.Errorf("bad bracket atom %q", body)
		}
	}
	return a, nil
}

func (p *parser) addAtom(a Atom) {
	idx := len(p.mol.Atoms)
	p.mol.Atoms = append(p.mol.Atoms, a)
	if p.prev >= 0 {
		p.mol.Bonds = append(p.mol.Bonds, makeBond(p.prev, idx, p.bond, p.mol.Atoms[p.prev].Aromatic && a.Aromatic))
	}
	p.prev = idx
	p.bond = 0
}

func (p *parser) ringClosure(n int) error {
	if p.prev < 0 {
		return fmt.Errorf("ring closure before first atom")
	}
	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringOpen{atom: p.prev, bond: p.bond}
		p.bond = 0
		return nil
	}
	delete(p.rings, n)
	if open.atom == p.prev {
		return fmt.Errorf("ring bond %d closes on itself", n)
	}
	sym := p.bond
	if sym == 0 {
		sym = open.bond
	}
	arom := p.mol.Atoms[open.atom].Aromatic && p.mol.Atoms[p.prev].Aromatic
	p.mol.Bonds = append(p.mol.Bonds, makeBond(open.atom, p.prev, sym, arom))
	p.bond = 0
	return nil
}

func makeBond(from, to int, sym byte, aromaticPair bool) Bond {
	b := Bond{From: from, To: to, Order: 1}
	switch sym {
	case '=':
		b.Order = 2
	case '#':
		b.Order = 3
	case '$':
		b.Order = 4
	case ':':
		b.Aromatic = true
	case 0:
		b.Aromatic = aromaticPair
	}
	return b
}

func (m *Mol) buildAdjacency() {
	m.adj = make([][]int, len(m.Atoms))
	for i, b := range m.Bonds {
		m.adj[b.From] = append(m.adj[b.From], i)
		m.adj[b.To] = append(m.adj[b.To], i)
	}
}

// bondOrderSum2 returns twice the bond order sum of atom i so aromatic
// bonds (order 1.5) stay integral.
func (m *Mol) bondOrderSum2(i int) int {
	sum := 0
	for _, b := range m.Bonds {
		if b.From != i && b.To != i {
			continue
		}
		if b.Aromatic {
			sum += 3
		} else {
			sum += 2 * b.Order
		}
	}
	return sum
}

// checkValence rejects organic-subset atoms whose connections exceed every
// allowed valence. Bracket atoms declare their hydrogens and charge
// explicitly and are taken at face value.
func (m *Mol) checkValence() error {
	for i, a := range m.Atoms {
		if a.Bracket {
			continue
		}
		allowed, ok := organicValence[a.Symbol]
		if !ok {
			return fmt.Errorf("atom %d: unknown organic-subset element %s", i, a.Symbol)
		}
		// Round aromatic half-orders up: an aromatic atom in a ring has at
		// least two aromatic bonds whose half-orders combine to an integer.
		sum := (m.bondOrderSum2(i) + 1) / 2
		ok = false
		for _, v := range allowed {
			if sum <= v {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("atom %d (%s): valence %d exceeds allowed", i, a.Symbol, sum)
		}
	}
	return nil
}

// implicitHydrogens returns the implicit hydrogen count of atom i.
func (m *Mol) implicitHydrogens(i int) int {
	a := m.Atoms[i]
	if a.Bracket {
		return a.HCount
	}
	allowed := organicValence[a.Symbol]
	sum := (m.bondOrderSum2(i) + 1) / 2
	for _, v := range allowed {
		if sum <= v {
			return v - sum
		}
	}
	return 0
}

// degree returns the heavy-atom degree of atom i.
func (m *Mol) degree(i int) int { return len(m.adj[i]) }

// neighbors returns the heavy-atom neighbors of atom i in index order.
func (m *Mol) neighbors(i int) []int {
	out := make([]int, 0, len(m.adj[i]))
	for _, bi := range m.adj[i] {
		b := m.Bonds[bi]
		if b.From == i {
			out = append(out, b.To)
		} else {
			out = append(out, b.From)
		}
	}
	sort.Ints(out)
	return out
}

func (m *Mol) bondBetween(i, j int) Bond {
	for _, bi := range m.adj[i] {
		b := m.Bonds[bi]
		if (b.From == i && b.To == j) || (b.From == j && b.To == i) {
			return b
		}
	}
	return Bond{Order: 1}
}
