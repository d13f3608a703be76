package ontology

import (
	"github.com/reusee/sym/bptree"
	"github.com/reusee/sym/storage"
)

// Mode is the binding of one triple position in a query pattern.
type Mode uint8

const (
	Match Mode = iota
	Varying
	Ignore
)

// Mask packs the three position modes: entity + 3*attribute + 9*value.
type Mask uint8

func MakeMask(entity, attribute, value Mode) Mask {
	return Mask(entity) + 3*Mask(attribute) + 9*Mask(value)
}

var (
	MaskMMM = MakeMask(Match, Match, Match)
	MaskMMV = MakeMask(Match, Match, Varying)
	MaskMVM = MakeMask(Match, Varying, Match)
	MaskVMM = MakeMask(Varying, Match, Match)
	MaskMVV = MakeMask(Match, Varying, Varying)
	MaskVMV = MakeMask(Varying, Match, Varying)
	MaskVVM = MakeMask(Varying, Varying, Match)
	MaskVVV = MakeMask(Varying, Varying, Varying)
)

// the six permutation indices; each lists which triple position comes
// first, second and third in that index
const (
	indexEAV = iota
	indexAEV
	indexAVE
	indexVEA
	indexVAE
	indexEVA
)

var permutations = [6][3]int{
	indexEAV: {0, 1, 2},
	indexAEV: {1, 0, 2},
	indexAVE: {1, 2, 0},
	indexVEA: {2, 0, 1},
	indexVAE: {2, 1, 0},
	indexEVA: {0, 2, 1},
}

// queryPlan maps every mask to the permutation whose coordinate order
// lines up as Match*, Varying*, Ignore*, so matches bind the outer
// layers and the loop nesting follows the index structure.
var queryPlan [27]struct {
	perm  int
	modes [3]Mode
}

func init() {
	for mask := range queryPlan {
		modes := [3]Mode{
			Mode(mask % 3),
			Mode(mask / 3 % 3),
			Mode(mask / 9 % 3),
		}
		found := false
		for pi, perm := range permutations {
			m := [3]Mode{modes[perm[0]], modes[perm[1]], modes[perm[2]]}
			if m[0] <= m[1] && m[1] <= m[2] {
				queryPlan[mask].perm = pi
				queryPlan[mask].modes = m
				found = true
				break
			}
		}
		if !found {
			panic("no permutation for mask")
		}
	}
}

// Query enumerates the triples matching the pattern. Match positions
// must be bound in t, Varying positions are reported through the
// callback, Ignore positions collapse enumeration to distinct
// combinations of the remaining coordinates. The return value is the
// number of callback invocations; cb may be nil for counting.
//
// Within one call the enumeration order is the key order of the chosen
// permutation index. The callback must not mutate the value sets it is
// currently iterating.
func (s *Store) Query(mask Mask, t Triple, cb func(Triple)) uint64 {
	plan := queryPlan[mask]
	perm := permutations[plan.perm]
	keys := [3]uint64{
		uint64(t[perm[0]]),
		uint64(t[perm[1]]),
		uint64(t[perm[2]]),
	}

	var count uint64
	emit := func(c0, c1, c2 uint64) {
		count++
		if cb != nil {
			var out Triple
			out[perm[0]] = storage.Symbol(c0)
			out[perm[1]] = storage.Symbol(c1)
			out[perm[2]] = storage.Symbol(c2)
			cb(out)
		}
	}

	eachGamma := func(root storage.PageRef, c0, c1 uint64) {
		gamma := s.setTree(root)
		for key := range gamma.All() {
			emit(c0, c1, key)
		}
	}
	eachBeta := func(root storage.PageRef, c0 uint64, inner func(second uint64, gammaRoot storage.PageRef)) {
		beta := s.mapTree(root)
		for key, value := range beta.All() {
			inner(key, storage.PageRef(value))
		}
	}

	switch plan.modes {

	case [3]Mode{Match, Match, Match}:
		root := s.findGamma(plan.perm, storage.Symbol(keys[0]), storage.Symbol(keys[1]))
		if root != 0 {
			gamma := s.setTree(root)
			var it bptree.Iterator
			if gamma.FindKey(&it, keys[2]) {
				emit(keys[0], keys[1], keys[2])
			}
		}

	case [3]Mode{Match, Match, Varying}:
		root := s.findGamma(plan.perm, storage.Symbol(keys[0]), storage.Symbol(keys[1]))
		if root != 0 {
			eachGamma(root, keys[0], keys[1])
		}

	case [3]Mode{Match, Match, Ignore}:
		if s.findGamma(plan.perm, storage.Symbol(keys[0]), storage.Symbol(keys[1])) != 0 {
			emit(keys[0], keys[1], keys[2])
		}

	case [3]Mode{Match, Varying, Varying}:
		if root := s.findBeta(plan.perm, storage.Symbol(keys[0])); root != 0 {
			eachBeta(root, keys[0], func(second uint64, gammaRoot storage.PageRef) {
				eachGamma(gammaRoot, keys[0], second)
			})
		}

	case [3]Mode{Match, Varying, Ignore}:
		if root := s.findBeta(plan.perm, storage.Symbol(keys[0])); root != 0 {
			eachBeta(root, keys[0], func(second uint64, _ storage.PageRef) {
				emit(keys[0], second, keys[2])
			})
		}

	case [3]Mode{Match, Ignore, Ignore}:
		if s.findBeta(plan.perm, storage.Symbol(keys[0])) != 0 {
			emit(keys[0], keys[1], keys[2])
		}

	case [3]Mode{Varying, Varying, Varying}:
		alpha := s.alphaTree(plan.perm)
		for first, betaRoot := range alpha.All() {
			eachBeta(storage.PageRef(betaRoot), first, func(second uint64, gammaRoot storage.PageRef) {
				eachGamma(gammaRoot, first, second)
			})
		}

	case [3]Mode{Varying, Varying, Ignore}:
		alpha := s.alphaTree(plan.perm)
		for first, betaRoot := range alpha.All() {
			eachBeta(storage.PageRef(betaRoot), first, func(second uint64, _ storage.PageRef) {
				emit(first, second, keys[2])
			})
		}

	case [3]Mode{Varying, Ignore, Ignore}:
		alpha := s.alphaTree(plan.perm)
		for first := range alpha.All() {
			emit(first, keys[1], keys[2])
		}

	case [3]Mode{Ignore, Ignore, Ignore}:
		tree := s.alphaTree(indexEAV)
		if !tree.Empty() {
			emit(keys[0], keys[1], keys[2])
		}
	}

	return count
}
