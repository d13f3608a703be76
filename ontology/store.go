package ontology

import (
	"math"

	"github.com/reusee/sym/blobs"
	"github.com/reusee/sym/bptree"
	"github.com/reusee/sym/storage"
)

// Triple is an ordered (entity, attribute, value) of symbols.
type Triple [3]storage.Symbol

// Store is the triple store: six permutation indices over one shared
// symbol space, plus the blob content index that makes equal payloads
// share a symbol. Not safe for concurrent use.
type Store struct {
	Space *storage.Space
	Blobs *blobs.Store

	mapLayout *bptree.Layout // alpha and beta layers: symbol -> subtree root
	setLayout *bptree.Layout // gamma layer: ranked symbol set
}

func NewStore(space *storage.Space) *Store {
	s := &Store{
		Space:     space,
		Blobs:     blobs.NewStore(space),
		mapLayout: bptree.NewLayout(space, 64, 64, 0),
		setLayout: bptree.NewLayout(space, 64, 0, 64),
	}
	s.fillPreDefined()
	return s
}

func (s *Store) alphaTree(index int) bptree.Tree {
	return bptree.Tree{
		Space:  s.Space,
		Layout: s.mapLayout,
		Root:   s.Space.Super().IndexRoots[index],
	}
}

func (s *Store) mapTree(root storage.PageRef) bptree.Tree {
	return bptree.Tree{Space: s.Space, Layout: s.mapLayout, Root: root}
}

func (s *Store) setTree(root storage.PageRef) bptree.Tree {
	return bptree.Tree{Space: s.Space, Layout: s.setLayout, Root: root}
}

// findBeta returns the beta tree root for the first coordinate of a
// permutation, 0 when the symbol has no entry there.
func (s *Store) findBeta(index int, first storage.Symbol) storage.PageRef {
	alpha := s.alphaTree(index)
	var it bptree.Iterator
	if !alpha.FindKey(&it, uint64(first)) {
		return 0
	}
	return storage.PageRef(it.Value())
}

func (s *Store) findGamma(index int, first, second storage.Symbol) storage.PageRef {
	betaRoot := s.findBeta(index, first)
	if betaRoot == 0 {
		return 0
	}
	beta := s.mapTree(betaRoot)
	var it bptree.Iterator
	if !beta.FindKey(&it, uint64(second)) {
		return 0
	}
	return storage.PageRef(it.Value())
}

func (s *Store) linkIndex(index int, first, second, third storage.Symbol) {
	alpha := s.alphaTree(index)
	var ai bptree.Iterator
	if alpha.FindKey(&ai, uint64(first)) {
		beta := s.mapTree(storage.PageRef(ai.Value()))
		var bi bptree.Iterator
		if beta.FindKey(&bi, uint64(second)) {
			gamma := s.setTree(storage.PageRef(bi.Value()))
			gamma.InsertOne(uint64(third), 0)
			bi.SetValue(uint64(gamma.Root))
			return
		}
		gamma := s.setTree(0)
		gamma.InsertOne(uint64(third), 0)
		beta.Insert(&bi, 1, func(p []uint64, begin, end int) {
			s.mapLayout.ProduceKeyValue(p, begin, uint64(second), uint64(gamma.Root))
		})
		ai.SetValue(uint64(beta.Root))
		return
	}
	gamma := s.setTree(0)
	gamma.InsertOne(uint64(third), 0)
	beta := s.mapTree(0)
	beta.InsertOne(uint64(second), uint64(gamma.Root))
	alpha.Insert(&ai, 1, func(p []uint64, begin, end int) {
		s.mapLayout.ProduceKeyValue(p, begin, uint64(first), uint64(beta.Root))
	})
	s.Space.Super().IndexRoots[index] = alpha.Root
}

func (s *Store) unlinkIndex(index int, first, second, third storage.Symbol) {
	alpha := s.alphaTree(index)
	var ai bptree.Iterator
	if !alpha.FindKey(&ai, uint64(first)) {
		return
	}
	beta := s.mapTree(storage.PageRef(ai.Value()))
	var bi bptree.Iterator
	if !beta.FindKey(&bi, uint64(second)) {
		return
	}
	gamma := s.setTree(storage.PageRef(bi.Value()))
	gamma.EraseKey(uint64(third))
	if gamma.Root != 0 {
		bi.SetValue(uint64(gamma.Root))
		return
	}
	beta.Erase(&bi)
	if beta.Root != 0 {
		ai.SetValue(uint64(beta.Root))
		return
	}
	alpha.Erase(&ai)
	s.Space.Super().IndexRoots[index] = alpha.Root
}

// TripleExists is the fully bound existence check.
func (s *Store) TripleExists(t Triple) bool {
	gammaRoot := s.findGamma(0, t[0], t[1])
	if gammaRoot == 0 {
		return false
	}
	gamma := s.setTree(gammaRoot)
	var it bptree.Iterator
	return gamma.FindKey(&it, uint64(t[2]))
}

// Link inserts a triple into all six indices. Linking an existing
// triple is a no-op reporting false.
func (s *Store) Link(t Triple) bool {
	if s.TripleExists(t) {
		return false
	}
	for i, perm := range permutations {
		s.linkIndex(i, t[perm[0]], t[perm[1]], t[perm[2]])
	}
	return true
}

// Unlink removes a triple from all six indices and re-evaluates the
// existence of the three participants. A participant left without any
// triple is destroyed; severing a Holds edge additionally scrutinizes
// the held symbol, which cascades when it was the last one.
func (s *Store) Unlink(t Triple) bool {
	if !s.TripleExists(t) {
		return false
	}
	for i, perm := range permutations {
		s.unlinkIndex(i, t[perm[0]], t[perm[1]], t[perm[2]])
	}
	for i, sym := range t {
		if i > 0 && (sym == t[0] || (i == 2 && sym == t[1])) {
			continue
		}
		if sym >= PreDefSymbolCount && !s.participates(sym) {
			s.destroyOrphan(sym)
		}
	}
	if t[1] == HoldsSymbol {
		s.ScrutinizeExistence(t[2])
	}
	return true
}

// SetSolitary makes t the only (entity, attribute, ·) triple,
// unlinking every other value.
func (s *Store) SetSolitary(t Triple) {
	s.Link(t)
	var victims []storage.Symbol
	s.Query(MaskMMV, Triple{t[0], t[1], VoidSymbol}, func(result Triple) {
		if result[2] != t[2] {
			victims = append(victims, result[2])
		}
	})
	for _, v := range victims {
		s.Unlink(Triple{t[0], t[1], v})
	}
}

// UnlinkAttribute removes every (entity, attribute, ·) triple.
func (s *Store) UnlinkAttribute(entity, attribute storage.Symbol) {
	var victims []storage.Symbol
	s.Query(MaskMMV, Triple{entity, attribute, VoidSymbol}, func(result Triple) {
		victims = append(victims, result[2])
	})
	for _, v := range victims {
		s.Unlink(Triple{entity, attribute, v})
	}
}

// GetGuaranteed returns the single value of (entity, attribute, ·) or
// a MissingTripleError.
func (s *Store) GetGuaranteed(entity, attribute storage.Symbol) (storage.Symbol, error) {
	gammaRoot := s.findGamma(0, entity, attribute)
	if gammaRoot == 0 {
		return VoidSymbol, MissingTripleError{Entity: entity, Attribute: attribute}
	}
	gamma := s.setTree(gammaRoot)
	if gamma.Count() != 1 {
		return VoidSymbol, MissingTripleError{Entity: entity, Attribute: attribute}
	}
	var it bptree.Iterator
	gamma.FindFirst(&it)
	return storage.Symbol(it.Key()), nil
}

// GetUncertain reports the first value of (entity, attribute, ·).
func (s *Store) GetUncertain(entity, attribute storage.Symbol) (storage.Symbol, bool) {
	gammaRoot := s.findGamma(0, entity, attribute)
	if gammaRoot == 0 {
		return VoidSymbol, false
	}
	gamma := s.setTree(gammaRoot)
	var it bptree.Iterator
	gamma.FindFirst(&it)
	return storage.Symbol(it.Key()), true
}

// ValueSetCountIs tests the cardinality of (entity, attribute, ·)
// without enumerating it.
func (s *Store) ValueSetCountIs(entity, attribute storage.Symbol, n uint64) bool {
	gammaRoot := s.findGamma(0, entity, attribute)
	if gammaRoot == 0 {
		return n == 0
	}
	tree := s.setTree(gammaRoot)
	return tree.Count() == n
}

// Create allocates a fresh symbol and links (symbol, attr, value) for
// every given pair.
func (s *Store) Create(pairs ...[2]storage.Symbol) storage.Symbol {
	sym := s.Blobs.CreateSymbol()
	for _, pair := range pairs {
		s.Link(Triple{sym, pair[0], pair[1]})
	}
	return sym
}

// participates reports whether the symbol occurs in any triple. The
// three alpha families by leading entity, attribute and value cover
// every position.
func (s *Store) participates(sym storage.Symbol) bool {
	return s.findBeta(indexEAV, sym) != 0 ||
		s.findBeta(indexAEV, sym) != 0 ||
		s.findBeta(indexVEA, sym) != 0
}

// ScrutinizeExistence re-evaluates whether anything still keeps the
// symbol alive: an incoming Holds edge, or nothing at all to clean up.
// A symbol that lost its last Holds is destroyed together with every
// triple it participates in, which may cascade. Predefined symbols are
// immortal. Idempotent and safe to call on live symbols.
func (s *Store) ScrutinizeExistence(sym storage.Symbol) {
	if sym < PreDefSymbolCount {
		return
	}
	if !s.participates(sym) {
		s.destroyOrphan(sym)
		return
	}
	if s.findGamma(indexVAE, sym, HoldsSymbol) != 0 {
		return
	}
	s.Destroy(sym)
}

func (s *Store) destroyOrphan(sym storage.Symbol) {
	// the blob is still intact here, so the binary search is conclusive
	v := s.internIndex()
	if at, found := s.indexFind(sym); found && storage.Symbol(v.Get(at)) == sym {
		v.Erase(at)
	}
	s.Blobs.ReleaseSymbol(sym)
}

// Destroy unlinks every triple the symbol participates in, cascading
// through symbols that lose their last reference, then releases it.
func (s *Store) Destroy(sym storage.Symbol) {
	if sym < PreDefSymbolCount {
		return
	}
	var found []Triple
	s.Query(MaskMVV, Triple{sym, VoidSymbol, VoidSymbol}, func(t Triple) {
		found = append(found, t)
	})
	s.Query(MaskVMV, Triple{VoidSymbol, sym, VoidSymbol}, func(t Triple) {
		found = append(found, t)
	})
	s.Query(MaskVVM, Triple{VoidSymbol, VoidSymbol, sym}, func(t Triple) {
		found = append(found, t)
	})
	for _, t := range found {
		s.Unlink(t)
	}
	s.destroyOrphan(sym)
}

// content index: the symbols whose blobs are interned, sorted by blob
// comparison, stored as a vector under a reserved symbol.

func (s *Store) internIndex() blobs.Vector {
	return blobs.Vector{Store: s.Blobs, Symbol: ContentIndexSymbol, ElemBits: 64}
}

func (s *Store) indexFind(sym storage.Symbol) (uint64, bool) {
	v := s.internIndex()
	lo, hi := uint64(0), v.Count()
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Blobs.Compare(storage.Symbol(v.Get(mid)), sym) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < v.Count() && s.Blobs.Compare(storage.Symbol(v.Get(lo)), sym) == 0 {
		return lo, true
	}
	return lo, false
}

// InternBlob returns the canonical symbol for the blob content of sym,
// destroying sym when an equal blob is already interned.
func (s *Store) InternBlob(sym storage.Symbol) storage.Symbol {
	at, found := s.indexFind(sym)
	v := s.internIndex()
	if found {
		canonical := storage.Symbol(v.Get(at))
		if canonical != sym {
			s.Destroy(sym)
		}
		return canonical
	}
	v.Insert(at, uint64(sym))
	return sym
}

// ModifiedBlob evicts a symbol from the content index. It must be
// called after mutating a blob that may be interned; the entry is
// stale at that point, so the lookup falls back to a linear sweep.
func (s *Store) ModifiedBlob(sym storage.Symbol) {
	v := s.internIndex()
	if at, found := s.indexFind(sym); found && storage.Symbol(v.Get(at)) == sym {
		v.Erase(at)
		return
	}
	for i := uint64(0); i < v.Count(); i++ {
		if storage.Symbol(v.Get(i)) == sym {
			v.Erase(i)
			return
		}
	}
}

// typed blob constructors; every literal goes through the content
// index so equal payloads share one symbol

func (s *Store) createTyped(blobType storage.Symbol, write func(sym storage.Symbol)) storage.Symbol {
	sym := s.Blobs.CreateSymbol()
	write(sym)
	s.Link(Triple{sym, BlobTypeSymbol, blobType})
	return s.InternBlob(sym)
}

func (s *Store) CreateFromNatural(value uint64) storage.Symbol {
	return s.createTyped(NaturalSymbol, func(sym storage.Symbol) {
		s.Blobs.SetSize(sym, 64, 0)
		s.Blobs.WriteBitsAt(sym, 0, 64, value)
	})
}

func (s *Store) CreateFromInteger(value int64) storage.Symbol {
	return s.createTyped(IntegerSymbol, func(sym storage.Symbol) {
		s.Blobs.SetSize(sym, 64, 0)
		s.Blobs.WriteBitsAt(sym, 0, 64, uint64(value))
	})
}

func (s *Store) CreateFromFloat(value float64) storage.Symbol {
	return s.createTyped(FloatSymbol, func(sym storage.Symbol) {
		s.Blobs.SetSize(sym, 64, 0)
		s.Blobs.WriteBitsAt(sym, 0, 64, math.Float64bits(value))
	})
}

func (s *Store) CreateFromText(text string) storage.Symbol {
	return s.createTyped(TextSymbol, func(sym storage.Symbol) {
		s.Blobs.WriteBytes(sym, []byte(text))
	})
}

// typed blob readers

func (s *Store) checkBlobType(sym, expected storage.Symbol) error {
	if !s.TripleExists(Triple{sym, BlobTypeSymbol, expected}) {
		return TypeMismatchError{Symbol: sym, Expected: expected}
	}
	return nil
}

func (s *Store) ReadNatural(sym storage.Symbol) (uint64, error) {
	if err := s.checkBlobType(sym, NaturalSymbol); err != nil {
		return 0, err
	}
	return s.Blobs.ReadBitsAt(sym, 0, 64), nil
}

func (s *Store) ReadText(sym storage.Symbol) (string, error) {
	if err := s.checkBlobType(sym, TextSymbol); err != nil {
		return "", err
	}
	return string(s.Blobs.ReadBytes(sym)), nil
}
