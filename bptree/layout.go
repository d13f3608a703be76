package bptree

import (
	"github.com/reusee/sym/storage"
)

// Layout fixes the bit widths of one tree family and precomputes the
// field offsets inside a page. RankBits 0 disables subtree counting,
// ValueBits 0 turns leaves into a plain ordered set.
//
// Page anatomy, all offsets in bits:
//
//	word 0: element count (32) | layer (8)
//	leaf:   keys[leafCap], values[leafCap]
//	branch: childRefs[branchCap], ranks[branchCap], separators[branchCap-1]
//
// A branch holding c children stores c-1 separators; separator i is the
// smallest key reachable through child i+1. Rank slot i is the element
// count of child i's subtree.
type Layout struct {
	KeyBits   uint64
	ValueBits uint64
	RankBits  uint64

	leafCap   int
	branchCap int

	leafKeyOff  uint64
	leafValOff  uint64
	refOff      uint64
	rankOff     uint64
	sepOff      uint64
	bitsPerPage uint64
}

const (
	headerBits = 64
	refBits    = 64
)

func NewLayout(space *storage.Space, keyBits, valueBits, rankBits uint64) *Layout {
	l := &Layout{
		KeyBits:     keyBits,
		ValueBits:   valueBits,
		RankBits:    rankBits,
		bitsPerPage: space.BitsPerPage(),
	}
	l.leafCap = int((l.bitsPerPage - headerBits) / (keyBits + valueBits))
	l.branchCap = int((l.bitsPerPage - headerBits + keyBits) / (refBits + rankBits + keyBits))
	if l.leafCap < 2 || l.branchCap < 2 {
		panic("page too small for layout")
	}
	l.leafKeyOff = headerBits
	l.leafValOff = headerBits + uint64(l.leafCap)*keyBits
	l.refOff = headerBits
	l.rankOff = headerBits + uint64(l.branchCap)*refBits
	l.sepOff = l.rankOff + uint64(l.branchCap)*rankBits
	return l
}

func (l *Layout) ranked() bool {
	return l.RankBits > 0
}

func (l *Layout) count(p []uint64) int {
	return int(storage.ReadBits(p, 0, 32))
}

func (l *Layout) setCount(p []uint64, n int) {
	storage.WriteBits(p, 0, 32, uint64(n))
}

func (l *Layout) layer(p []uint64) int {
	return int(storage.ReadBits(p, 32, 8))
}

func (l *Layout) setLayer(p []uint64, layer int) {
	storage.WriteBits(p, 32, 8, uint64(layer))
}

func (l *Layout) leafKey(p []uint64, i int) uint64 {
	return storage.ReadBits(p, l.leafKeyOff+uint64(i)*l.KeyBits, l.KeyBits)
}

func (l *Layout) setLeafKey(p []uint64, i int, key uint64) {
	storage.WriteBits(p, l.leafKeyOff+uint64(i)*l.KeyBits, l.KeyBits, key)
}

func (l *Layout) leafValue(p []uint64, i int) uint64 {
	if l.ValueBits == 0 {
		return 0
	}
	return storage.ReadBits(p, l.leafValOff+uint64(i)*l.ValueBits, l.ValueBits)
}

func (l *Layout) setLeafValue(p []uint64, i int, value uint64) {
	if l.ValueBits == 0 {
		return
	}
	storage.WriteBits(p, l.leafValOff+uint64(i)*l.ValueBits, l.ValueBits, value)
}

func (l *Layout) ref(p []uint64, i int) storage.PageRef {
	return storage.PageRef(storage.ReadBits(p, l.refOff+uint64(i)*refBits, refBits))
}

func (l *Layout) setRef(p []uint64, i int, ref storage.PageRef) {
	storage.WriteBits(p, l.refOff+uint64(i)*refBits, refBits, uint64(ref))
}

func (l *Layout) rank(p []uint64, i int) uint64 {
	if !l.ranked() {
		return 0
	}
	return storage.ReadBits(p, l.rankOff+uint64(i)*l.RankBits, l.RankBits)
}

func (l *Layout) setRank(p []uint64, i int, rank uint64) {
	if !l.ranked() {
		return
	}
	storage.WriteBits(p, l.rankOff+uint64(i)*l.RankBits, l.RankBits, rank)
}

func (l *Layout) sep(p []uint64, i int) uint64 {
	return storage.ReadBits(p, l.sepOff+uint64(i)*l.KeyBits, l.KeyBits)
}

func (l *Layout) setSep(p []uint64, i int, key uint64) {
	storage.WriteBits(p, l.sepOff+uint64(i)*l.KeyBits, l.KeyBits, key)
}

// ProduceKeyValue writes one element of a leaf region handed out by
// Tree.Insert.
func (l *Layout) ProduceKeyValue(p []uint64, i int, key, value uint64) {
	l.setLeafKey(p, i, key)
	l.setLeafValue(p, i, value)
}

// integratedRank is the element count of the subtree under a page.
func (l *Layout) integratedRank(p []uint64) uint64 {
	if l.layer(p) == 0 {
		return uint64(l.count(p))
	}
	var sum uint64
	for i := range l.count(p) {
		sum += l.rank(p, i)
	}
	return sum
}

// moveLeaf shifts n elements inside one leaf page from src to dst.
func (l *Layout) moveLeaf(p []uint64, dst, src, n int) {
	if n <= 0 || dst == src {
		return
	}
	storage.CopyBits(p, p,
		l.leafKeyOff+uint64(dst)*l.KeyBits,
		l.leafKeyOff+uint64(src)*l.KeyBits,
		uint64(n)*l.KeyBits)
	if l.ValueBits > 0 {
		storage.CopyBits(p, p,
			l.leafValOff+uint64(dst)*l.ValueBits,
			l.leafValOff+uint64(src)*l.ValueBits,
			uint64(n)*l.ValueBits)
	}
}
