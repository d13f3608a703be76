package bptree

import (
	"github.com/reusee/sym/storage"
)

// EraseKey removes a single key, reporting whether it was present.
func (t *Tree) EraseKey(key uint64) bool {
	return t.EraseKeyRange(key, key) > 0
}

// Erase removes the element at the iterator position.
func (t *Tree) Erase(it *Iterator) {
	key := it.Key()
	t.EraseKeyRange(key, key)
}

// EraseRange removes the inclusive range between two valid iterators.
func (t *Tree) EraseRange(from, to *Iterator) uint64 {
	return t.EraseKeyRange(from.Key(), to.Key())
}

// EraseAll empties the tree, releasing every page.
func (t *Tree) EraseAll() {
	if t.Root == 0 {
		return
	}
	t.freeSubtree(t.Root)
	t.Root = 0
}

// EraseKeyRange removes all keys in [from, to] and returns how many
// elements went away. Underfull pages are repaired by redistribution
// with a sibling or by merging, and the root collapses while it holds
// a single child.
func (t *Tree) EraseKeyRange(from, to uint64) uint64 {
	if t.Root == 0 || from > to {
		return 0
	}
	removed, empty := t.eraseIn(t.Root, from, to)
	if empty {
		t.Space.ReleasePage(t.Root)
		t.Root = 0
		return removed
	}
	l := t.Layout
	for {
		page := t.Space.Page(t.Root)
		if l.layer(page) > 0 && l.count(page) == 1 {
			old := t.Root
			t.Root = l.ref(page, 0)
			t.Space.ReleasePage(old)
			continue
		}
		break
	}
	return removed
}

func (t *Tree) eraseIn(ref storage.PageRef, from, to uint64) (uint64, bool) {
	l := t.Layout
	page := t.Space.Page(ref)

	if l.layer(page) == 0 {
		c := l.count(page)
		a, b := c, c
		for i := range c {
			if l.leafKey(page, i) >= from {
				a = i
				break
			}
		}
		for i := a; i < c; i++ {
			if l.leafKey(page, i) > to {
				b = i
				break
			}
		}
		if b <= a {
			return 0, false
		}
		l.moveLeaf(page, a, b, c-b)
		l.setCount(page, c-(b-a))
		return uint64(b - a), c-(b-a) == 0
	}

	lo := l.pickByKey(page, from)
	hi := l.pickByKey(page, to)

	if lo == hi {
		childRef := l.ref(page, lo)
		removed, empty := t.eraseIn(childRef, from, to)
		if removed == 0 {
			return 0, false
		}
		if empty {
			t.Space.ReleasePage(childRef)
			t.removeChildSlots(page, lo, lo+1)
		} else {
			l.setRank(page, lo, l.rank(page, lo)-removed)
			if lo > 0 {
				l.setSep(page, lo-1, t.leftmostKey(childRef))
			}
			t.fixUnderflow(page, lo)
		}
		return removed, l.count(page) == 0
	}

	loRef := l.ref(page, lo)
	hiRef := l.ref(page, hi)
	remL, emptyL := t.eraseIn(loRef, from, to)
	remR, emptyR := t.eraseIn(hiRef, from, to)
	removed := remL + remR
	for i := lo + 1; i < hi; i++ {
		removed += t.freeSubtree(l.ref(page, i))
	}
	l.setRank(page, lo, l.rank(page, lo)-remL)
	l.setRank(page, hi, l.rank(page, hi)-remR)
	if !emptyR {
		l.setSep(page, hi-1, t.leftmostKey(hiRef))
	}

	removeFrom, removeTo := lo+1, hi
	if emptyR {
		t.Space.ReleasePage(hiRef)
		removeTo = hi + 1
	}
	if emptyL {
		t.Space.ReleasePage(loRef)
		removeFrom = lo
	}
	t.removeChildSlots(page, removeFrom, removeTo)

	switch {
	case !emptyL && !emptyR:
		t.fixUnderflow(page, lo)
		if lo+1 < l.count(page) {
			t.fixUnderflow(page, lo+1)
		}
	case !emptyL:
		t.fixUnderflow(page, lo)
	case !emptyR:
		if lo < l.count(page) {
			t.fixUnderflow(page, lo)
		}
	}
	return removed, l.count(page) == 0
}

// freeSubtree releases every page under ref and returns how many
// elements lived there.
func (t *Tree) freeSubtree(ref storage.PageRef) uint64 {
	l := t.Layout
	page := t.Space.Page(ref)
	if l.layer(page) == 0 {
		n := uint64(l.count(page))
		t.Space.ReleasePage(ref)
		return n
	}
	var n uint64
	for i := range l.count(page) {
		n += t.freeSubtree(l.ref(page, i))
	}
	t.Space.ReleasePage(ref)
	return n
}

// removeChildSlots deletes children [a, b) from a branch page, moving
// the following refs, ranks and separators down.
func (t *Tree) removeChildSlots(page []uint64, a, b int) {
	l := t.Layout
	c := l.count(page)
	num := b - a
	if num <= 0 {
		return
	}
	for i := b; i < c; i++ {
		l.setRef(page, i-num, l.ref(page, i))
		l.setRank(page, i-num, l.rank(page, i))
		if i-1-num >= 0 {
			l.setSep(page, i-1-num, l.sep(page, i-1))
		}
	}
	l.setCount(page, c-num)
}

func (t *Tree) underfull(page []uint64) bool {
	l := t.Layout
	if l.layer(page) == 0 {
		return l.count(page) < l.leafCap/2
	}
	return l.count(page) < l.branchCap/2
}

// fixUnderflow repairs the child at index i of a branch page by
// redistribution with a neighbouring sibling, or by merging when both
// fit into one page. Merging can leave the merged page underfull after
// a heavy range erase, so it loops until the child is legal or has no
// sibling left.
func (t *Tree) fixUnderflow(page []uint64, i int) {
	l := t.Layout
	for {
		c := l.count(page)
		if c <= 1 {
			return
		}
		if i >= c {
			i = c - 1
		}
		childPage := t.Space.Page(l.ref(page, i))
		if !t.underfull(childPage) {
			return
		}
		left := i
		if i == c-1 {
			left = i - 1
		}
		if !t.combine(page, left) {
			return
		}
		i = left
	}
}

// combine merges or rebalances children left and left+1. Returns true
// when the two were merged into one page.
func (t *Tree) combine(parent []uint64, left int) bool {
	l := t.Layout
	lRef := l.ref(parent, left)
	rRef := l.ref(parent, left+1)
	lPage := t.Space.Page(lRef)
	rPage := t.Space.Page(rRef)
	if l.layer(lPage) == 0 {
		return t.combineLeaves(parent, left, lRef, rRef, lPage, rPage)
	}
	return t.combineBranches(parent, left, lRef, rRef, lPage, rPage)
}

func (t *Tree) combineLeaves(parent []uint64, left int, lRef, rRef storage.PageRef, lPage, rPage []uint64) bool {
	l := t.Layout
	lc, rc := l.count(lPage), l.count(rPage)
	total := lc + rc

	if total <= l.leafCap {
		storage.CopyBits(lPage, rPage,
			l.leafKeyOff+uint64(lc)*l.KeyBits, l.leafKeyOff, uint64(rc)*l.KeyBits)
		if l.ValueBits > 0 {
			storage.CopyBits(lPage, rPage,
				l.leafValOff+uint64(lc)*l.ValueBits, l.leafValOff, uint64(rc)*l.ValueBits)
		}
		l.setCount(lPage, total)
		l.setRank(parent, left, uint64(total))
		t.Space.ReleasePage(rRef)
		t.removeChildSlots(parent, left+1, left+2)
		return true
	}

	sizes := evenSizes(total, l.leafCap)
	newL := sizes[0]
	if newL > lc {
		// pull the head of the right page
		move := newL - lc
		storage.CopyBits(lPage, rPage,
			l.leafKeyOff+uint64(lc)*l.KeyBits, l.leafKeyOff, uint64(move)*l.KeyBits)
		if l.ValueBits > 0 {
			storage.CopyBits(lPage, rPage,
				l.leafValOff+uint64(lc)*l.ValueBits, l.leafValOff, uint64(move)*l.ValueBits)
		}
		l.moveLeaf(rPage, 0, move, rc-move)
	} else if newL < lc {
		// push our tail in front of the right page
		move := lc - newL
		l.moveLeaf(rPage, move, 0, rc)
		storage.CopyBits(rPage, lPage,
			l.leafKeyOff, l.leafKeyOff+uint64(newL)*l.KeyBits, uint64(move)*l.KeyBits)
		if l.ValueBits > 0 {
			storage.CopyBits(rPage, lPage,
				l.leafValOff, l.leafValOff+uint64(newL)*l.ValueBits, uint64(move)*l.ValueBits)
		}
	}
	l.setCount(lPage, newL)
	l.setCount(rPage, total-newL)
	l.setRank(parent, left, uint64(newL))
	l.setRank(parent, left+1, uint64(total-newL))
	l.setSep(parent, left, l.leafKey(rPage, 0))
	return false
}

func (t *Tree) combineBranches(parent []uint64, left int, lRef, rRef storage.PageRef, lPage, rPage []uint64) bool {
	l := t.Layout
	lc, rc := l.count(lPage), l.count(rPage)
	total := lc + rc
	parentSep := l.sep(parent, left)

	refs := make([]storage.PageRef, 0, total)
	ranks := make([]uint64, 0, total)
	leads := make([]uint64, 0, total)
	for i := range lc {
		refs = append(refs, l.ref(lPage, i))
		ranks = append(ranks, l.rank(lPage, i))
		if i > 0 {
			leads = append(leads, l.sep(lPage, i-1))
		} else {
			leads = append(leads, 0)
		}
	}
	for i := range rc {
		refs = append(refs, l.ref(rPage, i))
		ranks = append(ranks, l.rank(rPage, i))
		if i > 0 {
			leads = append(leads, l.sep(rPage, i-1))
		} else {
			leads = append(leads, parentSep)
		}
	}

	write := func(page []uint64, start, size int) uint64 {
		var sum uint64
		for j := range size {
			l.setRef(page, j, refs[start+j])
			l.setRank(page, j, ranks[start+j])
			if j > 0 {
				l.setSep(page, j-1, leads[start+j])
			}
			sum += ranks[start+j]
		}
		l.setCount(page, size)
		return sum
	}

	if total <= l.branchCap {
		sum := write(lPage, 0, total)
		l.setRank(parent, left, sum)
		t.Space.ReleasePage(rRef)
		t.removeChildSlots(parent, left+1, left+2)
		return true
	}

	sizes := evenSizes(total, l.branchCap)
	newL := sizes[0]
	// the scratch slices hold every child, so the two pages can be
	// written in either order
	sumL := write(lPage, 0, newL)
	sumR := write(rPage, newL, total-newL)
	l.setRank(parent, left, sumL)
	l.setRank(parent, left+1, sumR)
	l.setSep(parent, left, leads[newL])
	return false
}
