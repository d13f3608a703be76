package bptree

import (
	"iter"

	"github.com/reusee/sym/storage"
)

// Tree is a paged B+tree rooted in a space. The zero root is the empty
// tree, so trees can be stored by root reference and reconstituted
// cheaply. Mutations may change Root; owners that persist the root must
// read it back after every mutating call.
type Tree struct {
	Space  *storage.Space
	Layout *Layout
	Root   storage.PageRef
}

func (t *Tree) Empty() bool {
	return t.Root == 0
}

// Count reports the element count. With ranks enabled this is the
// root's integrated rank; without ranks it walks the leaf layer.
func (t *Tree) Count() uint64 {
	if t.Root == 0 {
		return 0
	}
	if t.Layout.ranked() {
		return t.Layout.integratedRank(t.Space.Page(t.Root))
	}
	var it Iterator
	if !t.FindFirst(&it) {
		return 0
	}
	count := uint64(t.Layout.count(t.Space.Page(it.frames[0].ref)) - it.frames[0].index)
	for it.nextLeaf(nil) {
		count += uint64(t.Layout.count(t.Space.Page(it.frames[0].ref)))
	}
	return count
}

type iterFrame struct {
	ref   storage.PageRef
	index int
}

// Iterator addresses one leaf slot through the page path that leads to
// it. frames[0] is the leaf, the last frame is the root.
type Iterator struct {
	tree   *Tree
	frames []iterFrame
}

func (it *Iterator) Valid() bool {
	if len(it.frames) == 0 {
		return false
	}
	leaf := it.frames[0]
	return leaf.index < it.tree.Layout.count(it.tree.Space.Page(leaf.ref))
}

func (it *Iterator) Key() uint64 {
	leaf := it.frames[0]
	return it.tree.Layout.leafKey(it.tree.Space.Page(leaf.ref), leaf.index)
}

func (it *Iterator) Value() uint64 {
	leaf := it.frames[0]
	return it.tree.Layout.leafValue(it.tree.Space.Page(leaf.ref), leaf.index)
}

func (it *Iterator) SetValue(v uint64) {
	leaf := it.frames[0]
	it.tree.Layout.setLeafValue(it.tree.Space.Page(leaf.ref), leaf.index, v)
}

func (t *Tree) reset(it *Iterator) {
	it.tree = t
	it.frames = it.frames[:0]
}

// descend pushes the path from ref down to a leaf, choosing the child
// by pick at every branch. Frames are appended root-first into a
// scratch slice and reversed so frames[0] is the leaf.
func (t *Tree) descend(it *Iterator, pick func(p []uint64) int) {
	l := t.Layout
	ref := t.Root
	var path []iterFrame
	for {
		page := t.Space.Page(ref)
		if l.layer(page) == 0 {
			path = append(path, iterFrame{ref: ref})
			break
		}
		child := pick(page)
		path = append(path, iterFrame{ref: ref, index: child})
		ref = l.ref(page, child)
	}
	for i := len(path) - 1; i >= 0; i-- {
		it.frames = append(it.frames, path[i])
	}
}

// FindFirst positions at the smallest element. Returns false on the
// empty tree.
func (t *Tree) FindFirst(it *Iterator) bool {
	t.reset(it)
	if t.Root == 0 {
		return false
	}
	t.descend(it, func(p []uint64) int { return 0 })
	return true
}

// FindLast positions at the greatest element.
func (t *Tree) FindLast(it *Iterator) bool {
	t.reset(it)
	if t.Root == 0 {
		return false
	}
	l := t.Layout
	t.descend(it, func(p []uint64) int { return l.count(p) - 1 })
	leaf := &it.frames[0]
	leaf.index = l.count(t.Space.Page(leaf.ref)) - 1
	return true
}

// pickByKey selects the child whose subtree covers key.
func (l *Layout) pickByKey(p []uint64, key uint64) int {
	lo, hi := 0, l.count(p)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if l.sep(p, mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindKey positions at the first slot whose key is >= key and reports
// whether it is an exact match. The iterator may end up one past the
// last slot of the covering leaf; that position is the insertion point.
func (t *Tree) FindKey(it *Iterator, key uint64) bool {
	t.reset(it)
	if t.Root == 0 {
		return false
	}
	l := t.Layout
	t.descend(it, func(p []uint64) int { return l.pickByKey(p, key) })
	leaf := &it.frames[0]
	page := t.Space.Page(leaf.ref)
	lo, hi := 0, l.count(page)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.leafKey(page, mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	leaf.index = lo
	return lo < l.count(page) && l.leafKey(page, lo) == key
}

// FindRank positions at the element with the given ordinal. Only valid
// with ranks enabled. Returns false when rank is out of range.
func (t *Tree) FindRank(it *Iterator, rank uint64) bool {
	t.reset(it)
	if t.Root == 0 {
		return false
	}
	l := t.Layout
	if rank >= l.integratedRank(t.Space.Page(t.Root)) {
		return false
	}
	t.descend(it, func(p []uint64) int {
		for i := range l.count(p) {
			r := l.rank(p, i)
			if rank < r {
				return i
			}
			rank -= r
		}
		return l.count(p) - 1
	})
	it.frames[0].index = int(rank)
	return true
}

// nextLeaf moves to slot 0 of the following leaf, touching every page
// entered on the way down. Returns false at the end of the tree.
func (it *Iterator) nextLeaf(touch func(p []uint64)) bool {
	t := it.tree
	l := t.Layout
	layer := 1
	for ; layer < len(it.frames); layer++ {
		frame := &it.frames[layer]
		if frame.index+1 < l.count(t.Space.Page(frame.ref)) {
			break
		}
	}
	if layer >= len(it.frames) {
		return false
	}
	it.frames[layer].index++
	for layer > 0 {
		parent := it.frames[layer]
		ref := l.ref(t.Space.Page(parent.ref), parent.index)
		layer--
		it.frames[layer] = iterFrame{ref: ref}
		if touch != nil {
			touch(t.Space.Page(ref))
		}
	}
	return true
}

// prevLeaf is nextLeaf's mirror, positioning at the last slot.
func (it *Iterator) prevLeaf(touch func(p []uint64)) bool {
	t := it.tree
	l := t.Layout
	layer := 1
	for ; layer < len(it.frames); layer++ {
		if it.frames[layer].index > 0 {
			break
		}
	}
	if layer >= len(it.frames) {
		return false
	}
	it.frames[layer].index--
	for layer > 0 {
		parent := it.frames[layer]
		ref := l.ref(t.Space.Page(parent.ref), parent.index)
		page := t.Space.Page(ref)
		layer--
		it.frames[layer] = iterFrame{ref: ref, index: l.count(page) - 1}
		if touch != nil {
			touch(page)
		}
	}
	return true
}

// Advance moves by steps leaf slots, forward for positive steps and
// backward for negative ones, invoking touch on each newly entered
// page. The return value is the number of steps left over when the
// tree ran out.
func (it *Iterator) Advance(steps int, touch func(p []uint64)) int {
	t := it.tree
	l := t.Layout
	for steps > 0 {
		leaf := &it.frames[0]
		count := l.count(t.Space.Page(leaf.ref))
		room := count - 1 - leaf.index
		if room >= steps {
			leaf.index += steps
			return 0
		}
		steps -= room + 1
		if !it.nextLeaf(touch) {
			it.frames[0].index = count
			return steps + 1
		}
	}
	for steps < 0 {
		leaf := &it.frames[0]
		if leaf.index+steps >= 0 {
			leaf.index += steps
			return 0
		}
		steps += leaf.index + 1
		if !it.prevLeaf(touch) {
			it.frames[0].index = 0
			return steps - 1
		}
	}
	return 0
}

// All iterates every element in key order.
func (t *Tree) All() iter.Seq2[uint64, uint64] {
	return func(yield func(uint64, uint64) bool) {
		var it Iterator
		if !t.FindFirst(&it) {
			return
		}
		l := t.Layout
		for {
			leaf := it.frames[0]
			page := t.Space.Page(leaf.ref)
			for i := leaf.index; i < l.count(page); i++ {
				if !yield(l.leafKey(page, i), l.leafValue(page, i)) {
					return
				}
			}
			if !it.nextLeaf(nil) {
				return
			}
		}
	}
}

// leftmostKey is the smallest key in the subtree under ref.
func (t *Tree) leftmostKey(ref storage.PageRef) uint64 {
	l := t.Layout
	page := t.Space.Page(ref)
	for l.layer(page) > 0 {
		page = t.Space.Page(l.ref(page, 0))
	}
	return l.leafKey(page, 0)
}
