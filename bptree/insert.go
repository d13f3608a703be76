package bptree

import (
	"github.com/reusee/sym/storage"
)

// childInfo describes one page of a layer after a structural change:
// its reference, the smallest key of its subtree (meaningful for every
// page but the first, which keeps its position and therefore its
// separator in the parent), and its subtree element count.
type childInfo struct {
	ref     storage.PageRef
	leadKey uint64
	count   uint64
}

type leafRegion struct {
	ref        storage.PageRef
	begin, end int
}

// evenSizes distributes total elements over ceil(total/capacity)
// pages so every page ends up at least half full.
func evenSizes(total, capacity int) []int {
	pages := (total + capacity - 1) / capacity
	base := total / pages
	rem := total % pages
	sizes := make([]int, pages)
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}

// Insert opens n consecutive slots at the iterator position and hands
// each freshly acquired leaf region to produce, which must write the
// keys (and values) so that the tree stays sorted. The iterator must
// come from a Find call on this tree and is invalid afterwards.
func (t *Tree) Insert(it *Iterator, n int, produce func(p []uint64, begin, end int)) {
	if n <= 0 {
		return
	}
	l := t.Layout

	if t.Root == 0 {
		infos, regions := t.buildLeaves(n)
		for _, r := range regions {
			produce(t.Space.Page(r.ref), r.begin, r.end)
		}
		for i := 1; i < len(infos); i++ {
			infos[i].leadKey = l.leafKey(t.Space.Page(infos[i].ref), 0)
		}
		t.finishLayers(infos, 1)
		return
	}

	leaf := it.frames[0]
	infos, regions := t.splitLeafInsert(leaf.ref, leaf.index, n)
	for _, r := range regions {
		produce(t.Space.Page(r.ref), r.begin, r.end)
	}
	for i := 1; i < len(infos); i++ {
		infos[i].leadKey = l.leafKey(t.Space.Page(infos[i].ref), 0)
	}

	for layer := 1; layer < len(it.frames); layer++ {
		frame := it.frames[layer]
		if len(infos) > 1 {
			infos = t.insertChildren(frame.ref, frame.index, infos)
		} else {
			page := t.Space.Page(frame.ref)
			if l.ranked() {
				l.setRank(page, frame.index, l.rank(page, frame.index)+uint64(n))
			}
			infos = []childInfo{{ref: frame.ref, count: l.integratedRank(page)}}
		}
	}
	t.finishLayers(infos, l.layer(t.Space.Page(infos[0].ref))+1)
}

// InsertOne inserts a single key/value pair, reporting false when the
// key is already present.
func (t *Tree) InsertOne(key, value uint64) bool {
	var it Iterator
	if t.FindKey(&it, key) {
		return false
	}
	l := t.Layout
	t.Insert(&it, 1, func(p []uint64, begin, end int) {
		l.setLeafKey(p, begin, key)
		l.setLeafValue(p, begin, value)
	})
	return true
}

// buildLeaves creates the leaf layer of a previously empty tree.
func (t *Tree) buildLeaves(n int) ([]childInfo, []leafRegion) {
	l := t.Layout
	sizes := evenSizes(n, l.leafCap)
	infos := make([]childInfo, 0, len(sizes))
	regions := make([]leafRegion, 0, len(sizes))
	for _, size := range sizes {
		ref := t.Space.AcquirePage()
		page := t.Space.Page(ref)
		l.setCount(page, size)
		l.setLayer(page, 0)
		infos = append(infos, childInfo{ref: ref, count: uint64(size)})
		regions = append(regions, leafRegion{ref: ref, begin: 0, end: size})
	}
	return infos, regions
}

// splitLeafInsert opens a gap of n slots at index idx of a leaf,
// splitting into evenly filled pages when the leaf overflows. The
// original page keeps the head of the sequence.
func (t *Tree) splitLeafInsert(ref storage.PageRef, idx, n int) ([]childInfo, []leafRegion) {
	l := t.Layout
	page := t.Space.Page(ref)
	c := l.count(page)
	total := c + n

	if total <= l.leafCap {
		l.moveLeaf(page, idx+n, idx, c-idx)
		l.setCount(page, total)
		return []childInfo{{ref: ref, count: uint64(total)}},
			[]leafRegion{{ref: ref, begin: idx, end: idx + n}}
	}

	scratchK := make([]uint64, (uint64(total)*l.KeyBits+63)/64+1)
	var scratchV []uint64
	if l.ValueBits > 0 {
		scratchV = make([]uint64, (uint64(total)*l.ValueBits+63)/64+1)
	}
	copyOut := func(dstElem, srcElem, count int) {
		if count <= 0 {
			return
		}
		storage.CopyBits(scratchK, page,
			uint64(dstElem)*l.KeyBits, l.leafKeyOff+uint64(srcElem)*l.KeyBits,
			uint64(count)*l.KeyBits)
		if l.ValueBits > 0 {
			storage.CopyBits(scratchV, page,
				uint64(dstElem)*l.ValueBits, l.leafValOff+uint64(srcElem)*l.ValueBits,
				uint64(count)*l.ValueBits)
		}
	}
	copyOut(0, 0, idx)
	copyOut(idx+n, idx, c-idx)

	sizes := evenSizes(total, l.leafCap)
	infos := make([]childInfo, 0, len(sizes))
	var regions []leafRegion
	start := 0
	for i, size := range sizes {
		dst := ref
		if i > 0 {
			dst = t.Space.AcquirePage()
		}
		dstPage := t.Space.Page(dst)
		storage.CopyBits(dstPage, scratchK,
			l.leafKeyOff, uint64(start)*l.KeyBits, uint64(size)*l.KeyBits)
		if l.ValueBits > 0 {
			storage.CopyBits(dstPage, scratchV,
				l.leafValOff, uint64(start)*l.ValueBits, uint64(size)*l.ValueBits)
		}
		l.setCount(dstPage, size)
		l.setLayer(dstPage, 0)
		infos = append(infos, childInfo{ref: dst, count: uint64(size)})
		gapBegin := max(start, idx)
		gapEnd := min(start+size, idx+n)
		if gapBegin < gapEnd {
			regions = append(regions, leafRegion{
				ref:   dst,
				begin: gapBegin - start,
				end:   gapEnd - start,
			})
		}
		start += size
	}
	return infos, regions
}

// insertChildren replaces the child at index at of a branch page with
// the given page set, splitting the branch when it overflows.
func (t *Tree) insertChildren(ref storage.PageRef, at int, infos []childInfo) []childInfo {
	l := t.Layout
	page := t.Space.Page(ref)
	c := l.count(page)
	k := len(infos) - 1
	total := c + k

	if total <= l.branchCap {
		for i := c - 1; i > at; i-- {
			l.setRef(page, i+k, l.ref(page, i))
			l.setRank(page, i+k, l.rank(page, i))
		}
		for i := c - 2; i >= at; i-- {
			l.setSep(page, i+k, l.sep(page, i))
		}
		l.setRank(page, at, infos[0].count)
		for j := 1; j <= k; j++ {
			l.setRef(page, at+j, infos[j].ref)
			l.setRank(page, at+j, infos[j].count)
			l.setSep(page, at+j-1, infos[j].leadKey)
		}
		l.setCount(page, total)
		return []childInfo{{ref: ref, count: l.integratedRank(page)}}
	}

	// gather the combined child sequence, then redistribute
	refs := make([]storage.PageRef, 0, total)
	ranks := make([]uint64, 0, total)
	leads := make([]uint64, 0, total)
	appendOld := func(i int) {
		refs = append(refs, l.ref(page, i))
		ranks = append(ranks, l.rank(page, i))
		if i > 0 {
			leads = append(leads, l.sep(page, i-1))
		} else {
			leads = append(leads, 0)
		}
	}
	for i := range at {
		appendOld(i)
	}
	refs = append(refs, infos[0].ref)
	ranks = append(ranks, infos[0].count)
	if at > 0 {
		leads = append(leads, l.sep(page, at-1))
	} else {
		leads = append(leads, 0)
	}
	for _, info := range infos[1:] {
		refs = append(refs, info.ref)
		ranks = append(ranks, info.count)
		leads = append(leads, info.leadKey)
	}
	for i := at + 1; i < c; i++ {
		appendOld(i)
	}

	layer := l.layer(page)
	sizes := evenSizes(total, l.branchCap)
	out := make([]childInfo, 0, len(sizes))
	start := 0
	for i, size := range sizes {
		dst := ref
		if i > 0 {
			dst = t.Space.AcquirePage()
		}
		dstPage := t.Space.Page(dst)
		var sum uint64
		for j := range size {
			l.setRef(dstPage, j, refs[start+j])
			l.setRank(dstPage, j, ranks[start+j])
			if j > 0 {
				l.setSep(dstPage, j-1, leads[start+j])
			}
			sum += ranks[start+j]
		}
		l.setCount(dstPage, size)
		l.setLayer(dstPage, layer)
		out = append(out, childInfo{ref: dst, leadKey: leads[start], count: sum})
		start += size
	}
	return out
}

// finishLayers builds branch layers over infos until a single root
// remains and stores it.
func (t *Tree) finishLayers(infos []childInfo, layer int) {
	l := t.Layout
	for len(infos) > 1 {
		sizes := evenSizes(len(infos), l.branchCap)
		next := make([]childInfo, 0, len(sizes))
		start := 0
		for _, size := range sizes {
			ref := t.Space.AcquirePage()
			page := t.Space.Page(ref)
			var sum uint64
			for j := range size {
				info := infos[start+j]
				l.setRef(page, j, info.ref)
				l.setRank(page, j, info.count)
				if j > 0 {
					l.setSep(page, j-1, info.leadKey)
				}
				sum += info.count
			}
			l.setCount(page, size)
			l.setLayer(page, layer)
			next = append(next, childInfo{ref: ref, leadKey: infos[start].leadKey, count: sum})
			start += size
		}
		infos = next
		layer++
	}
	t.Root = infos[0].ref
}
