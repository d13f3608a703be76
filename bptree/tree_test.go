package bptree

import (
	"math/rand"
	"testing"

	"github.com/reusee/sym/storage"
)

func newTestTree(t *testing.T, keyBits, valueBits, rankBits uint64) *Tree {
	t.Helper()
	space := storage.NewSpace(storage.DefaultPageBits)
	return &Tree{
		Space:  space,
		Layout: NewLayout(space, keyBits, valueBits, rankBits),
	}
}

// checkInvariants walks the whole tree: every non-root page at least
// half full, all leaves on layer 0 at the same depth, keys sorted,
// separators equal to the smallest key of their subtree, rank slots
// equal to the subtree element counts.
func checkInvariants(t *testing.T, tr *Tree) {
	t.Helper()
	if tr.Root == 0 {
		return
	}
	l := tr.Layout
	var leafDepth = -1
	var walk func(ref storage.PageRef, depth int, isRoot bool) (count uint64, minKey uint64)
	walk = func(ref storage.PageRef, depth int, isRoot bool) (uint64, uint64) {
		page := tr.Space.Page(ref)
		c := l.count(page)
		if c == 0 && !isRoot {
			t.Fatal("empty non-root page")
		}
		if l.layer(page) == 0 {
			if leafDepth == -1 {
				leafDepth = depth
			} else if leafDepth != depth {
				t.Fatalf("leaf depth %d, want %d", depth, leafDepth)
			}
			if !isRoot && c < l.leafCap/2 {
				t.Fatalf("underfull leaf: %d of %d", c, l.leafCap)
			}
			for i := 1; i < c; i++ {
				if l.leafKey(page, i-1) >= l.leafKey(page, i) {
					t.Fatal("leaf keys not sorted")
				}
			}
			return uint64(c), l.leafKey(page, 0)
		}
		if !isRoot && c < l.branchCap/2 {
			t.Fatalf("underfull branch: %d of %d", c, l.branchCap)
		}
		var total uint64
		var minKey uint64
		for i := range c {
			subCount, subMin := walk(l.ref(page, i), depth+1, false)
			if l.ranked() && l.rank(page, i) != subCount {
				t.Fatalf("rank slot %d is %d, want %d", i, l.rank(page, i), subCount)
			}
			if i == 0 {
				minKey = subMin
			} else {
				if l.sep(page, i-1) != subMin {
					t.Fatalf("separator %d is %d, want %d", i-1, l.sep(page, i-1), subMin)
				}
				if subMin <= minKey {
					t.Fatal("children out of order")
				}
			}
			total += subCount
		}
		return total, minKey
	}
	walk(tr.Root, 0, true)
}

func collect(tr *Tree) []uint64 {
	var keys []uint64
	for key := range tr.All() {
		keys = append(keys, key)
	}
	return keys
}

func TestInsertIterateSorted(t *testing.T) {
	tr := newTestTree(t, 64, 64, 0)
	perm := rand.New(rand.NewSource(1)).Perm(5000)
	for _, k := range perm {
		if !tr.InsertOne(uint64(k), uint64(k)*3) {
			t.Fatalf("insert %d failed", k)
		}
	}
	if tr.InsertOne(42, 0) {
		t.Fatal("duplicate insert succeeded")
	}
	checkInvariants(t, tr)
	keys := collect(tr)
	if len(keys) != 5000 {
		t.Fatalf("count %d", len(keys))
	}
	for i, k := range keys {
		if k != uint64(i) {
			t.Fatalf("key %d at %d", k, i)
		}
	}
	var it Iterator
	if !tr.FindKey(&it, 1234) {
		t.Fatal("lookup failed")
	}
	if it.Value() != 1234*3 {
		t.Fatalf("value %d", it.Value())
	}
}

func TestRankedEraseOdds(t *testing.T) {
	tr := newTestTree(t, 64, 0, 64)
	for k := range uint64(10000) {
		tr.InsertOne(k, 0)
	}
	if tr.Count() != 10000 {
		t.Fatalf("count %d", tr.Count())
	}
	for k := uint64(1); k < 10000; k += 2 {
		if !tr.EraseKey(k) {
			t.Fatalf("erase %d failed", k)
		}
	}
	checkInvariants(t, tr)
	if tr.Count() != 5000 {
		t.Fatalf("count %d", tr.Count())
	}
	keys := collect(tr)
	for i, k := range keys {
		if k != uint64(i*2) {
			t.Fatalf("key %d at %d", k, i)
		}
	}
	var it Iterator
	if !tr.FindRank(&it, 2500) {
		t.Fatal("rank lookup failed")
	}
	if it.Key() != 5000 {
		t.Fatalf("rank 2500 is key %d", it.Key())
	}
	if tr.FindRank(&it, 5000) {
		t.Fatal("out of range rank")
	}
}

func TestEraseKeyRange(t *testing.T) {
	tr := newTestTree(t, 64, 0, 64)
	for k := range uint64(2000) {
		tr.InsertOne(k, 0)
	}
	removed := tr.EraseKeyRange(100, 1499)
	if removed != 1400 {
		t.Fatalf("removed %d", removed)
	}
	checkInvariants(t, tr)
	keys := collect(tr)
	if len(keys) != 600 {
		t.Fatalf("left %d", len(keys))
	}
	for _, k := range keys {
		if k >= 100 && k <= 1499 {
			t.Fatalf("key %d survived", k)
		}
	}
	tr.EraseKeyRange(0, 1<<63)
	if tr.Root != 0 {
		t.Fatal("tree not empty")
	}
}

func TestEraseRandom(t *testing.T) {
	tr := newTestTree(t, 64, 64, 64)
	r := rand.New(rand.NewSource(7))
	present := make(map[uint64]bool)
	for range 3000 {
		k := uint64(r.Intn(800))
		if present[k] {
			if !tr.EraseKey(k) {
				t.Fatalf("erase %d failed", k)
			}
			present[k] = false
		} else {
			if !tr.InsertOne(k, k) {
				t.Fatalf("insert %d failed", k)
			}
			present[k] = true
		}
	}
	checkInvariants(t, tr)
	var want []uint64
	for k := range uint64(800) {
		if present[k] {
			want = append(want, k)
		}
	}
	got := collect(tr)
	if len(got) != len(want) {
		t.Fatalf("count %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("at %d: %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFindFirstLastAdvance(t *testing.T) {
	tr := newTestTree(t, 64, 64, 0)
	var it Iterator
	if tr.FindFirst(&it) {
		t.Fatal("first on empty tree")
	}
	for k := range uint64(500) {
		tr.InsertOne(k*2, 0)
	}
	if !tr.FindFirst(&it) || it.Key() != 0 {
		t.Fatal("first")
	}
	if rest := it.Advance(499, nil); rest != 0 || it.Key() != 998 {
		t.Fatalf("advance: rest %d key %d", rest, it.Key())
	}
	if rest := it.Advance(10, nil); rest == 0 {
		t.Fatal("advance past end must report leftover steps")
	}
	if !tr.FindLast(&it) || it.Key() != 998 {
		t.Fatal("last")
	}
	if rest := it.Advance(-499, nil); rest != 0 || it.Key() != 0 {
		t.Fatalf("backward: rest %d key %d", rest, it.Key())
	}
	var touched int
	tr.FindFirst(&it)
	it.Advance(499, func(p []uint64) { touched++ })
	if touched == 0 {
		t.Fatal("touch not invoked")
	}
}

func TestBulkInsert(t *testing.T) {
	tr := newTestTree(t, 64, 64, 64)
	var it Iterator
	tr.FindKey(&it, 0)
	next := uint64(0)
	tr.Insert(&it, 300, func(p []uint64, begin, end int) {
		for i := begin; i < end; i++ {
			tr.Layout.ProduceKeyValue(p, i, next, next)
			next++
		}
	})
	checkInvariants(t, tr)
	if tr.Count() != 300 {
		t.Fatalf("count %d", tr.Count())
	}
	// bulk insert into the middle
	tr2 := newTestTree(t, 64, 64, 64)
	tr2.InsertOne(0, 0)
	tr2.InsertOne(1000, 0)
	var it2 Iterator
	tr2.FindKey(&it2, 1)
	k := uint64(1)
	tr2.Insert(&it2, 500, func(p []uint64, begin, end int) {
		for i := begin; i < end; i++ {
			tr2.Layout.ProduceKeyValue(p, i, k, 0)
			k++
		}
	})
	checkInvariants(t, tr2)
	keys := collect(tr2)
	if len(keys) != 502 {
		t.Fatalf("count %d", len(keys))
	}
	if keys[0] != 0 || keys[501] != 1000 || keys[500] != 500 {
		t.Fatalf("order broken: %d %d %d", keys[0], keys[500], keys[501])
	}
}

func TestSetLayouts(t *testing.T) {
	// the three layout families the engine uses
	for _, widths := range [][3]uint64{
		{64, 64, 0}, // symbol -> offset
		{64, 0, 0},  // plain ordered set
		{64, 0, 64}, // ranked ordered set
	} {
		tr := newTestTree(t, widths[0], widths[1], widths[2])
		for k := range uint64(1000) {
			tr.InsertOne(k*7%1000, k)
		}
		checkInvariants(t, tr)
		keys := collect(tr)
		if len(keys) != 1000 {
			t.Fatalf("widths %v: count %d", widths, len(keys))
		}
	}
}
