package blobs

import (
	"bytes"
	"testing"

	"github.com/reusee/sym/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewSpace(storage.DefaultPageBits))
}

func TestSetSize(t *testing.T) {
	s := newTestStore(t)
	sym := s.CreateSymbol()
	if s.GetSize(sym) != 0 {
		t.Fatal("fresh symbol has a blob")
	}
	s.SetSize(sym, 128, 0)
	if s.GetSize(sym) != 128 {
		t.Fatalf("size %d", s.GetSize(sym))
	}
	if s.ReadBitsAt(sym, 0, 64) != 0 || s.ReadBitsAt(sym, 64, 64) != 0 {
		t.Fatal("fresh blob not zeroed")
	}
	s.WriteBitsAt(sym, 0, 64, 0xAAAA)
	s.WriteBitsAt(sym, 64, 64, 0xBBBB)

	// growing preserves the requested prefix, new tail reads zero
	s.SetSize(sym, 256, 256)
	if s.ReadBitsAt(sym, 0, 64) != 0xAAAA || s.ReadBitsAt(sym, 64, 64) != 0xBBBB {
		t.Fatal("content lost on grow")
	}
	if s.ReadBitsAt(sym, 128, 64) != 0 {
		t.Fatal("grown tail not zeroed")
	}

	// shrinking with a smaller preserve drops content
	s.SetSize(sym, 64, 0)
	if s.ReadBitsAt(sym, 0, 64) != 0 {
		t.Fatal("preserve 0 kept content")
	}

	s.SetSize(sym, 0, 0)
	if s.GetSize(sym) != 0 {
		t.Fatal("blob survived size 0")
	}
}

func TestReadWriteBytes(t *testing.T) {
	s := newTestStore(t)
	sym := s.CreateSymbol()
	data := []byte("hello, blob")
	s.WriteBytes(sym, data)
	if s.GetSize(sym) != uint64(len(data))*8 {
		t.Fatalf("size %d", s.GetSize(sym))
	}
	if !bytes.Equal(s.ReadBytes(sym), data) {
		t.Fatalf("got %q", s.ReadBytes(sym))
	}
}

func TestSliceClone(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateSymbol()
	b := s.CreateSymbol()
	s.WriteBytes(a, []byte{0x12, 0x34, 0x56})
	s.SetSize(b, 24, 0)
	if !s.Slice(b, a, 0, 8, 16) {
		t.Fatal("slice failed")
	}
	if s.ReadBitsAt(b, 0, 16) != 0x5634 {
		t.Fatalf("sliced %x", s.ReadBitsAt(b, 0, 16))
	}
	if s.Slice(b, a, 16, 0, 16) {
		t.Fatal("out of range slice succeeded")
	}

	c := s.CreateSymbol()
	s.Clone(c, a)
	if s.Compare(a, c) != 0 {
		t.Fatal("clone differs")
	}
}

func TestEraseInsertRange(t *testing.T) {
	s := newTestStore(t)
	sym := s.CreateSymbol()
	s.WriteBytes(sym, []byte{0xAA, 0xBB, 0xCC, 0xDD})

	if !s.EraseRange(sym, 8, 24) {
		t.Fatal("erase failed")
	}
	if s.GetSize(sym) != 16 {
		t.Fatalf("size %d", s.GetSize(sym))
	}
	if got := s.ReadBytes(sym); !bytes.Equal(got, []byte{0xAA, 0xDD}) {
		t.Fatalf("got %x", got)
	}

	if !s.IncreaseSize(sym, 8, 8) {
		t.Fatal("increase failed")
	}
	s.WriteBitsAt(sym, 8, 8, 0xEE)
	if got := s.ReadBytes(sym); !bytes.Equal(got, []byte{0xAA, 0xEE, 0xDD}) {
		t.Fatalf("got %x", got)
	}

	src := s.CreateSymbol()
	s.WriteBytes(src, []byte{0x11, 0x22})
	if !s.InsertRange(sym, src, 8, 16) {
		t.Fatal("insert failed")
	}
	if got := s.ReadBytes(sym); !bytes.Equal(got, []byte{0xAA, 0x11, 0x22, 0xEE, 0xDD}) {
		t.Fatalf("got %x", got)
	}
	if s.InsertRange(sym, src, 0, 24) {
		t.Fatal("insert longer than the source succeeded")
	}

	// self-insertion reads the pre-gap content
	self := s.CreateSymbol()
	s.WriteBytes(self, []byte{0x0A, 0x0B})
	if !s.InsertRange(self, self, 8, 16) {
		t.Fatal("self insert failed")
	}
	if got := s.ReadBytes(self); !bytes.Equal(got, []byte{0x0A, 0x0A, 0x0B, 0x0B}) {
		t.Fatalf("got %x", got)
	}

	if s.EraseRange(sym, 32, 64) {
		t.Fatal("out of range erase succeeded")
	}
}

func TestCompare(t *testing.T) {
	s := newTestStore(t)
	mk := func(data []byte) storage.Symbol {
		sym := s.CreateSymbol()
		s.WriteBytes(sym, data)
		return sym
	}
	short := mk([]byte{0xFF})
	long := mk([]byte{0x00, 0x00})
	a := mk([]byte{0x01, 0x02})
	b := mk([]byte{0x02, 0x01})
	equal := mk([]byte{0x01, 0x02})
	empty := s.CreateSymbol()

	tests := []struct {
		x, y storage.Symbol
		want int
	}{
		{short, long, -1}, // length first
		{a, b, -1},
		{a, equal, 0},
		{empty, empty, 0},
		{empty, short, -1},
	}
	for _, test := range tests {
		if got := s.Compare(test.x, test.y); got != test.want {
			t.Fatalf("compare(%d, %d) = %d, want %d", test.x, test.y, got, test.want)
		}
		if got := s.Compare(test.y, test.x); got != -test.want {
			t.Fatalf("compare is not antisymmetric for (%d, %d)", test.x, test.y)
		}
	}
}

func TestVector(t *testing.T) {
	s := newTestStore(t)
	v := Vector{Store: s, Symbol: s.CreateSymbol(), ElemBits: 64}
	v.Push(10)
	v.Push(30)
	v.Insert(1, 20)
	if v.Count() != 3 {
		t.Fatalf("count %d", v.Count())
	}
	for i, want := range []uint64{10, 20, 30} {
		if v.Get(uint64(i)) != want {
			t.Fatalf("at %d: %d", i, v.Get(uint64(i)))
		}
	}
	if v.Pop() != 30 {
		t.Fatal("pop")
	}
	v.Erase(0)
	if v.Count() != 1 || v.Get(0) != 20 {
		t.Fatal("erase")
	}
}
