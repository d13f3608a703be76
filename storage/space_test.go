package storage

import (
	"testing"
)

func TestPageAllocation(t *testing.T) {
	s := NewSpace(DefaultPageBits)
	a := s.AcquirePage()
	b := s.AcquirePage()
	if a == 0 || b == 0 || a == b {
		t.Fatalf("bad refs %d %d", a, b)
	}
	page := s.Page(a)
	page[0] = 42
	s.ReleasePage(a)
	c := s.AcquirePage()
	if c != a {
		t.Fatalf("free list not reused: got %d, want %d", c, a)
	}
	if s.Page(c)[0] != 0 {
		t.Fatal("reacquired page not zeroed")
	}
}

func TestBlobArena(t *testing.T) {
	s := NewSpace(DefaultPageBits)
	h := s.AllocBlob(100)
	if s.BlobBits(h) != 100 {
		t.Fatalf("bits: %d", s.BlobBits(h))
	}
	WriteBits(s.BlobPayload(h), 0, 64, 0xABCD)
	s.FreeBlob(h)
	h2 := s.AllocBlob(10)
	if h2 != h {
		t.Fatalf("handle not recycled: %d vs %d", h2, h)
	}
	if ReadBits(s.BlobPayload(h2), 0, 10) != 0 {
		t.Fatal("recycled blob not zeroed")
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSpace(dir, DefaultPageBits)
	if err != nil {
		t.Fatal(err)
	}
	ref := s.AcquirePage()
	s.Page(ref)[1] = 7
	h := s.AllocBlob(64)
	WriteBits(s.BlobPayload(h), 0, 64, 123)
	s.Super().BlobsRoot = ref
	s.CreateSymbol()
	s.CreateSymbol()
	if err := s.Unload(); err != nil {
		t.Fatal(err)
	}

	s2, err := LoadSpace(dir, DefaultPageBits)
	if err != nil {
		t.Fatal(err)
	}
	if s2.Super().BlobsRoot != ref {
		t.Fatalf("root lost: %d", s2.Super().BlobsRoot)
	}
	if s2.Page(ref)[1] != 7 {
		t.Fatal("page content lost")
	}
	if s2.BlobBits(h) != 64 || ReadBits(s2.BlobPayload(h), 0, 64) != 123 {
		t.Fatal("blob content lost")
	}
	if s2.Super().SymbolCount != 2 {
		t.Fatalf("symbol counter lost: %d", s2.Super().SymbolCount)
	}

	// page size is baked in
	if _, err := LoadSpace(dir, 14); err == nil {
		t.Fatal("expected page size mismatch error")
	}
}

func TestIndependentSpaces(t *testing.T) {
	a := NewSpace(DefaultPageBits)
	b := NewSpace(DefaultPageBits)
	a.CreateSymbol()
	if b.Super().SymbolCount != 0 {
		t.Fatal("spaces share state")
	}
}
