package blobs

import (
	"encoding/binary"

	"github.com/reusee/sym/bptree"
	"github.com/reusee/sym/storage"
)

// Store maps symbols to bit blobs. The mapping itself is a B+tree from
// symbol to arena handle; payloads live in the space's blob arena with
// their bit length in the prefix word.
type Store struct {
	Space  *storage.Space
	layout *bptree.Layout
}

func NewStore(space *storage.Space) *Store {
	return &Store{
		Space:  space,
		layout: bptree.NewLayout(space, 64, 64, 0),
	}
}

func (s *Store) tree() bptree.Tree {
	return bptree.Tree{
		Space:  s.Space,
		Layout: s.layout,
		Root:   s.Space.Super().BlobsRoot,
	}
}

func (s *Store) CreateSymbol() storage.Symbol {
	return s.Space.CreateSymbol()
}

// ReleaseSymbol frees the symbol's blob. The symbol number itself is
// not recycled.
func (s *Store) ReleaseSymbol(sym storage.Symbol) {
	s.SetSize(sym, 0, 0)
}

func (s *Store) handle(sym storage.Symbol) uint64 {
	t := s.tree()
	var it bptree.Iterator
	if !t.FindKey(&it, uint64(sym)) {
		return 0
	}
	return it.Value()
}

// GetSize reports the blob length in bits, 0 for symbols without one.
func (s *Store) GetSize(sym storage.Symbol) uint64 {
	h := s.handle(sym)
	if h == 0 {
		return 0
	}
	return s.Space.BlobBits(h)
}

// SetSize resizes the blob, keeping up to preserve bits of the old
// content. Freshly grown tail bits read as zero. Size 0 drops the blob
// entirely.
func (s *Store) SetSize(sym storage.Symbol, bits, preserve uint64) {
	t := s.tree()
	var it bptree.Iterator
	found := t.FindKey(&it, uint64(sym))
	var oldHandle, oldBits uint64
	if found {
		oldHandle = it.Value()
		oldBits = s.Space.BlobBits(oldHandle)
	}
	if found && oldBits == bits {
		return
	}
	if bits == 0 {
		if found {
			s.Space.FreeBlob(oldHandle)
			t.Erase(&it)
			s.Space.Super().BlobsRoot = t.Root
		}
		return
	}
	newHandle := s.Space.AllocBlob(bits)
	if found {
		n := min(oldBits, bits, preserve)
		if n > 0 {
			storage.CopyBits(
				s.Space.BlobPayload(newHandle), s.Space.BlobPayload(oldHandle),
				0, 0, n)
		}
		s.Space.FreeBlob(oldHandle)
		it.SetValue(newHandle)
		return
	}
	t.Insert(&it, 1, func(p []uint64, begin, end int) {
		s.layout.ProduceKeyValue(p, begin, uint64(sym), newHandle)
	})
	s.Space.Super().BlobsRoot = t.Root
}

// SetSizePreserving resizes while keeping all surviving content.
func (s *Store) SetSizePreserving(sym storage.Symbol, bits uint64) {
	s.SetSize(sym, bits, bits)
}

// ReadBitsAt reads n bits (max 64) at the given bit offset. Reading
// outside the blob is a programming error.
func (s *Store) ReadBitsAt(sym storage.Symbol, off, n uint64) uint64 {
	h := s.handle(sym)
	if h == 0 || off+n > s.Space.BlobBits(h) {
		panic("blob read out of range")
	}
	return storage.ReadBits(s.Space.BlobPayload(h), off, n)
}

// WriteBitsAt writes n bits (max 64) at the given bit offset.
func (s *Store) WriteBitsAt(sym storage.Symbol, off, n, value uint64) {
	h := s.handle(sym)
	if h == 0 || off+n > s.Space.BlobBits(h) {
		panic("blob write out of range")
	}
	storage.WriteBits(s.Space.BlobPayload(h), off, n, value)
}

// ReadBytes copies the blob out as bytes, ceil(bits/8) long.
func (s *Store) ReadBytes(sym storage.Symbol) []byte {
	h := s.handle(sym)
	if h == 0 {
		return nil
	}
	bits := s.Space.BlobBits(h)
	payload := s.Space.BlobPayload(h)
	buf := make([]byte, (bits+63)/64*8)
	for i, w := range payload {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return buf[:(bits+7)/8]
}

// WriteBytes replaces the blob content with the given bytes.
func (s *Store) WriteBytes(sym storage.Symbol, data []byte) {
	s.SetSize(sym, uint64(len(data))*8, 0)
	for i, b := range data {
		s.WriteBitsAt(sym, uint64(i)*8, 8, uint64(b))
	}
}

// Slice copies length bits between two blobs, reporting false when a
// range is out of bounds.
func (s *Store) Slice(dst, src storage.Symbol, dstOff, srcOff, length uint64) bool {
	if length == 0 {
		return false
	}
	dstSize := s.GetSize(dst)
	srcSize := s.GetSize(src)
	if dstOff+length < dstOff || dstOff+length > dstSize {
		return false
	}
	if srcOff+length < srcOff || srcOff+length > srcSize {
		return false
	}
	storage.CopyBits(
		s.Space.BlobPayload(s.handle(dst)), s.Space.BlobPayload(s.handle(src)),
		dstOff, srcOff, length)
	return true
}

// Clone makes dst an exact copy of src's blob.
func (s *Store) Clone(dst, src storage.Symbol) {
	if dst == src {
		return
	}
	size := s.GetSize(src)
	s.SetSize(dst, size, 0)
	if size > 0 {
		storage.CopyBits(
			s.Space.BlobPayload(s.handle(dst)), s.Space.BlobPayload(s.handle(src)),
			0, 0, size)
	}
}

// EraseRange removes the bits [begin, end), closing the gap.
func (s *Store) EraseRange(sym storage.Symbol, begin, end uint64) bool {
	size := s.GetSize(sym)
	if begin >= end || end > size {
		return false
	}
	if rest := size - end; rest > 0 {
		payload := s.Space.BlobPayload(s.handle(sym))
		storage.CopyBits(payload, payload, begin, end, rest)
	}
	s.SetSizePreserving(sym, begin+size-end)
	return true
}

// IncreaseSize opens a zeroed gap of length bits at begin.
func (s *Store) IncreaseSize(sym storage.Symbol, begin, length uint64) bool {
	if length == 0 {
		return false
	}
	size := s.GetSize(sym)
	if begin > size || size+length < size {
		return false
	}
	s.SetSizePreserving(sym, size+length)
	payload := s.Space.BlobPayload(s.handle(sym))
	if rest := size - begin; rest > 0 {
		storage.CopyBits(payload, payload, begin+length, begin, rest)
	}
	storage.ZeroBits(payload, begin, length)
	return true
}

// InsertRange opens a gap of length bits at begin in dst and fills it
// with the leading length bits of src's blob.
func (s *Store) InsertRange(dst, src storage.Symbol, begin, length uint64) bool {
	if length == 0 || s.GetSize(src) < length {
		return false
	}
	if dst == src {
		// snapshot before the gap shifts the source bits
		scratch := make([]uint64, (length+63)/64+1)
		storage.CopyBits(scratch, s.Space.BlobPayload(s.handle(src)), 0, 0, length)
		if !s.IncreaseSize(dst, begin, length) {
			return false
		}
		storage.CopyBits(s.Space.BlobPayload(s.handle(dst)), scratch, begin, 0, length)
		return true
	}
	if !s.IncreaseSize(dst, begin, length) {
		return false
	}
	storage.CopyBits(
		s.Space.BlobPayload(s.handle(dst)), s.Space.BlobPayload(s.handle(src)),
		begin, 0, length)
	return true
}

// Compare orders blobs by length first, then content in bit-string
// significance order. The result is a total order; equal blobs
// compare 0.
func (s *Store) Compare(a, b storage.Symbol) int {
	if a == b {
		return 0
	}
	sizeA := s.GetSize(a)
	sizeB := s.GetSize(b)
	if sizeA < sizeB {
		return -1
	}
	if sizeA > sizeB {
		return 1
	}
	if sizeA == 0 {
		return 0
	}
	return storage.CompareBits(
		s.Space.BlobPayload(s.handle(a)), s.Space.BlobPayload(s.handle(b)),
		0, 0, sizeA)
}
