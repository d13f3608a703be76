package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Symbol is an opaque identifier. Symbols carry no meaning of their
// own; blobs and triples attached to them do.
type Symbol uint64

// PageRef addresses one fixed-size page. Ref 0 is never a valid page.
type PageRef uint64

const (
	// DefaultPageBits is log2 of the page size in bits: 8192-bit pages.
	DefaultPageBits = 13

	spaceFileName = "space.bin"
)

var spaceMagic = [8]byte{'s', 'y', 'm', 's', 'p', 'a', 'c', 'e'}

// SuperPage is the mutable header of a space. The page size is baked
// in when the space is first created; the index roots belong to the
// layers above but live here so one flush persists everything.
type SuperPage struct {
	SymbolCount Symbol
	FreePage    PageRef
	BlobsRoot   PageRef
	IndexRoots  [6]PageRef
}

// Space is one storage universe: a paged area for tree nodes plus a
// blob arena for payloads. It is not safe for concurrent use.
type Space struct {
	path         string
	bitsPerPage  uint64
	wordsPerPage uint64
	super        SuperPage
	pages        [][]uint64
	arena        [][]uint64
	freeHandles  []uint64
}

// NewSpace creates a memory-only space with 1<<pageBits bits per page.
func NewSpace(pageBits uint64) *Space {
	if pageBits == 0 {
		pageBits = DefaultPageBits
	}
	return &Space{
		bitsPerPage:  1 << pageBits,
		wordsPerPage: (1 << pageBits) / 64,
		pages:        make([][]uint64, 1),
	}
}

// LoadSpace opens the space persisted under dir, creating dir and an
// empty space if nothing is there yet. A page size mismatch between
// the file and pageBits is an error: the size is part of the format.
func LoadSpace(dir string, pageBits uint64) (*Space, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	s := NewSpace(pageBits)
	s.path = filepath.Join(dir, spaceFileName)
	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.decode(content); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return s, nil
}

// Super exposes the header for the layers that own roots in it.
func (s *Space) Super() *SuperPage {
	return &s.super
}

func (s *Space) BitsPerPage() uint64 {
	return s.bitsPerPage
}

// PageCount reports the number of pages ever acquired, free ones
// included.
func (s *Space) PageCount() uint64 {
	return uint64(len(s.pages) - 1)
}

// CreateSymbol hands out the next symbol. Released symbols are not
// recycled; the counter alone guarantees uniqueness.
func (s *Space) CreateSymbol() Symbol {
	sym := s.super.SymbolCount
	s.super.SymbolCount++
	return sym
}

// AcquirePage returns a zeroed page, reusing a freed one if possible.
func (s *Space) AcquirePage() PageRef {
	if ref := s.super.FreePage; ref != 0 {
		page := s.pages[ref]
		s.super.FreePage = PageRef(page[0])
		clear(page)
		return ref
	}
	s.pages = append(s.pages, make([]uint64, s.wordsPerPage))
	return PageRef(len(s.pages) - 1)
}

// ReleasePage puts a page on the free list.
func (s *Space) ReleasePage(ref PageRef) {
	if ref == 0 {
		panic("release of page 0")
	}
	page := s.pages[ref]
	page[0] = uint64(s.super.FreePage)
	s.super.FreePage = ref
}

// Page returns the words of a page.
func (s *Space) Page(ref PageRef) []uint64 {
	if ref == 0 {
		panic("dereference of page 0")
	}
	return s.pages[ref]
}

// AllocBlob allocates a zeroed blob of the given bit length in the
// arena and returns its handle. Word 0 of the allocation is the bit
// length; the payload starts at word 1. Handle 0 is never returned.
func (s *Space) AllocBlob(bits uint64) uint64 {
	words := make([]uint64, 1+(bits+63)/64)
	words[0] = bits
	if n := len(s.freeHandles); n > 0 {
		h := s.freeHandles[n-1]
		s.freeHandles = s.freeHandles[:n-1]
		s.arena[h-1] = words
		return h
	}
	s.arena = append(s.arena, words)
	return uint64(len(s.arena))
}

// FreeBlob releases a blob allocation.
func (s *Space) FreeBlob(handle uint64) {
	if handle == 0 || s.arena[handle-1] == nil {
		panic("free of invalid blob handle")
	}
	s.arena[handle-1] = nil
	s.freeHandles = append(s.freeHandles, handle)
}

// BlobBits reports the bit length stored in the prefix word.
func (s *Space) BlobBits(handle uint64) uint64 {
	return s.arena[handle-1][0]
}

// BlobPayload returns the payload words, prefix excluded.
func (s *Space) BlobPayload(handle uint64) []uint64 {
	return s.arena[handle-1][1:]
}

// Stats summarises occupancy for diagnostics.
type Stats struct {
	BitsPerPage uint64
	PageCount   uint64
	FreePages   uint64
	SymbolCount uint64
	BlobCount   uint64
	BlobBits    uint64
}

func (s *Space) Stats() Stats {
	st := Stats{
		BitsPerPage: s.bitsPerPage,
		PageCount:   s.PageCount(),
		SymbolCount: uint64(s.super.SymbolCount),
	}
	for ref := s.super.FreePage; ref != 0; ref = PageRef(s.pages[ref][0]) {
		st.FreePages++
	}
	for _, words := range s.arena {
		if words != nil {
			st.BlobCount++
			st.BlobBits += words[0]
		}
	}
	return st
}

// Flush persists the space if it is file-backed.
func (s *Space) Flush() error {
	if s.path == "" {
		return nil
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// Unload flushes and drops the in-memory state.
func (s *Space) Unload() error {
	err := s.Flush()
	s.pages = nil
	s.arena = nil
	s.freeHandles = nil
	return err
}

func (s *Space) encode(w io.Writer) error {
	writeWord := func(v uint64) error {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		_, err := w.Write(buf[:])
		return err
	}
	if _, err := w.Write(spaceMagic[:]); err != nil {
		return err
	}
	header := []uint64{
		s.bitsPerPage,
		uint64(s.super.SymbolCount),
		uint64(s.super.FreePage),
		uint64(s.super.BlobsRoot),
	}
	for _, root := range s.super.IndexRoots {
		header = append(header, uint64(root))
	}
	header = append(header, uint64(len(s.pages)-1), uint64(len(s.arena)))
	for _, v := range header {
		if err := writeWord(v); err != nil {
			return err
		}
	}
	buf := make([]byte, s.wordsPerPage*8)
	for _, page := range s.pages[1:] {
		for i, v := range page {
			binary.LittleEndian.PutUint64(buf[i*8:], v)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	for _, words := range s.arena {
		if err := writeWord(uint64(len(words))); err != nil {
			return err
		}
		for _, v := range words {
			if err := writeWord(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Space) decode(content []byte) error {
	if len(content) < 8 || string(content[:8]) != string(spaceMagic[:]) {
		return fmt.Errorf("bad magic")
	}
	content = content[8:]
	next := func() (uint64, error) {
		if len(content) < 8 {
			return 0, fmt.Errorf("truncated space file")
		}
		v := binary.LittleEndian.Uint64(content)
		content = content[8:]
		return v, nil
	}
	bitsPerPage, err := next()
	if err != nil {
		return err
	}
	if bitsPerPage != s.bitsPerPage {
		return fmt.Errorf("page size mismatch: file has %d bits, expected %d", bitsPerPage, s.bitsPerPage)
	}
	var header [9]uint64
	for i := range header {
		if header[i], err = next(); err != nil {
			return err
		}
	}
	s.super.SymbolCount = Symbol(header[0])
	s.super.FreePage = PageRef(header[1])
	s.super.BlobsRoot = PageRef(header[2])
	for i := range s.super.IndexRoots {
		s.super.IndexRoots[i] = PageRef(header[3+i])
	}
	pageCount, err := next()
	if err != nil {
		return err
	}
	arenaCount, err := next()
	if err != nil {
		return err
	}
	s.pages = make([][]uint64, 1, pageCount+1)
	for range pageCount {
		if uint64(len(content)) < s.wordsPerPage*8 {
			return fmt.Errorf("truncated page area")
		}
		page := make([]uint64, s.wordsPerPage)
		for i := range page {
			page[i] = binary.LittleEndian.Uint64(content[i*8:])
		}
		content = content[s.wordsPerPage*8:]
		s.pages = append(s.pages, page)
	}
	s.arena = make([][]uint64, 0, arenaCount)
	s.freeHandles = nil
	for h := uint64(1); h <= arenaCount; h++ {
		wordCount, err := next()
		if err != nil {
			return err
		}
		if wordCount == 0 {
			s.arena = append(s.arena, nil)
			s.freeHandles = append(s.freeHandles, h)
			continue
		}
		words := make([]uint64, wordCount)
		for i := range words {
			if words[i], err = next(); err != nil {
				return err
			}
		}
		s.arena = append(s.arena, words)
	}
	return nil
}
