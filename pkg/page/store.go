// Package page implements the PageStore: the fixed-size page substrate that
// the rest of the engine builds on. It owns the file layout below the two
// GlobalHeader slots, the free list, and multi-page record chaining.
//
// Grounded on the allocation/free-list/cache shape of mjm918-tur's
// pkg/pager, adapted from an LRU-cached, WAL-backed page manager to the
// header-switch commit model mavibot uses instead.
package page

import (
	"encoding/binary"

	"mavibot/pkg/errs"
	"mavibot/pkg/storage"
)

const (
	// NoPage is the null page-offset reference.
	NoPage int64 = -1
	// NoLimit requests "read the full record", relying on its length prefix.
	NoLimit int64 = -1
	// FreeListEnd terminates the free list.
	FreeListEnd int64 = -2

	// DefaultPageSize is the page size txn.Open uses when its options give none.
	DefaultPageSize = 512
	// MinPageSize is the smallest page size the store accepts.
	MinPageSize = 64

	firstPageHeader = 12 // next(8) + length(4)
	contPageHeader  = 8  // next(8)
)

// Store maps logical byte streams onto chains of fixed-size pages within a
// storage.Storage, starting at a fixed base offset (the space after the two
// GlobalHeader slots).
type Store struct {
	backing      storage.Storage
	pageSize     int64
	base         int64
	freeListHead int64
}

// Open wraps backing as a page store. base is the byte offset where the page
// area begins (normally 2*pageSize, after the A/B header slots).
func Open(backing storage.Storage, pageSize, base, freeListHead int64) *Store {
	return &Store{backing: backing, pageSize: pageSize, base: base, freeListHead: freeListHead}
}

// PageSize returns the fixed page size of this store.
func (s *Store) PageSize() int64 { return s.pageSize }

// FreeListHead returns the current free list head, for serialization into
// the next GlobalHeader.
func (s *Store) FreeListHead() int64 { return s.freeListHead }

// SetFreeListHead overrides the free list head, used when recovering state
// from a GlobalHeader at open.
func (s *Store) SetFreeListHead(offset int64) { s.freeListHead = offset }

func (s *Store) pageAt(offset int64) []byte {
	return s.backing.Slice(offset, s.pageSize)
}

func getInt64(b []byte) int64   { return int64(binary.BigEndian.Uint64(b)) }
func putInt64(b []byte, v int64) { binary.BigEndian.PutUint64(b, uint64(v)) }

// capacityFor returns how many payload bytes n pages can carry, where the
// first page pays the extra 4-byte length-prefix overhead.
func (s *Store) capacityFor(numPages int64) int64 {
	if numPages <= 0 {
		return 0
	}
	first := s.pageSize - firstPageHeader
	rest := (numPages - 1) * (s.pageSize - contPageHeader)
	return first + rest
}

// pagesNeeded returns the minimum number of pages whose combined capacity is
// at least n bytes.
func (s *Store) pagesNeeded(n int64) int64 {
	first := s.pageSize - firstPageHeader
	if n <= first {
		return 1
	}
	remaining := n - first
	restCap := s.pageSize - contPageHeader
	pages := int64(1) + (remaining+restCap-1)/restCap
	return pages
}

// Allocate reserves a chain of pages with combined capacity >= bytes,
// popping from the free list first and extending the backing storage when
// it is empty. It returns the offsets in chain order (offsets[0] is the
// record head).
func (s *Store) Allocate(bytes int64) ([]int64, error) {
	n := s.pagesNeeded(bytes)
	offsets := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		off, ok, err := s.popFree()
		if err != nil {
			return nil, err
		}
		if !ok {
			off, err = s.extend()
			if err != nil {
				return nil, err
			}
		}
		offsets = append(offsets, off)
	}
	return offsets, nil
}

func (s *Store) popFree() (int64, bool, error) {
	if s.freeListHead == FreeListEnd || s.freeListHead == NoPage {
		return 0, false, nil
	}
	head := s.freeListHead
	page := s.pageAt(head)
	if page == nil {
		return 0, false, errs.Corruption
	}
	next := getInt64(page[0:8])
	s.freeListHead = next
	return head, true, nil
}

func (s *Store) extend() (int64, error) {
	off := s.backing.Size()
	if err := s.backing.Grow(off + s.pageSize); err != nil {
		return 0, errs.IoError
	}
	return off, nil
}

// Free unlinks the record chain starting at offset and returns its pages to
// the free list in LIFO order.
func (s *Store) Free(offset int64) error {
	if offset == NoPage {
		return nil
	}
	var chain []int64
	cur := offset
	for cur != NoPage {
		page := s.pageAt(cur)
		if page == nil {
			return errs.Corruption
		}
		chain = append(chain, cur)
		cur = getInt64(page[0:8])
	}
	for _, off := range chain {
		page := s.pageAt(off)
		putInt64(page[0:8], s.freeListHead)
		s.freeListHead = off
	}
	return nil
}

// Write serializes data across the given pre-allocated offsets, writing the
// chain links and, on the first page, the total record length.
func (s *Store) Write(offsets []int64, data []byte) error {
	remaining := data
	for i, off := range offsets {
		page := s.pageAt(off)
		if page == nil {
			return errs.IoError
		}
		next := NoPage
		if i < len(offsets)-1 {
			next = offsets[i+1]
		}
		putInt64(page[0:8], next)

		header := contPageHeader
		if i == 0 {
			binary.BigEndian.PutUint32(page[8:12], uint32(len(data)))
			header = firstPageHeader
		}
		chunkCap := int(s.pageSize) - header
		n := len(remaining)
		if n > chunkCap {
			n = chunkCap
		}
		copy(page[header:], remaining[:n])
		remaining = remaining[n:]
	}
	if len(remaining) > 0 {
		return errs.IoError
	}
	return nil
}

// Read reads the full logical byte stream starting at offset.
func (s *Store) Read(offset int64) ([]byte, error) {
	return s.ReadN(offset, NoLimit)
}

// ReadN reads at most n bytes from the record starting at offset; n < 0
// reads the whole record as sized by its length prefix.
func (s *Store) ReadN(offset int64, n int64) ([]byte, error) {
	first := s.pageAt(offset)
	if first == nil {
		return nil, errs.EndOfFile
	}
	total := int64(binary.BigEndian.Uint32(first[8:12]))
	if n >= 0 && n < total {
		total = n
	}

	out := make([]byte, 0, total)
	cur := offset
	header := firstPageHeader
	for int64(len(out)) < total {
		page := s.pageAt(cur)
		if page == nil {
			return nil, errs.EndOfFile
		}
		next := getInt64(page[0:8])
		avail := page[header:]
		need := total - int64(len(out))
		if int64(len(avail)) > need {
			avail = avail[:need]
		}
		out = append(out, avail...)
		if int64(len(out)) >= total {
			break
		}
		if next == NoPage {
			return nil, errs.Corruption
		}
		cur = next
		header = contPageHeader
	}
	return out, nil
}

// Sync flushes the backing storage to stable storage.
func (s *Store) Sync() error {
	if err := s.backing.Sync(); err != nil {
		return errs.IoError
	}
	return nil
}
