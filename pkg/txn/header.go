// Package txn implements the MVCC transaction model: read snapshots, the
// single-writer commit protocol, and the dual A/B GlobalHeader that makes
// commit a single atomic slot switch.
//
// Grounded on the transaction bookkeeping in mjm918-tur's pkg/mvcc
// (TransactionManager/Transaction for revision and lifecycle accounting) and
// the process-wide lock in pkg/turdb/lock_unix.go, replacing the teacher's
// separate WAL file with the LMDB-style dual-header commit the
// specification calls for.
package txn

import (
	"encoding/binary"

	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

const (
	magic       uint32 = 0x4d415649 // "MAVI"
	fileVersion uint32 = 1

	// globalHeaderPayload is the encoded payload size before the checksum.
	globalHeaderPayload = 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8 // magic,version,pageSize,revision,freeListHead,treeOfTrees,copiedPages,txnCounter
	globalHeaderSize    = globalHeaderPayload + 8        // + checksum
)

// GlobalHeader is the top-of-file descriptor. Two copies live on disk (slot
// A and slot B); whichever has a matching checksum and the higher revision
// is the committed one.
type GlobalHeader struct {
	PageSize        int64
	Revision        uint64
	FreeListHead    int64
	TreeOfTrees     int64
	CopiedPages     int64
	TxnCounter      uint64
}

// EncodeGlobalHeader serializes h into a pageSize-aligned slot buffer,
// zero-padded beyond the header payload.
func EncodeGlobalHeader(h *GlobalHeader, slotSize int64) []byte {
	buf := make([]byte, slotSize)
	binary.BigEndian.PutUint32(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], fileVersion)
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.PageSize))
	binary.BigEndian.PutUint64(buf[12:20], h.Revision)
	binary.BigEndian.PutUint64(buf[20:28], uint64(h.FreeListHead))
	binary.BigEndian.PutUint64(buf[28:36], uint64(h.TreeOfTrees))
	binary.BigEndian.PutUint64(buf[36:44], uint64(h.CopiedPages))
	binary.BigEndian.PutUint64(buf[44:52], h.TxnCounter)

	s0, s1 := headerChecksum(buf[0:globalHeaderPayload])
	binary.BigEndian.PutUint32(buf[52:56], s0)
	binary.BigEndian.PutUint32(buf[56:60], s1)
	return buf
}

// DecodeGlobalHeader validates and parses a header slot. It returns
// errs.Corruption if the magic or checksum do not match.
func DecodeGlobalHeader(buf []byte) (*GlobalHeader, error) {
	if len(buf) < globalHeaderSize {
		return nil, errs.Corruption
	}
	if binary.BigEndian.Uint32(buf[0:4]) != magic {
		return nil, errs.Corruption
	}
	if binary.BigEndian.Uint32(buf[4:8]) != fileVersion {
		return nil, errs.Corruption
	}

	wantS0 := binary.BigEndian.Uint32(buf[52:56])
	wantS1 := binary.BigEndian.Uint32(buf[56:60])
	gotS0, gotS1 := headerChecksum(buf[0:globalHeaderPayload])
	if gotS0 != wantS0 || gotS1 != wantS1 {
		return nil, errs.Corruption
	}

	return &GlobalHeader{
		PageSize:     int64(binary.BigEndian.Uint32(buf[8:12])),
		Revision:     binary.BigEndian.Uint64(buf[12:20]),
		FreeListHead: int64(binary.BigEndian.Uint64(buf[20:28])),
		TreeOfTrees:  int64(binary.BigEndian.Uint64(buf[28:36])),
		CopiedPages:  int64(binary.BigEndian.Uint64(buf[36:44])),
		TxnCounter:   binary.BigEndian.Uint64(buf[44:52]),
	}, nil
}

// NewGlobalHeader builds the header of a brand new, empty file.
func NewGlobalHeader(pageSize int64) *GlobalHeader {
	return &GlobalHeader{
		PageSize:     pageSize,
		Revision:     0,
		FreeListHead: page.FreeListEnd,
		TreeOfTrees:  page.NoPage,
		CopiedPages:  page.NoPage,
		TxnCounter:   0,
	}
}
