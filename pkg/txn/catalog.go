package txn

import (
	"bytes"
	"encoding/binary"

	"mavibot/internal/varint"
	"mavibot/pkg/btree"
	"mavibot/pkg/errs"
)

// nameRevisionCodec encodes a composite (name, revision) key as
// len(name)(4) + name bytes + revision(8), and compares by decoding rather
// than raw byte order, so names of different lengths still sort
// alphabetically before revision breaks ties.
type nameRevisionCodec struct{}

func encodeNameRevision(name string, revision uint64) []byte {
	buf := make([]byte, 4+len(name)+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(name)))
	copy(buf[4:], name)
	binary.BigEndian.PutUint64(buf[4+len(name):], revision)
	return buf
}

func decodeNameRevision(b []byte) (string, uint64) {
	n := binary.BigEndian.Uint32(b[0:4])
	name := string(b[4 : 4+n])
	revision := binary.BigEndian.Uint64(b[4+n:])
	return name, revision
}

func (nameRevisionCodec) ID() string { return "nameRevision" }
func (nameRevisionCodec) Encode(v any) []byte {
	nr := v.(struct {
		Name     string
		Revision uint64
	})
	return encodeNameRevision(nr.Name, nr.Revision)
}
func (nameRevisionCodec) Decode(b []byte) any {
	name, rev := decodeNameRevision(b)
	return struct {
		Name     string
		Revision uint64
	}{name, rev}
}
func (nameRevisionCodec) Compare(a, b []byte) int {
	nameA, revA := decodeNameRevision(a)
	nameB, revB := decodeNameRevision(b)
	if c := bytes.Compare([]byte(nameA), []byte(nameB)); c != 0 {
		return c
	}
	switch {
	case revA < revB:
		return -1
	case revA > revB:
		return 1
	default:
		return 0
	}
}

// revisionNameCodec is the mirror ordering used by the copied-pages index:
// (revision, name).
type revisionNameCodec struct{}

func encodeRevisionName(revision uint64, name string) []byte {
	buf := make([]byte, 8+4+len(name))
	binary.BigEndian.PutUint64(buf[0:8], revision)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(name)))
	copy(buf[12:], name)
	return buf
}

func decodeRevisionName(b []byte) (uint64, string) {
	revision := binary.BigEndian.Uint64(b[0:8])
	n := binary.BigEndian.Uint32(b[8:12])
	name := string(b[12 : 12+n])
	return revision, name
}

func (revisionNameCodec) ID() string { return "revisionName" }
func (revisionNameCodec) Encode(v any) []byte {
	rn := v.(struct {
		Revision uint64
		Name     string
	})
	return encodeRevisionName(rn.Revision, rn.Name)
}
func (revisionNameCodec) Decode(b []byte) any {
	rev, name := decodeRevisionName(b)
	return struct {
		Revision uint64
		Name     string
	}{rev, name}
}
func (revisionNameCodec) Compare(a, b []byte) int {
	revA := binary.BigEndian.Uint64(a[0:8])
	revB := binary.BigEndian.Uint64(b[0:8])
	switch {
	case revA < revB:
		return -1
	case revA > revB:
		return 1
	}
	_, nameA := decodeRevisionName(a)
	_, nameB := decodeRevisionName(b)
	return bytes.Compare([]byte(nameA), []byte(nameB))
}

// encodeOffsetList packs a list of page offsets as varints, grounded on
// internal/varint's SQLite-style encoding, so the copied-pages index stays
// compact even for wide transactions.
func encodeOffsetList(offsets []int64) []byte {
	buf := make([]byte, 0, len(offsets)*2+4)
	var tmp [9]byte
	n := varint.PutVarint(tmp[:], uint64(len(offsets)))
	buf = append(buf, tmp[:n]...)
	for _, off := range offsets {
		n := varint.PutVarint(tmp[:], uint64(off))
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

func decodeOffsetList(buf []byte) ([]int64, error) {
	count, n := varint.GetVarint(buf)
	if n == 0 {
		return nil, errs.Corruption
	}
	buf = buf[n:]
	out := make([]int64, 0, count)
	for i := uint64(0); i < count; i++ {
		v, n := varint.GetVarint(buf)
		if n == 0 {
			return nil, errs.Corruption
		}
		out = append(out, int64(v))
		buf = buf[n:]
	}
	return out, nil
}

func init() {
	btree.RegisterKeyCodec(nameRevisionCodec{})
	btree.RegisterKeyCodec(revisionNameCodec{})
}
