package btree

import (
	"encoding/binary"

	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

const (
	holderInline  byte = 0
	holderSubtree byte = 1

	defaultUpThreshold  = 8
	defaultLowThreshold = 1
)

// valueHolder is the value slot of a leaf entry in a tree with duplicates
// enabled: either a small inline array of values, or -- once the array
// crosses thresholdUp -- the offset of an embedded sub-B+tree keyed by the
// value codec. Demotion back to inline happens at thresholdLow, per the
// specification's resolution of the ambiguous "back to array" point (see
// DESIGN.md).
type valueHolder struct {
	inline [][]byte
	sub    int64 // page.NoPage when inline
}

func newInlineHolder(v []byte) *valueHolder {
	return &valueHolder{inline: [][]byte{v}, sub: page.NoPage}
}

func encodeValueHolder(h *valueHolder) []byte {
	if h.sub != page.NoPage {
		buf := make([]byte, 9)
		buf[0] = holderSubtree
		binary.BigEndian.PutUint64(buf[1:], uint64(h.sub))
		return buf
	}
	buf := []byte{holderInline}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(h.inline)))
	buf = append(buf, countBuf[:]...)
	for _, v := range h.inline {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, v...)
	}
	return buf
}

func decodeValueHolder(buf []byte) (*valueHolder, error) {
	if len(buf) < 1 {
		return nil, errs.Corruption
	}
	switch buf[0] {
	case holderSubtree:
		if len(buf) < 9 {
			return nil, errs.Corruption
		}
		return &valueHolder{sub: int64(binary.BigEndian.Uint64(buf[1:9]))}, nil
	case holderInline:
		if len(buf) < 5 {
			return nil, errs.Corruption
		}
		count := binary.BigEndian.Uint32(buf[1:5])
		pos := 5
		values := make([][]byte, 0, count)
		for i := uint32(0); i < count; i++ {
			if pos+4 > len(buf) {
				return nil, errs.Corruption
			}
			n := binary.BigEndian.Uint32(buf[pos : pos+4])
			pos += 4
			if pos+int(n) > len(buf) {
				return nil, errs.Corruption
			}
			values = append(values, buf[pos:pos+int(n)])
			pos += int(n)
		}
		return &valueHolder{inline: values, sub: page.NoPage}, nil
	default:
		return nil, errs.Corruption
	}
}

func (h *valueHolder) isInline() bool { return h.sub == page.NoPage }

// containsInline reports whether v is already present among inline values.
func (h *valueHolder) containsInline(v []byte, cmp func(a, b []byte) int) bool {
	for _, x := range h.inline {
		if cmp(x, v) == 0 {
			return true
		}
	}
	return false
}
