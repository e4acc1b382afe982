package btree

import (
	"bytes"
	"encoding/binary"
)

// KeyCodec serializes application keys and orders their encoded bytes. It is
// resolved at tree-open time by its ID, matching TreeInfo.KeyCodecID.
type KeyCodec interface {
	ID() string
	Encode(key any) []byte
	Decode(b []byte) any
	Compare(a, b []byte) int
}

// ValueCodec serializes application values. Its Compare is used for
// deduplication inside a ValueHolder and, once a value set is promoted to a
// sub-tree, as that sub-tree's key comparator.
type ValueCodec interface {
	ID() string
	Encode(value any) []byte
	Decode(b []byte) any
	Compare(a, b []byte) int
}

// BytesCodec treats keys/values as raw bytes ordered lexicographically.
type BytesCodec struct{}

func (BytesCodec) ID() string { return "bytes" }
func (BytesCodec) Encode(v any) []byte { return v.([]byte) }
func (BytesCodec) Decode(b []byte) any { return b }
func (BytesCodec) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// Uint64Codec encodes uint64 values big-endian, so byte order equals
// numeric order.
type Uint64Codec struct{}

func (Uint64Codec) ID() string { return "uint64" }

func (Uint64Codec) Encode(v any) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v.(uint64))
	return buf
}

func (Uint64Codec) Decode(b []byte) any {
	return binary.BigEndian.Uint64(b)
}

func (Uint64Codec) Compare(a, b []byte) int {
	av := binary.BigEndian.Uint64(a)
	bv := binary.BigEndian.Uint64(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// Registry resolves a codec ID to its implementation, mirroring how
// TreeInfo stores codec identifiers rather than live codec values.
var registry = map[string]any{
	"bytes":  BytesCodec{},
	"uint64": Uint64Codec{},
}

// RegisterKeyCodec makes a custom KeyCodec resolvable by ID at tree-open time.
func RegisterKeyCodec(c KeyCodec) { registry[c.ID()] = c }

// RegisterValueCodec makes a custom ValueCodec resolvable by ID.
func RegisterValueCodec(c ValueCodec) { registry[c.ID()] = c }

// ResolveKeyCodec looks up a previously registered KeyCodec by ID.
func ResolveKeyCodec(id string) (KeyCodec, bool) {
	c, ok := registry[id]
	if !ok {
		return nil, false
	}
	kc, ok := c.(KeyCodec)
	return kc, ok
}

// ResolveValueCodec looks up a previously registered ValueCodec by ID.
func ResolveValueCodec(id string) (ValueCodec, bool) {
	c, ok := registry[id]
	if !ok {
		return nil, false
	}
	vc, ok := c.(ValueCodec)
	return vc, ok
}
