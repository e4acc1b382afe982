// Package codec serializes and deserializes the four WAL-observable logical
// pages of the engine -- Leaf, Node, TreeHeader, TreeInfo -- to and from the
// byte streams read and written by a page.Store. All multi-byte integers
// are big-endian; strings are length-prefixed UTF-8 with -1 denoting null.
//
// Grounded in shape on mjm918-tur's pkg/btree/node.go cell layout and
// pkg/record/record.go's serial-type framing, replaced here with the fixed
// big-endian layout the specification mandates.
package codec

import (
	"encoding/binary"

	"mavibot/pkg/errs"
)

// Leaf is a B+tree leaf page: sorted keys paired with opaque value-holder
// bytes. The value bytes are whatever the btree layer's ValueHolder encoding
// produces; this package never interprets them.
type Leaf struct {
	Revision uint64
	Keys     [][]byte
	Values   [][]byte
}

// Node is a B+tree internal page: N sorted pivot keys and N+1 children.
type Node struct {
	Revision uint64
	Keys     [][]byte
	Children []int64
}

// TreeHeader is the mutable descriptor of a tree at a committed revision.
type TreeHeader struct {
	Revision       uint64
	ElementCount   uint64
	RootOffset     int64
	TreeInfoOffset int64
}

// TreeInfo is the immutable per-tree metadata written once at creation.
type TreeInfo struct {
	FanOut       uint32
	Name         string
	KeyCodecID   string
	ValueCodecID string
	TreeType     byte
}

const treeHeaderSize = 8 + 8 + 8 + 8

// EncodeTreeHeader serializes h into a fixed 32-byte layout.
func EncodeTreeHeader(h *TreeHeader) []byte {
	buf := make([]byte, treeHeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], h.Revision)
	binary.BigEndian.PutUint64(buf[8:16], h.ElementCount)
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.RootOffset))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.TreeInfoOffset))
	return buf
}

// DecodeTreeHeader parses a TreeHeader from its fixed 32-byte layout.
func DecodeTreeHeader(buf []byte) (*TreeHeader, error) {
	if len(buf) < treeHeaderSize {
		return nil, errs.Corruption
	}
	return &TreeHeader{
		Revision:       binary.BigEndian.Uint64(buf[0:8]),
		ElementCount:   binary.BigEndian.Uint64(buf[8:16]),
		RootOffset:     int64(binary.BigEndian.Uint64(buf[16:24])),
		TreeInfoOffset: int64(binary.BigEndian.Uint64(buf[24:32])),
	}, nil
}

// EncodeTreeInfo serializes t.
func EncodeTreeInfo(t *TreeInfo) []byte {
	w := newWriter()
	w.putUint32(t.FanOut)
	w.putString(t.Name)
	w.putString(t.KeyCodecID)
	w.putString(t.ValueCodecID)
	w.putByte(t.TreeType)
	return w.bytes()
}

// DecodeTreeInfo parses a TreeInfo.
func DecodeTreeInfo(buf []byte) (*TreeInfo, error) {
	r := newReader(buf)
	fanOut, err := r.uint32()
	if err != nil {
		return nil, err
	}
	name, err := r.string()
	if err != nil {
		return nil, err
	}
	keyCodec, err := r.string()
	if err != nil {
		return nil, err
	}
	valCodec, err := r.string()
	if err != nil {
		return nil, err
	}
	treeType, err := r.byte_()
	if err != nil {
		return nil, err
	}
	return &TreeInfo{FanOut: fanOut, Name: name, KeyCodecID: keyCodec, ValueCodecID: valCodec, TreeType: treeType}, nil
}

// EncodeLeaf serializes a leaf page: revision(8), count(4), then for each
// element key length(4)+key bytes+value length(4)+value bytes.
func EncodeLeaf(l *Leaf) []byte {
	w := newWriter()
	w.putUint64(l.Revision)
	w.putUint32(uint32(len(l.Keys)))
	for i := range l.Keys {
		w.putBytes(l.Keys[i])
		w.putBytes(l.Values[i])
	}
	return w.bytes()
}

// DecodeLeaf parses a leaf page.
func DecodeLeaf(buf []byte) (*Leaf, error) {
	r := newReader(buf)
	rev, err := r.uint64()
	if err != nil {
		return nil, err
	}
	count, err := r.uint32()
	if err != nil {
		return nil, err
	}
	l := &Leaf{Revision: rev, Keys: make([][]byte, 0, count), Values: make([][]byte, 0, count)}
	for i := uint32(0); i < count; i++ {
		key, err := r.bytes()
		if err != nil {
			return nil, err
		}
		val, err := r.bytes()
		if err != nil {
			return nil, err
		}
		l.Keys = append(l.Keys, key)
		l.Values = append(l.Values, val)
	}
	return l, nil
}

// EncodeNode serializes an internal page: revision(8), count(4), then for
// each i in [0,count) child offset(8) + key i, finally the trailing child.
func EncodeNode(n *Node) []byte {
	w := newWriter()
	w.putUint64(n.Revision)
	count := len(n.Keys)
	w.putUint32(uint32(count))
	for i := 0; i < count; i++ {
		w.putInt64(n.Children[i])
		w.putBytes(n.Keys[i])
	}
	w.putInt64(n.Children[count])
	return w.bytes()
}

// DecodeNode parses an internal page.
func DecodeNode(buf []byte) (*Node, error) {
	r := newReader(buf)
	rev, err := r.uint64()
	if err != nil {
		return nil, err
	}
	count, err := r.uint32()
	if err != nil {
		return nil, err
	}
	n := &Node{Revision: rev, Keys: make([][]byte, 0, count), Children: make([]int64, 0, count+1)}
	for i := uint32(0); i < count; i++ {
		child, err := r.int64()
		if err != nil {
			return nil, err
		}
		key, err := r.bytes()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
		n.Keys = append(n.Keys, key)
	}
	last, err := r.int64()
	if err != nil {
		return nil, err
	}
	n.Children = append(n.Children, last)
	return n, nil
}

// FindPos performs a packed binary search over sorted keys using cmp.
// If key is present at index i, it returns -(i+1). Otherwise it returns the
// non-negative index of the smallest key greater than key (len(keys) if key
// follows everything).
func FindPos(keys [][]byte, key []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(keys[mid], key)
		if c == 0 {
			return -(mid + 1)
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
