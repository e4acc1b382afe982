// pkg/codec/codec_test.go
package codec

import (
	"bytes"
	"testing"
)

func TestTreeHeaderRoundTrip(t *testing.T) {
	h := &TreeHeader{Revision: 7, ElementCount: 42, RootOffset: 4096, TreeInfoOffset: 512}
	got, err := DecodeTreeHeader(EncodeTreeHeader(h))
	if err != nil {
		t.Fatalf("DecodeTreeHeader: %v", err)
	}
	if *got != *h {
		t.Errorf("DecodeTreeHeader() = %+v, want %+v", got, h)
	}
}

func TestDecodeTreeHeaderTruncated(t *testing.T) {
	if _, err := DecodeTreeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeTreeHeader(short buffer) should fail")
	}
}

func TestTreeInfoRoundTrip(t *testing.T) {
	info := &TreeInfo{FanOut: 64, Name: "widgets", KeyCodecID: "bytes", ValueCodecID: "uint64", TreeType: 1}
	got, err := DecodeTreeInfo(EncodeTreeInfo(info))
	if err != nil {
		t.Fatalf("DecodeTreeInfo: %v", err)
	}
	if *got != *info {
		t.Errorf("DecodeTreeInfo() = %+v, want %+v", got, info)
	}
}

func TestLeafRoundTrip(t *testing.T) {
	l := &Leaf{
		Revision: 3,
		Keys:     [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		Values:   [][]byte{[]byte("1"), nil, []byte("3")},
	}
	got, err := DecodeLeaf(EncodeLeaf(l))
	if err != nil {
		t.Fatalf("DecodeLeaf: %v", err)
	}
	if got.Revision != l.Revision || len(got.Keys) != len(l.Keys) {
		t.Fatalf("DecodeLeaf() = %+v", got)
	}
	for i := range l.Keys {
		if !bytes.Equal(got.Keys[i], l.Keys[i]) {
			t.Errorf("key[%d] = %q, want %q", i, got.Keys[i], l.Keys[i])
		}
		if !bytes.Equal(got.Values[i], l.Values[i]) {
			t.Errorf("value[%d] = %q, want %q", i, got.Values[i], l.Values[i])
		}
	}
}

func TestNodeRoundTrip(t *testing.T) {
	n := &Node{
		Revision: 9,
		Keys:     [][]byte{[]byte("m"), []byte("x")},
		Children: []int64{100, 200, 300},
	}
	got, err := DecodeNode(EncodeNode(n))
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if got.Revision != n.Revision {
		t.Errorf("Revision = %d, want %d", got.Revision, n.Revision)
	}
	if len(got.Children) != len(n.Children) {
		t.Fatalf("Children = %v, want %v", got.Children, n.Children)
	}
	for i := range n.Children {
		if got.Children[i] != n.Children[i] {
			t.Errorf("Children[%d] = %d, want %d", i, got.Children[i], n.Children[i])
		}
	}
	for i := range n.Keys {
		if !bytes.Equal(got.Keys[i], n.Keys[i]) {
			t.Errorf("Keys[%d] = %q, want %q", i, got.Keys[i], n.Keys[i])
		}
	}
}

func TestFindPos(t *testing.T) {
	cmp := bytes.Compare
	keys := [][]byte{[]byte("b"), []byte("d"), []byte("f")}

	tests := []struct {
		key  string
		want int
	}{
		{"a", 0},
		{"b", -1},
		{"c", 1},
		{"d", -2},
		{"e", 2},
		{"f", -3},
		{"g", 3},
	}
	for _, tt := range tests {
		if got := FindPos(keys, []byte(tt.key), cmp); got != tt.want {
			t.Errorf("FindPos(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestFindPosEmpty(t *testing.T) {
	if got := FindPos(nil, []byte("a"), bytes.Compare); got != 0 {
		t.Errorf("FindPos(empty) = %d, want 0", got)
	}
}
