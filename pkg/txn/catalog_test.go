package txn

import (
	"testing"

	"mavibot/pkg/btree"
	"mavibot/pkg/errs"
)

func TestNameRevisionRoundTrip(t *testing.T) {
	buf := encodeNameRevision("widgets", 42)
	name, rev := decodeNameRevision(buf)
	if name != "widgets" || rev != 42 {
		t.Errorf("decodeNameRevision() = (%q, %d), want (widgets, 42)", name, rev)
	}
}

func TestNameRevisionCodecComparesByNameThenRevision(t *testing.T) {
	c := nameRevisionCodec{}

	a := encodeNameRevision("a", 5)
	b := encodeNameRevision("b", 1)
	if c.Compare(a, b) >= 0 {
		t.Error("\"a\" at any revision should sort before \"b\"")
	}

	low := encodeNameRevision("t", 1)
	high := encodeNameRevision("t", 2)
	if c.Compare(low, high) >= 0 {
		t.Error("same name should order by revision")
	}
	if c.Compare(high, low) <= 0 {
		t.Error("comparison should be antisymmetric")
	}
	if c.Compare(low, low) != 0 {
		t.Error("identical (name, revision) should compare equal")
	}
}

func TestRevisionNameRoundTrip(t *testing.T) {
	buf := encodeRevisionName(7, "catalog")
	rev, name := decodeRevisionName(buf)
	if rev != 7 || name != "catalog" {
		t.Errorf("decodeRevisionName() = (%d, %q), want (7, catalog)", rev, name)
	}
}

func TestRevisionNameCodecComparesByRevisionThenName(t *testing.T) {
	c := revisionNameCodec{}

	earlier := encodeRevisionName(1, "z")
	later := encodeRevisionName(2, "a")
	if c.Compare(earlier, later) >= 0 {
		t.Error("lower revision should sort first regardless of name")
	}

	x := encodeRevisionName(3, "a")
	y := encodeRevisionName(3, "b")
	if c.Compare(x, y) >= 0 {
		t.Error("same revision should order by name")
	}
}

func TestOffsetListRoundTrip(t *testing.T) {
	offsets := []int64{0, 4096, 8192, 1 << 30}
	buf := encodeOffsetList(offsets)
	got, err := decodeOffsetList(buf)
	if err != nil {
		t.Fatalf("decodeOffsetList: %v", err)
	}
	if len(got) != len(offsets) {
		t.Fatalf("decodeOffsetList() length = %d, want %d", len(got), len(offsets))
	}
	for i := range offsets {
		if got[i] != offsets[i] {
			t.Errorf("offset[%d] = %d, want %d", i, got[i], offsets[i])
		}
	}
}

func TestOffsetListRoundTripEmpty(t *testing.T) {
	buf := encodeOffsetList(nil)
	got, err := decodeOffsetList(buf)
	if err != nil {
		t.Fatalf("decodeOffsetList: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decodeOffsetList(empty) = %v, want empty", got)
	}
}

func TestDecodeOffsetListTruncated(t *testing.T) {
	buf := encodeOffsetList([]int64{1, 2, 3})
	if _, err := decodeOffsetList(buf[:1]); err != errs.Corruption {
		t.Errorf("decodeOffsetList(truncated) error = %v, want Corruption", err)
	}
}

func TestCatalogCodecsAreRegistered(t *testing.T) {
	if _, ok := btree.ResolveKeyCodec("nameRevision"); !ok {
		t.Error("nameRevision codec should be registered via init()")
	}
	if _, ok := btree.ResolveKeyCodec("revisionName"); !ok {
		t.Error("revisionName codec should be registered via init()")
	}
}
