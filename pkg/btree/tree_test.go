// pkg/btree/tree_test.go
package btree

import (
	"bytes"
	"fmt"
	"testing"

	"mavibot/pkg/cache"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
	"mavibot/pkg/storage"
)

func newTestStore(t *testing.T) *page.Store {
	t.Helper()
	backing := storage.NewMemoryStorage(4096)
	if err := backing.Grow(8192); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	return page.Open(backing, 512, 8192, page.FreeListEnd)
}

func newTestTree(t *testing.T, opts Options) (*Tree, *page.Store) {
	t.Helper()
	store := newTestStore(t)
	if opts.KeyCodecID == "" {
		opts.KeyCodecID = "bytes"
	}
	if opts.ValueCodecID == "" {
		opts.ValueCodecID = "bytes"
	}
	if opts.FanOut == 0 {
		opts.FanOut = 4
	}
	tr, err := New("t", store, cache.New(100), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr, store
}

func TestTreeInsertAndGet(t *testing.T) {
	tr, _ := newTestTree(t, Options{})
	root := int64(page.NoPage)

	var err error
	for _, k := range []string{"cherry", "apple", "banana"} {
		root, _, _, err = tr.Insert(root, []byte(k), []byte("v_"+k), 1)
		if err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	for _, k := range []string{"apple", "banana", "cherry"} {
		v, err := tr.Get(root, []byte(k))
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if string(v) != "v_"+k {
			t.Errorf("Get(%s) = %s, want v_%s", k, v, k)
		}
	}

	if _, err := tr.Get(root, []byte("missing")); err != errs.KeyNotFound {
		t.Errorf("Get(missing) = %v, want KeyNotFound", err)
	}
}

func TestTreeInsertOverwritesExistingKey(t *testing.T) {
	tr, _ := newTestTree(t, Options{})
	root, _, _, err := tr.Insert(page.NoPage, []byte("k"), []byte("v1"), 1)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	root, _, outcome, err := tr.Insert(root, []byte("k"), []byte("v2"), 2)
	if err != nil {
		t.Fatalf("Insert overwrite: %v", err)
	}
	if !outcome.Existed || string(outcome.PreviousValue) != "v1" {
		t.Errorf("outcome = %+v, want Existed with previous v1", outcome)
	}
	v, err := tr.Get(root, []byte("k"))
	if err != nil || string(v) != "v2" {
		t.Errorf("Get(k) = %s, %v, want v2", v, err)
	}
}

func TestTreeSplitsAcrossManyKeys(t *testing.T) {
	tr, _ := newTestTree(t, Options{FanOut: 4})
	root := int64(page.NoPage)
	var err error
	const n = 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		root, _, _, err = tr.Insert(root, key, []byte(fmt.Sprintf("val-%d", i)), uint64(i+1))
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		v, err := tr.Get(root, key)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if string(v) != fmt.Sprintf("val-%d", i) {
			t.Errorf("Get(%s) = %s, want val-%d", key, v, i)
		}
	}
}

func TestTreeDeleteMergesUnderflow(t *testing.T) {
	tr, _ := newTestTree(t, Options{FanOut: 4})
	root := int64(page.NoPage)
	var err error
	const n = 64
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		root, _, _, err = tr.Insert(root, key, []byte("v"), uint64(i+1))
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	for i := 0; i < n; i += 2 {
		key := []byte(fmt.Sprintf("key-%04d", i))
		var removed []byte
		root, _, removed, err = tr.Delete(root, key, nil, uint64(n+i))
		if err != nil {
			t.Fatalf("Delete %d: %v", i, err)
		}
		if removed == nil {
			t.Errorf("Delete(%s) removed nothing", key)
		}
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		_, err := tr.Get(root, key)
		if i%2 == 0 {
			if err != errs.KeyNotFound {
				t.Errorf("Get(%s) after delete = %v, want KeyNotFound", key, err)
			}
		} else if err != nil {
			t.Errorf("Get(%s) = %v, want nil", key, err)
		}
	}
}

func TestTreeDeleteMissingKey(t *testing.T) {
	tr, _ := newTestTree(t, Options{})
	root, _, _, err := tr.Insert(page.NoPage, []byte("k"), []byte("v"), 1)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, _, _, err := tr.Delete(root, []byte("nope"), nil, 2); err != errs.KeyNotFound {
		t.Errorf("Delete(nope) = %v, want KeyNotFound", err)
	}
}

func TestTreeOldRootUnaffectedByCopyOnWrite(t *testing.T) {
	tr, _ := newTestTree(t, Options{FanOut: 4})
	root1, _, _, err := tr.Insert(page.NoPage, []byte("a"), []byte("1"), 1)
	if err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	root2, _, _, err := tr.Insert(root1, []byte("b"), []byte("2"), 2)
	if err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	if _, err := tr.Get(root1, []byte("b")); err != errs.KeyNotFound {
		t.Errorf("old root should not see key inserted afterward, got %v", err)
	}
	if v, err := tr.Get(root2, []byte("a")); err != nil || string(v) != "1" {
		t.Errorf("new root should still see prior key, got %s, %v", v, err)
	}
}

func TestTreeDuplicateValues(t *testing.T) {
	tr, _ := newTestTree(t, Options{AllowDuplicates: true})
	root := int64(page.NoPage)
	var err error
	root, _, _, err = tr.Insert(root, []byte("k"), []byte("v1"), 1)
	if err != nil {
		t.Fatalf("Insert v1: %v", err)
	}
	root, _, _, err = tr.Insert(root, []byte("k"), []byte("v2"), 2)
	if err != nil {
		t.Fatalf("Insert v2: %v", err)
	}

	all, err := tr.GetAll(root, []byte("k"))
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll = %v, want 2 values", all)
	}
	seen := map[string]bool{}
	for _, v := range all {
		seen[string(v)] = true
	}
	if !seen["v1"] || !seen["v2"] {
		t.Errorf("GetAll = %v, want v1 and v2", all)
	}

	root, _, removed, err := tr.Delete(root, []byte("k"), []byte("v1"), 3)
	if err != nil {
		t.Fatalf("Delete v1: %v", err)
	}
	if !bytes.Equal(removed, []byte("v1")) {
		t.Errorf("Delete removed %s, want v1", removed)
	}
	all, err = tr.GetAll(root, []byte("k"))
	if err != nil || len(all) != 1 || string(all[0]) != "v2" {
		t.Errorf("GetAll after delete = %v, %v, want [v2]", all, err)
	}
}

func TestCursorIterate(t *testing.T) {
	tr, _ := newTestTree(t, Options{FanOut: 4})
	root := int64(page.NoPage)
	var err error
	keys := []string{"cherry", "apple", "banana", "date", "fig"}
	for _, k := range keys {
		root, _, _, err = tr.Insert(root, []byte(k), []byte("v_"+k), 1)
		if err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	cur := NewCursor(tr, root)
	if err := cur.First(); err != nil {
		t.Fatalf("First: %v", err)
	}
	var collected []string
	for cur.Valid() {
		collected = append(collected, string(cur.Key()))
		if err := cur.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	expected := []string{"apple", "banana", "cherry", "date", "fig"}
	if len(collected) != len(expected) {
		t.Fatalf("collected %v, want %v", collected, expected)
	}
	for i := range expected {
		if collected[i] != expected[i] {
			t.Errorf("collected[%d] = %s, want %s", i, collected[i], expected[i])
		}
	}
}

func TestCursorPrevFromLast(t *testing.T) {
	tr, _ := newTestTree(t, Options{})
	root := int64(page.NoPage)
	var err error
	for _, k := range []string{"a", "b", "c"} {
		root, _, _, err = tr.Insert(root, []byte(k), []byte(k), 1)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	cur := NewCursor(tr, root)
	if err := cur.Last(); err != nil {
		t.Fatalf("Last: %v", err)
	}
	var collected []string
	for cur.Valid() {
		collected = append(collected, string(cur.Key()))
		if err := cur.Prev(); err != nil {
			t.Fatalf("Prev: %v", err)
		}
	}
	expected := []string{"c", "b", "a"}
	for i := range expected {
		if collected[i] != expected[i] {
			t.Errorf("collected[%d] = %s, want %s", i, collected[i], expected[i])
		}
	}
}

func TestAllowDuplicatesAccessor(t *testing.T) {
	dup, _ := newTestTree(t, Options{AllowDuplicates: true})
	if !dup.AllowDuplicates() {
		t.Error("AllowDuplicates() = false, want true")
	}
	plain, _ := newTestTree(t, Options{})
	if plain.AllowDuplicates() {
		t.Error("AllowDuplicates() = true, want false")
	}
}
