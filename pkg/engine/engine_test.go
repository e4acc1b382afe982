// pkg/engine/engine_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mavibot/pkg/btree"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

func open(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(MemoryPath, Options{PageSize: 512})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func createTree(t *testing.T, e *Engine, name string, opts btree.Options) {
	t.Helper()
	if opts.KeyCodecID == "" {
		opts.KeyCodecID = "bytes"
	}
	if opts.ValueCodecID == "" {
		opts.ValueCodecID = "bytes"
	}
	if opts.FanOut == 0 {
		opts.FanOut = 4
	}
	require.NoError(t, e.CreateTree(name, opts))
}

// S1: empty tree miss, then insert/commit is visible to a fresh reader.
func TestScenario1_InsertThenFreshReaderSees(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})

	r, err := e.BeginRead(0)
	require.NoError(t, err)
	_, err = r.Get("t", []byte("a"))
	require.ErrorIs(t, err, errs.KeyNotFound)
	r.Close()

	w, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w.Insert("t", []byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r2, err := e.BeginRead(0)
	require.NoError(t, err)
	defer r2.Close()
	v, err := r2.Get("t", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
}

// S2: ordered traversal after an out-of-order insert sequence.
func TestScenario2_OrderedTraversal(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{FanOut: 4})

	w, err := e.BeginWrite()
	require.NoError(t, err)
	for _, k := range []string{"b", "d", "f", "h", "a", "c", "e", "g", "i"} {
		_, err := w.Insert("t", []byte(k), []byte(k))
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())

	r, err := e.BeginRead(0)
	require.NoError(t, err)
	defer r.Close()
	cur, err := r.Browse("t")
	require.NoError(t, err)
	require.NoError(t, cur.First())

	var got []string
	for cur.Valid() {
		got = append(got, string(cur.Key()))
		require.NoError(t, cur.Next())
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}, got)
}

// S3: deleting a key keeps the remaining traversal ordered and complete.
func TestScenario3_DeleteKeepsOrder(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{FanOut: 4})

	w, err := e.BeginWrite()
	require.NoError(t, err)
	for _, k := range []string{"b", "d", "f", "h", "a", "c", "e", "g", "i"} {
		_, err := w.Insert("t", []byte(k), []byte(k))
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())

	w2, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w2.Delete("t", []byte("d"), nil)
	require.NoError(t, err)
	require.NoError(t, w2.Commit())

	r, err := e.BeginRead(0)
	require.NoError(t, err)
	defer r.Close()
	cur, err := r.Browse("t")
	require.NoError(t, err)
	require.NoError(t, cur.First())
	var got []string
	for cur.Valid() {
		got = append(got, string(cur.Key()))
		require.NoError(t, cur.Next())
	}
	require.Equal(t, []string{"a", "b", "c", "e", "f", "g", "h", "i"}, got)

	_, err = r.Get("t", []byte("d"))
	require.ErrorIs(t, err, errs.KeyNotFound)
}

// S4: a duplicate-enabled tree promotes its value holder to a sub-tree past
// the configured threshold, then demotes back below it.
func TestScenario4_DuplicateHolderPromotionAndDemotion(t *testing.T) {
	e := open(t)
	createTree(t, e, "dup", btree.Options{
		AllowDuplicates:   true,
		ValueThresholdUp:  8,
		ValueThresholdLow: 1,
	})

	for i := 1; i <= 9; i++ {
		w, err := e.BeginWrite()
		require.NoError(t, err)
		_, err = w.Insert("dup", []byte("k"), []byte{byte(i)})
		require.NoError(t, err)
		require.NoError(t, w.Commit())

		r, err := e.BeginRead(0)
		require.NoError(t, err)
		vals, err := r.GetAll("dup", []byte("k"))
		require.NoError(t, err)
		require.Len(t, vals, i)
		r.Close()
	}

	for i := 9; i > 1; i-- {
		w, err := e.BeginWrite()
		require.NoError(t, err)
		_, err = w.Delete("dup", []byte("k"), []byte{byte(i)})
		require.NoError(t, err)
		require.NoError(t, w.Commit())
	}

	r, err := e.BeginRead(0)
	require.NoError(t, err)
	defer r.Close()
	vals, err := r.GetAll("dup", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1}}, vals)
}

// S5: an older snapshot keeps seeing its own revision across a later commit,
// and a new snapshot taken after that commit sees the update.
func TestScenario5_SnapshotIsolationAcrossCommit(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})

	w, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w.Insert("t", []byte("k"), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r1, err := e.BeginRead(0)
	require.NoError(t, err)
	r2, err := e.BeginRead(0)
	require.NoError(t, err)

	w2, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w2.Insert("t", []byte("k"), []byte("v2"))
	require.NoError(t, err)
	require.NoError(t, w2.Commit())

	v1, err := r1.Get("t", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))

	r3, err := e.BeginRead(0)
	require.NoError(t, err)
	v3, err := r3.Get("t", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v3))

	r1.Close()
	r2.Close()
	require.NoError(t, e.manager.Reclaim())

	v3again, err := r3.Get("t", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v3again))
	r3.Close()
}

// Invariant 5: insert, delete, then get on the same key yields KeyNotFound.
func TestInvariant_DeletionRoundTrip(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})

	w, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w.Insert("t", []byte("k"), []byte("v"))
	require.NoError(t, err)
	_, err = w.Delete("t", []byte("k"), nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r, err := e.BeginRead(0)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Get("t", []byte("k"))
	require.ErrorIs(t, err, errs.KeyNotFound)
}

// Invariant 6: a second commit or abort on an already-closed transaction
// fails with BadTransactionState and changes nothing.
func TestInvariant_IdempotentCommitAbort(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})

	w, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w.Insert("t", []byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	require.ErrorIs(t, w.Commit(), errs.BadTransactionState)

	w2, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, w2.Abort())
	require.ErrorIs(t, w2.Abort(), errs.BadTransactionState)
}

// A poisoned write transaction can still be aborted, freeing the writer for
// the next BeginWrite -- the bug this guards against would deadlock here.
func TestInvariant_PoisonedTransactionStillAborts(t *testing.T) {
	e := open(t)
	// No tree named "missing" exists: Insert poisons with TreeNotFound.
	w, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = w.Insert("missing", []byte("k"), []byte("v"))
	require.ErrorIs(t, err, errs.TreeNotFound)

	require.NoError(t, w.Abort())

	w2, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, w2.Abort())
}

// Invariant 8: revisions increase monotonically across commits.
func TestInvariant_MonotoneRevisions(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})

	var last uint64
	for i := 0; i < 5; i++ {
		w, err := e.BeginWrite()
		require.NoError(t, err)
		rev := w.Revision()
		_, err = w.Insert("t", []byte{byte(i)}, []byte{byte(i)})
		require.NoError(t, err)
		require.NoError(t, w.Commit())
		require.Greater(t, rev, last)
		last = rev
	}
}

// Invariant 9: reclaiming after deleting everything returns pages to the
// free list rather than growing the file further.
func TestInvariant_SpaceReclamation(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{FanOut: 4})

	w, err := e.BeginWrite()
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := w.Insert("t", []byte{byte(i)}, []byte("value-padding-to-force-pages"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())

	w2, err := e.BeginWrite()
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := w2.Delete("t", []byte{byte(i)}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, w2.Commit())

	require.NoError(t, e.manager.Reclaim())
	require.NotEqual(t, page.FreeListEnd, e.manager.FreeListHead())
}

func TestCreateTreeRejectsDuplicateName(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})
	err := e.CreateTree("t", btree.Options{FanOut: 4, KeyCodecID: "bytes", ValueCodecID: "bytes"})
	require.ErrorIs(t, err, errs.TreeAlreadyManaged)
}

func TestReadTimeoutExpiresSnapshot(t *testing.T) {
	e := open(t)
	createTree(t, e, "t", btree.Options{})

	r, err := e.BeginRead(20 * time.Millisecond)
	require.NoError(t, err)
	time.Sleep(1200 * time.Millisecond) // past the manager's 1s timekeeper tick

	_, err = r.Get("t", []byte("k"))
	require.ErrorIs(t, err, errs.BadTransactionState)
}
