package txn

import (
	"encoding/binary"
	"time"

	"mavibot/pkg/btree"
	"mavibot/pkg/codec"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

// resolvedTree is what loadTree/loadTreeForWrite hand back: the tree
// algorithm object (stateless beyond its codecs and fan-out) plus the
// TreeHeader it was built from.
type resolvedTree struct {
	tree   *btree.Tree
	header *codec.TreeHeader
}

// findNameRevisionEntry returns the tree-of-trees entry for name at the
// latest revision <= revision, i.e. the TreeHeader offset a snapshot
// pinned at revision should see.
func (m *Manager) findNameRevisionEntry(root int64, name string, revision uint64) (int64, bool, error) {
	if root == page.NoPage {
		return 0, false, nil
	}
	upper := revision
	if upper != ^uint64(0) {
		upper++
	}
	cur := btree.NewCursor(m.treeOfTrees, root)
	if err := cur.Seek(encodeNameRevision(name, upper)); err != nil {
		return 0, false, err
	}
	if err := cur.Prev(); err != nil {
		return 0, false, err
	}
	if !cur.Valid() {
		return 0, false, nil
	}
	gotName, gotRevision := decodeNameRevision(cur.Key())
	if gotName != name || gotRevision > revision {
		return 0, false, nil
	}
	val, err := cur.Value()
	if err != nil {
		return 0, false, err
	}
	return int64(binary.BigEndian.Uint64(val)), true, nil
}

func (m *Manager) resolveTree(treeOfTreesRoot int64, name string, revision uint64) (*resolvedTree, error) {
	headerOffset, ok, err := m.findNameRevisionEntry(treeOfTreesRoot, name, revision)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.TreeNotFound
	}
	raw, err := m.store.Read(headerOffset)
	if err != nil {
		return nil, err
	}
	header, err := codec.DecodeTreeHeader(raw)
	if err != nil {
		return nil, err
	}
	infoRaw, err := m.store.Read(header.TreeInfoOffset)
	if err != nil {
		return nil, err
	}
	info, err := codec.DecodeTreeInfo(infoRaw)
	if err != nil {
		return nil, err
	}
	t, err := btree.New(name, m.store, m.cache, btree.Options{
		FanOut:          int(info.FanOut),
		AllowDuplicates: info.TreeType == 1,
		KeyCodecID:      info.KeyCodecID,
		ValueCodecID:    info.ValueCodecID,
	})
	if err != nil {
		return nil, err
	}
	return &resolvedTree{tree: t, header: header}, nil
}

// CreateTree registers a new tree named name with the given configuration.
// It runs as its own minimal write transaction, serially with every other
// writer: a colliding name fails with errs.TreeAlreadyManaged.
func (m *Manager) CreateTree(name string, opts btree.Options) error {
	m.writerMu.Lock()
	defer m.writerMu.Unlock()

	header := m.currentHeader()
	if _, ok, err := m.findNameRevisionEntry(header.TreeOfTrees, name, header.Revision); err != nil {
		return err
	} else if ok {
		return errs.TreeAlreadyManaged
	}

	t, err := btree.New(name, m.store, m.cache, opts)
	if err != nil {
		return err
	}

	infoBytes := codec.EncodeTreeInfo(t.Info())
	infoOffsets, err := m.store.Allocate(int64(len(infoBytes)))
	if err != nil {
		return errs.IoError
	}
	if err := m.store.Write(infoOffsets, infoBytes); err != nil {
		return errs.IoError
	}

	revision := header.Revision + 1
	treeHeader := &codec.TreeHeader{
		Revision:       revision,
		ElementCount:   0,
		RootOffset:     page.NoPage,
		TreeInfoOffset: infoOffsets[0],
	}
	headerBytes := codec.EncodeTreeHeader(treeHeader)
	headerOffsets, err := m.store.Allocate(int64(len(headerBytes)))
	if err != nil {
		return errs.IoError
	}
	if err := m.store.Write(headerOffsets, headerBytes); err != nil {
		return errs.IoError
	}

	valBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(valBuf, uint64(headerOffsets[0]))
	newTreeOfTreesRoot, _, _, err := m.treeOfTrees.Insert(header.TreeOfTrees, encodeNameRevision(name, revision), valBuf, revision)
	if err != nil {
		return err
	}

	if err := m.store.Sync(); err != nil {
		return errs.IoError
	}

	return m.publishHeader(&GlobalHeader{
		PageSize:     header.PageSize,
		Revision:     revision,
		FreeListHead: m.store.FreeListHead(),
		TreeOfTrees:  newTreeOfTreesRoot,
		CopiedPages:  header.CopiedPages,
		TxnCounter:   header.TxnCounter + 1,
	})
}

// publishHeader writes h to the alternate A/B slot and flushes it; the
// successful flush of this slot is the commit point (spec.md 4.4 step 6).
func (m *Manager) publishHeader(h *GlobalHeader) error {
	m.headerMu.Lock()
	defer m.headerMu.Unlock()

	altSlot := 1 - m.activeSlot
	slotSize := m.store.PageSize()
	buf := EncodeGlobalHeader(h, slotSize)
	dst := m.backing.Slice(int64(altSlot)*slotSize, slotSize)
	copy(dst, buf)
	if err := m.backing.Sync(); err != nil {
		return errs.IoError
	}
	m.committed = h
	m.activeSlot = altSlot
	return nil
}

// ReadTxn is a snapshot-isolated reader pinned to the GlobalHeader that was
// committed when it opened. It never blocks the writer and is never
// blocked by it.
type ReadTxn struct {
	mgr    *Manager
	header *GlobalHeader
	handle *snapshotHandle
	trees  map[string]*resolvedTree
	closed bool
}

// BeginRead opens a read snapshot against the currently committed state.
// timeout <= 0 selects the manager's read timeout (Options.ReadTimeout, or
// DefaultReadTimeout when that is unset).
func (m *Manager) BeginRead(timeout time.Duration) (*ReadTxn, error) {
	if timeout <= 0 {
		timeout = m.readTimeout
	}
	header := m.currentHeader()
	return &ReadTxn{
		mgr:    m,
		header: header,
		handle: m.snapshots.open(header.Revision, timeout),
		trees:  make(map[string]*resolvedTree),
	}, nil
}

func (r *ReadTxn) checkOpen() error {
	if r.closed || r.mgr.snapshots.isExpired(r.handle) {
		return errs.BadTransactionState
	}
	return nil
}

func (r *ReadTxn) resolve(name string) (*resolvedTree, error) {
	if rt, ok := r.trees[name]; ok {
		return rt, nil
	}
	rt, err := r.mgr.resolveTree(r.header.TreeOfTrees, name, r.header.Revision)
	if err != nil {
		if err == errs.TreeNotFound {
			r.closed = true
		}
		return nil, err
	}
	r.trees[name] = rt
	return rt, nil
}

// Get returns the value stored for key in treeName.
func (r *ReadTxn) Get(treeName string, key []byte) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	rt, err := r.resolve(treeName)
	if err != nil {
		return nil, err
	}
	return rt.tree.Get(rt.header.RootOffset, key)
}

// GetAll returns every value stored for key, for a duplicate-enabled tree.
func (r *ReadTxn) GetAll(treeName string, key []byte) ([][]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	rt, err := r.resolve(treeName)
	if err != nil {
		return nil, err
	}
	return rt.tree.GetAll(rt.header.RootOffset, key)
}

// Contains reports whether key is present in treeName.
func (r *ReadTxn) Contains(treeName string, key []byte) (bool, error) {
	_, err := r.Get(treeName, key)
	switch err {
	case nil:
		return true, nil
	case errs.KeyNotFound:
		return false, nil
	default:
		return false, err
	}
}

// Browse opens a cursor over the whole of treeName, positioned BEFORE_FIRST.
func (r *ReadTxn) Browse(treeName string) (*btree.Cursor, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	rt, err := r.resolve(treeName)
	if err != nil {
		return nil, err
	}
	return btree.NewCursor(rt.tree, rt.header.RootOffset), nil
}

// BrowseFrom opens a cursor over treeName seeked to the first key >= key.
func (r *ReadTxn) BrowseFrom(treeName string, key []byte) (*btree.Cursor, error) {
	c, err := r.Browse(treeName)
	if err != nil {
		return nil, err
	}
	if err := c.Seek(key); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases this snapshot. The reclaimer may reuse any page once no
// open snapshot's minLiveRevision still requires it.
func (r *ReadTxn) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.mgr.snapshots.close(r.handle)
}

// treeState is a write transaction's in-progress view of one tree: the
// root it is building on top of, and every page it has copied away so far,
// recorded here for the copied-pages catalog at commit.
type treeState struct {
	tree       *btree.Tree
	infoOffset int64
	root       int64
	copied     []int64
	touched    bool
}

// WriteTxn is the single mutually-exclusive writer. Only one may be open
// at a time; BeginWrite blocks until the previous one commits or aborts.
type WriteTxn struct {
	mgr      *Manager
	revision uint64
	base     uint64
	trees    map[string]*treeState
	poisoned bool
	done     bool
}

// BeginWrite blocks on the process-wide writer mutex, then opens a write
// transaction at committed.revision + 1.
func (m *Manager) BeginWrite() (*WriteTxn, error) {
	m.writerMu.Lock()
	header := m.currentHeader()
	return &WriteTxn{
		mgr:      m,
		revision: header.Revision + 1,
		base:     header.Revision,
		trees:    make(map[string]*treeState),
	}, nil
}

// Revision returns the revision this write transaction will commit as.
func (w *WriteTxn) Revision() uint64 { return w.revision }

func (w *WriteTxn) checkOpen() error {
	if w.done || w.poisoned {
		return errs.BadTransactionState
	}
	return nil
}

// checkNotDone is the weaker check Abort uses: a poisoned transaction must
// still be abortable (spec.md 7 -- "any poisoned write transaction must be
// aborted before a new one can begin"), it just can't Commit or take any
// further Insert/Delete.
func (w *WriteTxn) checkNotDone() error {
	if w.done {
		return errs.BadTransactionState
	}
	return nil
}

// poison marks the transaction unusable for the error kinds spec.md 7
// designates as poisoning; the rest (KeyNotFound, DuplicateValueNotAllowed,
// EndOfFile, CursorError) pass through untouched.
func (w *WriteTxn) poison(err error) error {
	switch err {
	case errs.Corruption, errs.IoError, errs.TreeNotFound:
		w.poisoned = true
	}
	return err
}

func (w *WriteTxn) getTree(name string) (*treeState, error) {
	if ts, ok := w.trees[name]; ok {
		return ts, nil
	}
	rt, err := w.mgr.resolveTree(w.mgr.currentHeader().TreeOfTrees, name, w.base)
	if err != nil {
		return nil, w.poison(err)
	}
	ts := &treeState{tree: rt.tree, infoOffset: rt.header.TreeInfoOffset, root: rt.header.RootOffset}
	w.trees[name] = ts
	return ts, nil
}

// Insert writes key/value into treeName.
func (w *WriteTxn) Insert(treeName string, key, value []byte) (*btree.InsertOutcome, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	ts, err := w.getTree(treeName)
	if err != nil {
		return nil, err
	}
	newRoot, copied, outcome, err := ts.tree.Insert(ts.root, key, value, w.revision)
	if err != nil {
		return nil, w.poison(err)
	}
	if outcome.Existed && ts.tree.AllowDuplicates() && outcome.PreviousValue == nil {
		return nil, errs.DuplicateValueNotAllowed
	}
	ts.root = newRoot
	ts.copied = append(ts.copied, copied...)
	ts.touched = true
	return outcome, nil
}

// Delete removes key (or, for a duplicate-enabled tree, just the instance
// matching value when value is non-nil) from treeName.
func (w *WriteTxn) Delete(treeName string, key, value []byte) ([]byte, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	ts, err := w.getTree(treeName)
	if err != nil {
		return nil, err
	}
	newRoot, copied, removed, err := ts.tree.Delete(ts.root, key, value, w.revision)
	if err != nil {
		if err == errs.KeyNotFound {
			return nil, err
		}
		return nil, w.poison(err)
	}
	ts.root = newRoot
	ts.copied = append(ts.copied, copied...)
	ts.touched = true
	return removed, nil
}

// Commit executes the seven-step commit protocol: new TreeHeaders and
// tree-of-trees entries for every touched tree, a copied-pages entry per
// touched tree, then the alternate GlobalHeader slot flushed as the single
// atomic commit point.
func (w *WriteTxn) Commit() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	w.done = true
	defer w.mgr.writerMu.Unlock()

	m := w.mgr
	header := m.currentHeader()
	treeOfTreesRoot := header.TreeOfTrees
	copiedPagesRoot := header.CopiedPages

	for name, ts := range w.trees {
		if !ts.touched {
			continue
		}
		treeHeader := &codec.TreeHeader{
			Revision:       w.revision,
			ElementCount:   0,
			RootOffset:     ts.root,
			TreeInfoOffset: ts.infoOffset,
		}
		headerBytes := codec.EncodeTreeHeader(treeHeader)
		offsets, err := m.store.Allocate(int64(len(headerBytes)))
		if err != nil {
			return errs.IoError
		}
		if err := m.store.Write(offsets, headerBytes); err != nil {
			return errs.IoError
		}

		valBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(valBuf, uint64(offsets[0]))
		newRoot, _, _, err := m.treeOfTrees.Insert(treeOfTreesRoot, encodeNameRevision(name, w.revision), valBuf, w.revision)
		if err != nil {
			return err
		}
		treeOfTreesRoot = newRoot

		if len(ts.copied) > 0 {
			cpKey := encodeRevisionName(w.revision, name)
			cpVal := encodeOffsetList(ts.copied)
			newCPRoot, _, _, err := m.copiedPages.Insert(copiedPagesRoot, cpKey, cpVal, w.revision)
			if err != nil {
				return err
			}
			copiedPagesRoot = newCPRoot
		}
	}

	if err := m.store.Sync(); err != nil {
		return errs.IoError
	}

	return m.publishHeader(&GlobalHeader{
		PageSize:     header.PageSize,
		Revision:     w.revision,
		FreeListHead: m.store.FreeListHead(),
		TreeOfTrees:  treeOfTreesRoot,
		CopiedPages:  copiedPagesRoot,
		TxnCounter:   header.TxnCounter + 1,
	})
}

// Abort drops the write-ahead set without touching the file. Unlike Commit,
// this must succeed even when the transaction is poisoned -- otherwise a
// poisoned WriteTxn could never release writerMu and every later writer
// would block forever.
func (w *WriteTxn) Abort() error {
	if err := w.checkNotDone(); err != nil {
		return err
	}
	w.done = true
	w.mgr.writerMu.Unlock()
	return nil
}
