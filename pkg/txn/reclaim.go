package txn

import (
	"mavibot/pkg/btree"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

// MinLiveRevision returns the oldest revision any open ReadTxn still
// pins, or the current committed revision if none are open.
func (m *Manager) MinLiveRevision() uint64 {
	return m.snapshots.minLiveRevision(m.currentHeader().Revision)
}

// Reclaim runs one reclamation pass: free every copied-pages entry older
// than any live snapshot, then prune the tree-of-trees entries those pages
// made stale, publishing the result as a single new revision.
//
// Grounded on mjm918-tur's pkg/mvcc.VersionChain.PruneOldVersions: walk a
// chain, compute a cutoff (there, a commit timestamp; here, minLiveRevision),
// strip everything provably unreachable below it. Runs under the same
// writer lock as any other write transaction, per spec.md 4.5's "runs as
// its own write transaction."
func (m *Manager) Reclaim() error {
	m.writerMu.Lock()
	defer m.writerMu.Unlock()

	header := m.currentHeader()
	minLive := m.snapshots.minLiveRevision(header.Revision)

	copiedRoot := header.CopiedPages
	freedKeys, err := m.freeStaleCopiedPages(copiedRoot, minLive)
	if err != nil {
		return err
	}
	for _, key := range freedKeys.keys {
		newRoot, _, _, err := m.copiedPages.Delete(copiedRoot, key, nil, header.Revision+1)
		if err != nil && err != errs.KeyNotFound {
			return err
		}
		copiedRoot = newRoot
	}

	treeRoot := header.TreeOfTrees
	staleHeaders, err := m.findStaleTreeHeaders(treeRoot, minLive)
	if err != nil {
		return err
	}
	for _, key := range staleHeaders {
		newRoot, _, _, err := m.treeOfTrees.Delete(treeRoot, key, nil, header.Revision+1)
		if err != nil && err != errs.KeyNotFound {
			return err
		}
		treeRoot = newRoot
	}

	if len(freedKeys.keys) == 0 && len(staleHeaders) == 0 {
		return nil
	}

	if err := m.store.Sync(); err != nil {
		return errs.IoError
	}
	return m.publishHeader(&GlobalHeader{
		PageSize:     header.PageSize,
		Revision:     header.Revision + 1,
		FreeListHead: m.store.FreeListHead(),
		TreeOfTrees:  treeRoot,
		CopiedPages:  copiedRoot,
		TxnCounter:   header.TxnCounter + 1,
	})
}

type staleCopiedPages struct {
	keys [][]byte
}

// freeStaleCopiedPages walks the copied-pages tree in (revision, name)
// order -- ascending by revision first -- so every entry older than
// minLive is freed and listed for removal before the first live entry
// is reached.
func (m *Manager) freeStaleCopiedPages(root int64, minLive uint64) (*staleCopiedPages, error) {
	out := &staleCopiedPages{}
	if root == page.NoPage {
		return out, nil
	}
	cur := btree.NewCursor(m.copiedPages, root)
	if err := cur.First(); err != nil {
		return nil, err
	}
	for cur.Valid() {
		key := cur.Key()
		revision, _ := decodeRevisionName(key)
		if revision >= minLive {
			break
		}
		val, err := cur.Value()
		if err != nil {
			return nil, err
		}
		offsets, err := decodeOffsetList(val)
		if err != nil {
			return nil, err
		}
		for _, off := range offsets {
			if err := m.store.Free(off); err != nil {
				return nil, err
			}
		}
		out.keys = append(out.keys, append([]byte{}, key...))
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// findStaleTreeHeaders walks the tree-of-trees in (name, revision) order
// and returns the keys of every entry that a live snapshot can no longer
// need: for each name, every entry older than the newest one at or below
// minLive is stale, since that newest one now answers every lookup a live
// reader could still make at or below minLive. Entries at or above minLive
// are never touched.
func (m *Manager) findStaleTreeHeaders(root int64, minLive uint64) ([][]byte, error) {
	if root == page.NoPage {
		return nil, nil
	}
	var stale [][]byte
	curName := ""
	haveFloor := false
	var floorKey []byte

	cur := btree.NewCursor(m.treeOfTrees, root)
	if err := cur.First(); err != nil {
		return nil, err
	}
	for cur.Valid() {
		key := cur.Key()
		name, revision := decodeNameRevision(key)
		if name != curName {
			curName = name
			haveFloor = false
			floorKey = nil
		}
		if revision <= minLive {
			if haveFloor {
				stale = append(stale, floorKey)
			}
			floorKey = append([]byte{}, key...)
			haveFloor = true
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return stale, nil
}
