package txn

import (
	"os"
	"sync"
	"time"

	"mavibot/pkg/btree"
	"mavibot/pkg/cache"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
	"mavibot/pkg/storage"
)

// DefaultReadTimeout matches the specification's per-tree default.
const DefaultReadTimeout = 30 * time.Second

// Options configures a Manager at open time.
type Options struct {
	PageSize    int64
	CacheSize   int
	ReadTimeout time.Duration
}

const (
	catalogFanOut = 32
)

// Manager owns the file-level state shared by every transaction: the two
// GlobalHeader slots, the page store and cache beneath them, the tree-of-
// trees and copied-pages catalog trees, the single-writer mutex, and the
// registry of live read snapshots.
//
// Grounded on the revision/lifecycle bookkeeping of mjm918-tur's
// pkg/mvcc.TransactionManager, replacing its multi-writer conflict
// detection (write-write tracking across concurrent writers) with the
// specification's single-writer model: at most one WriteTxn is ever active,
// so there is nothing to detect conflicts against.
type Manager struct {
	backing  storage.Storage
	lockFile *os.File

	store *page.Store
	cache *cache.Cache

	headerMu   sync.Mutex
	committed  *GlobalHeader
	activeSlot int // 0 or 1: which slot holds `committed`

	writerMu sync.Mutex

	snapshots   *snapshotRegistry
	treeOfTrees *btree.Tree
	copiedPages *btree.Tree

	readTimeout time.Duration

	stopTimekeeper chan struct{}
}

// isZeroed reports whether every byte in b is zero, used to tell a freshly
// allocated header slot (never written) apart from one whose magic or
// checksum genuinely failed to verify.
func isZeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Open initializes or recovers a Manager from backing. fileLock, if
// non-nil, is flocked for the process lifetime as a crash/multi-process
// backstop; pass nil for :memory: mode.
func Open(backing storage.Storage, fileLock *os.File, opts Options) (*Manager, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = page.DefaultPageSize
	}
	if pageSize < page.MinPageSize {
		return nil, errs.Corruption
	}
	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}
	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = 1000
	}

	if fileLock != nil {
		if err := lockFile(fileLock); err != nil {
			return nil, errs.BadTransactionState
		}
	}

	slotSize := pageSize
	base := 2 * pageSize

	if backing.Size() < base {
		if err := backing.Grow(base); err != nil {
			return nil, errs.IoError
		}
	}

	headerA, errA := DecodeGlobalHeader(backing.Slice(0, slotSize))
	headerB, errB := DecodeGlobalHeader(backing.Slice(slotSize, slotSize))

	var committed *GlobalHeader
	activeSlot := 0
	switch {
	case errA == nil && errB == nil:
		if headerB.Revision > headerA.Revision {
			committed, activeSlot = headerB, 1
		} else {
			committed, activeSlot = headerA, 0
		}
	case errA == nil:
		committed, activeSlot = headerA, 0
	case errB == nil:
		committed, activeSlot = headerB, 1
	default:
		// Neither slot decodes. The backing store is freshly allocated (both
		// slots still all zero bytes) rather than corrupt only when there is
		// no magic/checksum to have failed in the first place: a fresh
		// MemoryStorage or a just-truncated file is already sized to base by
		// the caller, so Size() == base here and can't be used to tell fresh
		// from corrupt -- the zero check is what actually distinguishes them.
		if isZeroed(backing.Slice(0, slotSize)) && isZeroed(backing.Slice(slotSize, slotSize)) {
			header := NewGlobalHeader(pageSize)
			slotBuf := EncodeGlobalHeader(header, slotSize)
			copy(backing.Slice(0, slotSize), slotBuf)
			copy(backing.Slice(slotSize, slotSize), slotBuf)
			if err := backing.Sync(); err != nil {
				return nil, errs.IoError
			}
			committed, activeSlot = header, 0
		} else {
			return nil, errs.Corruption
		}
	}

	store := page.Open(backing, pageSize, base, committed.FreeListHead)
	pageCache := cache.New(cacheSize)

	m := &Manager{
		backing:        backing,
		lockFile:       fileLock,
		store:          store,
		cache:          pageCache,
		committed:      committed,
		activeSlot:     activeSlot,
		snapshots:      newSnapshotRegistry(),
		readTimeout:    readTimeout,
		stopTimekeeper: make(chan struct{}),
	}

	treeOfTrees, err := btree.New("_treeOfTrees", store, pageCache, btree.Options{
		FanOut: catalogFanOut, KeyCodecID: "nameRevision", ValueCodecID: "bytes",
	})
	if err != nil {
		return nil, err
	}
	copiedPages, err := btree.New("_copiedPages", store, pageCache, btree.Options{
		FanOut: catalogFanOut, KeyCodecID: "revisionName", ValueCodecID: "bytes",
	})
	if err != nil {
		return nil, err
	}
	m.treeOfTrees = treeOfTrees
	m.copiedPages = copiedPages

	go m.timekeeper()

	return m, nil
}

// Close flushes and releases the manager's resources.
func (m *Manager) Close() error {
	close(m.stopTimekeeper)
	if err := m.store.Sync(); err != nil {
		return err
	}
	if m.lockFile != nil {
		unlockFile(m.lockFile)
		m.lockFile.Close()
	}
	return m.backing.Close()
}

// timekeeper closes read snapshots that outlived their timeout, until the
// manager is closed.
func (m *Manager) timekeeper() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopTimekeeper:
			return
		case now := <-ticker.C:
			m.snapshots.closeExpired(now)
		}
	}
}

// FreeListHead returns the free-list head of the currently committed
// GlobalHeader, mainly useful to tests checking that reclamation actually
// returned pages rather than growing the file further.
func (m *Manager) FreeListHead() int64 {
	return m.currentHeader().FreeListHead
}

func (m *Manager) currentHeader() *GlobalHeader {
	m.headerMu.Lock()
	defer m.headerMu.Unlock()
	h := *m.committed
	return &h
}
