// Package engine is the programmatic surface over the rest of the store:
// Open, CreateTree, BeginRead, BeginWrite, and the cursor operations
// reached through the transactions it hands out.
//
// Modeled on mjm918-tur's pkg/turdb/db.go Open/Close lifecycle and lock
// acquisition, and pkg/tree/factory.go's single entry point for building
// every tree (system and user alike) through one path.
package engine

import (
	"os"
	"time"

	"mavibot/pkg/btree"
	"mavibot/pkg/errs"
	"mavibot/pkg/reclaim"
	"mavibot/pkg/storage"
	"mavibot/pkg/txn"
)

// MemoryPath opens an Engine that never touches disk.
const MemoryPath = ":memory:"

// Options configures Open. Zero values select the documented defaults.
type Options struct {
	PageSize        int64
	CacheSize       int
	ReadTimeout     time.Duration
	ReclaimInterval time.Duration
}

const (
	defaultPageSize        = 4096
	defaultReclaimInterval = 5 * time.Second
)

// Engine owns one open data file (or in-memory buffer): the storage
// substrate, the transaction manager built on it, and the background
// reclaimer that keeps the file from growing without bound.
type Engine struct {
	path     string
	backing  storage.Storage
	lockFile *os.File
	manager  *txn.Manager
	sched    *reclaim.Scheduler
}

// Open opens path (or engine.MemoryPath for a pure in-memory store),
// creating it if it does not exist.
func Open(path string, opts Options) (*Engine, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	reclaimInterval := opts.ReclaimInterval
	if reclaimInterval == 0 {
		reclaimInterval = defaultReclaimInterval
	}

	var backing storage.Storage
	var lockFile *os.File

	if path == MemoryPath {
		backing = storage.NewMemoryStorage(2 * pageSize)
	} else {
		lf, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, errs.IoError
		}
		lockFile = lf

		mmapStorage, err := storage.OpenMmapStorage(path, 2*pageSize)
		if err != nil {
			lockFile.Close()
			return nil, errs.IoError
		}
		backing = mmapStorage
	}

	manager, err := txn.Open(backing, lockFile, txn.Options{
		PageSize:    pageSize,
		CacheSize:   opts.CacheSize,
		ReadTimeout: opts.ReadTimeout,
	})
	if err != nil {
		backing.Close()
		if lockFile != nil {
			lockFile.Close()
		}
		return nil, err
	}

	e := &Engine{
		path:     path,
		backing:  backing,
		lockFile: lockFile,
		manager:  manager,
	}
	e.sched = reclaim.Start(manager, reclaimInterval)
	return e, nil
}

// CreateTree registers a new tree. Config mirrors spec.md 6's per-tree
// options: fan-out, whether duplicate values are allowed, the inline/
// sub-tree promotion thresholds, and the codec identifiers to resolve. The
// thresholds are not persisted with the tree, so transactions on it run
// with the default thresholds (8 and 1).
func (e *Engine) CreateTree(name string, opts btree.Options) error {
	return e.manager.CreateTree(name, opts)
}

// BeginRead opens a read snapshot. timeout <= 0 selects the engine's
// configured default (30s unless overridden).
func (e *Engine) BeginRead(timeout time.Duration) (*txn.ReadTxn, error) {
	return e.manager.BeginRead(timeout)
}

// BeginWrite opens the single write transaction, blocking until any prior
// writer has committed or aborted.
func (e *Engine) BeginWrite() (*txn.WriteTxn, error) {
	return e.manager.BeginWrite()
}

// Reclaim requests an out-of-band reclamation pass instead of waiting for
// the background scheduler's next tick.
func (e *Engine) Reclaim() {
	e.sched.Trigger()
}

// Close stops the background reclaimer and releases the file.
func (e *Engine) Close() error {
	e.sched.Stop()
	return e.manager.Close()
}
