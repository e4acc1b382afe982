package engine

import "mavibot/pkg/errs"

// These re-export pkg/errs' sentinels as the engine's public error
// identifiers. The sentinels themselves live in the shared leaf package
// pkg/errs rather than here, because pkg/page, pkg/btree, and pkg/txn all
// need to return and compare the same values without importing pkg/engine
// (which depends on every one of them) -- see DESIGN.md.
var (
	ErrKeyNotFound              = errs.KeyNotFound
	ErrTreeNotFound             = errs.TreeNotFound
	ErrTreeAlreadyManaged       = errs.TreeAlreadyManaged
	ErrDuplicateValueNotAllowed = errs.DuplicateValueNotAllowed
	ErrCorruption               = errs.Corruption
	ErrIoError                  = errs.IoError
	ErrEndOfFile                = errs.EndOfFile
	ErrCursorError              = errs.CursorError
	ErrBadTransactionState      = errs.BadTransactionState
)
