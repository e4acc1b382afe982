// Package errs holds the sentinel error values shared across every layer of
// the engine, from the page substrate up to the transaction manager. Keeping
// them in one leaf package lets every layer return and compare the same
// values without import cycles.
package errs

import "errors"

var (
	// KeyNotFound is returned by a lookup that finds no matching key. It is
	// expected and recoverable; it never poisons a transaction.
	KeyNotFound = errors.New("mavibot: key not found")

	// TreeNotFound is returned when a tree name has no managed tree. It
	// poisons the enclosing transaction as a precaution against stale handles.
	TreeNotFound = errors.New("mavibot: tree not found")

	// TreeAlreadyManaged is returned by CreateTree for a name already in use.
	TreeAlreadyManaged = errors.New("mavibot: tree already managed")

	// DuplicateValueNotAllowed is returned inserting a (key, value) pair that
	// is already present in a duplicate-enabled tree. In a tree without
	// duplicates, inserting a different value for an existing key replaces it.
	DuplicateValueNotAllowed = errors.New("mavibot: duplicate value not allowed")

	// Corruption is returned for bad magic, bad checksum, a broken page
	// chain, or an out-of-range offset. It poisons the enclosing transaction.
	Corruption = errors.New("mavibot: corruption detected")

	// IoError wraps underlying file I/O failures. It poisons the enclosing
	// transaction.
	IoError = errors.New("mavibot: io error")

	// EndOfFile is returned reading past the current file length.
	EndOfFile = errors.New("mavibot: end of file")

	// CursorError is returned for cursor misuse, such as reading a sentinel
	// position.
	CursorError = errors.New("mavibot: cursor error")

	// BadTransactionState is returned for commit/abort on a closed
	// transaction, a double-started writer, or use of a timed-out reader.
	BadTransactionState = errors.New("mavibot: bad transaction state")
)
