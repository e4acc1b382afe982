package btree

// resultKind discriminates the tagged outcome of an insert or delete probe,
// replacing the class hierarchy of result types the design notes flag for
// re-architecture.
type resultKind int

const (
	kindExists resultKind = iota
	kindModified
	kindSplit
	kindNotPresent
	kindRemove
	kindBorrowedLeft
	kindBorrowedRight
	kindMerged
)

// opResult is the flat tagged variant every insert/delete step returns.
// Only the fields relevant to Kind are populated; the rest are zero.
type opResult struct {
	Kind resultKind

	NewPage int64 // the (copied) page now representing this subtree, if any

	PreviousValue []byte // Modified: the value the key previously held
	RemovedValue  []byte // Remove/Merged/Borrowed*: the value removed

	Pivot      []byte // Split: first key of the right page
	LeftPage   int64  // Split: left half
	RightPage  int64  // Split: right half

	NewLeftMost []byte // Remove: set when the deleted key was the leaf's first
	NewSibling  int64  // Borrowed*: the sibling's copied page after the borrow
}
