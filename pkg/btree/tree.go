package btree

import (
	"mavibot/pkg/cache"
	"mavibot/pkg/codec"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

// Options configures a tree at creation time. FanOut, AllowDuplicates and
// the codec IDs are persisted as a codec.TreeInfo so they survive reopen;
// ValueThresholdUp/ValueThresholdLow are not stored there, so a tree loaded
// from its TreeInfo uses the default thresholds (8 and 1).
type Options struct {
	FanOut            int
	AllowDuplicates   bool
	ValueThresholdUp  int
	ValueThresholdLow int
	KeyCodecID        string
	ValueCodecID      string
}

// Tree implements ordered map semantics K -> V (or K -> set<V> when
// AllowDuplicates is set) over a page.Store, with every mutation producing
// new, copy-on-write pages rather than touching a page already published to
// a reader.
type Tree struct {
	name       string
	io         *pageIO
	keyCodec   KeyCodec
	valueCodec ValueCodec

	fanOut       int
	allowDup     bool
	thresholdUp  int
	thresholdLow int
}

func roundUpPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// New constructs a Tree over store/cache using opts. It does not itself
// allocate a root page; an empty tree is represented by page.NoPage until
// the first insert.
func New(name string, store *page.Store, c *cache.Cache, opts Options) (*Tree, error) {
	kc, ok := ResolveKeyCodec(opts.KeyCodecID)
	if !ok {
		return nil, errs.Corruption
	}
	vc, ok := ResolveValueCodec(opts.ValueCodecID)
	if !ok {
		return nil, errs.Corruption
	}
	upT := opts.ValueThresholdUp
	if upT == 0 {
		upT = defaultUpThreshold
	}
	lowT := opts.ValueThresholdLow
	if lowT == 0 {
		lowT = defaultLowThreshold
	}
	return &Tree{
		name:         name,
		io:           newPageIO(store, c),
		keyCodec:     kc,
		valueCodec:   vc,
		fanOut:       roundUpPow2(opts.FanOut),
		allowDup:     opts.AllowDuplicates,
		thresholdUp:  upT,
		thresholdLow: lowT,
	}, nil
}

// Info builds the TreeInfo describing this tree's configuration.
func (t *Tree) Info() *codec.TreeInfo {
	treeType := byte(0)
	if t.allowDup {
		treeType = 1
	}
	return &codec.TreeInfo{
		FanOut:       uint32(t.fanOut),
		Name:         t.name,
		KeyCodecID:   t.keyCodec.ID(),
		ValueCodecID: t.valueCodec.ID(),
		TreeType:     treeType,
	}
}

// AllowDuplicates reports whether this tree stores K -> set<V> (true) or
// K -> V (false).
func (t *Tree) AllowDuplicates() bool { return t.allowDup }

func (t *Tree) minFill() int { return (t.fanOut + 1) / 2 }

func (t *Tree) cmp() func(a, b []byte) int { return t.keyCodec.Compare }

func childIndexForPos(pos int) int {
	if pos < 0 {
		return -(pos + 1) + 1
	}
	return pos
}

func countOf(d *decoded) int {
	if d.leaf != nil {
		return len(d.leaf.Keys)
	}
	return len(d.node.Keys)
}

// Get returns the single value stored for key (the first value, for a
// duplicate-enabled tree), or errs.KeyNotFound.
func (t *Tree) Get(root int64, key []byte) ([]byte, error) {
	if root == page.NoPage {
		return nil, errs.KeyNotFound
	}
	offset := root
	for {
		d, err := t.io.read(offset)
		if err != nil {
			return nil, err
		}
		if d.leaf != nil {
			pos := codec.FindPos(d.leaf.Keys, key, t.cmp())
			if pos >= 0 {
				return nil, errs.KeyNotFound
			}
			idx := -(pos + 1)
			holder, err := decodeValueHolder(d.leaf.Values[idx])
			if err != nil {
				return nil, err
			}
			if holder.isInline() {
				return holder.inline[0], nil
			}
			return t.leftmostSubtreeKey(holder.sub)
		}
		pos := codec.FindPos(d.node.Keys, key, t.cmp())
		offset = d.node.Children[childIndexForPos(pos)]
	}
}

// GetAll returns every value stored for key in a duplicate-enabled tree.
func (t *Tree) GetAll(root int64, key []byte) ([][]byte, error) {
	if root == page.NoPage {
		return nil, errs.KeyNotFound
	}
	offset := root
	for {
		d, err := t.io.read(offset)
		if err != nil {
			return nil, err
		}
		if d.leaf != nil {
			pos := codec.FindPos(d.leaf.Keys, key, t.cmp())
			if pos >= 0 {
				return nil, errs.KeyNotFound
			}
			idx := -(pos + 1)
			holder, err := decodeValueHolder(d.leaf.Values[idx])
			if err != nil {
				return nil, err
			}
			if holder.isInline() {
				return holder.inline, nil
			}
			return t.allSubtreeKeys(holder.sub)
		}
		pos := codec.FindPos(d.node.Keys, key, t.cmp())
		offset = d.node.Children[childIndexForPos(pos)]
	}
}

func (t *Tree) leftmostSubtreeKey(offset int64) ([]byte, error) {
	for {
		d, err := t.io.read(offset)
		if err != nil {
			return nil, err
		}
		if d.leaf != nil {
			if len(d.leaf.Keys) == 0 {
				return nil, errs.Corruption
			}
			return d.leaf.Keys[0], nil
		}
		offset = d.node.Children[0]
	}
}

func (t *Tree) allSubtreeKeys(offset int64) ([][]byte, error) {
	var out [][]byte
	var walk func(int64) error
	walk = func(off int64) error {
		d, err := t.io.read(off)
		if err != nil {
			return err
		}
		if d.leaf != nil {
			out = append(out, d.leaf.Keys...)
			return nil
		}
		for _, c := range d.node.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(offset); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertOutcome reports whether key already existed and, if so, its previous
// single value (non-duplicate trees only).
type InsertOutcome struct {
	Existed       bool
	PreviousValue []byte
}

// Insert writes key/value into the tree rooted at root, producing a new
// root offset and the list of pages the old tree structure no longer
// references (for the caller to record in the copied-pages catalog).
func (t *Tree) Insert(root int64, key, value []byte, revision uint64) (int64, []int64, *InsertOutcome, error) {
	if root == page.NoPage {
		leaf := &codec.Leaf{
			Revision: revision,
			Keys:     [][]byte{key},
			Values:   [][]byte{encodeValueHolder(newInlineHolder(value))},
		}
		newRoot, err := t.io.writeLeaf(leaf)
		if err != nil {
			return 0, nil, nil, err
		}
		return newRoot, nil, &InsertOutcome{}, nil
	}

	var copied []int64
	res, err := t.insertRec(root, key, value, revision, &copied)
	if err != nil {
		return 0, nil, nil, err
	}

	switch res.Kind {
	case kindExists:
		return root, copied, &InsertOutcome{Existed: true, PreviousValue: res.PreviousValue}, nil
	case kindModified:
		return res.NewPage, copied, &InsertOutcome{Existed: res.PreviousValue != nil, PreviousValue: res.PreviousValue}, nil
	case kindSplit:
		newRootNode := &codec.Node{
			Revision: revision,
			Keys:     [][]byte{res.Pivot},
			Children: []int64{res.LeftPage, res.RightPage},
		}
		newRoot, err := t.io.writeNode(newRootNode)
		if err != nil {
			return 0, nil, nil, err
		}
		return newRoot, copied, &InsertOutcome{}, nil
	default:
		return 0, nil, nil, errs.Corruption
	}
}

func (t *Tree) insertRec(offset int64, key, value []byte, revision uint64, copied *[]int64) (*opResult, error) {
	d, err := t.io.read(offset)
	if err != nil {
		return nil, err
	}
	if d.leaf != nil {
		return t.insertLeaf(offset, d.leaf, key, value, revision, copied)
	}
	return t.insertNode(offset, d.node, key, value, revision, copied)
}

func (t *Tree) insertLeaf(offset int64, leaf *codec.Leaf, key, value []byte, revision uint64, copied *[]int64) (*opResult, error) {
	pos := codec.FindPos(leaf.Keys, key, t.cmp())
	if pos < 0 {
		idx := -(pos + 1)
		holder, err := decodeValueHolder(leaf.Values[idx])
		if err != nil {
			return nil, err
		}

		if !t.allowDup {
			if cmpEq := t.valueCodec.Compare(holder.inline[0], value); cmpEq == 0 {
				return &opResult{Kind: kindExists, PreviousValue: holder.inline[0]}, nil
			}
			prev := holder.inline[0]
			newLeaf := cloneLeaf(leaf)
			newLeaf.Revision = revision
			newLeaf.Values[idx] = encodeValueHolder(newInlineHolder(value))
			newOffset, err := t.io.writeLeaf(newLeaf)
			if err != nil {
				return nil, err
			}
			*copied = append(*copied, offset)
			return &opResult{Kind: kindModified, NewPage: newOffset, PreviousValue: prev}, nil
		}

		newHolder, existed, err := t.addToHolder(holder, value, revision, copied)
		if err != nil {
			return nil, err
		}
		if existed {
			return &opResult{Kind: kindExists}, nil
		}
		newLeaf := cloneLeaf(leaf)
		newLeaf.Revision = revision
		newLeaf.Values[idx] = encodeValueHolder(newHolder)
		newOffset, err := t.io.writeLeaf(newLeaf)
		if err != nil {
			return nil, err
		}
		*copied = append(*copied, offset)
		return &opResult{Kind: kindModified, NewPage: newOffset}, nil
	}

	idx := pos
	newHolderBytes := encodeValueHolder(newInlineHolder(value))
	if len(leaf.Keys) < t.fanOut {
		newLeaf := insertLeafEntry(leaf, idx, key, newHolderBytes, revision)
		newOffset, err := t.io.writeLeaf(newLeaf)
		if err != nil {
			return nil, err
		}
		*copied = append(*copied, offset)
		return &opResult{Kind: kindModified, NewPage: newOffset}, nil
	}

	left, right, pivot := splitLeafWithInsert(leaf, idx, key, newHolderBytes, revision)
	leftOffset, err := t.io.writeLeaf(left)
	if err != nil {
		return nil, err
	}
	rightOffset, err := t.io.writeLeaf(right)
	if err != nil {
		return nil, err
	}
	*copied = append(*copied, offset)
	return &opResult{Kind: kindSplit, Pivot: pivot, LeftPage: leftOffset, RightPage: rightOffset}, nil
}

// addToHolder adds value to a duplicate-enabled key's holder, promoting an
// inline array to a sub-tree once it crosses thresholdUp. Pages the
// sub-tree copies away are appended to copied so the enclosing transaction's
// copied-pages ledger accounts for them too.
func (t *Tree) addToHolder(holder *valueHolder, value []byte, revision uint64, copied *[]int64) (*valueHolder, bool, error) {
	if holder.isInline() {
		if holder.containsInline(value, t.valueCodec.Compare) {
			return holder, true, nil
		}
		grown := append(append([][]byte{}, holder.inline...), value)
		if len(grown) <= t.thresholdUp {
			return &valueHolder{inline: grown, sub: page.NoPage}, false, nil
		}
		subRoot, err := t.buildSubtree(grown, revision)
		if err != nil {
			return nil, false, err
		}
		return &valueHolder{sub: subRoot}, false, nil
	}

	sub := &Tree{name: t.name + "$values", io: t.io, keyCodec: t.valueCodec, valueCodec: BytesCodec{}, fanOut: t.fanOut, allowDup: false}
	newSub, subCopied, outcome, err := sub.Insert(holder.sub, value, []byte{}, revision)
	if err != nil {
		return nil, false, err
	}
	if outcome.Existed {
		return holder, true, nil
	}
	*copied = append(*copied, subCopied...)
	return &valueHolder{sub: newSub}, false, nil
}

// buildSubtree creates a fresh sub-tree over values, keyed by the value
// codec, used when an inline value array is promoted.
func (t *Tree) buildSubtree(values [][]byte, revision uint64) (int64, error) {
	sub := &Tree{name: t.name + "$values", io: t.io, keyCodec: t.valueCodec, valueCodec: BytesCodec{}, fanOut: t.fanOut, allowDup: false}
	root := int64(page.NoPage)
	for _, v := range values {
		newRoot, _, _, err := sub.Insert(root, v, []byte{}, revision)
		if err != nil {
			return 0, err
		}
		root = newRoot
	}
	return root, nil
}

func (t *Tree) insertNode(offset int64, node *codec.Node, key, value []byte, revision uint64, copied *[]int64) (*opResult, error) {
	pos := codec.FindPos(node.Keys, key, t.cmp())
	idx := childIndexForPos(pos)
	childOffset := node.Children[idx]

	childRes, err := t.insertRec(childOffset, key, value, revision, copied)
	if err != nil {
		return nil, err
	}

	switch childRes.Kind {
	case kindExists:
		return childRes, nil
	case kindModified:
		newNode := cloneNode(node)
		newNode.Revision = revision
		newNode.Children[idx] = childRes.NewPage
		newOffset, err := t.io.writeNode(newNode)
		if err != nil {
			return nil, err
		}
		*copied = append(*copied, offset)
		return &opResult{Kind: kindModified, NewPage: newOffset, PreviousValue: childRes.PreviousValue}, nil
	case kindSplit:
		if len(node.Keys) < t.fanOut {
			newNode := insertNodeSplit(node, idx, childRes.Pivot, childRes.LeftPage, childRes.RightPage, revision)
			newOffset, err := t.io.writeNode(newNode)
			if err != nil {
				return nil, err
			}
			*copied = append(*copied, offset)
			return &opResult{Kind: kindModified, NewPage: newOffset}, nil
		}
		left, right, upPivot := splitNodeWithInsert(node, idx, childRes.Pivot, childRes.LeftPage, childRes.RightPage, revision)
		leftOffset, err := t.io.writeNode(left)
		if err != nil {
			return nil, err
		}
		rightOffset, err := t.io.writeNode(right)
		if err != nil {
			return nil, err
		}
		*copied = append(*copied, offset)
		return &opResult{Kind: kindSplit, Pivot: upPivot, LeftPage: leftOffset, RightPage: rightOffset}, nil
	default:
		return nil, errs.Corruption
	}
}

// Delete removes key (or, in a duplicate-enabled tree, just the instance
// matching targetValue when non-nil) from the tree rooted at root.
func (t *Tree) Delete(root int64, key, targetValue []byte, revision uint64) (int64, []int64, []byte, error) {
	if root == page.NoPage {
		return 0, nil, nil, errs.KeyNotFound
	}
	var copied []int64
	res, err := t.deleteRec(root, key, targetValue, revision, true, &copied)
	if err != nil {
		return 0, nil, nil, err
	}
	if res.Kind == kindNotPresent {
		return 0, nil, nil, errs.KeyNotFound
	}

	newRoot := res.NewPage
	// Height collapse: an interior root with a single remaining child
	// demotes to that child.
	for newRoot != page.NoPage {
		d, err := t.io.read(newRoot)
		if err != nil {
			return 0, nil, nil, err
		}
		if d.leaf != nil {
			if len(d.leaf.Keys) == 0 {
				newRoot = page.NoPage
			}
			break
		}
		if len(d.node.Children) == 1 {
			copied = append(copied, newRoot)
			newRoot = d.node.Children[0]
			continue
		}
		break
	}
	return newRoot, copied, res.RemovedValue, nil
}

func (t *Tree) deleteRec(offset int64, key, targetValue []byte, revision uint64, isRoot bool, copied *[]int64) (*opResult, error) {
	d, err := t.io.read(offset)
	if err != nil {
		return nil, err
	}
	if d.leaf != nil {
		return t.deleteLeaf(offset, d.leaf, key, targetValue, revision, copied)
	}
	return t.deleteNode(offset, d.node, key, targetValue, revision, isRoot, copied)
}

func (t *Tree) deleteLeaf(offset int64, leaf *codec.Leaf, key, targetValue []byte, revision uint64, copied *[]int64) (*opResult, error) {
	pos := codec.FindPos(leaf.Keys, key, t.cmp())
	if pos >= 0 {
		return &opResult{Kind: kindNotPresent}, nil
	}
	idx := -(pos + 1)

	removeWholeKey := targetValue == nil || !t.allowDup
	var removedValue []byte
	var newLeaf *codec.Leaf

	if removeWholeKey {
		holder, err := decodeValueHolder(leaf.Values[idx])
		if err != nil {
			return nil, err
		}
		if holder.isInline() {
			removedValue = holder.inline[0]
		} else {
			removedValue, _ = t.leftmostSubtreeKey(holder.sub)
		}
		newLeaf = removeLeafEntry(leaf, idx, revision)
	} else {
		holder, err := decodeValueHolder(leaf.Values[idx])
		if err != nil {
			return nil, err
		}
		removedValue = targetValue
		newHolder, empty, err := t.removeFromHolder(holder, targetValue, revision, copied)
		if err != nil {
			return nil, err
		}
		if empty {
			newLeaf = removeLeafEntry(leaf, idx, revision)
		} else {
			newLeaf = cloneLeaf(leaf)
			newLeaf.Revision = revision
			newLeaf.Values[idx] = encodeValueHolder(newHolder)
		}
	}

	newOffset, err := t.io.writeLeaf(newLeaf)
	if err != nil {
		return nil, err
	}
	*copied = append(*copied, offset)

	res := &opResult{Kind: kindRemove, NewPage: newOffset, RemovedValue: removedValue}
	if idx == 0 && len(newLeaf.Keys) > 0 {
		res.NewLeftMost = newLeaf.Keys[0]
	}
	return res, nil
}

// removeFromHolder removes value from a duplicate key's holder, demoting a
// sub-tree back to an inline array once its size reaches thresholdLow (the
// specification's chosen resolution of the ambiguous demotion point). Pages
// the sub-tree copies away are appended to copied so the enclosing
// transaction's copied-pages ledger accounts for them too.
func (t *Tree) removeFromHolder(holder *valueHolder, value []byte, revision uint64, copied *[]int64) (*valueHolder, bool, error) {
	if holder.isInline() {
		kept := make([][]byte, 0, len(holder.inline))
		for _, v := range holder.inline {
			if t.valueCodec.Compare(v, value) != 0 {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			return nil, true, nil
		}
		return &valueHolder{inline: kept, sub: page.NoPage}, false, nil
	}

	sub := &Tree{name: t.name + "$values", io: t.io, keyCodec: t.valueCodec, valueCodec: BytesCodec{}, fanOut: t.fanOut, allowDup: false}
	newSub, subCopied, _, err := sub.Delete(holder.sub, value, nil, revision)
	if err != nil && err != errs.KeyNotFound {
		return nil, false, err
	}
	*copied = append(*copied, subCopied...)
	if newSub == page.NoPage {
		return nil, true, nil
	}
	remaining, err := sub.allSubtreeKeys(newSub)
	if err != nil {
		return nil, false, err
	}
	if len(remaining) <= t.thresholdLow {
		return &valueHolder{inline: remaining, sub: page.NoPage}, false, nil
	}
	return &valueHolder{sub: newSub}, false, nil
}

func (t *Tree) deleteNode(offset int64, node *codec.Node, key, targetValue []byte, revision uint64, isRoot bool, copied *[]int64) (*opResult, error) {
	pos := codec.FindPos(node.Keys, key, t.cmp())
	idx := childIndexForPos(pos)
	childOffset := node.Children[idx]

	childRes, err := t.deleteRec(childOffset, key, targetValue, revision, false, copied)
	if err != nil {
		return nil, err
	}
	if childRes.Kind == kindNotPresent {
		return childRes, nil
	}

	childDecoded, err := t.io.read(childRes.NewPage)
	if err != nil {
		return nil, err
	}
	childCount := countOf(childDecoded)

	var newNode *codec.Node
	if childCount >= t.minFill() || len(node.Children) <= 1 {
		newNode = cloneNode(node)
		newNode.Revision = revision
		newNode.Children[idx] = childRes.NewPage
		if childRes.NewLeftMost != nil && idx > 0 {
			newNode.Keys[idx-1] = childRes.NewLeftMost
		}
	} else {
		sibIdx, sibDecoded, sibOffset, err := t.selectSibling(node, idx)
		if err != nil {
			return nil, err
		}
		sibCount := countOf(sibDecoded)

		if sibCount > t.minFill() {
			newNode, err = t.borrow(node, idx, sibIdx, childRes.NewPage, childDecoded, sibOffset, sibDecoded, revision)
		} else {
			newNode, err = t.merge(node, idx, sibIdx, childRes.NewPage, childDecoded, sibOffset, sibDecoded, revision)
		}
		if err != nil {
			return nil, err
		}
		if childRes.NewLeftMost != nil && idx > 0 {
			for i, c := range newNode.Children {
				if c == childRes.NewPage {
					if i > 0 {
						newNode.Keys[i-1] = childRes.NewLeftMost
					}
					break
				}
			}
		}
	}

	newOffset, err := t.io.writeNode(newNode)
	if err != nil {
		return nil, err
	}
	*copied = append(*copied, offset)

	res := &opResult{Kind: kindRemove, NewPage: newOffset, RemovedValue: childRes.RemovedValue}
	if idx == 0 {
		res.NewLeftMost = childRes.NewLeftMost
	}
	return res, nil
}

// selectSibling picks a donor/merge partner for the child at idx: the right
// sibling when idx is leftmost, the left sibling when idx is rightmost,
// otherwise whichever neighbor has the greater fill (left wins ties).
func (t *Tree) selectSibling(node *codec.Node, idx int) (int, *decoded, int64, error) {
	numChildren := len(node.Children)
	if idx == 0 {
		off := node.Children[1]
		d, err := t.io.read(off)
		return 1, d, off, err
	}
	if idx == numChildren-1 {
		off := node.Children[idx-1]
		d, err := t.io.read(off)
		return idx - 1, d, off, err
	}

	leftOff := node.Children[idx-1]
	leftDec, err := t.io.read(leftOff)
	if err != nil {
		return 0, nil, 0, err
	}
	rightOff := node.Children[idx+1]
	rightDec, err := t.io.read(rightOff)
	if err != nil {
		return 0, nil, 0, err
	}
	if countOf(rightDec) > countOf(leftDec) {
		return idx + 1, rightDec, rightOff, nil
	}
	return idx - 1, leftDec, leftOff, nil
}
