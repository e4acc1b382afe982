package btree

import "mavibot/pkg/codec"

func cloneLeaf(l *codec.Leaf) *codec.Leaf {
	keys := make([][]byte, len(l.Keys))
	copy(keys, l.Keys)
	values := make([][]byte, len(l.Values))
	copy(values, l.Values)
	return &codec.Leaf{Revision: l.Revision, Keys: keys, Values: values}
}

func cloneNode(n *codec.Node) *codec.Node {
	keys := make([][]byte, len(n.Keys))
	copy(keys, n.Keys)
	children := make([]int64, len(n.Children))
	copy(children, n.Children)
	return &codec.Node{Revision: n.Revision, Keys: keys, Children: children}
}

// insertLeafEntry returns a copy of leaf with (key, valueBytes) inserted at idx.
func insertLeafEntry(leaf *codec.Leaf, idx int, key, valueBytes []byte, revision uint64) *codec.Leaf {
	keys := make([][]byte, 0, len(leaf.Keys)+1)
	keys = append(keys, leaf.Keys[:idx]...)
	keys = append(keys, key)
	keys = append(keys, leaf.Keys[idx:]...)

	values := make([][]byte, 0, len(leaf.Values)+1)
	values = append(values, leaf.Values[:idx]...)
	values = append(values, valueBytes)
	values = append(values, leaf.Values[idx:]...)

	return &codec.Leaf{Revision: revision, Keys: keys, Values: values}
}

// removeLeafEntry returns a copy of leaf with the entry at idx removed.
func removeLeafEntry(leaf *codec.Leaf, idx int, revision uint64) *codec.Leaf {
	keys := make([][]byte, 0, len(leaf.Keys)-1)
	keys = append(keys, leaf.Keys[:idx]...)
	keys = append(keys, leaf.Keys[idx+1:]...)

	values := make([][]byte, 0, len(leaf.Values)-1)
	values = append(values, leaf.Values[:idx]...)
	values = append(values, leaf.Values[idx+1:]...)

	return &codec.Leaf{Revision: revision, Keys: keys, Values: values}
}

// splitLeafWithInsert builds the N+1-element combined key/value list (leaf's
// N elements plus the new entry at idx), then splits it into a left leaf of
// ceil((N+1)/2) elements and a right leaf of the remainder. The pivot
// returned is the right leaf's first key.
func splitLeafWithInsert(leaf *codec.Leaf, idx int, key, valueBytes []byte, revision uint64) (*codec.Leaf, *codec.Leaf, []byte) {
	combined := insertLeafEntry(leaf, idx, key, valueBytes, revision)
	total := len(combined.Keys)
	leftCount := (total + 1) / 2

	left := &codec.Leaf{
		Revision: revision,
		Keys:     append([][]byte{}, combined.Keys[:leftCount]...),
		Values:   append([][]byte{}, combined.Values[:leftCount]...),
	}
	right := &codec.Leaf{
		Revision: revision,
		Keys:     append([][]byte{}, combined.Keys[leftCount:]...),
		Values:   append([][]byte{}, combined.Values[leftCount:]...),
	}
	return left, right, right.Keys[0]
}

// insertNodeSplit absorbs a child split into a node with spare capacity:
// the split child's left page replaces the original child slot, and the
// pivot/right page are inserted immediately after it.
func insertNodeSplit(node *codec.Node, idx int, pivot []byte, leftPage, rightPage int64, revision uint64) *codec.Node {
	keys := make([][]byte, 0, len(node.Keys)+1)
	keys = append(keys, node.Keys[:idx]...)
	keys = append(keys, pivot)
	keys = append(keys, node.Keys[idx:]...)

	children := make([]int64, 0, len(node.Children)+1)
	children = append(children, node.Children[:idx]...)
	children = append(children, leftPage, rightPage)
	children = append(children, node.Children[idx+1:]...)

	return &codec.Node{Revision: revision, Keys: keys, Children: children}
}

// splitNodeWithInsert builds the oversized combined key/child list for a
// full interior node absorbing a child split, then splits it around a
// median pivot that moves up to the grandparent.
func splitNodeWithInsert(node *codec.Node, idx int, pivot []byte, leftPage, rightPage int64, revision uint64) (*codec.Node, *codec.Node, []byte) {
	combined := insertNodeSplit(node, idx, pivot, leftPage, rightPage, revision)
	totalKeys := len(combined.Keys)
	mid := totalKeys / 2
	upPivot := combined.Keys[mid]

	left := &codec.Node{
		Revision: revision,
		Keys:     append([][]byte{}, combined.Keys[:mid]...),
		Children: append([]int64{}, combined.Children[:mid+1]...),
	}
	right := &codec.Node{
		Revision: revision,
		Keys:     append([][]byte{}, combined.Keys[mid+1:]...),
		Children: append([]int64{}, combined.Children[mid+1:]...),
	}
	return left, right, upPivot
}

// borrow moves one element from the sibling (which has more than minFill
// elements) to the underflowing child at idx, then rewrites the parent's
// separating pivot to match the new split point.
func (t *Tree) borrow(node *codec.Node, idx, sibIdx int, childOffset int64, child *decoded, sibOffset int64, sib *decoded, revision uint64) (*codec.Node, error) {
	fromLeft := sibIdx < idx
	newNode := cloneNode(node)
	newNode.Revision = revision

	if child.leaf != nil {
		newChild, newSib, newPivot, err := t.borrowLeaf(child.leaf, sib.leaf, fromLeft, revision)
		if err != nil {
			return nil, err
		}
		newChildOffset, err := t.io.writeLeaf(newChild)
		if err != nil {
			return nil, err
		}
		newSibOffset, err := t.io.writeLeaf(newSib)
		if err != nil {
			return nil, err
		}
		t.io.invalidate(childOffset)
		t.io.invalidate(sibOffset)
		newNode.Children[idx] = newChildOffset
		newNode.Children[sibIdx] = newSibOffset
		pivotIdx := idx
		if fromLeft {
			pivotIdx = idx - 1
		}
		newNode.Keys[pivotIdx] = newPivot
		return newNode, nil
	}

	separator := node.Keys[minInt(idx, sibIdx)]
	newChild, newSib, newSeparator, err := t.borrowNode(child.node, sib.node, fromLeft, separator, revision)
	if err != nil {
		return nil, err
	}
	newChildOffset, err := t.io.writeNode(newChild)
	if err != nil {
		return nil, err
	}
	newSibOffset, err := t.io.writeNode(newSib)
	if err != nil {
		return nil, err
	}
	t.io.invalidate(childOffset)
	t.io.invalidate(sibOffset)
	newNode.Children[idx] = newChildOffset
	newNode.Children[sibIdx] = newSibOffset
	newNode.Keys[minInt(idx, sibIdx)] = newSeparator
	return newNode, nil
}

func (t *Tree) borrowLeaf(child, sib *codec.Leaf, fromLeft bool, revision uint64) (*codec.Leaf, *codec.Leaf, []byte, error) {
	if fromLeft {
		lastIdx := len(sib.Keys) - 1
		newChild := insertLeafEntry(child, 0, sib.Keys[lastIdx], sib.Values[lastIdx], revision)
		newSib := removeLeafEntry(sib, lastIdx, revision)
		return newChild, newSib, newChild.Keys[0], nil
	}
	newChild := insertLeafEntry(child, len(child.Keys), sib.Keys[0], sib.Values[0], revision)
	newSib := removeLeafEntry(sib, 0, revision)
	return newChild, newSib, newSib.Keys[0], nil
}

// borrowNode performs a classic B-tree rotation through the parent
// separator: the separator moves down into the recipient as a new
// pivot/child pair, and the sibling's outermost key moves up to become the
// new separator.
func (t *Tree) borrowNode(child, sib *codec.Node, fromLeft bool, separator []byte, revision uint64) (*codec.Node, *codec.Node, []byte, error) {
	if fromLeft {
		lastKeyIdx := len(sib.Keys) - 1
		lastChildIdx := len(sib.Children) - 1
		newChild := &codec.Node{
			Revision: revision,
			Keys:     append([][]byte{separator}, child.Keys...),
			Children: append([]int64{sib.Children[lastChildIdx]}, child.Children...),
		}
		newSib := &codec.Node{
			Revision: revision,
			Keys:     append([][]byte{}, sib.Keys[:lastKeyIdx]...),
			Children: append([]int64{}, sib.Children[:lastChildIdx]...),
		}
		return newChild, newSib, sib.Keys[lastKeyIdx], nil
	}
	newChild := &codec.Node{
		Revision: revision,
		Keys:     append(append([][]byte{}, child.Keys...), separator),
		Children: append(append([]int64{}, child.Children...), sib.Children[0]),
	}
	newSib := &codec.Node{
		Revision: revision,
		Keys:     append([][]byte{}, sib.Keys[1:]...),
		Children: append([]int64{}, sib.Children[1:]...),
	}
	return newChild, newSib, sib.Keys[0], nil
}

// merge combines the underflowing child with its sibling into a single
// page, then removes the now-redundant pivot and child slot from the parent.
func (t *Tree) merge(node *codec.Node, idx, sibIdx int, childOffset int64, child *decoded, sibOffset int64, sib *decoded, revision uint64) (*codec.Node, error) {
	leftIdx, rightIdx := idx, sibIdx
	leftDec, rightDec := child, sib
	if sibIdx < idx {
		leftIdx, rightIdx = sibIdx, idx
		leftDec, rightDec = sib, child
	}

	var mergedOffset int64
	var err error
	if leftDec.leaf != nil {
		merged := &codec.Leaf{
			Revision: revision,
			Keys:     append(append([][]byte{}, leftDec.leaf.Keys...), rightDec.leaf.Keys...),
			Values:   append(append([][]byte{}, leftDec.leaf.Values...), rightDec.leaf.Values...),
		}
		mergedOffset, err = t.io.writeLeaf(merged)
	} else {
		separator := node.Keys[leftIdx]
		merged := &codec.Node{
			Revision: revision,
			Keys:     append(append(append([][]byte{}, leftDec.node.Keys...), separator), rightDec.node.Keys...),
			Children: append(append([]int64{}, leftDec.node.Children...), rightDec.node.Children...),
		}
		mergedOffset, err = t.io.writeNode(merged)
	}
	if err != nil {
		return nil, err
	}
	t.io.invalidate(childOffset)
	t.io.invalidate(sibOffset)

	newNode := &codec.Node{Revision: revision}
	newNode.Keys = append(newNode.Keys, node.Keys[:leftIdx]...)
	newNode.Keys = append(newNode.Keys, node.Keys[rightIdx:]...)
	newNode.Children = append(newNode.Children, node.Children[:leftIdx]...)
	newNode.Children = append(newNode.Children, mergedOffset)
	newNode.Children = append(newNode.Children, node.Children[rightIdx+1:]...)
	return newNode, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
