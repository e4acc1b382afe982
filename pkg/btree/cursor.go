package btree

import (
	"mavibot/pkg/codec"
	"mavibot/pkg/errs"
	"mavibot/pkg/page"
)

type cursorState int

const (
	cursorBeforeFirst cursorState = iota
	cursorAfterLast
	cursorValid
	cursorClosed
)

type cursorFrame struct {
	offset int64
	node   *codec.Node
	leaf   *codec.Leaf
	pos    int
}

// Cursor walks a single, immutable snapshot of a tree: the root it was
// opened against never changes underfoot, since commits publish a new root
// rather than mutating the one this cursor holds. It maintains an explicit
// stack of (page, position) frames from root to leaf, exactly as described
// for iteration over a copy-on-write tree.
type Cursor struct {
	tree  *Tree
	root  int64
	stack []cursorFrame
	state cursorState
}

// NewCursor opens a cursor over root, positioned BEFORE_FIRST.
func NewCursor(tree *Tree, root int64) *Cursor {
	return &Cursor{tree: tree, root: root, state: cursorBeforeFirst}
}

func (c *Cursor) reset() {
	c.stack = c.stack[:0]
}

// First positions the cursor at the smallest key.
func (c *Cursor) First() error {
	c.reset()
	if c.root == page.NoPage {
		c.state = cursorAfterLast
		return nil
	}
	offset := c.root
	for {
		d, err := c.tree.io.read(offset)
		if err != nil {
			return err
		}
		if d.leaf != nil {
			c.stack = append(c.stack, cursorFrame{offset: offset, leaf: d.leaf, pos: 0})
			if len(d.leaf.Keys) == 0 {
				c.state = cursorAfterLast
				return nil
			}
			c.state = cursorValid
			return nil
		}
		c.stack = append(c.stack, cursorFrame{offset: offset, node: d.node, pos: 0})
		offset = d.node.Children[0]
	}
}

// Last positions the cursor at the largest key.
func (c *Cursor) Last() error {
	c.reset()
	if c.root == page.NoPage {
		c.state = cursorAfterLast
		return nil
	}
	offset := c.root
	for {
		d, err := c.tree.io.read(offset)
		if err != nil {
			return err
		}
		if d.leaf != nil {
			pos := len(d.leaf.Keys) - 1
			c.stack = append(c.stack, cursorFrame{offset: offset, leaf: d.leaf, pos: pos})
			if pos < 0 {
				c.state = cursorBeforeFirst
				return nil
			}
			c.state = cursorValid
			return nil
		}
		last := len(d.node.Children) - 1
		c.stack = append(c.stack, cursorFrame{offset: offset, node: d.node, pos: last})
		offset = d.node.Children[last]
	}
}

// Seek positions the cursor at the first key >= target.
func (c *Cursor) Seek(target []byte) error {
	c.reset()
	if c.root == page.NoPage {
		c.state = cursorAfterLast
		return nil
	}
	offset := c.root
	for {
		d, err := c.tree.io.read(offset)
		if err != nil {
			return err
		}
		if d.leaf != nil {
			pos := codec.FindPos(d.leaf.Keys, target, c.tree.cmp())
			if pos < 0 {
				pos = -(pos + 1)
			}
			c.stack = append(c.stack, cursorFrame{offset: offset, leaf: d.leaf, pos: pos})
			if pos >= len(d.leaf.Keys) {
				// Past this leaf's last key: let Next walk to the following
				// leaf, or to AFTER_LAST when there is none.
				c.state = cursorValid
				return c.Next()
			}
			c.state = cursorValid
			return nil
		}
		pos := codec.FindPos(d.node.Keys, target, c.tree.cmp())
		childIdx := childIndexForPos(pos)
		c.stack = append(c.stack, cursorFrame{offset: offset, node: d.node, pos: childIdx})
		offset = d.node.Children[childIdx]
	}
}

func (c *Cursor) leafFrame() *cursorFrame {
	if len(c.stack) == 0 {
		return nil
	}
	return &c.stack[len(c.stack)-1]
}

// Next advances one element; if at the end of a leaf it walks up the stack
// to the first ancestor with a right sibling and descends to its leftmost
// leaf.
func (c *Cursor) Next() error {
	if c.state == cursorClosed {
		return errs.CursorError
	}
	if c.state == cursorBeforeFirst {
		return c.First()
	}
	if c.state == cursorAfterLast {
		return errs.CursorError
	}

	leaf := c.leafFrame()
	leaf.pos++
	if leaf.pos < len(leaf.leaf.Keys) {
		return nil
	}

	// Walk up to the first ancestor with a right sibling.
	for len(c.stack) > 1 {
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.leafFrame()
		parent.pos++
		if parent.pos < len(parent.node.Children) {
			offset := parent.node.Children[parent.pos]
			for {
				d, err := c.tree.io.read(offset)
				if err != nil {
					return err
				}
				if d.leaf != nil {
					c.stack = append(c.stack, cursorFrame{offset: offset, leaf: d.leaf, pos: 0})
					if len(d.leaf.Keys) == 0 {
						c.state = cursorAfterLast
						return nil
					}
					c.state = cursorValid
					return nil
				}
				c.stack = append(c.stack, cursorFrame{offset: offset, node: d.node, pos: 0})
				offset = d.node.Children[0]
			}
		}
	}
	c.reset()
	c.state = cursorAfterLast
	return nil
}

// Prev is the mirror of Next.
func (c *Cursor) Prev() error {
	if c.state == cursorClosed {
		return errs.CursorError
	}
	if c.state == cursorAfterLast {
		return c.Last()
	}
	if c.state == cursorBeforeFirst {
		return errs.CursorError
	}

	leaf := c.leafFrame()
	leaf.pos--
	if leaf.pos >= 0 {
		return nil
	}

	for len(c.stack) > 1 {
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.leafFrame()
		parent.pos--
		if parent.pos >= 0 {
			offset := parent.node.Children[parent.pos]
			for {
				d, err := c.tree.io.read(offset)
				if err != nil {
					return err
				}
				if d.leaf != nil {
					pos := len(d.leaf.Keys) - 1
					c.stack = append(c.stack, cursorFrame{offset: offset, leaf: d.leaf, pos: pos})
					if pos < 0 {
						c.state = cursorBeforeFirst
						return nil
					}
					c.state = cursorValid
					return nil
				}
				last := len(d.node.Children) - 1
				c.stack = append(c.stack, cursorFrame{offset: offset, node: d.node, pos: last})
				offset = d.node.Children[last]
			}
		}
	}
	c.reset()
	c.state = cursorBeforeFirst
	return nil
}

// Valid reports whether the cursor currently points at an element.
func (c *Cursor) Valid() bool { return c.state == cursorValid }

// Key returns the current key, or nil at a sentinel position.
func (c *Cursor) Key() []byte {
	if c.state != cursorValid {
		return nil
	}
	f := c.leafFrame()
	return f.leaf.Keys[f.pos]
}

// Value returns the current value. For a duplicate-enabled tree this is the
// first value of the key's holder; use GetAll for the full set.
func (c *Cursor) Value() ([]byte, error) {
	if c.state != cursorValid {
		return nil, errs.CursorError
	}
	f := c.leafFrame()
	holder, err := decodeValueHolder(f.leaf.Values[f.pos])
	if err != nil {
		return nil, err
	}
	if holder.isInline() {
		return holder.inline[0], nil
	}
	return c.tree.leftmostSubtreeKey(holder.sub)
}

// Close releases the cursor. It never blocks and never holds a lock.
func (c *Cursor) Close() {
	c.reset()
	c.state = cursorClosed
}
