// Package parse implements the parse service (component C) and the
// stable-ID assigner (component E): given source bytes, a language, and
// an optional previous tree, it produces a CST plus per-node stable
// identities that survive edits outside a node's own body.
//
// CST nodes are arena-plus-index, not a pointer graph (see spec design
// notes): every node lives in Tree.nodes and children are referenced by
// NodeID, an integer index into that slice. This keeps the tree trivially
// serializable and its lifetime tied to a single owning Tree value.
package parse

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/standardbeagle/corecache/internal/langregistry"
)

// NodeID indexes into Tree.nodes. The zero value is the root.
type NodeID int32

// NoParent marks the root node's parent.
const NoParent NodeID = -1

// Point is a row/column position, 0-indexed, matching tree-sitter.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is one position in a parsed tree.
type Node struct {
	Kind      string
	StartByte uint32
	EndByte   uint32
	StartPos  Point
	EndPos    Point
	Named     bool
	FieldName string // empty if this child has no field name relative to parent
	Parent    NodeID
	Children  []NodeID

	StableID   uint64
	HasStableID bool
}

// Text returns the node's source slice from the owning tree's bytes.
func (n *Node) Text(source []byte) []byte {
	if int(n.EndByte) > len(source) || n.StartByte > n.EndByte {
		return nil
	}
	return source[n.StartByte:n.EndByte]
}

// Tree is a parsed CST. It owns its nodes and source bytes; node
// references (NodeID) are only valid for the Tree that produced them.
// A Tree is immutable once built; concurrent readers are safe.
type Tree struct {
	nodes    []Node
	Source   []byte
	Language langregistry.Tag

	tsTree *sitter.Tree // retained to serve as previous_tree for the next parse
}

// Root returns the root node's ID. A Tree always has at least one node.
func (t *Tree) Root() NodeID { return 0 }

// Node returns a pointer to the node at id. The pointer is valid for the
// lifetime of the Tree.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// NodeCount returns the number of nodes in the arena.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Walk visits every node in the tree in pre-order depth-first order,
// calling fn(id). Stopping requires fn to return false, in which case
// Walk returns immediately without visiting further nodes.
func (t *Tree) Walk(fn func(NodeID) bool) {
	var visit func(NodeID) bool
	visit = func(id NodeID) bool {
		if !fn(id) {
			return false
		}
		for _, child := range t.nodes[id].Children {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	if len(t.nodes) > 0 {
		visit(t.Root())
	}
}

// EditInput describes a single text edit to apply to the previous tree
// before it is passed back into Parse for incremental reuse. Offsets and
// points follow tree-sitter's edit protocol: without this call first, the
// "previous tree" degenerates to a full reparse (see spec.md §4.3).
type EditInput struct {
	StartByte  uint32
	OldEndByte uint32
	NewEndByte uint32
	StartPoint Point
	OldEndPoint Point
	NewEndPoint Point
}

// Edit applies an edit to the tree's underlying tree-sitter tree so the
// next Parse call can reuse unaffected subtrees. Edit must be called
// before the edited bytes are handed to Parse as previousTree.
func (t *Tree) Edit(e EditInput) error {
	if t.tsTree == nil {
		return fmt.Errorf("parse: tree has no retained tree-sitter handle to edit")
	}
	t.tsTree.Edit(sitter.EditInput{
		StartIndex:  e.StartByte,
		OldEndIndex: e.OldEndByte,
		NewEndIndex: e.NewEndByte,
		StartPoint:  sitter.Point{Row: e.StartPoint.Row, Column: e.StartPoint.Column},
		OldEndPoint: sitter.Point{Row: e.OldEndPoint.Row, Column: e.OldEndPoint.Column},
		NewEndPoint: sitter.Point{Row: e.NewEndPoint.Row, Column: e.NewEndPoint.Column},
	})
	return nil
}
