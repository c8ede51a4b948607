package parse

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// identifierKinds are grammar-level node kinds treated as "identifier-ish"
// across the languages this registry supports; their text is folded into
// the stable-ID hash alongside the node's own kind. This list is
// intentionally broad (it costs nothing to test a kind that doesn't
// appear in a given grammar) rather than per-language, since the hash
// input is just text concatenation.
var identifierKinds = map[string]bool{
	"identifier":            true,
	"type_identifier":       true,
	"field_identifier":      true,
	"property_identifier":   true,
	"shorthand_property_identifier": true,
}

// assignStableIDs walks the tree and assigns a 64-bit stable ID to every
// named node, per spec.md §4.3:
//  1. the node's grammar-level kind (Node.Kind); the symbol extractor's
//     canonical kind is not part of the hash
//  2. the text of immediately-contained identifier-ish children
//  3. the path from the node to the root, recorded as field names (or a
//     positional discriminator when a level has no field name)
//
// Collisions within one file are broken by appending the node's
// positional index among its parent's children, which is itself stable
// under edits that do not reorder siblings.
func assignStableIDs(t *Tree) {
	seen := make(map[uint64][]NodeID)

	var fieldPath func(id NodeID) string
	fieldPath = func(id NodeID) string {
		var parts []string
		for cur := id; cur != NoParent; {
			n := t.Node(cur)
			if n.Parent == NoParent {
				break
			}
			parent := t.Node(n.Parent)
			if n.FieldName != "" {
				parts = append(parts, n.FieldName)
			} else {
				parts = append(parts, strconv.Itoa(childIndex(parent, cur)))
			}
			cur = n.Parent
		}
		// Reverse so the path reads root -> node.
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
		return strings.Join(parts, "/")
	}

	identifierText := func(n *Node) string {
		var sb strings.Builder
		for _, childID := range n.Children {
			child := t.Node(childID)
			if identifierKinds[child.Kind] {
				sb.Write(child.Text(t.Source))
				sb.WriteByte(0)
			}
		}
		return sb.String()
	}

	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.Named {
			continue
		}

		var h strings.Builder
		h.WriteString(n.Kind)
		h.WriteByte(0)
		h.WriteString(identifierText(n))
		h.WriteByte(0)
		h.WriteString(fieldPath(NodeID(i)))

		sum := xxhash.Sum64String(h.String())

		// Disambiguate collisions within this file using the node's
		// positional index among its parent's children at hash time.
		if dupes, ok := seen[sum]; ok {
			parent := NoParent
			if n.Parent != NoParent {
				parent = n.Parent
			}
			idx := 0
			if parent != NoParent {
				idx = childIndex(t.Node(parent), NodeID(i))
			}
			h.WriteByte(0)
			h.WriteString(strconv.Itoa(idx))
			sum = xxhash.Sum64String(h.String())
			seen[sum] = append(dupes, NodeID(i))
		} else {
			seen[sum] = []NodeID{NodeID(i)}
		}

		n.StableID = sum
		n.HasStableID = true
	}
}

func childIndex(parent *Node, child NodeID) int {
	for i, c := range parent.Children {
		if c == child {
			return i
		}
	}
	return -1
}
