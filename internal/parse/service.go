package parse

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/standardbeagle/corecache/internal/langregistry"
	"github.com/standardbeagle/corecache/internal/parserpool"
)

// Error reports an infrastructural parse failure: unsupported language or
// empty input. A syntax error inside supported source is never reported
// this way - it shows up as error nodes inside the returned tree, and is
// handled normally by downstream consumers (spec.md §7).
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "parse: " + e.Reason }

// Result is the outcome of one Parse call.
type Result struct {
	Tree          *Tree
	ParseDuration time.Duration
	ParsedBytes   int
}

// Service turns source bytes into a CST plus stable IDs, borrowing parser
// handles from a pool per call.
type Service struct {
	pool     *parserpool.Pool
	registry *langregistry.Registry
}

// NewService builds a parse service over the given pool and registry.
func NewService(pool *parserpool.Pool, registry *langregistry.Registry) *Service {
	return &Service{pool: pool, registry: registry}
}

// Parse produces a CST for source. With previous == nil it performs a
// full parse. With a non-nil previous tree - on which the caller must
// already have called Tree.Edit for the edited range - tree-sitter
// reuses unaffected subtrees, which is what makes incremental parses meet
// the <10ms contract for single-line-scale edits on 1,000-line files; a
// previous tree for which Edit was never called degenerates silently to
// a full reparse, since tree-sitter has no edit hints to act on.
func (s *Service) Parse(ctx context.Context, source []byte, lang langregistry.Tag, previous *Tree) (*Result, error) {
	if len(source) == 0 {
		return nil, &Error{Reason: "empty input"}
	}

	guard, err := s.pool.Acquire(ctx, lang)
	if err != nil {
		return nil, &Error{Reason: err.Error()}
	}
	defer guard.Release()

	var oldTSTree *sitter.Tree
	if previous != nil {
		oldTSTree = previous.tsTree
	}

	start := time.Now()
	tsTree, err := guard.Parser().ParseCtx(ctx, oldTSTree, source)
	duration := time.Since(start)
	if err != nil {
		return nil, &Error{Reason: fmt.Sprintf("tree-sitter parse failed: %v", err)}
	}
	if tsTree == nil {
		return nil, &Error{Reason: "parser returned nil tree"}
	}

	tree := &Tree{
		Source:   source,
		Language: lang,
		tsTree:   tsTree,
	}
	convertTree(tree, tsTree.RootNode())
	assignStableIDs(tree)

	return &Result{
		Tree:          tree,
		ParseDuration: duration,
		ParsedBytes:   len(source),
	}, nil
}

// convertTree flattens the tree-sitter node graph into the arena,
// recording parent/child indices and field names along the way.
func convertTree(t *Tree, root *sitter.Node) {
	t.nodes = make([]Node, 0, estimateNodeCount(root))

	var build func(tsNode *sitter.Node, parent NodeID, fieldName string) NodeID
	build = func(tsNode *sitter.Node, parent NodeID, fieldName string) NodeID {
		id := NodeID(len(t.nodes))
		t.nodes = append(t.nodes, Node{
			Kind:      tsNode.Type(),
			StartByte: tsNode.StartByte(),
			EndByte:   tsNode.EndByte(),
			StartPos:  Point{Row: tsNode.StartPoint().Row, Column: tsNode.StartPoint().Column},
			EndPos:    Point{Row: tsNode.EndPoint().Row, Column: tsNode.EndPoint().Column},
			Named:     tsNode.IsNamed(),
			FieldName: fieldName,
			Parent:    parent,
		})

		childCount := int(tsNode.ChildCount())
		children := make([]NodeID, 0, childCount)
		for i := 0; i < childCount; i++ {
			child := tsNode.Child(i)
			if child == nil {
				continue
			}
			field := tsNode.FieldNameForChild(i)
			children = append(children, build(child, id, field))
		}
		t.nodes[id].Children = children
		return id
	}

	build(root, NoParent, "")
}

func estimateNodeCount(root *sitter.Node) int {
	if root == nil {
		return 0
	}
	// A generous guess to avoid repeated slice growth; exactness doesn't
	// matter, this only sizes the initial allocation.
	return int(root.EndByte()-root.StartByte())/4 + 16
}
