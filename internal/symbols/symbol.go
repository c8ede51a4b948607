// Package symbols implements the symbol extractor (component D): it walks
// a CST and emits a canonical symbol tree with stable IDs, ranges, and doc
// comments, following the fixed display-name contract in spec.md §4.4.
//
// Grounded on the teacher's internal/chunk.SymbolExtractor per-language
// name-extraction dispatch (extractGoName/extractTypeScriptName/...),
// generalized to walk the arena-indexed internal/parse.Tree instead of the
// teacher's pointer-based Node, to assign canonical kinds from a
// language-aware table instead of a flat SymbolType, and to read doc
// comments from the immediately preceding sibling node rather than by
// rescanning source lines.
package symbols

import (
	"strings"

	"github.com/standardbeagle/corecache/internal/langregistry"
	"github.com/standardbeagle/corecache/internal/parse"
)

// Kind is the closed enum of symbol categories the extractor emits.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindInterface Kind = "interface"
	KindVariable  Kind = "variable"
	KindConstant  Kind = "constant"
)

// Symbol is a human-meaningful declaration extracted from a CST.
type Symbol struct {
	Kind        Kind
	DisplayName string
	StableID    uint64
	StartByte   uint32
	EndByte     uint32
	StartPos    parse.Point
	EndPos      parse.Point
	DocComment  string
	Children    []*Symbol
}

// Extract walks tree and returns the ordered root-level symbols, each
// carrying its ordered child symbols. Unknown canonical kinds are skipped
// silently; the walk still descends into their children. The extractor
// visits each node at most once.
func Extract(tree *parse.Tree, info *langregistry.LanguageInfo) []*Symbol {
	if tree == nil || info == nil {
		return nil
	}
	e := &extraction{tree: tree, info: info}
	return e.walkChildren(tree.Root(), nil)
}

type extraction struct {
	tree *parse.Tree
	info *langregistry.LanguageInfo
}

// walkChildren visits every child of id, building a Symbol for any node
// that matches a canonical kind and recursing into its body for nested
// symbols (methods inside classes, etc). parent is the nearest enclosing
// class-like symbol, used for method display names.
func (e *extraction) walkChildren(id parse.NodeID, parent *Symbol) []*Symbol {
	var out []*Symbol
	node := e.tree.Node(id)
	for _, childID := range node.Children {
		child := e.tree.Node(childID)
		if sym := e.classify(childID, child, parent); sym != nil {
			nextParent := parent
			if sym.Kind == KindClass || sym.Kind == KindStruct || sym.Kind == KindEnum || sym.Kind == KindInterface {
				nextParent = sym
			}
			sym.Children = e.walkChildren(childID, nextParent)
			out = append(out, sym)
			continue
		}
		// Not a symbol-defining node itself; descend to find symbols
		// nested inside it (e.g. statements inside a function body, or
		// class bodies wrapped in an intermediate block node).
		out = append(out, e.walkChildren(childID, parent)...)
	}
	return out
}

func (e *extraction) classify(id parse.NodeID, n *parse.Node, parent *Symbol) *Symbol {
	kind, ok := e.canonicalKind(n)
	if !ok {
		return nil
	}

	name := e.extractName(n)
	if name == "" {
		return nil
	}

	display := displayName(kind, name, parent)
	doc := e.docComment(id)

	return &Symbol{
		Kind:        kind,
		DisplayName: display,
		StableID:    n.StableID,
		StartByte:   n.StartByte,
		EndByte:     n.EndByte,
		StartPos:    n.StartPos,
		EndPos:      n.EndPos,
		DocComment:  doc,
	}
}

// canonicalKind maps a grammar-level node kind to the closed canonical
// set, consulting the language's registered type lists and, for Go's
// ambiguous type_declaration, the underlying type_spec's type node.
func (e *extraction) canonicalKind(n *parse.Node) (Kind, bool) {
	info := e.info
	switch {
	case contains(info.FunctionTypes, n.Kind):
		return KindFunction, true
	case contains(info.MethodTypes, n.Kind):
		return KindMethod, true
	case contains(info.ClassTypes, n.Kind):
		return KindClass, true
	case contains(info.StructTypes, n.Kind):
		return KindStruct, true
	case contains(info.EnumTypes, n.Kind):
		return KindEnum, true
	case contains(info.InterfaceTypes, n.Kind):
		return KindInterface, true
	case contains(info.ConstantTypes, n.Kind):
		return KindConstant, true
	case contains(info.VariableTypes, n.Kind):
		return KindVariable, true
	case contains(info.TypeDefTypes, n.Kind):
		return e.goTypeDeclKind(n)
	}
	return "", false
}

// goTypeDeclKind resolves Go's type_declaration node, which wraps a
// type_spec whose own child determines whether this is a struct or an
// interface. A type alias to a builtin or named type maps to neither and
// is skipped, matching spec.md's "unknown canonical kinds are skipped
// silently" rule.
func (e *extraction) goTypeDeclKind(n *parse.Node) (Kind, bool) {
	for _, specID := range n.Children {
		spec := e.tree.Node(specID)
		if spec.Kind != "type_spec" {
			continue
		}
		for _, underID := range spec.Children {
			under := e.tree.Node(underID)
			switch under.Kind {
			case "struct_type":
				return KindStruct, true
			case "interface_type":
				return KindInterface, true
			}
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// displayName formats a symbol's display name per spec.md §4.4's fixed
// contract.
func displayName(kind Kind, name string, parent *Symbol) string {
	switch kind {
	case KindClass:
		return "class " + name
	case KindStruct:
		return "struct " + name
	case KindEnum:
		return "enum " + name
	case KindInterface:
		return "interface " + name
	case KindFunction:
		return "function " + name + "()"
	case KindMethod:
		if parent != nil {
			return parent.nameOnly() + "." + name + "()"
		}
		return name + "()"
	case KindVariable:
		return "let " + name
	case KindConstant:
		return "const " + name
	}
	return name
}

// nameOnly strips the kind keyword from a class-like display name,
// leaving just the identifier, for use as a method's parent prefix.
func (s *Symbol) nameOnly() string {
	parts := strings.SplitN(s.DisplayName, " ", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return s.DisplayName
}

// docComment returns the verbatim text of id's immediately preceding
// sibling, if that sibling is a comment node, per spec.md §4.4.
func (e *extraction) docComment(id parse.NodeID) string {
	n := e.tree.Node(id)
	if n.Parent == parse.NoParent {
		return ""
	}
	parent := e.tree.Node(n.Parent)
	idx := -1
	for i, c := range parent.Children {
		if c == id {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return ""
	}
	prevID := parent.Children[idx-1]
	prev := e.tree.Node(prevID)
	if !isCommentKind(prev.Kind) {
		return ""
	}
	return string(prev.Text(e.tree.Source))
}

func isCommentKind(kind string) bool {
	switch kind {
	case "comment", "line_comment", "block_comment":
		return true
	}
	return false
}

// extractName finds the identifier naming n, dispatching per language the
// way the teacher's SymbolExtractor does (each grammar nests its name
// identifier differently).
func (e *extraction) extractName(n *parse.Node) string {
	switch e.info.Tag {
	case langregistry.Go:
		return e.extractGoName(n)
	case langregistry.TypeScript, langregistry.TSX:
		return e.extractTSName(n)
	case langregistry.JavaScript, langregistry.JSX:
		return e.extractJSName(n)
	case langregistry.Python:
		return e.extractPythonName(n)
	}
	return e.firstChildOfKind(n, "identifier")
}

func (e *extraction) extractGoName(n *parse.Node) string {
	switch n.Kind {
	case "function_declaration":
		return e.firstChildOfKind(n, "identifier")
	case "method_declaration":
		return e.firstChildOfKind(n, "field_identifier")
	case "type_declaration":
		for _, specID := range n.Children {
			spec := e.tree.Node(specID)
			if spec.Kind == "type_spec" {
				if name := e.firstChildOfKind(spec, "type_identifier"); name != "" {
					return name
				}
			}
		}
	case "const_declaration":
		return e.firstGrandchildOfKind(n, "const_spec", "identifier")
	case "var_declaration":
		return e.firstGrandchildOfKind(n, "var_spec", "identifier")
	}
	return ""
}

func (e *extraction) extractTSName(n *parse.Node) string {
	if n.Kind == "lexical_declaration" || n.Kind == "variable_declaration" {
		return e.firstGrandchildOfKind(n, "variable_declarator", "identifier")
	}
	if name := e.firstChildOfKind(n, "identifier"); name != "" {
		return name
	}
	return e.firstChildOfKind(n, "type_identifier")
}

func (e *extraction) extractJSName(n *parse.Node) string {
	if n.Kind == "lexical_declaration" || n.Kind == "variable_declaration" {
		return e.firstGrandchildOfKind(n, "variable_declarator", "identifier")
	}
	return e.firstChildOfKind(n, "identifier")
}

func (e *extraction) extractPythonName(n *parse.Node) string {
	return e.firstChildOfKind(n, "identifier")
}

func (e *extraction) firstChildOfKind(n *parse.Node, kind string) string {
	for _, id := range n.Children {
		c := e.tree.Node(id)
		if c.Kind == kind {
			return string(c.Text(e.tree.Source))
		}
	}
	return ""
}

func (e *extraction) firstGrandchildOfKind(n *parse.Node, childKind, grandchildKind string) string {
	for _, id := range n.Children {
		c := e.tree.Node(id)
		if c.Kind != childKind {
			continue
		}
		if name := e.firstChildOfKind(c, grandchildKind); name != "" {
			return name
		}
	}
	return ""
}
