// Package langregistry maps file paths to tree-sitter grammars.
//
// The registry is process-wide, built once on first use, and immutable
// thereafter (see internal/parserpool for the parser pool that borrows handles
// keyed by the tags this package hands out).
package langregistry

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Tag is the canonical key wherever "which language" matters.
type Tag string

const (
	Go         Tag = "go"
	TypeScript Tag = "typescript"
	TSX        Tag = "tsx"
	JavaScript Tag = "javascript"
	JSX        Tag = "jsx"
	Python     Tag = "python"
)

// UnknownExtensionError reports a lookup miss by extension.
type UnknownExtensionError struct{ Ext string }

func (e *UnknownExtensionError) Error() string {
	return fmt.Sprintf("langregistry: unknown extension %q", e.Ext)
}

// UnknownLanguageError reports a lookup miss by name.
type UnknownLanguageError struct{ Name string }

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("langregistry: unknown language %q", e.Name)
}

// LanguageInfo describes one registered grammar.
type LanguageInfo struct {
	Tag        Tag
	Extensions []string
	grammar    *sitter.Language

	// Canonical-kind mapping, keyed by grammar-level node type.
	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	StructTypes    []string
	EnumTypes      []string
	InterfaceTypes []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string
	NameField      string
}

// Grammar returns the opaque tree-sitter grammar handle for this language.
func (l *LanguageInfo) Grammar() *sitter.Language { return l.grammar }

// Registry maps file path / extension / name to LanguageInfo.
type Registry struct {
	mu            sync.RWMutex
	byTag         map[Tag]*LanguageInfo
	byExt         map[string]Tag
	specialNames  map[string]Tag // exact filename -> tag, consulted before extension lookup
}

// New builds a registry with the default set of grammars.
//
// Some grammars may be conditionally compiled in; a missing grammar
// behaves as "unknown language" for paths that would have matched it -
// there is no such omission in this build, all five are always linked.
func New() *Registry {
	r := &Registry{
		byTag:        make(map[Tag]*LanguageInfo),
		byExt:        make(map[string]Tag),
		specialNames: make(map[string]Tag),
	}
	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerSpecialFilenames()
	return r
}

func (r *Registry) register(info *LanguageInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byTag[info.Tag] = info
	for _, ext := range info.Extensions {
		r.byExt[normalizeExt(ext)] = info.Tag
	}
}

// registerSpecialFilenames is the hook for exact filenames that ForPath
// consults before extension lookup. It registers no names, so
// specialNames stays empty and ForPath always falls through to the
// extension table.
func (r *Registry) registerSpecialFilenames() {
	r.mu.Lock()
	defer r.mu.Unlock()

	// None of the Go/TS/JS/Python grammars this registry carries applies
	// to extensionless files such as Makefiles or Dockerfiles, so no
	// filename is recorded here.
	_ = r.specialNames
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ByExtension looks up a LanguageInfo by file extension (with or without
// the leading dot), case-insensitively.
func (r *Registry) ByExtension(ext string) (*LanguageInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	norm := normalizeExt(ext)
	tag, ok := r.byExt[norm]
	if !ok {
		return nil, &UnknownExtensionError{Ext: ext}
	}
	return r.byTag[tag], nil
}

// ByName looks up a LanguageInfo by tag name, case-insensitively.
func (r *Registry) ByName(name string) (*LanguageInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag := Tag(strings.ToLower(name))
	info, ok := r.byTag[tag]
	if !ok {
		return nil, &UnknownLanguageError{Name: name}
	}
	return info, nil
}

// ForPath resolves a LanguageInfo for a file path. Special filenames are
// consulted before extension lookup, since build files commonly carry
// no extension or an ambiguous one.
func (r *Registry) ForPath(path string) (*LanguageInfo, error) {
	base := filepath.Base(path)

	r.mu.RLock()
	if tag, ok := r.specialNames[base]; ok {
		info := r.byTag[tag]
		r.mu.RUnlock()
		return info, nil
	}
	r.mu.RUnlock()

	ext := filepath.Ext(base)
	if ext == "" {
		return nil, &UnknownExtensionError{Ext: base}
	}
	return r.ByExtension(ext)
}

// ListLanguages returns every registered LanguageInfo, sorted by tag name.
func (r *Registry) ListLanguages() []*LanguageInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*LanguageInfo, 0, len(r.byTag))
	for _, info := range r.byTag {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (r *Registry) registerGo() {
	r.register(&LanguageInfo{
		Tag:           Go,
		Extensions:    []string{".go"},
		grammar:       golang.GetLanguage(),
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		TypeDefTypes:  []string{"type_declaration"},
		ConstantTypes: []string{"const_declaration"},
		VariableTypes: []string{"var_declaration"},
		NameField:     "name",
	})
}

func (r *Registry) registerTypeScript() {
	ts := &LanguageInfo{
		Tag:            TypeScript,
		Extensions:     []string{".ts"},
		grammar:        typescript.GetLanguage(),
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		EnumTypes:      []string{"enum_declaration"},
		TypeDefTypes:   []string{"type_alias_declaration"},
		ConstantTypes:  []string{"lexical_declaration"},
		VariableTypes:  []string{"variable_declaration"},
		NameField:      "name",
	}
	r.register(ts)

	tsxInfo := *ts
	tsxInfo.Tag = TSX
	tsxInfo.Extensions = []string{".tsx"}
	tsxInfo.grammar = tsx.GetLanguage()
	r.register(&tsxInfo)
}

func (r *Registry) registerJavaScript() {
	js := &LanguageInfo{
		Tag:           JavaScript,
		Extensions:    []string{".js", ".mjs"},
		grammar:       javascript.GetLanguage(),
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		ConstantTypes: []string{"lexical_declaration"},
		VariableTypes: []string{"variable_declaration"},
		NameField:     "name",
	}
	r.register(js)

	jsx := *js
	jsx.Tag = JSX
	jsx.Extensions = []string{".jsx"}
	r.register(&jsx)
}

func (r *Registry) registerPython() {
	r.register(&LanguageInfo{
		Tag:           Python,
		Extensions:    []string{".py"},
		grammar:       python.GetLanguage(),
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
		VariableTypes: []string{"assignment"},
		NameField:     "name",
	})
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, built lazily on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}
