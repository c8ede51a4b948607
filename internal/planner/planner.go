// Package planner implements the query planner (component L): a pure,
// stateless function normalizing free-form query text before it reaches
// the vector index, plus related-query generation for prefetch.
//
// Grounded on the teacher's internal/search.QueryExpander/CodeSynonyms
// (synonym map, tokenizer) and internal/search.isStopWord (stopword set),
// narrowed to the fixed pipeline: lowercase, tokenize, drop stopwords,
// expand synonyms, re-join - deterministic and stateless, unlike the
// teacher's casing-variant and max-expansion-count options.
package planner

import (
	"strings"
	"unicode"
)

// codeSynonyms maps natural-language query terms to code-vocabulary
// equivalents, carried over from the teacher's internal/search.CodeSynonyms
// dictionary (trimmed to the terms relevant to a symbol/code index).
var codeSynonyms = map[string][]string{
	"function":  {"func", "method", "fn", "def"},
	"method":    {"func", "fn", "def", "function"},
	"func":      {"function", "method", "def", "fn"},
	"def":       {"func", "function", "method"},
	"class":     {"type", "struct", "interface"},
	"type":      {"class", "struct", "interface"},
	"struct":    {"class", "type", "structure"},
	"interface": {"protocol", "trait", "contract"},
	"error":     {"err", "exception", "fail", "failure"},
	"err":       {"error"},
	"exception": {"error", "err", "panic"},
	"handler":   {"handle", "callback"},
	"request":   {"req", "http"},
	"response":  {"resp", "reply"},
	"context":   {"ctx"},
	"ctx":       {"context"},
	"config":    {"cfg", "configuration", "settings", "options"},
	"cfg":       {"config", "configuration"},
	"database":  {"db", "store", "storage"},
	"db":        {"database", "store"},
	"store":     {"storage", "database", "repository", "db"},
	"query":     {"search", "find", "select"},
	"search":    {"find", "query", "lookup", "retrieve"},
	"find":      {"search", "get", "lookup", "query"},
	"index":     {"indexer", "indexing", "catalog"},
	"embed":     {"embedding", "embedder", "vector"},
	"embedding": {"embed", "vector"},
	"vector":    {"embedding", "dense", "semantic"},
	"chunk":     {"segment", "block", "piece"},
	"token":     {"tokenize", "tokenizer", "word"},
	"parse":     {"parser", "parsing"},
	"ast":       {"tree", "syntax", "abstract"},
	"create":    {"new", "make", "init", "initialize"},
	"new":       {"create", "make", "init"},
	"init":      {"initialize", "setup", "new"},
	"get":       {"fetch", "retrieve", "read", "load"},
	"set":       {"put", "assign", "write", "store"},
	"read":      {"get", "load", "fetch"},
	"write":     {"save", "store", "put"},
	"load":      {"read", "get", "fetch", "parse"},
	"save":      {"write", "store", "persist"},
	"test":      {"testing", "spec", "check", "verify"},
	"mock":      {"fake", "stub", "spy"},
	"async":     {"goroutine", "concurrent", "parallel"},
	"channel":   {"chan", "pipe"},
	"chan":      {"channel", "pipe"},
	"mutex":     {"lock", "sync"},
	"lock":      {"mutex", "sync"},
	"file":      {"path", "filesystem", "io"},
	"path":      {"file", "filepath", "directory"},
	"directory": {"dir", "folder", "path"},
	"dir":       {"directory", "folder"},
	"log":       {"logger", "logging", "slog"},
	"debug":     {"trace", "verbose", "log"},
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"and": true, "but": true, "or": true, "nor": true, "for": true,
	"yet": true, "so": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "by": true, "with": true, "from": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "which": true, "what": true, "who": true, "whom": true,
}

// prefetchSuffixes are appended to a shortened query to generate related
// prefetch candidates, per spec.md §4.10.
var prefetchSuffixes = []string{"implementation", "example", "definition", "usage"}

// Optimize normalizes text: lowercase, tokenize on whitespace, drop
// stopwords, expand synonyms (emitting both the token and its synonyms),
// re-join with single spaces. A token already emitted, as an input token
// or as an earlier token's synonym, is not expanded again, so
// Optimize(Optimize(x)) == Optimize(x). Deterministic for a given input;
// holds no state.
func Optimize(text string) string {
	tokens := strings.Fields(strings.ToLower(text))

	var out []string
	seen := make(map[string]bool)
	emit := func(tok string) {
		if !seen[tok] {
			out = append(out, tok)
			seen[tok] = true
		}
	}

	for _, tok := range tokens {
		tok = trimPunct(tok)
		if tok == "" || stopWords[tok] || seen[tok] {
			continue
		}
		emit(tok)
		for _, syn := range codeSynonyms[tok] {
			emit(strings.ToLower(syn))
		}
	}

	return strings.Join(out, " ")
}

// RelatedQueries generates a small set of prefetch candidates from text:
// the query with its last token dropped, and the query with each of a
// fixed list of suffixes appended.
func RelatedQueries(text string) []string {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil
	}

	var related []string
	if len(tokens) > 1 {
		related = append(related, strings.Join(tokens[:len(tokens)-1], " "))
	}
	for _, suffix := range prefetchSuffixes {
		related = append(related, text+" "+suffix)
	}
	return related
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
