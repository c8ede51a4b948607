package vectorindex

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
)

// keywordDoc is the value indexed into the keyword/structural filter
// index: row metadata flattened into a handful of analyzed text fields,
// so an exact-keyword query (symbol name, kind, language, path) can
// narrow a vector search's candidate set the way ANN probing alone
// cannot, per spec.md §3's auxiliary filter index.
type keywordDoc struct {
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
	Language    string `json:"language"`
	FilePath    string `json:"file_path"`
}

func newKeywordIndex() (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	return bleve.NewMemOnly(mapping)
}

func idKey(id uint64) string {
	return strconv.FormatUint(id, 36)
}

// indexKeywordLocked indexes or re-indexes id's metadata for keyword
// filtering. Caller must hold t.mu for writing. A failure here degrades
// keyword filtering, not the table itself, so it is swallowed.
func (t *Table) indexKeywordLocked(id uint64, meta map[string]string) {
	if t.kwIndex == nil {
		return
	}
	doc := keywordDoc{
		DisplayName: meta["display_name"],
		Kind:        meta["kind"],
		Language:    meta["language"],
		FilePath:    meta["file_path"],
	}
	_ = t.kwIndex.Index(idKey(id), doc)
}

// deleteKeywordLocked removes id from the keyword index. Caller must
// hold t.mu for writing.
func (t *Table) deleteKeywordLocked(id uint64) {
	if t.kwIndex == nil {
		return
	}
	_ = t.kwIndex.Delete(idKey(id))
}

// KeywordCandidates runs query as a bleve query-string search over the
// table's keyword filter index and returns matching row IDs. The daemon's
// HandleSearch uses the set to boost the scores of vector Query hits that
// also match; it does not narrow the Query itself.
func (t *Table) KeywordCandidates(query string, limit int) (map[uint64]bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.kwIndex == nil {
		return nil, fmt.Errorf("vectorindex: table %q has no keyword index", t.name)
	}
	if limit <= 0 {
		limit = 50
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := t.kwIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: keyword search: %w", err)
	}

	ids := make(map[uint64]bool, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 36, 64)
		if err != nil {
			continue
		}
		ids[id] = true
	}
	return ids, nil
}
