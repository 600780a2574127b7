package scorer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
)

// keywordDoc is the document shape indexed into bleve: the chunk's text
// plus its owning path, so title-match boosting can be computed without a
// second lookup.
type keywordDoc struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// KeywordIndex wraps an in-memory bleve index per shard. GARS's own
// fuzzy-scoring formula (short-query base score / hit-count x multiplier)
// is layered on top of bleve's match reporting rather than on bleve's own
// relevance score, so the documented constants stay reproducible.
type KeywordIndex struct {
	index bleve.Index
}

// NewKeywordIndex creates a fresh in-memory keyword index.
func NewKeywordIndex() (*KeywordIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &KeywordIndex{index: idx}, nil
}

// Index upserts chunkID's searchable text.
func (k *KeywordIndex) Index(chunkID, path, title, text string) error {
	return k.index.Index(chunkID, keywordDoc{Path: path, Title: title, Text: text})
}

// Delete removes chunkID from the keyword index.
func (k *KeywordIndex) Delete(chunkID string) error {
	return k.index.Delete(chunkID)
}

// KeywordHit is one keyword-match result.
type KeywordHit struct {
	ChunkID    string
	Path       string
	HitCount   int
	TitleMatch bool
}

// Search runs a match query over the indexed text and returns up to k
// hits, each annotated with how many query terms matched (used by the
// fuzzy-scoring formula) and whether the owning document's title matched.
func (k *KeywordIndex) Search(query string, k2 int) ([]KeywordHit, error) {
	if query == "" {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, k2, 0, false)
	req.Fields = []string{"path", "title"}
	req.IncludeLocations = true
	res, err := k.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		path, _ := h.Fields["path"].(string)
		title, _ := h.Fields["title"].(string)
		hits = append(hits, KeywordHit{
			ChunkID:    h.ID,
			Path:       path,
			HitCount:   len(h.Locations["text"]),
			TitleMatch: titleContainsQuery(title, query),
		})
	}
	return hits, nil
}
