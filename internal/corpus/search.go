package corpus

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kalambet/billmatch/internal/legis"
)

const (
	fieldTitles   = "titles"
	fieldCongress = "congress"

	indexBatchSize = 1000
)

// titleDoc is the indexed form of one bill.
type titleDoc struct {
	Titles   []string `json:"titles"`
	Congress float64  `json:"congress"`
}

// TitleIndex is an in-memory full-text index over bill titles, used to narrow
// title-only matching to a short candidate list.
type TitleIndex struct {
	index bleve.Index
	bills map[string]*legis.BillRecord
}

func titleMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	titles := bleve.NewTextFieldMapping()
	titles.Analyzer = standard.Name
	doc.AddFieldMappingsAt(fieldTitles, titles)

	congress := bleve.NewNumericFieldMapping()
	doc.AddFieldMappingsAt(fieldCongress, congress)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// NewTitleIndex indexes every title of bills.
func NewTitleIndex(bills []*legis.BillRecord) (*TitleIndex, error) {
	idx, err := bleve.NewMemOnly(titleMapping())
	if err != nil {
		return nil, fmt.Errorf("creating title index: %w", err)
	}
	ti := &TitleIndex{index: idx, bills: make(map[string]*legis.BillRecord, len(bills))}

	batch := idx.NewBatch()
	for _, b := range bills {
		titles := b.AllTitles()
		if len(titles) == 0 {
			continue
		}
		id := b.Key().ID()
		ti.bills[id] = b
		if err := batch.Index(id, titleDoc{Titles: titles, Congress: float64(b.Congress)}); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", id, err)
		}
		if batch.Size() >= indexBatchSize {
			if err := idx.Batch(batch); err != nil {
				return nil, fmt.Errorf("writing title batch: %w", err)
			}
			batch = idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return nil, fmt.Errorf("writing title batch: %w", err)
		}
	}
	return ti, nil
}

// Candidates returns up to n bills whose titles best match title. A positive
// congress restricts the search to that congress.
func (ti *TitleIndex) Candidates(title string, congress, n int) ([]*legis.BillRecord, error) {
	match := bleve.NewMatchQuery(title)
	match.SetField(fieldTitles)

	var q query.Query = match
	if congress > 0 {
		c := float64(congress)
		inclusive := true
		rng := bleve.NewNumericRangeInclusiveQuery(&c, &c, &inclusive, &inclusive)
		rng.SetField(fieldCongress)
		q = bleve.NewConjunctionQuery(match, rng)
	}

	req := bleve.NewSearchRequestOptions(q, n, 0, false)
	res, err := ti.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching titles: %w", err)
	}
	out := make([]*legis.BillRecord, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if b, ok := ti.bills[hit.ID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// Len reports the number of indexed bills.
func (ti *TitleIndex) Len() int {
	return len(ti.bills)
}

func (ti *TitleIndex) Close() error {
	return ti.index.Close()
}
