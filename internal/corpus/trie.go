package corpus

import (
	"slices"
	"sort"

	"github.com/kalambet/billmatch/internal/legis"
)

// BillTrie is the primary corpus index: bills by (congress, type, number),
// by law number, and by normalised official title. It is built once and is
// safe for concurrent readers afterwards.
type BillTrie struct {
	bills      map[legis.BillKey]*legis.BillRecord
	laws       map[string]*legis.BillRecord
	titles     map[string][]*legis.BillRecord
	byCongress map[int][]*legis.BillRecord
	norm       *Normalizer
}

func NewBillTrie(norm *Normalizer) *BillTrie {
	return &BillTrie{
		bills:      make(map[legis.BillKey]*legis.BillRecord),
		laws:       make(map[string]*legis.BillRecord),
		titles:     make(map[string][]*legis.BillRecord),
		byCongress: make(map[int][]*legis.BillRecord),
		norm:       norm,
	}
}

// Add inserts b. Adding a bill whose key is already present merges its titles
// and law number into the existing record.
func (t *BillTrie) Add(b legis.BillRecord) *legis.BillRecord {
	key := b.Key()
	rec, ok := t.bills[key]
	if !ok {
		rec = &legis.BillRecord{Congress: b.Congress, Type: b.Type, Number: b.Number}
		t.bills[key] = rec
		t.byCongress[b.Congress] = append(t.byCongress[b.Congress], rec)
	}
	for _, title := range b.Titles {
		if title != "" && !slices.Contains(rec.Titles, title) {
			rec.Titles = append(rec.Titles, title)
		}
	}
	for _, title := range b.OfficialTitles {
		if title == "" || slices.Contains(rec.OfficialTitles, title) {
			continue
		}
		rec.OfficialTitles = append(rec.OfficialTitles, title)
		n := t.norm.Normalize(title)
		if !slices.Contains(t.titles[n], rec) {
			t.titles[n] = append(t.titles[n], rec)
		}
	}
	if b.LawNumber != "" {
		if rec.LawNumber == "" {
			rec.LawNumber = b.LawNumber
		}
		t.laws[b.LawNumber] = rec
	}
	return rec
}

// Get looks a bill up by its identity.
func (t *BillTrie) Get(congress int, typ legis.BillType, number string) (*legis.BillRecord, bool) {
	b, ok := t.bills[legis.BillKey{Congress: congress, Type: typ, Number: number}]
	return b, ok
}

// GetByLaw looks a bill up by its canonical "PL###-###" law number.
func (t *BillTrie) GetByLaw(law string) (*legis.BillRecord, bool) {
	b, ok := t.laws[law]
	return b, ok
}

// GetByTitle returns the bills whose official title normalises to normalized.
func (t *BillTrie) GetByTitle(normalized string) []*legis.BillRecord {
	return t.titles[normalized]
}

// InCongress returns the bills of one congress in insertion order.
func (t *BillTrie) InCongress(congress int) []*legis.BillRecord {
	return t.byCongress[congress]
}

// Congresses lists the congresses present, ascending.
func (t *BillTrie) Congresses() []int {
	out := make([]int, 0, len(t.byCongress))
	for c := range t.byCongress {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// All returns every bill, ordered by congress and then insertion.
func (t *BillTrie) All() []*legis.BillRecord {
	out := make([]*legis.BillRecord, 0, len(t.bills))
	for _, c := range t.Congresses() {
		out = append(out, t.byCongress[c]...)
	}
	return out
}

// Len reports the number of bills.
func (t *BillTrie) Len() int {
	return len(t.bills)
}

// Normalizer returns the cache used for title normalisation.
func (t *BillTrie) Normalizer() *Normalizer {
	return t.norm
}
