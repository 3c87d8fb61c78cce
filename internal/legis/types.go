package legis

import (
	"errors"
	"fmt"
	"strings"
)

// BillType is the canonical lower-case bill type code.
type BillType string

const (
	HR      BillType = "hr"
	HRes    BillType = "hres"
	HConRes BillType = "hconres"
	HJRes   BillType = "hjres"
	S       BillType = "s"
	SRes    BillType = "sres"
	SConRes BillType = "sconres"
	SJRes   BillType = "sjres"
)

// Valid reports whether t is one of the eight known bill types.
func (t BillType) Valid() bool {
	switch t {
	case HR, HRes, HConRes, HJRes, S, SRes, SConRes, SJRes:
		return true
	}
	return false
}

// Category classifies an extracted reference.
type Category string

const (
	CategoryBillNumber     Category = "bill"
	CategoryLawNumber      Category = "law"
	CategoryTitleOnly      Category = "title"
	CategoryBillWithTitle  Category = "bill_with_title"
	CategoryLawWithTitle   Category = "law_with_title"
	CategoryCombined       Category = "bill_with_title_combined"
	CategorySubsumedNumber Category = "number_in_combined"
	CategorySubsumedTitle  Category = "title_in_combined"
)

// Subsumed reports whether references of this category were absorbed into
// a combined reference and must not be matched directly.
func (c Category) Subsumed() bool {
	return c == CategorySubsumedNumber || c == CategorySubsumedTitle
}

// IsLaw reports whether the category identifies a reference by law number.
func (c Category) IsLaw() bool {
	return c == CategoryLawNumber || c == CategoryLawWithTitle
}

// MatchType is the classification of a match result.
type MatchType string

const (
	HighConfidence     MatchType = "high_confidence_match"
	ModerateConfidence MatchType = "moderate_confidence_match"
	WrongTitle         MatchType = "wrong_title"
	Unmatched          MatchType = "unmatched"
	Duplicate          MatchType = "duplicate"
)

// CarriesBill reports whether results of this type identify a bill.
func (m MatchType) CarriesBill() bool {
	return m != Unmatched && m != Duplicate
}

// CongressSource records which detection rule assigned a congress number.
type CongressSource string

const (
	SourceExplicit   CongressSource = "explicit"
	SourceYear       CongressSource = "year"
	SourceFilingYear CongressSource = "filing_year"
)

// Confidence is the fixed confidence attached to each congress source.
func (s CongressSource) Confidence() float64 {
	switch s {
	case SourceExplicit:
		return 1.0
	case SourceYear:
		return 0.9
	case SourceFilingYear:
		return 0.7
	}
	return 0
}

// FilingSection is one unit of text to scan.
type FilingSection struct {
	FilingID   string
	SectionID  int64
	Text       string
	FilingYear int
}

// BillKey identifies a bill in the corpus.
type BillKey struct {
	Congress int
	Type     BillType
	Number   string
}

// ID renders the key as "hr1625-115".
func (k BillKey) ID() string {
	return BillID(k.Type, k.Number, k.Congress)
}

// BillRecord is one corpus entry. Identity is Key(); titles accumulate.
type BillRecord struct {
	Congress       int
	Type           BillType
	Number         string
	Titles         []string
	OfficialTitles []string
	LawNumber      string
}

func (b *BillRecord) Key() BillKey {
	return BillKey{Congress: b.Congress, Type: b.Type, Number: b.Number}
}

// AllTitles returns informal titles followed by official ones, skipping blanks.
func (b *BillRecord) AllTitles() []string {
	out := make([]string, 0, len(b.Titles)+len(b.OfficialTitles))
	for _, t := range b.Titles {
		if t != "" {
			out = append(out, t)
		}
	}
	for _, t := range b.OfficialTitles {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// PrimaryTitle returns the first official title, or the first title.
func (b *BillRecord) PrimaryTitle() string {
	for _, t := range b.OfficialTitles {
		if t != "" {
			return t
		}
	}
	for _, t := range b.Titles {
		if t != "" {
			return t
		}
	}
	return ""
}

// BillNumber is one number covered by a bill reference. Ranges such as
// "100-105" expand into several entries.
type BillNumber struct {
	Number       string
	IsRangeStart bool
	IsRangeEnd   bool
}

// ExtractedReference is a bill, law, or title mention found in a section.
type ExtractedReference struct {
	ID         string
	RunID      int64
	FilingID   string
	SectionID  int64
	Start      int
	End        int
	Category   Category
	FullText   string
	BillType   BillType
	BillNumber string
	Numbers    []BillNumber
	LawNumber  string
	Title      string

	Congress           int
	CongressSource     CongressSource
	CongressConfidence float64
}

// ErrInvalidReference is returned by the reference constructors when the
// primary identifying field is missing.
var ErrInvalidReference = errors.New("invalid reference")

// NewBillReference builds a bill-number reference, with a title when one is known.
func NewBillReference(t BillType, number, title string) (ExtractedReference, error) {
	if !t.Valid() || number == "" {
		return ExtractedReference{}, fmt.Errorf("%w: bill type %q number %q", ErrInvalidReference, t, number)
	}
	cat := CategoryBillNumber
	if title != "" {
		cat = CategoryBillWithTitle
	}
	return ExtractedReference{Category: cat, BillType: t, BillNumber: number, Title: title}, nil
}

// NewLawReference builds a law-number reference from a canonical "PL###-###".
func NewLawReference(law, title string) (ExtractedReference, error) {
	if !strings.HasPrefix(law, "PL") || len(law) < 5 {
		return ExtractedReference{}, fmt.Errorf("%w: law number %q", ErrInvalidReference, law)
	}
	cat := CategoryLawNumber
	if title != "" {
		cat = CategoryLawWithTitle
	}
	return ExtractedReference{Category: cat, LawNumber: law, Title: title}, nil
}

// NewTitleReference builds a reference identified by its title alone.
func NewTitleReference(title string) (ExtractedReference, error) {
	if strings.TrimSpace(title) == "" {
		return ExtractedReference{}, fmt.Errorf("%w: empty title", ErrInvalidReference)
	}
	return ExtractedReference{Category: CategoryTitleOnly, Title: title}, nil
}

// BillID returns the bill identifier of the referenced bill at the
// reference's congress, or "" when it is not a bill-number reference.
func (r *ExtractedReference) BillID() string {
	if r.BillType == "" || r.BillNumber == "" {
		return ""
	}
	return string(r.BillType) + r.BillNumber
}

// MatchResult is the outcome of resolving one reference against the corpus.
type MatchResult struct {
	MatchID     int64
	ReferenceID string
	Type        MatchType
	Confidence  float64

	ExtractedTitle      string
	ExtractedBillNumber string
	ExtractedLawNumber  string

	MatchedCongress   int
	MatchedBillType   BillType
	MatchedBillNumber string
	MatchedTitle      string
	MatchedLawNumber  string
	BillID            string

	UpdatedBillID string
	UpdateSource  string
}

// NewUnmatched builds an Unmatched result echoing the reference's fields.
func NewUnmatched(ref *ExtractedReference) *MatchResult {
	return &MatchResult{
		ReferenceID:         ref.ID,
		Type:                Unmatched,
		ExtractedTitle:      ref.Title,
		ExtractedBillNumber: ref.BillNumber,
		ExtractedLawNumber:  ref.LawNumber,
	}
}

// NewMatch builds a result that resolves ref to bill.
func NewMatch(ref *ExtractedReference, bill *BillRecord, typ MatchType, confidence float64, matchedTitle string) *MatchResult {
	m := &MatchResult{
		ReferenceID:         ref.ID,
		Type:                typ,
		Confidence:          confidence,
		ExtractedTitle:      ref.Title,
		ExtractedBillNumber: ref.BillNumber,
		ExtractedLawNumber:  ref.LawNumber,
		MatchedCongress:     bill.Congress,
		MatchedBillType:     bill.Type,
		MatchedBillNumber:   bill.Number,
		MatchedTitle:        matchedTitle,
		MatchedLawNumber:    bill.LawNumber,
		BillID:              bill.Key().ID(),
	}
	m.normalize()
	return m
}

// MarkDuplicate demotes the result to Duplicate, dropping its bill id.
func (m *MatchResult) MarkDuplicate() {
	m.Type = Duplicate
	m.normalize()
}

func (m *MatchResult) normalize() {
	if !m.Type.CarriesBill() {
		m.BillID = ""
	}
}
