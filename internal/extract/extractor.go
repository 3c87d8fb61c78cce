// Package extract finds bill, law, and title references in free text.
package extract

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/billmatch/internal/legis"
)

const (
	titleWindow     = 300 // search distance for a title on either side of a citation
	nestedContext   = 200 // maximum span of a nested title
	companionGap    = 5   // connector text allowed between companion citations
	companionTitle  = 10  // distance from the last companion to its shared title
	standaloneGuard = 50  // unattached titles this close to a citation are dropped
	maxRange        = 100
)

// citation is a bill or law number located in the text.
type citation struct {
	start, end int
	billType   legis.BillType
	numbers    []legis.BillNumber
	law        string
}

// Extractor turns section text into references. It holds no per-call state
// and is safe for concurrent use.
type Extractor struct {
	newID func() string
}

// New returns an Extractor that assigns random UUIDs to references.
func New() *Extractor {
	return &Extractor{newID: uuid.NewString}
}

var defaultExtractor = New()

// Extract returns the references found in text. A filingYear of 0 means the
// filing year is unknown.
func Extract(text string, filingYear int) []legis.ExtractedReference {
	refs, _ := defaultExtractor.ExtractContext(context.Background(), text, filingYear)
	return refs
}

// ExtractSection extracts a section's references and stamps them with its
// filing and section ids.
func (e *Extractor) ExtractSection(ctx context.Context, sec legis.FilingSection) ([]legis.ExtractedReference, error) {
	refs, err := e.ExtractContext(ctx, sec.Text, sec.FilingYear)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].FilingID = sec.FilingID
		refs[i].SectionID = sec.SectionID
	}
	return refs, nil
}

// ExtractContext is Extract with cancellation. It returns ctx.Err() when the
// context ends before extraction finishes.
func (e *Extractor) ExtractContext(ctx context.Context, text string, filingYear int) ([]legis.ExtractedReference, error) {
	cits := findCitations(text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	titles := splitAroundCitations(text, findTitles(text), cits)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assigned := associate(text, cits, titles)

	var refs []legis.ExtractedReference
	for i, c := range cits {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		title := ""
		if t := assigned.byCitation[i]; t >= 0 {
			title = titles[t].title
		}

		var (
			ref legis.ExtractedReference
			err error
		)
		if c.law != "" {
			ref, err = legis.NewLawReference(c.law, title)
		} else {
			ref, err = legis.NewBillReference(c.billType, c.numbers[0].Number, title)
			ref.Numbers = c.numbers
		}
		if err != nil {
			continue
		}
		ref.Start, ref.End = c.start, c.end
		ref.FullText = strings.TrimSpace(text[c.start:c.end])
		e.finish(&ref, text, filingYear)
		refs = append(refs, ref)
	}

	for i, t := range titles {
		if assigned.used[i] || nearCitation(text, t, cits) {
			continue
		}
		ref, err := legis.NewTitleReference(t.title)
		if err != nil {
			continue
		}
		ref.Start, ref.End = t.start, t.end
		ref.FullText = text[t.start:t.end]
		e.finish(&ref, text, filingYear)
		refs = append(refs, ref)
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Start < refs[j].Start })
	return refs, nil
}

func (e *Extractor) finish(ref *legis.ExtractedReference, text string, filingYear int) {
	ref.ID = e.newID()
	ref.Congress, ref.CongressSource = detectCongress(text, ref.Start, ref.End, ref.Title, filingYear)
	ref.CongressConfidence = ref.CongressSource.Confidence()
}

// findCitations returns bill and law citations ordered by position.
func findCitations(text string) []citation {
	var out []citation

	for _, m := range billPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if start > 0 && (text[start-1] == '.' || text[start-1] == '\'') {
			// "U.S. 5", "Dept.'s 3"
			continue
		}
		t := legis.StandardizeBillType(group(text, m, 1), group(text, m, 2), group(text, m, 3))
		if t == "" {
			continue
		}
		numbers := expandRange(group(text, m, 4), group(text, m, 5))
		if len(numbers) == 0 {
			continue
		}
		out = append(out, citation{start: start, end: end, billType: t, numbers: numbers})
	}

	for _, m := range lawPattern.FindAllStringSubmatchIndex(text, -1) {
		c := citation{
			start: m[0],
			end:   m[1],
			law:   legis.StandardizeLawNumber(group(text, m, 1) + "-" + group(text, m, 2)),
		}
		if overlapsAny(c.start, c.end, out) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func group(text string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

// expandRange lists the numbers covered by first[-last]. Reversed or
// oversized ranges keep only their endpoints.
func expandRange(first, last string) []legis.BillNumber {
	first = trimZeros(first)
	if first == "" {
		return nil
	}
	if last == "" {
		return []legis.BillNumber{{Number: first}}
	}
	last = trimZeros(last)
	lo, err1 := strconv.Atoi(first)
	hi, err2 := strconv.Atoi(last)
	if err1 != nil || err2 != nil || hi < lo || hi-lo > maxRange {
		return []legis.BillNumber{
			{Number: first, IsRangeStart: true},
			{Number: last, IsRangeEnd: true},
		}
	}
	out := make([]legis.BillNumber, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, legis.BillNumber{
			Number:       strconv.Itoa(n),
			IsRangeStart: n == lo,
			IsRangeEnd:   n == hi,
		})
	}
	return out
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" && s != "" {
		return "0"
	}
	return t
}

func overlapsAny(start, end int, cits []citation) bool {
	for _, c := range cits {
		if start < c.end && c.start < end {
			return true
		}
	}
	return false
}

// nearCitation reports whether an unattached title sits too close to a
// citation to stand alone. A title trailing a citation within companionTitle,
// as in "H.R. 1 / S. 2 / Farm Bill", is kept so the numbers can be combined
// with it later.
func nearCitation(text string, t span, cits []citation) bool {
	for _, c := range cits {
		if c.end <= t.start && t.start-c.end <= companionTitle && !strings.ContainsAny(text[c.end:t.start], ".;\n") {
			return false
		}
	}
	for _, c := range cits {
		if t.end+standaloneGuard >= c.start && c.end+standaloneGuard >= t.start {
			return true
		}
	}
	return false
}

type association struct {
	byCitation []int  // title index per citation, -1 for none
	used       []bool // per title
}

// associate attaches titles to citations. Companion groups share a trailing
// title; otherwise a citation takes the title right before it, then the title
// right after it.
func associate(text string, cits []citation, titles []span) association {
	a := association{
		byCitation: make([]int, len(cits)),
		used:       make([]bool, len(titles)),
	}
	for i := range a.byCitation {
		a.byCitation[i] = -1
	}
	if len(titles) == 0 {
		return a
	}
	// Titles consumed as a trailing title can't serve the next citation as
	// a leading one.
	trailing := make([]bool, len(titles))

	for i := 0; i < len(cits); {
		j := i
		for j+1 < len(cits) && companions(text, cits[j], cits[j+1]) {
			j++
		}
		if j > i {
			last := cits[j]
			if t := titleAfter(text, last.end, titles, companionTitle); t >= 0 {
				for k := i; k <= j; k++ {
					a.byCitation[k] = t
				}
				a.used[t], trailing[t] = true, true
			}
		}
		i = j + 1
	}

	for i, c := range cits {
		if a.byCitation[i] >= 0 {
			continue
		}
		if t := titleBefore(text, c.start, titles, trailing); t >= 0 {
			a.byCitation[i] = t
			a.used[t] = true
			continue
		}
		if t := titleAfter(text, c.end, titles, titleWindow); t >= 0 {
			a.byCitation[i] = t
			a.used[t], trailing[t] = true, true
		}
	}
	return a
}

func companions(text string, a, b citation) bool {
	if a.law != "" || b.law != "" || b.start-a.end > companionGap {
		return false
	}
	return !strings.ContainsAny(text[a.end:b.start], ".;\n")
}

func titleBefore(text string, pos int, titles []span, trailing []bool) int {
	for t := len(titles) - 1; t >= 0; t-- {
		s := titles[t]
		if s.end > pos {
			continue
		}
		if pos-s.end > titleWindow {
			return -1
		}
		if trailing[t] || !gapBeforePattern.MatchString(text[s.end:pos]) {
			return -1
		}
		return t
	}
	return -1
}

func titleAfter(text string, pos int, titles []span, within int) int {
	for t, s := range titles {
		if s.start < pos {
			continue
		}
		if s.start-pos > within {
			return -1
		}
		if !gapAfterPattern.MatchString(text[pos:s.start]) {
			return -1
		}
		return t
	}
	return -1
}
