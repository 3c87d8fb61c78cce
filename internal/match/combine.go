package match

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/billmatch/internal/legis"
)

const (
	combineNumberGap = 5  // between consecutive bill numbers
	combineTitleGap  = 10 // between the last number and the title
)

// Combine joins runs of two or more bare bill numbers that are followed by a
// title into one CombinedBillTitle reference per number. refs must come from
// a single section whose text is text; an empty text checks positions only.
//
// The absorbed originals are re-categorised in place as SubsumedNumber and
// SubsumedTitle. The new references are returned in position order.
func Combine(text string, refs []legis.ExtractedReference) []legis.ExtractedReference {
	order := make([]int, 0, len(refs))
	for i := range refs {
		switch refs[i].Category {
		case legis.CategoryBillNumber, legis.CategoryTitleOnly:
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := &refs[order[a]], &refs[order[b]]
		if ra.Start != rb.Start {
			return ra.Start < rb.Start
		}
		return ra.End < rb.End
	})

	var out []legis.ExtractedReference
	for i := 0; i < len(order); {
		if refs[order[i]].Category != legis.CategoryBillNumber {
			i++
			continue
		}
		j := i
		for j+1 < len(order) &&
			refs[order[j+1]].Category == legis.CategoryBillNumber &&
			adjacent(text, &refs[order[j]], &refs[order[j+1]], combineNumberGap) {
			j++
		}
		if j == i || j+1 >= len(order) {
			i = j + 1
			continue
		}
		title := &refs[order[j+1]]
		if title.Category != legis.CategoryTitleOnly || !adjacent(text, &refs[order[j]], title, combineTitleGap) {
			i = j + 1
			continue
		}

		for k := i; k <= j; k++ {
			num := &refs[order[k]]
			out = append(out, combined(text, num, title))
			num.Category = legis.CategorySubsumedNumber
		}
		title.Category = legis.CategorySubsumedTitle
		i = j + 2
	}
	return out
}

func adjacent(text string, a, b *legis.ExtractedReference, maxGap int) bool {
	gap := b.Start - a.End
	if gap < 0 || gap > maxGap {
		return false
	}
	if text == "" || b.Start > len(text) {
		return true
	}
	return !strings.ContainsAny(text[a.End:b.Start], ".;\n")
}

func combined(text string, num, title *legis.ExtractedReference) legis.ExtractedReference {
	c := legis.ExtractedReference{
		ID:         uuid.NewString(),
		RunID:      num.RunID,
		FilingID:   num.FilingID,
		SectionID:  num.SectionID,
		Start:      num.Start,
		End:        title.End,
		Category:   legis.CategoryCombined,
		BillType:   num.BillType,
		BillNumber: num.BillNumber,
		Numbers:    num.Numbers,
		Title:      title.Title,

		Congress:           num.Congress,
		CongressSource:     num.CongressSource,
		CongressConfidence: num.CongressConfidence,
	}
	// A year in the title outranks the filing-year fallback on the number.
	if title.CongressConfidence > num.CongressConfidence {
		c.Congress = title.Congress
		c.CongressSource = title.CongressSource
		c.CongressConfidence = title.CongressConfidence
	}
	if text != "" && c.End <= len(text) && c.Start < c.End {
		c.FullText = text[c.Start:c.End]
	} else {
		c.FullText = strings.TrimSpace(num.FullText + " " + title.FullText)
	}
	return c
}
