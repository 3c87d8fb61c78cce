package correct

import (
	"context"
	"regexp"
	"strings"

	"github.com/kalambet/billmatch/internal/storage"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n|\n|;\s+`)

type paragraph struct {
	start, end int
	text       string
}

// splitParagraphs cuts text on blank lines, newlines and "; ", trimming each
// piece and dropping empty ones. Offsets refer to the trimmed text.
func splitParagraphs(text string) []paragraph {
	var out []paragraph
	add := func(start, end int) {
		piece := text[start:end]
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			return
		}
		s := start + strings.Index(piece, trimmed)
		out = append(out, paragraph{start: s, end: s + len(trimmed), text: trimmed})
	}
	prev := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		add(prev, loc[0])
		prev = loc[1]
	}
	add(prev, len(text))
	return out
}

// paragraphs records the distinct paragraphs of every section with matches
// and links each match to the paragraph holding its reference.
func (c *Corrector) paragraphs(ctx context.Context, runID int64) (int, error) {
	rows, err := c.store.ListMatches(ctx, runID, storage.MatchFilter{})
	if err != nil {
		return 0, err
	}
	refs := make(map[int64][]storage.ReferenceMatch)
	var ids []int64
	for _, rm := range rows {
		if !rm.Match.Type.CarriesBill() {
			continue
		}
		id := rm.Reference.SectionID
		if _, ok := refs[id]; !ok {
			ids = append(ids, id)
		}
		refs[id] = append(refs[id], rm)
	}
	sections, err := c.store.GetSections(ctx, ids)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, sec := range sections {
		var paras []storage.Paragraph
		index := make(map[string]int)
		spans := splitParagraphs(sec.Text)
		owner := make([]int, len(spans))
		for i, p := range spans {
			if j, ok := index[p.text]; ok {
				owner[i] = j
				continue
			}
			index[p.text] = len(paras)
			owner[i] = len(paras)
			paras = append(paras, storage.Paragraph{Position: len(paras), Start: p.start, End: p.end, Text: p.text})
		}
		for _, rm := range refs[sec.SectionID] {
			for i, p := range spans {
				if rm.Reference.Start >= p.start && rm.Reference.Start < p.end {
					pp := &paras[owner[i]]
					pp.MatchIDs = append(pp.MatchIDs, rm.Match.MatchID)
					break
				}
			}
		}
		if err := c.store.SaveParagraphs(ctx, runID, sec.SectionID, paras); err != nil {
			return total, err
		}
		total += len(paras)
	}
	return total, nil
}
