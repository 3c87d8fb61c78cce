package correct

import (
	"context"

	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
)

// combine folds persisted number and title fragments into combined
// references, section by section, and matches the new references.
func (c *Corrector) combine(ctx context.Context, runID int64) (int, error) {
	refs, err := c.store.ListReferences(ctx, runID)
	if err != nil {
		return 0, err
	}
	texts, err := c.sectionTexts(ctx, refs)
	if err != nil {
		return 0, err
	}

	bySection := groupBySection(refs)
	subsumed := make(map[string]legis.Category)
	var combined []legis.ExtractedReference
	for _, group := range bySection {
		before := make([]legis.Category, len(group))
		for i := range group {
			before[i] = group[i].Category
		}
		combined = append(combined, match.Combine(texts[group[0].SectionID], group)...)
		for i := range group {
			if group[i].Category != before[i] {
				subsumed[group[i].ID] = group[i].Category
			}
		}
	}
	if len(combined) == 0 {
		return 0, nil
	}

	saved, err := c.store.ApplyCombination(ctx, runID, subsumed, combined)
	if err != nil {
		return 0, err
	}
	results, err := c.matcher.MatchAll(ctx, saved, c.workers)
	if err != nil {
		return 0, err
	}
	if err := c.store.SaveMatches(ctx, runID, results); err != nil {
		return 0, err
	}
	return len(saved), nil
}

// groupBySection splits refs, already ordered by section, into per-section
// slices that share refs' backing array.
func groupBySection(refs []legis.ExtractedReference) [][]legis.ExtractedReference {
	var out [][]legis.ExtractedReference
	start := 0
	for i := 1; i <= len(refs); i++ {
		if i == len(refs) || refs[i].SectionID != refs[start].SectionID {
			out = append(out, refs[start:i])
			start = i
		}
	}
	return out
}

func (c *Corrector) sectionTexts(ctx context.Context, refs []legis.ExtractedReference) (map[int64]string, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, r := range refs {
		if !seen[r.SectionID] {
			seen[r.SectionID] = true
			ids = append(ids, r.SectionID)
		}
	}
	sections, err := c.store.GetSections(ctx, ids)
	if err != nil {
		return nil, err
	}
	texts := make(map[int64]string, len(sections))
	for _, s := range sections {
		texts[s.SectionID] = s.Text
	}
	return texts, nil
}
