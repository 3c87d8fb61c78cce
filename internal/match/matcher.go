// Package match resolves extracted references against the corpus index.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/billmatch/internal/corpus"
	"github.com/kalambet/billmatch/internal/legis"
)

// Confidence thresholds.
const (
	WrongTitleThreshold = 0.3 // title comparison below this is WrongTitle
	ApproThreshold      = 0.9
	AcronymThreshold    = 0.9
	TitleOnlyThreshold  = 0.6
	HighThreshold       = 0.8 // title-only scores at or above this are HighConfidence
	FormalPrefixScore   = 0.9
)

var (
	formalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^To\s+`),
		regexp.MustCompile(`^A bill to\s+`),
		regexp.MustCompile(`^A (?:joint\s+|concurrent\s+)?resolution\s+`),
	}
	gerundPattern  = regexp.MustCompile(`^[A-Z][a-z]+ing\b`)
	namedPattern   = regexp.MustCompile(`(?:Act|Bill|Resolution)$`)
	acronymPattern = regexp.MustCompile(`^[A-Z]{2,}(?:\s*[-']\s*[A-Z]+)*\s+(?:Act|Bill|Resolution|Appropriations|Trade Agreement)\b`)
	wordPattern    = regexp.MustCompile(`\b\w+\b`)
)

// Matcher is the matching context for one run: an immutable corpus index
// shared read-only by every matching goroutine.
type Matcher struct {
	idx  *corpus.Index
	norm *corpus.Normalizer
}

// New returns a Matcher over idx.
func New(idx *corpus.Index) *Matcher {
	return &Matcher{idx: idx, norm: idx.Bills.Normalizer()}
}

// Index returns the corpus index the matcher reads.
func (m *Matcher) Index() *corpus.Index {
	return m.idx
}

// Match resolves ref at its own congress. Subsumed references return nil.
func (m *Matcher) Match(ref *legis.ExtractedReference) *legis.MatchResult {
	return m.MatchAt(ref, ref.Congress)
}

// MatchAt resolves ref as though it had been tagged with congress.
func (m *Matcher) MatchAt(ref *legis.ExtractedReference, congress int) *legis.MatchResult {
	switch ref.Category {
	case legis.CategorySubsumedNumber, legis.CategorySubsumedTitle:
		return nil
	case legis.CategoryBillNumber, legis.CategoryBillWithTitle, legis.CategoryCombined:
		return m.matchBill(ref, congress)
	case legis.CategoryLawNumber, legis.CategoryLawWithTitle:
		return m.matchLaw(ref)
	case legis.CategoryTitleOnly:
		return m.matchTitleOnly(ref, congress)
	}
	return legis.NewUnmatched(ref)
}

func (m *Matcher) matchBill(ref *legis.ExtractedReference, congress int) *legis.MatchResult {
	if ref.BillType == "" || ref.BillNumber == "" {
		return legis.NewUnmatched(ref)
	}
	bill, ok := m.idx.Bills.Get(congress, ref.BillType, ref.BillNumber)
	if !ok {
		return legis.NewUnmatched(ref)
	}
	if ref.Title == "" {
		return legis.NewMatch(ref, bill, legis.HighConfidence, 1.0, bill.PrimaryTitle())
	}
	return m.compareTitle(ref, bill)
}

func (m *Matcher) matchLaw(ref *legis.ExtractedReference) *legis.MatchResult {
	if ref.LawNumber == "" {
		return legis.NewUnmatched(ref)
	}
	bill, ok := m.idx.Bills.GetByLaw(legis.StandardizeLawNumber(ref.LawNumber))
	if !ok {
		return legis.NewUnmatched(ref)
	}
	if ref.Title == "" {
		return legis.NewMatch(ref, bill, legis.HighConfidence, 1.0, bill.PrimaryTitle())
	}
	return m.compareTitle(ref, bill)
}

// compareTitle scores the extracted title against a bill found by number:
// exact normalised match, then formal prefix, then best fuzzy score.
func (m *Matcher) compareTitle(ref *legis.ExtractedReference, bill *legis.BillRecord) *legis.MatchResult {
	all := bill.AllTitles()
	if len(all) == 0 {
		return legis.NewUnmatched(ref)
	}
	extracted := m.norm.Normalize(ref.Title)
	formal := isFormal(ref.Title)

	primary, secondary := bill.Titles, bill.OfficialTitles
	if formal {
		primary, secondary = bill.OfficialTitles, bill.Titles
	}
	for _, group := range [][]string{primary, secondary} {
		for _, t := range group {
			if t != "" && m.norm.Normalize(t) == extracted {
				return legis.NewMatch(ref, bill, legis.HighConfidence, 1.0, t)
			}
		}
	}

	if formal {
		prefix := strings.ToLower(extracted)
		for _, group := range [][]string{bill.OfficialTitles, bill.Titles} {
			for _, t := range group {
				if t != "" && strings.HasPrefix(strings.ToLower(t), prefix) {
					return legis.NewMatch(ref, bill, legis.HighConfidence, FormalPrefixScore, t)
				}
			}
		}
	}

	best, bestTitle := 0.0, all[0]
	for _, t := range all {
		if s := m.norm.Similarity(ref.Title, t); s > best {
			best, bestTitle = s, t
		}
	}
	if best >= WrongTitleThreshold {
		return legis.NewMatch(ref, bill, legis.HighConfidence, best, bestTitle)
	}
	return legis.NewMatch(ref, bill, legis.WrongTitle, best, bestTitle)
}

// matchTitleOnly finds the best congress-consistent bill for a bare title.
func (m *Matcher) matchTitleOnly(ref *legis.ExtractedReference, congress int) *legis.MatchResult {
	title := strings.TrimSpace(ref.Title)
	if title == "" {
		return legis.NewUnmatched(ref)
	}

	var fallback *corpus.ApproMatch
	if strings.Contains(strings.ToLower(title), "approp") {
		if cands := m.idx.Approps.FindMatchingBills(title, congress); len(cands) > 0 {
			top := cands[0]
			if top.Score >= ApproThreshold {
				return legis.NewMatch(ref, top.Bill, legis.HighConfidence, top.Score, top.Title)
			}
			fallback = &top
		}
	}

	for _, b := range m.idx.Bills.GetByTitle(m.norm.Normalize(title)) {
		if congress <= 0 || b.Congress == congress {
			return legis.NewMatch(ref, b, legis.HighConfidence, 1.0, matchingTitle(m.norm, b, title))
		}
	}

	threshold := TitleOnlyThreshold
	if acronymPattern.MatchString(title) {
		threshold = AcronymThreshold
	}

	var (
		best      float64
		bestBill  *legis.BillRecord
		bestTitle string
	)
	words := lowerWords(title)
	for _, b := range m.candidates(title, congress) {
		for _, t := range b.AllTitles() {
			base := m.norm.Similarity(title, t)
			if base == 0 {
				continue
			}
			score := base*0.7 + overlap(words, lowerWords(t))*0.3
			if score > best {
				best, bestBill, bestTitle = score, b, t
			}
		}
	}

	switch {
	case bestBill != nil && best >= threshold:
		typ := legis.ModerateConfidence
		if best >= HighThreshold {
			typ = legis.HighConfidence
		}
		return legis.NewMatch(ref, bestBill, typ, best, bestTitle)
	case fallback != nil && fallback.Score > best:
		return legis.NewMatch(ref, fallback.Bill, legis.WrongTitle, fallback.Score, fallback.Title)
	case bestBill != nil:
		return legis.NewMatch(ref, bestBill, legis.WrongTitle, best, bestTitle)
	}
	return legis.NewUnmatched(ref)
}

// candidates narrows the corpus for title-only matching. With a title index
// the top hits are used; otherwise the whole congress (or corpus) is scanned.
func (m *Matcher) candidates(title string, congress int) []*legis.BillRecord {
	if m.idx.Titles != nil && m.idx.TitleCandidates > 0 {
		bills, err := m.idx.Titles.Candidates(title, congress, m.idx.TitleCandidates)
		if err == nil {
			return bills
		}
		slog.Debug("title index search failed, scanning", "error", err)
	}
	if congress > 0 {
		return m.idx.Bills.InCongress(congress)
	}
	return m.idx.Bills.All()
}

func matchingTitle(norm *corpus.Normalizer, b *legis.BillRecord, title string) string {
	n := norm.Normalize(title)
	for _, t := range b.OfficialTitles {
		if norm.Normalize(t) == n {
			return t
		}
	}
	return b.PrimaryTitle()
}

func isFormal(title string) bool {
	for _, p := range formalPatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return gerundPattern.MatchString(title) && !namedPattern.MatchString(strings.TrimSpace(title))
}

func lowerWords(s string) map[string]bool {
	words := wordPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(a), len(b)))
}

// MatchAll matches refs with at most workers goroutines. Results line up with
// refs by index; subsumed references yield nil.
func (m *Matcher) MatchAll(ctx context.Context, refs []legis.ExtractedReference, workers int) ([]*legis.MatchResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]*legis.MatchResult, len(refs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range refs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = m.Match(&refs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching references: %w", err)
	}
	return results, nil
}
