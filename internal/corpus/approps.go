package corpus

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/kalambet/billmatch/internal/legis"
)

// Fuzzy key matches below this score are not candidates.
const minApproKeyScore = 0.8

var (
	fiscalYearPattern = regexp.MustCompile(`(?i)(?:\bfor\s+)?(?:\bfiscal\s+years?|\bFY)\s*(?:19|20)?\d{2}\b(?:\s*(?:and|through|-)\s*(?:19|20)?\d{2}\b)?`)
	bareYearPattern   = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	approSuffix       = regexp.MustCompile(`(?:[\s,]+(?:bill|act|appropriations?|approps?))+$`)
	approPrefix       = regexp.MustCompile(`^the\s+`)

	// Department shorthand found in appropriations titles. Matched on word
	// boundaries, case-sensitively, before lower-casing.
	approAcronyms = []struct {
		pattern *regexp.Regexp
		full    string
	}{
		{regexp.MustCompile(`\bTHUD\b`), "Transportation, Housing and Urban Development"},
		{regexp.MustCompile(`\bCJS\b`), "Commerce, Justice, Science"},
		{regexp.MustCompile(`\bMilCon\b`), "Military Construction"},
		{regexp.MustCompile(`\bLeg Branch\b`), "Legislative Branch"},
		{regexp.MustCompile(`\bHUD\b`), "Housing and Urban Development"},
		{regexp.MustCompile(`\bFDA\b`), "Food and Drug Administration"},
		{regexp.MustCompile(`\b(?:DOD|DoD)\b`), "Department of Defense"},
		{regexp.MustCompile(`\bDHS\b`), "Department of Homeland Security"},
		{regexp.MustCompile(`\bHHS\b`), "Health and Human Services"},
		{regexp.MustCompile(`\bVA\b`), "Veterans Affairs"},
		{regexp.MustCompile(`\bEPA\b`), "Environmental Protection Agency"},
		{regexp.MustCompile(`\bNASA\b`), "National Aeronautics and Space Administration"},
		{regexp.MustCompile(`\bUSDA\b`), "Agriculture"},
	}
)

// AppropriationsKey reduces an appropriations title to its comparison key:
// fiscal years dropped, department acronyms expanded, lower-cased, hyphens
// turned into commas and trailing "bill", "act" or "appropriations" removed.
func AppropriationsKey(title string) string {
	k := NormalizeTitle(title)
	k = fiscalYearPattern.ReplaceAllString(k, " ")
	k = bareYearPattern.ReplaceAllString(k, " ")
	for _, a := range approAcronyms {
		k = a.pattern.ReplaceAllString(k, a.full)
	}
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "-", ", ")
	k = strings.Join(strings.Fields(k), " ")
	k = approSuffix.ReplaceAllString(k, "")
	k = approPrefix.ReplaceAllString(k, "")
	return strings.Trim(k, " ,")
}

// IsAppropriations reports whether a title names an appropriations measure.
func IsAppropriations(title string) bool {
	return strings.Contains(strings.ToLower(title), "appropriation")
}

type approKey struct {
	typ    legis.BillType
	number string
}

// approBill gathers one (type, number) across congresses.
type approBill struct {
	byCongress map[int]*legis.BillRecord
	titles     []string
}

// ApproMatch is a candidate returned by FindMatchingBills.
type ApproMatch struct {
	Bill  *legis.BillRecord
	Title string
	Score float64

	// edit-distance ratio against the raw title, years kept
	raw float64
}

// AppropriationsTrie indexes appropriations bills by their normalised,
// acronym-expanded title key.
type AppropriationsTrie struct {
	bills map[approKey]*approBill
	keys  map[string][]approKey
	norm  *Normalizer
}

func NewAppropriationsTrie(norm *Normalizer) *AppropriationsTrie {
	return &AppropriationsTrie{
		bills: make(map[approKey]*approBill),
		keys:  make(map[string][]approKey),
		norm:  norm,
	}
}

// Add indexes b when any of its titles mentions an appropriation.
func (t *AppropriationsTrie) Add(b *legis.BillRecord) {
	var titles []string
	for _, title := range b.AllTitles() {
		if IsAppropriations(title) {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		return
	}

	k := approKey{typ: b.Type, number: b.Number}
	ab, ok := t.bills[k]
	if !ok {
		ab = &approBill{byCongress: make(map[int]*legis.BillRecord)}
		t.bills[k] = ab
	}
	ab.byCongress[b.Congress] = b
	for _, title := range titles {
		if !slices.Contains(ab.titles, title) {
			ab.titles = append(ab.titles, title)
		}
		key := AppropriationsKey(title)
		if key == "" {
			continue
		}
		if !slices.Contains(t.keys[key], k) {
			t.keys[key] = append(t.keys[key], k)
		}
	}
}

// Len reports the number of distinct (type, number) entries.
func (t *AppropriationsTrie) Len() int {
	return len(t.bills)
}

// FindMatchingBills returns candidates for title, best first. Ties prefer
// bills of the given congress, then the bill whose title is closest to title
// with its fiscal year kept. An exact key match scores 1.0;
// otherwise keys are compared by Similarity. Each candidate resolves to
// congress when the bill exists there, else to its latest congress.
func (t *AppropriationsTrie) FindMatchingBills(title string, congress int) []ApproMatch {
	query := AppropriationsKey(title)
	if query == "" {
		return nil
	}

	scores := make(map[approKey]float64)
	if exact, ok := t.keys[query]; ok {
		for _, k := range exact {
			scores[k] = 1
		}
	} else {
		for key, bills := range t.keys {
			s := similarity(query, key)
			if s < minApproKeyScore {
				continue
			}
			for _, k := range bills {
				if s > scores[k] {
					scores[k] = s
				}
			}
		}
	}

	lower := strings.ToLower(title)
	out := make([]ApproMatch, 0, len(scores))
	for k, s := range scores {
		ab := t.bills[k]
		b := ab.at(congress)
		m := ApproMatch{
			Bill:  b,
			Title: ab.bestTitle(title, t.norm),
			Score: s,
		}
		for _, bt := range b.AllTitles() {
			m.raw = max(m.raw, FuzzyRatio(lower, strings.ToLower(bt)))
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if ci, cj := out[i].Bill.Congress == congress, out[j].Bill.Congress == congress; ci != cj {
			return ci
		}
		if out[i].raw != out[j].raw {
			return out[i].raw > out[j].raw
		}
		return out[i].Bill.Key().ID() < out[j].Bill.Key().ID()
	})
	return out
}

func (ab *approBill) at(congress int) *legis.BillRecord {
	if b, ok := ab.byCongress[congress]; ok {
		return b
	}
	latest := 0
	for c := range ab.byCongress {
		latest = max(latest, c)
	}
	return ab.byCongress[latest]
}

func (ab *approBill) bestTitle(query string, norm *Normalizer) string {
	best, bestScore := ab.titles[0], -1.0
	for _, title := range ab.titles {
		if s := norm.Similarity(query, title); s > bestScore {
			best, bestScore = title, s
		}
	}
	return best
}
