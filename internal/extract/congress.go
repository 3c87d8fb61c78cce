package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kalambet/billmatch/internal/legis"
)

// congressWindow bounds how far a detected congress may sit from the filing
// year's congress before it is ignored.
const congressWindow = 3

// Tokens that end in a period without ending a sentence.
var abbreviations = map[string]bool{
	"h": true, "r": true, "s": true, "j": true, "c": true, "b": true,
	"l": true, "p": true, "no": true, "sen": true, "res": true, "con": true,
	"pub": true, "rep": true, "reps": true, "cong": true, "sec": true,
	"u": true, "mr": true, "ms": true, "mrs": true, "dr": true, "st": true,
}

// detectCongress assigns a congress to a reference found at [start, end).
// Checks run in priority order and the first that applies wins.
func detectCongress(text string, start, end int, title string, filingYear int) (int, legis.CongressSource) {
	filing := 0
	if filingYear > 0 {
		filing = legis.YearToCongress(filingYear)
	}

	sStart, sEnd := sentenceBounds(text, start, end)
	sentence := text[sStart:sEnd]

	if c, ok := explicitCongress(sentence, filing); ok {
		return c, legis.SourceExplicit
	}
	if title != "" && (formalPrefixPattern.MatchString(title) || centuryPattern.MatchString(title)) {
		return filing, legis.SourceFilingYear
	}
	if centuryPattern.MatchString(sentence) {
		return filing, legis.SourceFilingYear
	}
	if title != "" {
		if c, ok := yearCongress(title, filing); ok {
			return c, legis.SourceYear
		}
	}
	return filing, legis.SourceFilingYear
}

// explicitCongress returns the most frequent "Nth Congress" mention that lies
// within congressWindow of the filing congress. Ties go to the first seen.
func explicitCongress(sentence string, filing int) (int, bool) {
	counts := make(map[int]int)
	var order []int
	for _, m := range congressPattern.FindAllStringSubmatchIndex(sentence, -1) {
		var digits string
		switch {
		case m[2] >= 0:
			digits = sentence[m[2]:m[3]]
		case m[4] >= 0:
			digits = sentence[m[4]:m[5]]
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			continue
		}
		if centuryFollows.MatchString(sentence[m[1]:]) {
			continue
		}
		if filing == 0 && !strings.Contains(strings.ToLower(sentence[m[0]:m[1]]), "cong") {
			continue
		}
		if filing > 0 && abs(n-filing) > congressWindow {
			continue
		}
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}
	best, bestCount := 0, 0
	for _, n := range order {
		if counts[n] > bestCount {
			best, bestCount = n, counts[n]
		}
	}
	return best, bestCount > 0
}

// yearCongress converts the first year token in title to a congress.
func yearCongress(title string, filing int) (int, bool) {
	for _, p := range yearPatterns {
		m := p.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		yy, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		year := 1900 + yy
		if yy < 50 {
			year = 2000 + yy
		}
		c := legis.YearToCongress(year)
		if filing > 0 && abs(c-filing) > congressWindow {
			continue
		}
		return c, true
	}
	return 0, false
}

// sentenceBounds returns the sentence around [start, end). A sentence ends at
// a newline, or at a period followed by whitespace and an upper-case letter
// unless the period closes an abbreviation such as "H.R." or "Sen.".
func sentenceBounds(text string, start, end int) (int, int) {
	lo := 0
	for i := start - 1; i >= 0; i-- {
		if text[i] == '\n' || (text[i] == '.' && sentenceBreak(text, i)) {
			lo = i + 1
			break
		}
	}
	hi := len(text)
	for i := end; i < len(text); i++ {
		if text[i] == '\n' || (text[i] == '.' && sentenceBreak(text, i)) {
			hi = i
			break
		}
	}
	return lo, hi
}

func sentenceBreak(text string, dot int) bool {
	j := dot + 1
	if j >= len(text) || !unicode.IsSpace(rune(text[j])) {
		return false
	}
	for j < len(text) && unicode.IsSpace(rune(text[j])) {
		j++
	}
	if j >= len(text) || !unicode.IsUpper(rune(text[j])) {
		return false
	}
	k := dot
	for k > 0 && unicode.IsLetter(rune(text[k-1])) {
		k--
	}
	return !abbreviations[strings.ToLower(text[k:dot])]
}

var centuryFollows = regexp.MustCompile(`(?i)^\s*Century\b`)

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
