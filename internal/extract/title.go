package extract

import (
	"strings"
	"unicode"
)

// span is a title candidate located in a section's text.
type span struct {
	start, end int
	title      string
}

// findTitles returns cleaned title candidates in order of position. Candidates
// joined only by capitalised words and short connectors form one nested title;
// the inner phrases are not reported separately.
func findTitles(text string) []span {
	locs := titlePattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	merged := make([][2]int, 0, len(locs))
	for _, loc := range locs {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if loc[1]-prev[0] <= nestedContext && nestedGapPattern.MatchString(text[prev[1]:loc[0]]) {
				prev[1] = loc[1]
				continue
			}
		}
		merged = append(merged, [2]int{loc[0], loc[1]})
	}

	out := make([]span, 0, len(merged))
	for _, m := range merged {
		if committeeFollows.MatchString(text[m[1]:]) {
			// "Senate Appropriations Committee"
			continue
		}
		out = appendTitle(out, text, m[0], m[1])
	}
	return out
}

// appendTitle cleans text[start:end] and appends it when it is a valid title.
func appendTitle(out []span, text string, start, end int) []span {
	raw := text[start:end]
	title, ok := cleanTitle(raw)
	if !ok {
		return out
	}
	// Keep positions pointing at the cleaned title.
	offset := strings.Index(raw, title)
	if offset < 0 {
		offset = 0
	}
	return append(out, span{start: start + offset, end: start + offset + len(title), title: title})
}

// splitAroundCitations cuts title candidates at the citations they overlap,
// as in "HR 1 Tax Cuts and Jobs Act", and keeps the pieces that are still
// titles.
func splitAroundCitations(text string, titles []span, cits []citation) []span {
	out := make([]span, 0, len(titles))
	for _, t := range titles {
		if !overlapsAny(t.start, t.end, cits) {
			out = append(out, t)
			continue
		}
		pos := t.start
		for _, c := range cits {
			if c.end <= pos || c.start >= t.end {
				continue
			}
			if c.start > pos {
				out = appendTitle(out, text, pos, c.start)
			}
			pos = c.end
		}
		if pos < t.end {
			out = appendTitle(out, text, pos, t.end)
		}
	}
	return out
}

// cleanTitle strips boilerplate prefixes, surrounding punctuation, and any
// text after the ending word and year, then validates the result.
func cleanTitle(title string) (string, bool) {
	title = strings.TrimSpace(title)
	for _, p := range titlePrefixes {
		title = p.ReplaceAllString(title, "")
	}
	title = strings.TrimLeft(title, ",;:. \t\n\"'")
	title = strings.TrimRight(title, " \t\n\"'")

	if locs := titleEndingPattern.FindAllStringIndex(title, -1); len(locs) > 0 {
		title = strings.TrimSpace(title[:locs[len(locs)-1][1]])
	}
	title = strings.Join(strings.Fields(title), " ")

	if !isAcronymTitle(title) && len(strings.Fields(title)) < 2 {
		return "", false
	}
	if !validTitle(title) {
		return "", false
	}
	return title, true
}

// validTitle requires a capitalised start (or "the ") and a legislative
// ending with an optional year.
func validTitle(title string) bool {
	if title == "" {
		return false
	}
	if isAcronymTitle(title) {
		return true
	}
	first := []rune(title)[0]
	if !unicode.IsUpper(first) && !unicode.IsDigit(first) && !strings.HasPrefix(strings.ToLower(title), "the ") {
		return false
	}
	if chamberOnly(title) {
		return false
	}
	return validEndingPattern.MatchString(title)
}

func isAcronymTitle(title string) bool {
	return acronymTitlePattern.MatchString(title)
}

// chamberOnly rejects phrases such as "Senate Bill" or "House Resolution"
// that name a citation kind rather than a piece of legislation.
func chamberOnly(title string) bool {
	words := strings.Fields(strings.ToLower(title))
	for _, w := range words {
		switch w {
		case "house", "senate", "joint", "concurrent", "bill", "resolution", "act", "of", "representatives":
		default:
			return false
		}
	}
	return true
}
