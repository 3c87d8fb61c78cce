package extract

import "regexp"

// Title phrases end in one of these nouns.
const endingWords = `Act|Bill|Resolution|Appropriations|Trade\s+Agreement`

const (
	chamberPattern = `House(?:\s+of\s+Representatives?)?|H[., ]*R[.,]*|H[.,]*|Senate|Sen[.,]*|S[.,]*`
	resTypePattern = `Concurrent|Con[.,]*|C[.,]*|Joint|J[.,]*`
	legTypePattern = `Resolution|Res[.,]*|R[.,]*|Bill|B[.,]*`
)

var (
	// H.R. 1234, S. 5, H. Con. Res. 12, Senate Joint Resolution 3, H.R. 100-105
	billPattern = regexp.MustCompile(`(?i)\b(` + chamberPattern + `)\s*(?::|\.|\s)\s*(` + resTypePattern + `)?\s*(` + legTypePattern + `)?(?-i:s)?\s*(?::|\.|\s)*\s*(\d+)(?:\s*-\s*(\d+))?\b`)

	// Public Law 115-232, P.L. 115-232, Pub. L. 115-232, PL 94-142
	lawPattern = regexp.MustCompile(`(?i)\b(?:Public\s+Law|Private\s+Law|Pub\.?\s*L\.?|Pub\.?|P\.\s?L\.|PL)\s*-?\s*(\d{2,3})\s*-\s*(\d{1,3})\b`)

	// Capitalised phrase ending in a legislative noun with an optional year.
	// Interior words may be capitalised or short connectors. An ordinal or a
	// year may lead ("21st Century Cures Act", "2018 Farm Bill").
	titlePattern = regexp.MustCompile(`\b(?:(?:\d{1,3}(?:st|nd|rd|th)|(?:19|20)\d{2})[ \t]+)?[A-Z][\w'&\-]*(?:(?:[ \t]+|[ \t]*,[ \t]*)(?:[A-Z0-9][\w'&\-]*|of|and|the|for|to|on|in|a|an|with|by|from|&)){0,20}?[ \t]+(?:` + endingWords + `)(?:[ \t]+(?:` + endingWords + `))*\b(?:[ \t]*(?:of|,)[ \t]*(?:19|20)\d{2}\b)?`)

	// 115th Congress, 115th Cong., (115th)
	congressPattern = regexp.MustCompile(`(?i)\b(\d{1,3})(?:st|nd|rd|th)\s*(?:Congress|Cong\.?)?\b|\(\s*(\d{1,3})(?:st|nd|rd|th)\s*\)`)

	centuryPattern = regexp.MustCompile(`(?i)\b(?:1\d|2[01])(?:st|nd|rd|th)\s+Century\b`)

	formalPrefixPattern = regexp.MustCompile(`^(?:To |A bill to |A resolution )`)

	acronymTitlePattern = regexp.MustCompile(`^[A-Z]{2,}(?:\s*[-']\s*[A-Z]+)*\s+(?:` + endingWords + `)\b`)

	// Year tokens inside a title, most specific first. Group 1 is the
	// two-digit year.
	yearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Act|Bill|Resolution)\s+of\s+(?:19|20)(\d{2})\b`),
		regexp.MustCompile(`(?i)(?:FY|Fiscal\s+Year)\s*(?:19|20)?(\d{2})\b`),
		regexp.MustCompile(`(?i)(?:19|20)(\d{2})\s+(?:FY|Fiscal\s+Year)\b`),
		regexp.MustCompile(`(?i)\bof\s+(?:19|20)(\d{2})\b`),
		regexp.MustCompile(`(?i)\b(?:19|20)(\d{2})\s+(?:Bill|Act|Authorization|Resolution)\b`),
		regexp.MustCompile(`(?:,\s*|\s+)(?:19|20)(\d{2})\b`),
	}
)

// Boilerplate stripped from the front of a title candidate.
var titlePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^as\s+(?:amended|passed|reported|introduced|modified|marked[\s-]?up|drafted)(?:\s+(?:by|in|to)\s+[^,.]*)?[,\s]+`),
	regexp.MustCompile(`(?i)^the\s+(?:revised|amended|modified|updated|draft|final|proposed)\s+`),
	regexp.MustCompile(`(?i)^(?:the|a|an)\s+bill\s+(?:to|for|that)\s+[^,.]*?[,\s]+`),
	regexp.MustCompile(`(?i)^(?:the|a|an)\s+resolution\s+(?:to|for|that)\s+[^,.]*?[,\s]+`),
	regexp.MustCompile(`^(?:Support(?:ed|ing|s)?|Oppos(?:e|ed|es|ing)|Monitor(?:ed|ing|s)?|Regarding|Concerning|Implementation\s+of|Issues\s+(?:related\s+to|regarding))\s+`),
	regexp.MustCompile(`^[A-Z][a-z]*\s+(?:on|in|to|for|regarding|under)\s+the\s+`),
	regexp.MustCompile(`(?i)^the\s+`),
}

var (
	titleEndingPattern = regexp.MustCompile(`\b(?:` + endingWords + `)(?:\s+(?:` + endingWords + `))*\b(?:\s*(?:of|,)\s*(?:19|20)\d{2}\b)?`)
	validEndingPattern = regexp.MustCompile(`(?:` + endingWords + `)(?:\s*(?:of|,)\s*(?:19|20)\d{2})?$`)

	// Text allowed between a title and the citation that follows it.
	gapBeforePattern = regexp.MustCompile(`^[\s,:("'\-]*$`)
	// Text allowed between a citation and the title that follows it.
	gapAfterPattern = regexp.MustCompile(`^[\s,:("'\-]*(?:(?:the|a|an)\s+["']?)?$`)

	committeeFollows = regexp.MustCompile(`^[ \t]+(?:Committees?|Subcommittees?)\b`)

	// Interior words that may join two title candidates into one nested title.
	nestedGapPattern = regexp.MustCompile(`^(?:\s+(?:[A-Z][\w'&\-]*|of|for|to|on|the))*\s*$`)
)
