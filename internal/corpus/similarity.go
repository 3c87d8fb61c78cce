package corpus

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	maxLengthSkew = 0.5 // titles whose lengths differ by more than this never match
	minOverlap    = 0.3
	fuzzyWeight   = 0.3
	overlapWeight = 0.7
)

// Similarity scores two titles in [0, 1] after normalising both. Titles of
// very different length, or sharing under 30% of their words, score 0.
func Similarity(a, b string) float64 {
	var n *Normalizer
	return n.Similarity(a, b)
}

// Similarity is the package-level Similarity using n's cache.
func (n *Normalizer) Similarity(a, b string) float64 {
	return similarity(n.Normalize(a), n.Normalize(b))
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	shorter, longer := min(la, lb), max(la, lb)
	if float64(longer-shorter)/float64(longer) > maxLengthSkew {
		return 0
	}
	overlap := WordOverlap(a, b)
	if overlap < minOverlap {
		return 0
	}
	score := (fuzzyWeight*FuzzyRatio(a, b) + overlapWeight*overlap) * float64(shorter) / float64(longer)
	return min(score, 1)
}

// FuzzyRatio is 1 - editDistance/maxLength, in [0, 1].
func FuzzyRatio(a, b string) float64 {
	longer := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longer == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longer)
}

// WordOverlap is |A∩B| / max(|A|, |B|) over the whitespace-separated word
// sets of a and b. Comparison is case-sensitive.
func WordOverlap(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(wa), len(wb)))
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
