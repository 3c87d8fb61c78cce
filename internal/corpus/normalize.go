// Package corpus holds the in-memory bill index that references are matched
// against.
package corpus

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the normalisation cache when no size is configured.
const DefaultCacheSize = 10000

var (
	trailingYearPattern = regexp.MustCompile(`,\s*(?:19|20)\d{2}(?:\s*(?:and|through)\s*(?:19|20)\d{2})?\s*$`)
	ofYearPattern       = regexp.MustCompile(`\bof\s+(?:19|20)\d{2}\b`)
)

// NormalizeTitle strips trailing year clauses (", 1999", "of 1999",
// ", 1999 through 2001") and collapses whitespace. Case is preserved.
func NormalizeTitle(title string) string {
	title = trailingYearPattern.ReplaceAllString(title, "")
	title = ofYearPattern.ReplaceAllString(title, "")
	return strings.Join(strings.Fields(title), " ")
}

// Normalizer memoises NormalizeTitle in a bounded LRU cache. It is safe for
// concurrent use.
type Normalizer struct {
	cache *lru.Cache[string, string]
}

// NewNormalizer returns a Normalizer holding at most size entries.
func NewNormalizer(size int) (*Normalizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating normalisation cache: %w", err)
	}
	return &Normalizer{cache: c}, nil
}

// Normalize returns NormalizeTitle(title), served from the cache when possible.
func (n *Normalizer) Normalize(title string) string {
	if n == nil {
		return NormalizeTitle(title)
	}
	if v, ok := n.cache.Get(title); ok {
		return v
	}
	v := NormalizeTitle(title)
	n.cache.Add(title, v)
	return v
}

// Len reports the number of cached entries.
func (n *Normalizer) Len() int {
	if n == nil {
		return 0
	}
	return n.cache.Len()
}
