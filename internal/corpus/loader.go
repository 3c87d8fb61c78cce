package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/billmatch/internal/legis"
)

// Source streams the bill corpus. Implementations call fn once per bill
// record; records sharing a key are merged by the index.
type Source interface {
	ScanBills(ctx context.Context, fn func(legis.BillRecord) error) error
}

// Options configure Load.
type Options struct {
	CacheSize int
	// TitleCandidates > 0 builds a TitleIndex for title-only matching.
	TitleCandidates int
}

// Index is the immutable corpus view shared by all matchers of a run.
type Index struct {
	Bills   *BillTrie
	Approps *AppropriationsTrie
	Titles  *TitleIndex // nil unless Options.TitleCandidates > 0

	TitleCandidates int
}

// Load builds an Index from src. It must finish before any matching starts.
func Load(ctx context.Context, src Source, opts Options) (*Index, error) {
	start := time.Now()
	norm, err := NewNormalizer(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	bills := NewBillTrie(norm)
	err = src.ScanBills(ctx, func(b legis.BillRecord) error {
		if !b.Type.Valid() || b.Number == "" || b.Congress <= 0 {
			return nil
		}
		bills.Add(b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	idx := NewIndex(bills)
	if opts.TitleCandidates > 0 {
		ti, err := NewTitleIndex(bills.All())
		if err != nil {
			return nil, err
		}
		idx.Titles = ti
		idx.TitleCandidates = opts.TitleCandidates
	}

	slog.Info("corpus loaded",
		"bills", bills.Len(),
		"appropriations", idx.Approps.Len(),
		"congresses", len(bills.Congresses()),
		"title_index", idx.Titles != nil,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return idx, nil
}

// NewIndex derives the appropriations view from a populated BillTrie.
func NewIndex(bills *BillTrie) *Index {
	approps := NewAppropriationsTrie(bills.Normalizer())
	for _, b := range bills.All() {
		approps.Add(b)
	}
	return &Index{Bills: bills, Approps: approps}
}

// Close releases the title index, if any.
func (idx *Index) Close() error {
	if idx.Titles != nil {
		return idx.Titles.Close()
	}
	return nil
}
