package pipeline

import (
	"context"
	"slices"

	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/storage"
)

// SectionSource hands out filing sections in ascending section id order.
// NextBatch returns ok=false once the source is exhausted.
type SectionSource interface {
	NextBatch(ctx context.Context) (batch []legis.FilingSection, ok bool, err error)
	// Cursor is the id of the last section handed out.
	Cursor() int64
}

// SectionReader is the paged section access the sources need.
type SectionReader interface {
	NextSections(ctx context.Context, after int64, limit int, f storage.SectionFilter) ([]legis.FilingSection, error)
	GetSections(ctx context.Context, ids []int64) ([]legis.FilingSection, error)
}

// CursorSource pages the filing_sections table after a persisted cursor.
type CursorSource struct {
	store  SectionReader
	filter storage.SectionFilter
	size   int
	cursor int64
	done   bool
}

func NewCursorSource(store SectionReader, filter storage.SectionFilter, batchSize int, after int64) *CursorSource {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &CursorSource{store: store, filter: filter, size: batchSize, cursor: after}
}

func (s *CursorSource) NextBatch(ctx context.Context) ([]legis.FilingSection, bool, error) {
	if s.done {
		return nil, false, nil
	}
	batch, err := s.store.NextSections(ctx, s.cursor, s.size, s.filter)
	if err != nil {
		return nil, false, err
	}
	if len(batch) < s.size {
		s.done = true
	}
	if len(batch) == 0 {
		return nil, false, nil
	}
	s.cursor = batch[len(batch)-1].SectionID
	return batch, true, nil
}

func (s *CursorSource) Cursor() int64 { return s.cursor }

// SampleSource pages a fixed set of section ids in ascending order.
type SampleSource struct {
	store  SectionReader
	ids    []int64
	size   int
	pos    int
	cursor int64
}

// NewSampleSource serves ids greater than after, sorted.
func NewSampleSource(store SectionReader, ids []int64, batchSize int, after int64) *SampleSource {
	if batchSize <= 0 {
		batchSize = 1
	}
	sorted := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > after {
			sorted = append(sorted, id)
		}
	}
	slices.Sort(sorted)
	return &SampleSource{store: store, ids: slices.Compact(sorted), size: batchSize, cursor: after}
}

func (s *SampleSource) NextBatch(ctx context.Context) ([]legis.FilingSection, bool, error) {
	for s.pos < len(s.ids) {
		end := min(s.pos+s.size, len(s.ids))
		chunk := s.ids[s.pos:end]
		batch, err := s.store.GetSections(ctx, chunk)
		if err != nil {
			return nil, false, err
		}
		s.pos = end
		s.cursor = chunk[len(chunk)-1]
		if len(batch) > 0 {
			return batch, true, nil
		}
	}
	return nil, false, nil
}

func (s *SampleSource) Cursor() int64 { return s.cursor }
