package pipeline

import (
	"context"
	"slices"
	"testing"

	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/storage"
)

type fakeReader struct {
	sections []legis.FilingSection
	calls    int
}

func (f *fakeReader) NextSections(_ context.Context, after int64, limit int, _ storage.SectionFilter) ([]legis.FilingSection, error) {
	f.calls++
	var out []legis.FilingSection
	for _, s := range f.sections {
		if s.SectionID > after && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReader) GetSections(_ context.Context, ids []int64) ([]legis.FilingSection, error) {
	f.calls++
	var out []legis.FilingSection
	for _, s := range f.sections {
		if slices.Contains(ids, s.SectionID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func sectionIDs(batch []legis.FilingSection) []int64 {
	ids := make([]int64, len(batch))
	for i, s := range batch {
		ids[i] = s.SectionID
	}
	return ids
}

func drain(t *testing.T, src SectionSource) [][]int64 {
	t.Helper()
	var out [][]int64
	for {
		batch, ok, err := src.NextBatch(context.Background())
		if err != nil {
			t.Fatalf("NextBatch: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, sectionIDs(batch))
	}
}

func TestCursorSource_Pages(t *testing.T) {
	r := &fakeReader{sections: []legis.FilingSection{{SectionID: 2}, {SectionID: 5}, {SectionID: 7}, {SectionID: 9}, {SectionID: 11}}}
	src := NewCursorSource(r, storage.SectionFilter{}, 2, 2)

	got := drain(t, src)
	want := [][]int64{{5, 7}, {9, 11}}
	if !slices.EqualFunc(got, want, slices.Equal) {
		t.Errorf("batches = %v, want %v", got, want)
	}
	if src.Cursor() != 11 {
		t.Errorf("Cursor = %d, want 11", src.Cursor())
	}
}

func TestCursorSource_ShortPageStops(t *testing.T) {
	r := &fakeReader{sections: []legis.FilingSection{{SectionID: 1}, {SectionID: 2}, {SectionID: 3}}}
	src := NewCursorSource(r, storage.SectionFilter{}, 2, 0)

	drain(t, src)
	if r.calls != 2 {
		t.Errorf("reader called %d times, want 2", r.calls)
	}
}

func TestSampleSource_SortsAndSkipsProcessed(t *testing.T) {
	r := &fakeReader{sections: []legis.FilingSection{{SectionID: 3}, {SectionID: 4}, {SectionID: 8}, {SectionID: 12}}}
	src := NewSampleSource(r, []int64{12, 3, 8, 4, 8, 99}, 2, 3)

	got := drain(t, src)
	want := [][]int64{{4, 8}, {12}}
	if !slices.EqualFunc(got, want, slices.Equal) {
		t.Errorf("batches = %v, want %v", got, want)
	}
	if src.Cursor() != 99 {
		t.Errorf("Cursor = %d, want 99", src.Cursor())
	}
}
