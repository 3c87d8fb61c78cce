package filing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/billmatch/internal/legis"
)

const importBatch = 500

// BillImporter stores corpus records.
type BillImporter interface {
	ImportBills(ctx context.Context, bills []legis.BillRecord) (int, error)
}

// SectionImporter stores filing sections.
type SectionImporter interface {
	ImportSections(ctx context.Context, sections []legis.FilingSection) (int, error)
}

type billLine struct {
	Congress       int      `json:"congress"`
	BillType       string   `json:"bill_type"`
	BillNumber     string   `json:"bill_number"`
	Titles         []string `json:"titles"`
	OfficialTitles []string `json:"official_titles"`
	LawNumber      string   `json:"law_number"`
}

type sectionLine struct {
	FilingID   string `json:"filing_id"`
	SectionID  int64  `json:"section_id"`
	FilingYear int    `json:"filing_year"`
	Text       string `json:"text"`
}

func (l billLine) record() (legis.BillRecord, error) {
	t := legis.ParseBillType(l.BillType)
	if !t.Valid() {
		return legis.BillRecord{}, fmt.Errorf("unknown bill type %q", l.BillType)
	}
	if l.Congress <= 0 || l.BillNumber == "" {
		return legis.BillRecord{}, errors.New("bill needs congress and number")
	}
	b := legis.BillRecord{
		Congress:       l.Congress,
		Type:           t,
		Number:         strings.TrimLeft(l.BillNumber, "0"),
		Titles:         l.Titles,
		OfficialTitles: l.OfficialTitles,
	}
	if l.LawNumber != "" {
		b.LawNumber = legis.StandardizeLawNumber(l.LawNumber)
	}
	return b, nil
}

// ImportBills loads one bill per JSON line from r. It returns the number of
// records stored. A malformed line aborts the import with its line number.
func ImportBills(ctx context.Context, r io.Reader, store BillImporter) (int, error) {
	var (
		batch []legis.BillRecord
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := store.ImportBills(ctx, batch)
		total += n
		batch = batch[:0]
		return err
	}
	err := eachLine(r, func(line int, raw []byte) error {
		var l billLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := l.record()
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, rec)
		if len(batch) >= importBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, flush()
}

// ImportSections loads one filing section per JSON line from r.
func ImportSections(ctx context.Context, r io.Reader, store SectionImporter) (int, error) {
	var (
		batch []legis.FilingSection
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := store.ImportSections(ctx, batch)
		total += n
		batch = batch[:0]
		return err
	}
	err := eachLine(r, func(line int, raw []byte) error {
		var l sectionLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if l.FilingID == "" {
			return fmt.Errorf("line %d: missing filing_id", line)
		}
		batch = append(batch, legis.FilingSection{
			FilingID:   l.FilingID,
			SectionID:  l.SectionID,
			FilingYear: l.FilingYear,
			Text:       l.Text,
		})
		if len(batch) >= importBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, flush()
}

func eachLine(r io.Reader, fn func(line int, raw []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		if err := fn(n, raw); err != nil {
			return err
		}
	}
	return sc.Err()
}
