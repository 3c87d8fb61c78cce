package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/billmatch/internal/legis"
)

// --- Filing sections ---

// ImportSections stores filing sections, creating their filings as needed.
// Sections with a SectionID keep it; the rest are numbered by the database.
func (s *Store) ImportSections(ctx context.Context, sections []legis.FilingSection) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning section import: %w", err)
	}
	defer tx.Rollback()

	for i, sec := range sections {
		if sec.FilingID == "" {
			return 0, fmt.Errorf("section %d: missing filing id", i)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO filings (filing_id, filing_year) VALUES (?, ?)
			ON CONFLICT(filing_id) DO UPDATE SET
				filing_year = CASE WHEN excluded.filing_year > 0 THEN excluded.filing_year ELSE filings.filing_year END`,
			sec.FilingID, sec.FilingYear,
		); err != nil {
			return 0, fmt.Errorf("importing filing %s: %w", sec.FilingID, err)
		}
		var id any
		if sec.SectionID > 0 {
			id = sec.SectionID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO filing_sections (section_id, filing_id, text) VALUES (?, ?, ?)`,
			id, sec.FilingID, sec.Text,
		); err != nil {
			return 0, fmt.Errorf("importing section of %s: %w", sec.FilingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing section import: %w", err)
	}
	return len(sections), nil
}

func sectionWhere(f SectionFilter) (string, []any) {
	var conds []string
	var args []any
	if f.MinTextLength > 0 {
		conds = append(conds, `length(trim(s.text)) >= ?`)
		args = append(args, f.MinTextLength)
	}
	if f.YearStart > 0 {
		conds = append(conds, `f.filing_year >= ?`)
		args = append(args, f.YearStart)
	}
	if f.YearEnd > 0 {
		conds = append(conds, `f.filing_year <= ?`)
		args = append(args, f.YearEnd)
	}
	if f.MinSections > 1 {
		conds = append(conds, `(SELECT COUNT(*) FROM filing_sections c WHERE c.filing_id = s.filing_id) >= ?`)
		args = append(args, f.MinSections)
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

const sectionFrom = ` FROM filing_sections s JOIN filings f ON f.filing_id = s.filing_id `

func (s *Store) querySections(ctx context.Context, query string, args ...any) ([]legis.FilingSection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()

	var out []legis.FilingSection
	for rows.Next() {
		var sec legis.FilingSection
		if err := rows.Scan(&sec.SectionID, &sec.FilingID, &sec.Text, &sec.FilingYear); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// NextSections returns up to limit sections with ids after the cursor,
// ordered by section id.
func (s *Store) NextSections(ctx context.Context, after int64, limit int, f SectionFilter) ([]legis.FilingSection, error) {
	where, args := sectionWhere(f)
	args = append([]any{after}, args...)
	args = append(args, limit)
	return s.querySections(ctx, `SELECT s.section_id, s.filing_id, s.text, f.filing_year`+sectionFrom+
		`WHERE s.section_id > ? AND `+where+` ORDER BY s.section_id LIMIT ?`, args...)
}

// GetSections returns the sections with the given ids, ordered by id.
func (s *Store) GetSections(ctx context.Context, ids []int64) ([]legis.FilingSection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.querySections(ctx, `SELECT s.section_id, s.filing_id, s.text, f.filing_year`+sectionFrom+
		`WHERE s.section_id IN (?`+strings.Repeat(",?", len(ids)-1)+`) ORDER BY s.section_id`, args...)
}

// SampleSectionIDs returns up to n random section ids passing f.
func (s *Store) SampleSectionIDs(ctx context.Context, n int, f SectionFilter) ([]int64, error) {
	where, args := sectionWhere(f)
	rows, err := s.db.QueryContext(ctx, `SELECT s.section_id`+sectionFrom+`WHERE `+where+` ORDER BY random() LIMIT ?`,
		append(args, n)...)
	if err != nil {
		return nil, fmt.Errorf("sampling sections: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountSections returns the number of filings and sections passing f.
func (s *Store) CountSections(ctx context.Context, f SectionFilter) (filings, sections int, err error) {
	where, args := sectionWhere(f)
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT s.filing_id), COUNT(*)`+sectionFrom+`WHERE `+where, args...).
		Scan(&filings, &sections)
	if err != nil {
		return 0, 0, fmt.Errorf("counting sections: %w", err)
	}
	return filings, sections, nil
}
