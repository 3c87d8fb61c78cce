package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kalambet/billmatch/internal/legis"
)

// --- Extracted references ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// insertReference stores ref unless an equal reference (same run, filing,
// section, bill id, law number and title) exists. It reports whether a row
// was written.
func insertReference(ctx context.Context, tx execer, runID int64, ref *legis.ExtractedReference) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO extracted_references (
			reference_id, run_id, filing_id, section_id, reference_category, bill_type, bill_number, bill_id,
			law_number, title, full_match_text, start_position, end_position, is_law,
			congress_number, congress_source, congress_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, runID, ref.FilingID, ref.SectionID, ref.Category, ref.BillType, ref.BillNumber, ref.BillID(),
		ref.LawNumber, ref.Title, ref.FullText, ref.Start, ref.End, boolInt(ref.Category.IsLaw()),
		ref.Congress, ref.CongressSource, ref.CongressConfidence,
	)
	if err != nil {
		return false, fmt.Errorf("inserting reference %s: %w", ref.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	for _, num := range ref.Numbers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bill_numbers (reference_id, number, is_range_start, is_range_end) VALUES (?, ?, ?, ?)`,
			ref.ID, num.Number, boolInt(num.IsRangeStart), boolInt(num.IsRangeEnd),
		); err != nil {
			return false, fmt.Errorf("inserting bill number for %s: %w", ref.ID, err)
		}
	}
	return true, nil
}

// SaveExtraction stores one batch of references and unmatched sections in a
// single transaction. Duplicate references are ignored. It returns every
// reference of the batch's sections that still has no match: the rows written
// now plus any left unmatched by an earlier, interrupted attempt.
func (s *Store) SaveExtraction(ctx context.Context, runID int64, refs []legis.ExtractedReference, unmatched []UnmatchedSection) ([]legis.ExtractedReference, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning extraction transaction: %w", err)
	}
	defer tx.Rollback()

	var sections []int64
	seen := make(map[int64]bool)
	for i := range refs {
		if _, err := insertReference(ctx, tx, runID, &refs[i]); err != nil {
			return nil, err
		}
		refs[i].RunID = runID
		if !seen[refs[i].SectionID] {
			seen[refs[i].SectionID] = true
			sections = append(sections, refs[i].SectionID)
		}
	}
	for _, u := range unmatched {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO unmatched_sections (run_id, filing_id, section_id, issue_text, filing_year)
			VALUES (?, ?, ?, ?, ?)`,
			runID, u.FilingID, u.SectionID, u.IssueText, u.FilingYear,
		); err != nil {
			return nil, fmt.Errorf("inserting unmatched section %d: %w", u.SectionID, err)
		}
	}

	var pending []legis.ExtractedReference
	if len(sections) > 0 {
		if pending, err = pendingReferences(ctx, tx, runID, sections); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing extraction: %w", err)
	}
	return pending, nil
}

// ListPendingReferences returns the run's references that have no match row,
// leaving out those absorbed into a combined reference.
func (s *Store) ListPendingReferences(ctx context.Context, runID int64) ([]legis.ExtractedReference, error) {
	return pendingReferences(ctx, s.db, runID, nil)
}

// pendingReferences lists unmatched, unabsorbed references with their bill
// numbers. A non-empty sections restricts the search to those sections.
func pendingReferences(ctx context.Context, q querier, runID int64, sections []int64) ([]legis.ExtractedReference, error) {
	query := `SELECT ` + referenceColumns + `
		FROM extracted_references r
		WHERE r.run_id = ? AND r.reference_category NOT IN (?, ?)
		AND NOT EXISTS (SELECT 1 FROM reference_matches m WHERE m.reference_id = r.reference_id)`
	args := []any{runID, legis.CategorySubsumedNumber, legis.CategorySubsumedTitle}
	if len(sections) > 0 {
		query += ` AND r.section_id IN (?` + strings.Repeat(",?", len(sections)-1) + `)`
		for _, id := range sections {
			args = append(args, id)
		}
	}
	query += ` ORDER BY r.section_id, r.start_position, r.end_position`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing pending references for run %d: %w", runID, err)
	}
	defer rows.Close()

	var refs []legis.ExtractedReference
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]any, len(refs))
	for i := range refs {
		ids[i] = refs[i].ID
	}
	nrows, err := q.QueryContext(ctx, `
		SELECT reference_id, number, is_range_start, is_range_end FROM bill_numbers
		WHERE reference_id IN (?`+strings.Repeat(",?", len(ids)-1)+`) ORDER BY bill_number_id`, ids...)
	if err != nil {
		return nil, fmt.Errorf("listing bill numbers for run %d: %w", runID, err)
	}
	defer nrows.Close()

	numbers := make(map[string][]legis.BillNumber)
	for nrows.Next() {
		var id string
		var n legis.BillNumber
		if err := nrows.Scan(&id, &n.Number, &n.IsRangeStart, &n.IsRangeEnd); err != nil {
			return nil, err
		}
		numbers[id] = append(numbers[id], n)
	}
	if err := nrows.Err(); err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].Numbers = numbers[refs[i].ID]
	}
	return refs, nil
}

const referenceColumns = `r.reference_id, r.run_id, r.filing_id, r.section_id, r.reference_category, r.bill_type, r.bill_number,
	r.law_number, r.title, r.full_match_text, r.start_position, r.end_position,
	r.congress_number, r.congress_source, r.congress_confidence`

func scanReference(row interface{ Scan(...any) error }, extra ...any) (legis.ExtractedReference, error) {
	var r legis.ExtractedReference
	dest := []any{&r.ID, &r.RunID, &r.FilingID, &r.SectionID, &r.Category, &r.BillType, &r.BillNumber,
		&r.LawNumber, &r.Title, &r.FullText, &r.Start, &r.End,
		&r.Congress, &r.CongressSource, &r.CongressConfidence}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return legis.ExtractedReference{}, err
	}
	return r, nil
}

// ListReferences returns the run's references ordered by section and position,
// with their bill numbers.
func (s *Store) ListReferences(ctx context.Context, runID int64) ([]legis.ExtractedReference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+referenceColumns+`
		FROM extracted_references r WHERE r.run_id = ?
		ORDER BY r.section_id, r.start_position, r.end_position`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing references for run %d: %w", runID, err)
	}
	defer rows.Close()

	var refs []legis.ExtractedReference
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	numbers, err := s.billNumbers(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].Numbers = numbers[refs[i].ID]
	}
	return refs, nil
}

func (s *Store) billNumbers(ctx context.Context, runID int64) (map[string][]legis.BillNumber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.reference_id, n.number, n.is_range_start, n.is_range_end
		FROM bill_numbers n JOIN extracted_references r ON r.reference_id = n.reference_id
		WHERE r.run_id = ? ORDER BY n.bill_number_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing bill numbers for run %d: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[string][]legis.BillNumber)
	for rows.Next() {
		var id string
		var n legis.BillNumber
		if err := rows.Scan(&id, &n.Number, &n.IsRangeStart, &n.IsRangeEnd); err != nil {
			return nil, err
		}
		out[id] = append(out[id], n)
	}
	return out, rows.Err()
}

// ApplyCombination re-categorises absorbed references, drops their matches and
// stores the combined references, all in one transaction. It returns the
// combined references that were written.
func (s *Store) ApplyCombination(ctx context.Context, runID int64, subsumed map[string]legis.Category, combined []legis.ExtractedReference) ([]legis.ExtractedReference, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning combination transaction: %w", err)
	}
	defer tx.Rollback()

	for id, cat := range subsumed {
		if !cat.Subsumed() {
			return nil, fmt.Errorf("reference %s: category %q is not a subsumed category", id, cat)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE extracted_references SET reference_category = ? WHERE reference_id = ? AND run_id = ?`, cat, id, runID); err != nil {
			return nil, fmt.Errorf("subsuming reference %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reference_matches WHERE reference_id = ?`, id); err != nil {
			return nil, fmt.Errorf("dropping match of %s: %w", id, err)
		}
	}

	saved := make([]legis.ExtractedReference, 0, len(combined))
	for i := range combined {
		ok, err := insertReference(ctx, tx, runID, &combined[i])
		if err != nil {
			return nil, err
		}
		if ok {
			combined[i].RunID = runID
			saved = append(saved, combined[i])
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing combination: %w", err)
	}
	return saved, nil
}
