package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kalambet/billmatch/internal/legis"
)

// --- Matches ---

// SaveMatches upserts results by reference id. Nil entries are skipped.
func (s *Store) SaveMatches(ctx context.Context, runID int64, results []*legis.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning match transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range results {
		if m == nil {
			continue
		}
		if !m.Type.CarriesBill() {
			m.BillID = ""
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reference_matches (
				run_id, reference_id, match_type, confidence, extracted_title, extracted_bill_number,
				extracted_law_number, matched_congress, matched_bill_type, matched_bill_number,
				matched_law_number, matched_title, bill_id, updated_bill_id, update_source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(reference_id) DO UPDATE SET
				match_type = excluded.match_type,
				confidence = excluded.confidence,
				extracted_title = excluded.extracted_title,
				extracted_bill_number = excluded.extracted_bill_number,
				extracted_law_number = excluded.extracted_law_number,
				matched_congress = excluded.matched_congress,
				matched_bill_type = excluded.matched_bill_type,
				matched_bill_number = excluded.matched_bill_number,
				matched_law_number = excluded.matched_law_number,
				matched_title = excluded.matched_title,
				bill_id = excluded.bill_id,
				updated_bill_id = excluded.updated_bill_id,
				update_source = excluded.update_source`,
			runID, m.ReferenceID, m.Type, m.Confidence, m.ExtractedTitle, m.ExtractedBillNumber,
			m.ExtractedLawNumber, m.MatchedCongress, m.MatchedBillType, m.MatchedBillNumber,
			m.MatchedLawNumber, m.MatchedTitle, m.BillID, m.UpdatedBillID, m.UpdateSource,
		); err != nil {
			return fmt.Errorf("saving match for %s: %w", m.ReferenceID, err)
		}
	}

	return tx.Commit()
}

// UpdateMatch rewrites a persisted match in place, keeping its match id.
func (s *Store) UpdateMatch(ctx context.Context, m *legis.MatchResult) error {
	if !m.Type.CarriesBill() {
		m.BillID = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reference_matches SET
			match_type = ?, confidence = ?, matched_congress = ?, matched_bill_type = ?, matched_bill_number = ?,
			matched_law_number = ?, matched_title = ?, bill_id = ?, updated_bill_id = ?, update_source = ?
		WHERE match_id = ?`,
		m.Type, m.Confidence, m.MatchedCongress, m.MatchedBillType, m.MatchedBillNumber,
		m.MatchedLawNumber, m.MatchedTitle, m.BillID, m.UpdatedBillID, m.UpdateSource, m.MatchID,
	)
	if err != nil {
		return fmt.Errorf("updating match %d: %w", m.MatchID, err)
	}
	return expectOne(res)
}

// MarkDuplicates demotes the given matches to Duplicate and clears their bill id.
func (s *Store) MarkDuplicates(ctx context.Context, matchIDs []int64) error {
	if len(matchIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning duplicate transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range matchIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE reference_matches SET match_type = ?, bill_id = '' WHERE match_id = ?`, legis.Duplicate, id); err != nil {
			return fmt.Errorf("marking match %d duplicate: %w", id, err)
		}
	}
	return tx.Commit()
}

// MatchFilter narrows ListMatches. Zero values match everything.
type MatchFilter struct {
	Type  legis.MatchType
	Limit int
}

// ListMatches returns the run's matched references ordered by section and
// position.
func (s *Store) ListMatches(ctx context.Context, runID int64, f MatchFilter) ([]ReferenceMatch, error) {
	query := `SELECT ` + referenceColumns + `,
			m.match_id, m.match_type, m.confidence, m.extracted_title, m.extracted_bill_number, m.extracted_law_number,
			m.matched_congress, m.matched_bill_type, m.matched_bill_number, m.matched_law_number, m.matched_title,
			m.bill_id, m.updated_bill_id, m.update_source
		FROM reference_matches m JOIN extracted_references r ON r.reference_id = m.reference_id
		WHERE m.run_id = ?`
	args := []any{runID}
	if f.Type != "" {
		query += ` AND m.match_type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY r.section_id, r.start_position, m.match_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []ReferenceMatch
	for rows.Next() {
		var m legis.MatchResult
		ref, err := scanReference(rows,
			&m.MatchID, &m.Type, &m.Confidence, &m.ExtractedTitle, &m.ExtractedBillNumber, &m.ExtractedLawNumber,
			&m.MatchedCongress, &m.MatchedBillType, &m.MatchedBillNumber, &m.MatchedLawNumber, &m.MatchedTitle,
			&m.BillID, &m.UpdatedBillID, &m.UpdateSource,
		)
		if err != nil {
			return nil, err
		}
		m.ReferenceID = ref.ID
		out = append(out, ReferenceMatch{Reference: ref, Match: &m})
	}
	return out, rows.Err()
}

// CountMatches returns the number of matches per match type for a run.
func (s *Store) CountMatches(ctx context.Context, runID int64) (map[legis.MatchType]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_type, COUNT(*) FROM reference_matches WHERE run_id = ? GROUP BY match_type`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[legis.MatchType]int)
	for rows.Next() {
		var t legis.MatchType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// GetMatch returns the match for a reference.
func (s *Store) GetMatch(ctx context.Context, referenceID string) (*legis.MatchResult, error) {
	var m legis.MatchResult
	err := s.db.QueryRowContext(ctx, `
		SELECT match_id, reference_id, match_type, confidence, extracted_title, extracted_bill_number, extracted_law_number,
			matched_congress, matched_bill_type, matched_bill_number, matched_law_number, matched_title,
			bill_id, updated_bill_id, update_source
		FROM reference_matches WHERE reference_id = ?`, referenceID,
	).Scan(&m.MatchID, &m.ReferenceID, &m.Type, &m.Confidence, &m.ExtractedTitle, &m.ExtractedBillNumber, &m.ExtractedLawNumber,
		&m.MatchedCongress, &m.MatchedBillType, &m.MatchedBillNumber, &m.MatchedLawNumber, &m.MatchedTitle,
		&m.BillID, &m.UpdatedBillID, &m.UpdateSource)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
