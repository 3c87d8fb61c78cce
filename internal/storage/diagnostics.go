package storage

import (
	"context"
	"fmt"
	"time"
)

// --- Diagnostics ---

func (s *Store) SaveTimeout(ctx context.Context, ts TimeoutSection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timeout_sections (run_id, filing_id, section_id, text_length, processing_time, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.RunID, ts.FilingID, ts.SectionID, ts.TextLength, ts.ProcessingTime.Seconds(), ts.Error, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("recording timeout for section %d: %w", ts.SectionID, err)
	}
	return nil
}

func (s *Store) ListTimeouts(ctx context.Context, runID int64) ([]TimeoutSection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, filing_id, section_id, text_length, processing_time, error_message, created_at
		FROM timeout_sections WHERE run_id = ? ORDER BY section_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeoutSection
	for rows.Next() {
		var ts TimeoutSection
		var secs float64
		var created string
		if err := rows.Scan(&ts.RunID, &ts.FilingID, &ts.SectionID, &ts.TextLength, &secs, &ts.Error, &created); err != nil {
			return nil, err
		}
		ts.ProcessingTime = time.Duration(secs * float64(time.Second))
		if ts.CreatedAt, err = parseTime("created_at", created); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *Store) ListUnmatchedSections(ctx context.Context, runID int64) ([]UnmatchedSection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, filing_id, section_id, issue_text, filing_year
		FROM unmatched_sections WHERE run_id = ? ORDER BY section_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnmatchedSection
	for rows.Next() {
		var u UnmatchedSection
		if err := rows.Scan(&u.RunID, &u.FilingID, &u.SectionID, &u.IssueText, &u.FilingYear); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
