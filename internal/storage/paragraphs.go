package storage

import (
	"context"
	"fmt"
)

// --- Paragraphs ---

// SaveParagraphs replaces the stored paragraphs of one section for a run,
// linking each to the matches whose references fall inside it.
func (s *Store) SaveParagraphs(ctx context.Context, runID, sectionID int64, paras []Paragraph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning paragraph transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM paragraph_matches WHERE paragraph_id IN (
			SELECT paragraph_id FROM section_paragraphs WHERE run_id = ? AND section_id = ?)`, runID, sectionID); err != nil {
		return fmt.Errorf("clearing paragraph matches: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM section_paragraphs WHERE run_id = ? AND section_id = ?`, runID, sectionID); err != nil {
		return fmt.Errorf("clearing paragraphs: %w", err)
	}

	for _, p := range paras {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO section_paragraphs (run_id, section_id, position, start_position, end_position, text)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, sectionID, p.Position, p.Start, p.End, p.Text,
		)
		if err != nil {
			return fmt.Errorf("inserting paragraph %d of section %d: %w", p.Position, sectionID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, m := range p.MatchIDs {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO paragraph_matches (paragraph_id, match_id) VALUES (?, ?)`, id, m); err != nil {
				return fmt.Errorf("linking paragraph %d to match %d: %w", id, m, err)
			}
		}
	}

	return tx.Commit()
}

// ListParagraphs returns one section's paragraphs in order, with match links.
func (s *Store) ListParagraphs(ctx context.Context, runID, sectionID int64) ([]Paragraph, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.paragraph_id, p.position, p.start_position, p.end_position, p.text, pm.match_id
		FROM section_paragraphs p LEFT JOIN paragraph_matches pm ON pm.paragraph_id = p.paragraph_id
		WHERE p.run_id = ? AND p.section_id = ?
		ORDER BY p.position, pm.match_id`, runID, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Paragraph
	for rows.Next() {
		var p Paragraph
		var matchID *int64
		if err := rows.Scan(&p.ID, &p.Position, &p.Start, &p.End, &p.Text, &matchID); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != p.ID {
			p.RunID, p.SectionID = runID, sectionID
			out = append(out, p)
		}
		if matchID != nil {
			last := &out[len(out)-1]
			last.MatchIDs = append(last.MatchIDs, *matchID)
		}
	}
	return out, rows.Err()
}
