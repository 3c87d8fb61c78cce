package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/billmatch/internal/legis"
)

// --- Corpus ---

// ImportBills upserts bill records and their titles. A non-empty law number
// replaces the stored one; titles accumulate.
func (s *Store) ImportBills(ctx context.Context, bills []legis.BillRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning bill import: %w", err)
	}
	defer tx.Rollback()

	for _, b := range bills {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bills (congress, bill_type, bill_number, law_number) VALUES (?, ?, ?, ?)
			ON CONFLICT(congress, bill_type, bill_number) DO UPDATE SET
				law_number = CASE WHEN excluded.law_number != '' THEN excluded.law_number ELSE bills.law_number END`,
			b.Congress, b.Type, b.Number, b.LawNumber,
		); err != nil {
			return 0, fmt.Errorf("importing bill %s: %w", b.Key().ID(), err)
		}
		for official, titles := range map[bool][]string{false: b.Titles, true: b.OfficialTitles} {
			for _, t := range titles {
				if t == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO bill_titles (congress, bill_type, bill_number, title, is_official)
					VALUES (?, ?, ?, ?, ?)`,
					b.Congress, b.Type, b.Number, t, boolInt(official),
				); err != nil {
					return 0, fmt.Errorf("importing title of %s: %w", b.Key().ID(), err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing bill import: %w", err)
	}
	return len(bills), nil
}

// ScanBills streams every bill with its titles, ordered by key. It satisfies
// the corpus loader's source contract.
func (s *Store) ScanBills(ctx context.Context, fn func(legis.BillRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.congress, b.bill_type, b.bill_number, b.law_number, t.title, t.is_official
		FROM bills b LEFT JOIN bill_titles t
			ON t.congress = b.congress AND t.bill_type = b.bill_type AND t.bill_number = b.bill_number
		ORDER BY b.congress, b.bill_type, b.bill_number, t.rowid`)
	if err != nil {
		return fmt.Errorf("scanning bills: %w", err)
	}
	defer rows.Close()

	var cur *legis.BillRecord
	for rows.Next() {
		var b legis.BillRecord
		var title *string
		var official *bool
		if err := rows.Scan(&b.Congress, &b.Type, &b.Number, &b.LawNumber, &title, &official); err != nil {
			return err
		}
		if cur == nil || cur.Key() != b.Key() {
			if cur != nil {
				if err := fn(*cur); err != nil {
					return err
				}
			}
			cur = &b
		}
		if title == nil {
			continue
		}
		if official != nil && *official {
			cur.OfficialTitles = append(cur.OfficialTitles, *title)
		} else {
			cur.Titles = append(cur.Titles, *title)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if cur != nil {
		return fn(*cur)
	}
	return nil
}
