package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- Runs ---

// CreateRun inserts a running run and returns its id. StartTime defaults to now.
func (s *Store) CreateRun(ctx context.Context, r Run) (int64, error) {
	start := r.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	params := r.Parameters
	if params == "" {
		params = "{}"
	}
	var parent any
	if r.ParentID > 0 {
		parent = r.ParentID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_runs (parent_run_id, start_time, total_filings, total_sections, parameters, status, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		parent, formatTime(start), r.TotalFilings, r.TotalSections, params, RunRunning, r.Description,
	)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}
	return res.LastInsertId()
}

const runColumns = `run_id, parent_run_id, start_time, end_time, total_filings, total_sections, parameters, status, description, error_message`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var parent sql.NullInt64
	var start string
	var end sql.NullString
	if err := row.Scan(&r.ID, &parent, &start, &end, &r.TotalFilings, &r.TotalSections,
		&r.Parameters, &r.Status, &r.Description, &r.Error); err != nil {
		return Run{}, err
	}
	r.ParentID = parent.Int64
	var err error
	if r.StartTime, err = parseTime("start_time", start); err != nil {
		return Run{}, err
	}
	if end.Valid && end.String != "" {
		if r.EndTime, err = parseTime("end_time", end.String); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM processing_runs WHERE run_id = ?`, id))
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("getting run %d: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM processing_runs ORDER BY run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CloseRun moves a running run to status. A run closes exactly once: closing
// a run that is not running returns ErrRunClosed.
func (s *Store) CloseRun(ctx context.Context, id int64, status RunStatus, errMsg string) error {
	if status == RunRunning {
		return fmt.Errorf("closing run %d: invalid status %q", id, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_runs SET status = ?, end_time = ?, error_message = ?
		WHERE run_id = ? AND status = 'running'`,
		status, formatTime(time.Now()), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("closing run %d: %w", id, err)
	}
	return s.transitioned(ctx, res, id)
}

// ResumeRun moves an interrupted run back to running.
func (s *Store) ResumeRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_runs SET status = 'running', end_time = NULL, error_message = ''
		WHERE run_id = ? AND status = 'interrupted'`, id)
	if err != nil {
		return fmt.Errorf("resuming run %d: %w", id, err)
	}
	return s.transitioned(ctx, res, id)
}

func (s *Store) transitioned(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("run %d: %w", id, ErrRunClosed)
}

// --- Checkpoints ---

// SaveCheckpoint overwrites the run's checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, last_filing_id, last_section_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			last_filing_id = excluded.last_filing_id,
			last_section_id = excluded.last_section_id,
			created_at = excluded.created_at`,
		cp.RunID, cp.LastFilingID, cp.LastSectionID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint for run %d: %w", cp.RunID, err)
	}
	return nil
}

func (s *Store) GetCheckpoint(ctx context.Context, runID int64) (Checkpoint, error) {
	var cp Checkpoint
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, last_filing_id, last_section_id, created_at FROM checkpoints WHERE run_id = ?`, runID,
	).Scan(&cp.RunID, &cp.LastFilingID, &cp.LastSectionID, &created)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, err
	}
	if cp.CreatedAt, err = parseTime("created_at", created); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}
