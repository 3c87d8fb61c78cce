package storage

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	parent := createTestRun(t, s)
	id, err := s.CreateRun(ctx, Run{ParentID: parent, TotalFilings: 2, TotalSections: 5, Parameters: `{"batch_size":50}`, Description: "match only"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunRunning {
		t.Errorf("Status = %q, want %q", got.Status, RunRunning)
	}
	if got.ParentID != parent {
		t.Errorf("ParentID = %d, want %d", got.ParentID, parent)
	}
	if got.TotalSections != 5 || got.TotalFilings != 2 {
		t.Errorf("totals = %d/%d, want 2/5", got.TotalFilings, got.TotalSections)
	}
	if got.Parameters != `{"batch_size":50}` {
		t.Errorf("Parameters = %q", got.Parameters)
	}
	if !got.EndTime.IsZero() {
		t.Errorf("EndTime = %v, want zero", got.EndTime)
	}

	if _, err := s.GetRun(ctx, 999); err != ErrNotFound {
		t.Errorf("GetRun(999) error = %v, want ErrNotFound", err)
	}
}

func TestCloseRun_ExactlyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := createTestRun(t, s)

	if err := s.CloseRun(ctx, id, RunFailed, "batch 3: disk full"); err != nil {
		t.Fatalf("CloseRun: %v", err)
	}
	err := s.CloseRun(ctx, id, RunCompleted, "")
	if !errors.Is(err, ErrRunClosed) {
		t.Errorf("second CloseRun error = %v, want ErrRunClosed", err)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunFailed || got.Error != "batch 3: disk full" {
		t.Errorf("run = %s %q, want failed with error", got.Status, got.Error)
	}
	if got.EndTime.IsZero() {
		t.Error("EndTime not set")
	}

	if err := s.CloseRun(ctx, 999, RunCompleted, ""); err != ErrNotFound {
		t.Errorf("CloseRun(999) error = %v, want ErrNotFound", err)
	}
}

func TestResumeRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := createTestRun(t, s)

	if err := s.ResumeRun(ctx, id); !errors.Is(err, ErrRunClosed) {
		t.Errorf("resuming a running run: error = %v, want ErrRunClosed", err)
	}
	if err := s.CloseRun(ctx, id, RunInterrupted, ""); err != nil {
		t.Fatalf("CloseRun: %v", err)
	}
	if err := s.ResumeRun(ctx, id); err != nil {
		t.Fatalf("ResumeRun: %v", err)
	}
	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunRunning || !got.EndTime.IsZero() {
		t.Errorf("run = %s ended %v, want running", got.Status, got.EndTime)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	first := createTestRun(t, s)
	second := createTestRun(t, s)

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Errorf("ListRuns = %+v, want newest first", runs)
	}
}

func TestCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := createTestRun(t, s)

	if _, err := s.GetCheckpoint(ctx, id); err != ErrNotFound {
		t.Errorf("GetCheckpoint before save: error = %v, want ErrNotFound", err)
	}
	if err := s.SaveCheckpoint(ctx, Checkpoint{RunID: id, LastFilingID: "f1", LastSectionID: 50}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, Checkpoint{RunID: id, LastFilingID: "f2", LastSectionID: 100}); err != nil {
		t.Fatalf("SaveCheckpoint overwrite: %v", err)
	}

	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.LastSectionID != 100 || cp.LastFilingID != "f2" {
		t.Errorf("checkpoint = %+v, want f2/100", cp)
	}
}
