package storage

import (
	"errors"
	"time"

	"github.com/kalambet/billmatch/internal/legis"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrRunClosed is returned when a run is not in the state a transition needs,
// for example closing a run that has already been closed.
var ErrRunClosed = errors.New("run is not open")

type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

type Run struct {
	ID            int64
	ParentID      int64 // 0 when the run extracted its own references
	StartTime     time.Time
	EndTime       time.Time // zero while running
	TotalFilings  int
	TotalSections int
	Parameters    string // JSON object stored as text
	Status        RunStatus
	Description   string
	Error         string
}

type Checkpoint struct {
	RunID         int64
	LastFilingID  string
	LastSectionID int64
	CreatedAt     time.Time
}

// ReferenceMatch is a persisted reference joined with its match, if any.
type ReferenceMatch struct {
	Reference legis.ExtractedReference
	Match     *legis.MatchResult // nil when the reference has not been matched
}

type TimeoutSection struct {
	RunID          int64
	FilingID       string
	SectionID      int64
	TextLength     int
	ProcessingTime time.Duration
	Error          string
	CreatedAt      time.Time
}

type UnmatchedSection struct {
	RunID      int64
	FilingID   string
	SectionID  int64
	IssueText  string
	FilingYear int
}

type Paragraph struct {
	ID        int64
	RunID     int64
	SectionID int64
	Position  int
	Start     int
	End       int
	Text      string
	MatchIDs  []int64
}

// SectionFilter narrows the filing sections a run reads. Zero values disable
// the corresponding filter.
type SectionFilter struct {
	YearStart     int
	YearEnd       int
	MinSections   int // minimum sections in the section's filing
	MinTextLength int
}

// Job types carried by the queue.
const (
	JobPostProcess = "post_process"
	JobMatchOnly   = "match_only"
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
