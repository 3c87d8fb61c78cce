// Package jobs runs queued post-processing and match-only work in the
// background of the API server.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/billmatch/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Runner performs the work behind each job type.
type Runner interface {
	PostProcess(ctx context.Context, runID int64, steps []string) error
	MatchOnly(ctx context.Context, parentRunID int64) (int64, error)
}

// Payload is the JSON body of every job.
type Payload struct {
	RunID int64    `json:"run_id"`
	Steps []string `json:"steps,omitempty"`
}

// Enqueue queues a job of type typ and returns its id.
func Enqueue(ctx context.Context, q Enqueuer, typ string, p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := q.EnqueueJob(ctx, storage.Job{ID: id, Type: typ, PayloadJSON: string(raw)}); err != nil {
		return "", err
	}
	return id, nil
}

// Worker processes post_process and match_only jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	runner Runner
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, runner Runner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		runner: runner,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{storage.JobPostProcess, storage.JobMatchOnly})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	start := time.Now()
	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(context.WithoutCancel(ctx), job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("job complete", "job_id", job.ID, "type", job.Type, "elapsed", time.Since(start).Round(time.Millisecond))
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.RunID <= 0 {
		return errors.New("payload has no run_id")
	}

	switch job.Type {
	case storage.JobPostProcess:
		return w.runner.PostProcess(ctx, payload.RunID, payload.Steps)
	case storage.JobMatchOnly:
		child, err := w.runner.MatchOnly(ctx, payload.RunID)
		if err != nil {
			return err
		}
		w.logger.Info("match-only run created", "job_id", job.ID, "parent_run_id", payload.RunID, "run_id", child)
		return nil
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}
