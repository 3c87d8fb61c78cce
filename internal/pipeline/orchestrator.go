// Package pipeline drives extraction and matching over filing sections in
// batches, persisting results and a resumable checkpoint per run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/billmatch/internal/extract"
	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
	"github.com/kalambet/billmatch/internal/storage"
)

var (
	// ErrSectionTimeout marks a section whose extraction exceeded the
	// per-section timeout.
	ErrSectionTimeout = errors.New("section extraction timed out")
	// ErrInterrupted is returned when a run stops because its context was
	// cancelled. The run can be resumed.
	ErrInterrupted = errors.New("run interrupted")
)

const unmatchedTextLimit = 1000

// Store is the persistence the orchestrator needs.
type Store interface {
	SectionReader
	SampleSectionIDs(ctx context.Context, n int, f storage.SectionFilter) ([]int64, error)
	CountSections(ctx context.Context, f storage.SectionFilter) (filings, sections int, err error)

	CreateRun(ctx context.Context, r storage.Run) (int64, error)
	GetRun(ctx context.Context, id int64) (storage.Run, error)
	CloseRun(ctx context.Context, id int64, status storage.RunStatus, errMsg string) error
	ResumeRun(ctx context.Context, id int64) error
	SaveCheckpoint(ctx context.Context, cp storage.Checkpoint) error
	GetCheckpoint(ctx context.Context, runID int64) (storage.Checkpoint, error)

	SaveExtraction(ctx context.Context, runID int64, refs []legis.ExtractedReference, unmatched []storage.UnmatchedSection) ([]legis.ExtractedReference, error)
	SaveMatches(ctx context.Context, runID int64, results []*legis.MatchResult) error
	SaveTimeout(ctx context.Context, ts storage.TimeoutSection) error
	ListReferences(ctx context.Context, runID int64) ([]legis.ExtractedReference, error)
}

// Options tune a run.
type Options struct {
	BatchSize      int
	MaxConcurrent  int // batches in flight
	Workers        int // extraction and matching goroutines per batch
	SectionTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	Filter      storage.SectionFilter
	SampleSize  int
	Description string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 2
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.SectionTimeout <= 0 {
		o.SectionTimeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Filter.MinTextLength <= 0 {
		o.Filter.MinTextLength = 3
	}
	return o
}

// runParams is persisted with each run so a resumed run reads the same sections.
type runParams struct {
	BatchSize   int                   `json:"batch_size"`
	Workers     int                   `json:"workers_per_batch"`
	Concurrent  int                   `json:"max_concurrent_batches"`
	Filter      storage.SectionFilter `json:"filter"`
	SampleSize  int                   `json:"sample_size,omitempty"`
	SampleIDs   []int64               `json:"sample_ids,omitempty"`
	MatchOnlyOf int64                 `json:"match_only_of,omitempty"`
}

type extractFunc func(ctx context.Context, sec legis.FilingSection) ([]legis.ExtractedReference, error)

type Orchestrator struct {
	store   Store
	matcher *match.Matcher
	extract extractFunc
	opts    Options
	logger  *slog.Logger
}

func New(store Store, matcher *match.Matcher, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		matcher: matcher,
		extract: extract.New().ExtractSection,
		opts:    opts.withDefaults(),
		logger:  slog.Default(),
	}
}

func (o *Orchestrator) retry(ctx context.Context, fn func(context.Context) error) error {
	return storage.Retry(ctx, o.opts.MaxRetries, o.opts.RetryDelay, fn)
}

// Start creates a run over the configured sections and processes it to the end.
func (o *Orchestrator) Start(ctx context.Context) (storage.Run, error) {
	params := runParams{
		BatchSize:  o.opts.BatchSize,
		Workers:    o.opts.Workers,
		Concurrent: o.opts.MaxConcurrent,
		Filter:     o.opts.Filter,
		SampleSize: o.opts.SampleSize,
	}

	var filings, sections int
	err := o.retry(ctx, func(ctx context.Context) error {
		if o.opts.SampleSize > 0 {
			ids, err := o.store.SampleSectionIDs(ctx, o.opts.SampleSize, o.opts.Filter)
			params.SampleIDs, sections = ids, len(ids)
			return err
		}
		var err error
		filings, sections, err = o.store.CountSections(ctx, o.opts.Filter)
		return err
	})
	if err != nil {
		return storage.Run{}, fmt.Errorf("selecting sections: %w", err)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return storage.Run{}, fmt.Errorf("encoding run parameters: %w", err)
	}
	var runID int64
	err = o.retry(ctx, func(ctx context.Context) error {
		runID, err = o.store.CreateRun(ctx, storage.Run{
			TotalFilings:  filings,
			TotalSections: sections,
			Parameters:    string(raw),
			Description:   o.opts.Description,
		})
		return err
	})
	if err != nil {
		return storage.Run{}, err
	}
	o.logger.Info("run started", "run_id", runID, "sections", sections, "sample", o.opts.SampleSize > 0)

	return o.execute(ctx, runID, o.source(params, 0))
}

// Resume restarts an interrupted run from its checkpoint.
func (o *Orchestrator) Resume(ctx context.Context, runID int64) (storage.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return storage.Run{}, fmt.Errorf("loading run %d: %w", runID, err)
	}
	var params runParams
	if err := json.Unmarshal([]byte(run.Parameters), &params); err != nil {
		return storage.Run{}, fmt.Errorf("decoding parameters of run %d: %w", runID, err)
	}
	if params.MatchOnlyOf > 0 {
		return storage.Run{}, fmt.Errorf("run %d is a match-only run and cannot be resumed", runID)
	}

	var after int64
	cp, err := o.store.GetCheckpoint(ctx, runID)
	switch {
	case err == nil:
		after = cp.LastSectionID
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Run{}, fmt.Errorf("loading checkpoint of run %d: %w", runID, err)
	}

	if err := o.store.ResumeRun(ctx, runID); err != nil {
		return storage.Run{}, err
	}
	o.logger.Info("run resumed", "run_id", runID, "after_section", after)
	return o.execute(ctx, runID, o.source(params, after))
}

func (o *Orchestrator) source(p runParams, after int64) SectionSource {
	size := p.BatchSize
	if size <= 0 {
		size = o.opts.BatchSize
	}
	if len(p.SampleIDs) > 0 || p.SampleSize > 0 {
		return NewSampleSource(o.store, p.SampleIDs, size, after)
	}
	return NewCursorSource(o.store, p.Filter, size, after)
}

// execute processes src for runID and closes the run exactly once.
func (o *Orchestrator) execute(ctx context.Context, runID int64, src SectionSource) (storage.Run, error) {
	start := time.Now()
	stats, err := o.process(ctx, runID, src)

	status, msg := storage.RunCompleted, ""
	switch {
	case ctx.Err() != nil:
		status, err = storage.RunInterrupted, ErrInterrupted
	case err != nil:
		status, msg = storage.RunFailed, err.Error()
	}

	closeCtx := context.WithoutCancel(ctx)
	if cerr := o.retry(closeCtx, func(ctx context.Context) error {
		return o.store.CloseRun(ctx, runID, status, msg)
	}); cerr != nil {
		return storage.Run{}, errors.Join(err, fmt.Errorf("closing run %d: %w", runID, cerr))
	}

	o.logger.Info("run finished",
		"run_id", runID,
		"status", status,
		"batches", stats.batches.Load(),
		"sections", stats.sections.Load(),
		"references", stats.references.Load(),
		"timeouts", stats.timeouts.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	run, gerr := o.store.GetRun(closeCtx, runID)
	if gerr != nil {
		return storage.Run{}, errors.Join(err, gerr)
	}
	return run, err
}

type runStats struct {
	batches    atomic.Int64
	sections   atomic.Int64
	references atomic.Int64
	timeouts   atomic.Int64
}

// watermark tracks completed batches and yields the highest section id below
// which every batch is done.
type watermark struct {
	mu    sync.Mutex
	next  int
	done  map[int]legis.FilingSection
	saved legis.FilingSection
}

// complete marks batch seq done and reports the new contiguous high-water
// section, if it moved.
func (w *watermark) complete(seq int, last legis.FilingSection) (legis.FilingSection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done[seq] = last
	moved := false
	for {
		sec, ok := w.done[w.next]
		if !ok {
			break
		}
		delete(w.done, w.next)
		w.saved = sec
		w.next++
		moved = true
	}
	return w.saved, moved
}

func (o *Orchestrator) process(ctx context.Context, runID int64, src SectionSource) (*runStats, error) {
	stats := &runStats{}
	wm := &watermark{done: make(map[int]legis.FilingSection)}

	var (
		mu      sync.Mutex
		lastErr error
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return lastErr != nil
	}

	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrent)

	for seq := 0; ctx.Err() == nil && !failed(); seq++ {
		var (
			batch []legis.FilingSection
			ok    bool
		)
		err := o.retry(ctx, func(ctx context.Context) error {
			var err error
			batch, ok, err = src.NextBatch(ctx)
			return err
		})
		if err != nil {
			mu.Lock()
			lastErr = fmt.Errorf("reading sections: %w", err)
			mu.Unlock()
			break
		}
		if !ok {
			break
		}

		g.Go(func() error {
			start := time.Now()
			n, err := o.processBatch(ctx, runID, batch, stats)
			if err != nil {
				if ctx.Err() == nil {
					o.logger.Error("batch failed", "run_id", runID, "batch", seq, "error", err)
					mu.Lock()
					lastErr = fmt.Errorf("batch %d: %w", seq, err)
					mu.Unlock()
				}
				return nil
			}
			stats.batches.Add(1)
			o.logger.Info("batch complete", "run_id", runID, "batch", seq, "sections", len(batch), "references", n, "elapsed", time.Since(start).Round(time.Millisecond))

			last, moved := wm.complete(seq, batch[len(batch)-1])
			if !moved {
				return nil
			}
			cp := storage.Checkpoint{RunID: runID, LastFilingID: last.FilingID, LastSectionID: last.SectionID}
			if err := o.retry(ctx, func(ctx context.Context) error { return o.store.SaveCheckpoint(ctx, cp) }); err != nil && ctx.Err() == nil {
				mu.Lock()
				lastErr = fmt.Errorf("saving checkpoint: %w", err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return stats, lastErr
}

// processBatch extracts, persists and matches one batch of sections. It
// returns the number of references matched.
func (o *Orchestrator) processBatch(ctx context.Context, runID int64, batch []legis.FilingSection, stats *runStats) (int, error) {
	found := make([][]legis.ExtractedReference, len(batch))
	timedOut := make([]bool, len(batch))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, sec := range batch {
		g.Go(func() error {
			start := time.Now()
			refs, err := o.extractSection(gCtx, sec)
			if errors.Is(err, ErrSectionTimeout) {
				timedOut[i] = true
				stats.timeouts.Add(1)
				o.logger.Warn("section timed out", "run_id", runID, "section_id", sec.SectionID, "length", len(sec.Text))
				return o.retry(gCtx, func(ctx context.Context) error {
					return o.store.SaveTimeout(ctx, storage.TimeoutSection{
						RunID:          runID,
						FilingID:       sec.FilingID,
						SectionID:      sec.SectionID,
						TextLength:     len(sec.Text),
						ProcessingTime: time.Since(start),
						Error:          err.Error(),
					})
				})
			}
			if err != nil {
				return err
			}
			found[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var (
		refs      []legis.ExtractedReference
		unmatched []storage.UnmatchedSection
	)
	for i, sec := range batch {
		if timedOut[i] {
			continue
		}
		if len(found[i]) == 0 {
			unmatched = append(unmatched, storage.UnmatchedSection{
				RunID:      runID,
				FilingID:   sec.FilingID,
				SectionID:  sec.SectionID,
				IssueText:  truncate(sec.Text, unmatchedTextLimit),
				FilingYear: sec.FilingYear,
			})
			continue
		}
		refs = append(refs, found[i]...)
	}
	stats.sections.Add(int64(len(batch)))

	// pending also holds references an interrupted attempt stored without
	// matching them.
	var pending []legis.ExtractedReference
	err := o.retry(ctx, func(ctx context.Context) error {
		var err error
		pending, err = o.store.SaveExtraction(ctx, runID, refs, unmatched)
		return err
	})
	if err != nil {
		return 0, err
	}
	stats.references.Add(int64(len(pending)))

	results, err := o.matcher.MatchAll(ctx, pending, o.opts.Workers)
	if err != nil {
		return 0, err
	}
	if err := o.retry(ctx, func(ctx context.Context) error {
		return o.store.SaveMatches(ctx, runID, results)
	}); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// extractSection runs the extractor under the per-section timeout. An
// overrunning call is abandoned and exits at its next context check.
func (o *Orchestrator) extractSection(ctx context.Context, sec legis.FilingSection) ([]legis.ExtractedReference, error) {
	sctx, cancel := context.WithTimeout(ctx, o.opts.SectionTimeout)
	defer cancel()

	type result struct {
		refs []legis.ExtractedReference
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		refs, err := o.extract(sctx, sec)
		ch <- result{refs, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: section %d", ErrSectionTimeout, sec.SectionID)
		}
		return r.refs, r.err
	case <-sctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: section %d after %s", ErrSectionTimeout, sec.SectionID, o.opts.SectionTimeout)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
