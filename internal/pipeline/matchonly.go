package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
	"github.com/kalambet/billmatch/internal/storage"
)

// MatchOnly re-matches the references of a finished run without extracting
// again. A child run receives a copy of the parent's references; number runs
// followed by a title are combined per section before everything is matched.
func (o *Orchestrator) MatchOnly(ctx context.Context, parentRunID int64) (storage.Run, error) {
	parent, err := o.store.GetRun(ctx, parentRunID)
	if err != nil {
		return storage.Run{}, fmt.Errorf("loading parent run %d: %w", parentRunID, err)
	}
	refs, err := o.store.ListReferences(ctx, parentRunID)
	if err != nil {
		return storage.Run{}, fmt.Errorf("loading references of run %d: %w", parentRunID, err)
	}

	raw, err := json.Marshal(runParams{Workers: o.opts.Workers, MatchOnlyOf: parentRunID})
	if err != nil {
		return storage.Run{}, err
	}
	desc := o.opts.Description
	if desc == "" {
		desc = fmt.Sprintf("match-only of run %d", parentRunID)
	}
	runID, err := o.store.CreateRun(ctx, storage.Run{
		ParentID:      parentRunID,
		TotalFilings:  parent.TotalFilings,
		TotalSections: parent.TotalSections,
		Parameters:    string(raw),
		Description:   desc,
	})
	if err != nil {
		return storage.Run{}, err
	}
	o.logger.Info("match-only run started", "run_id", runID, "parent_run_id", parentRunID, "references", len(refs))

	start := time.Now()
	err = o.rematch(ctx, runID, copyReferences(refs))

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
		return storage.Run{}, fmt.Errorf("closing run %d: %w", runID, cerr)
	}
	o.logger.Info("match-only run finished", "run_id", runID, "status", status, "elapsed", time.Since(start).Round(time.Millisecond))

	run, gerr := o.store.GetRun(closeCtx, runID)
	if gerr != nil {
		return storage.Run{}, gerr
	}
	return run, err
}

// copyReferences returns fresh copies of refs with the state that combining
// produced undone, so the child run can combine them itself.
func copyReferences(refs []legis.ExtractedReference) []legis.ExtractedReference {
	out := make([]legis.ExtractedReference, 0, len(refs))
	for _, r := range refs {
		switch r.Category {
		case legis.CategoryCombined:
			continue
		case legis.CategorySubsumedNumber:
			r.Category = legis.CategoryBillNumber
		case legis.CategorySubsumedTitle:
			r.Category = legis.CategoryTitleOnly
		}
		r.ID = uuid.NewString()
		r.RunID = 0
		r.Numbers = append([]legis.BillNumber(nil), r.Numbers...)
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) rematch(ctx context.Context, runID int64, refs []legis.ExtractedReference) error {
	ids := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, r := range refs {
		if !seen[r.SectionID] {
			seen[r.SectionID] = true
			ids = append(ids, r.SectionID)
		}
	}
	texts := make(map[int64]string, len(ids))
	for i := 0; i < len(ids); i += o.opts.BatchSize {
		chunk := ids[i:min(i+o.opts.BatchSize, len(ids))]
		var secs []legis.FilingSection
		if err := o.retry(ctx, func(ctx context.Context) error {
			var err error
			secs, err = o.store.GetSections(ctx, chunk)
			return err
		}); err != nil {
			return err
		}
		for _, s := range secs {
			texts[s.SectionID] = s.Text
		}
	}

	var all []legis.ExtractedReference
	for _, group := range sectionGroups(refs) {
		combined := match.Combine(texts[group[0].SectionID], group)
		all = append(all, group...)
		all = append(all, combined...)
	}

	for i := 0; i < len(all); i += o.opts.BatchSize {
		chunk := all[i:min(i+o.opts.BatchSize, len(all))]
		var saved []legis.ExtractedReference
		if err := o.retry(ctx, func(ctx context.Context) error {
			var err error
			saved, err = o.store.SaveExtraction(ctx, runID, chunk, nil)
			return err
		}); err != nil {
			return err
		}
		results, err := o.matcher.MatchAll(ctx, saved, o.opts.Workers)
		if err != nil {
			return err
		}
		if err := o.retry(ctx, func(ctx context.Context) error {
			return o.store.SaveMatches(ctx, runID, results)
		}); err != nil {
			return err
		}
	}
	return nil
}

// sectionGroups splits refs into per-section slices, preserving order of
// first appearance. Each group shares refs' backing array.
func sectionGroups(refs []legis.ExtractedReference) [][]legis.ExtractedReference {
	var out [][]legis.ExtractedReference
	start := 0
	for i := 1; i <= len(refs); i++ {
		if i == len(refs) || refs[i].SectionID != refs[start].SectionID {
			if i > start {
				out = append(out, refs[start:i])
			}
			start = i
		}
	}
	return out
}
