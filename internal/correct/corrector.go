// Package correct runs the post-processing passes over a finished run's
// persisted matches.
package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
	"github.com/kalambet/billmatch/internal/storage"
)

// Step names, usable with RunStep.
const (
	StepUnmatched     = "unmatched"
	StepDedup         = "dedup"
	StepWrongTitle    = "wrong_title"
	StepLowConfidence = "low_confidence"
	StepCombine       = "combine"
	StepParagraphs    = "paragraphs"
)

// Update sources written by the correction steps.
const (
	SourceUnmatched     = "unmatched_correction"
	SourceWrongTitle    = "wrong_title_correction"
	SourceLowConfidence = "low_confidence_correction"
)

const (
	DigitThreshold         = 0.8
	LowConfidenceThreshold = 0.6
)

// Pipeline is the order Run applies the steps in. Dedup runs again after the
// corrections because they can make two matches converge on one bill.
var Pipeline = []string{
	StepUnmatched,
	StepDedup,
	StepWrongTitle,
	StepLowConfidence,
	StepCombine,
	StepDedup,
	StepParagraphs,
}

// ErrUnknownStep is returned by RunStep for a name not in Steps.
var ErrUnknownStep = errors.New("unknown correction step")

// Steps returns the distinct step names.
func Steps() []string {
	return []string{StepUnmatched, StepDedup, StepWrongTitle, StepLowConfidence, StepCombine, StepParagraphs}
}

// CorrectionStore is the persistence the corrector needs.
type CorrectionStore interface {
	ListMatches(ctx context.Context, runID int64, f storage.MatchFilter) ([]storage.ReferenceMatch, error)
	ListReferences(ctx context.Context, runID int64) ([]legis.ExtractedReference, error)
	ListPendingReferences(ctx context.Context, runID int64) ([]legis.ExtractedReference, error)
	UpdateMatch(ctx context.Context, m *legis.MatchResult) error
	MarkDuplicates(ctx context.Context, matchIDs []int64) error
	SaveMatches(ctx context.Context, runID int64, results []*legis.MatchResult) error
	ApplyCombination(ctx context.Context, runID int64, subsumed map[string]legis.Category, combined []legis.ExtractedReference) ([]legis.ExtractedReference, error)
	GetSections(ctx context.Context, ids []int64) ([]legis.FilingSection, error)
	SaveParagraphs(ctx context.Context, runID, sectionID int64, paras []storage.Paragraph) error
}

// StepResult reports what one step changed.
type StepResult struct {
	Step    string
	Changed int
	Elapsed time.Duration
}

type Corrector struct {
	store   CorrectionStore
	matcher *match.Matcher
	workers int
	logger  *slog.Logger
}

func New(store CorrectionStore, matcher *match.Matcher, workers int) *Corrector {
	if workers <= 0 {
		workers = 1
	}
	return &Corrector{store: store, matcher: matcher, workers: workers, logger: slog.Default()}
}

// Run applies every step of Pipeline to runID in order.
func (c *Corrector) Run(ctx context.Context, runID int64) ([]StepResult, error) {
	results := make([]StepResult, 0, len(Pipeline))
	for _, step := range Pipeline {
		res, err := c.RunStep(ctx, runID, step)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunStep applies a single named step. Every step is idempotent.
func (c *Corrector) RunStep(ctx context.Context, runID int64, step string) (StepResult, error) {
	start := time.Now()
	var (
		n   int
		err error
	)
	switch step {
	case StepUnmatched:
		n, err = c.correctUnmatched(ctx, runID)
	case StepDedup:
		n, err = c.dedup(ctx, runID)
	case StepWrongTitle:
		n, err = c.correctWrongTitles(ctx, runID)
	case StepLowConfidence:
		n, err = c.correctLowConfidence(ctx, runID)
	case StepCombine:
		n, err = c.combine(ctx, runID)
	case StepParagraphs:
		n, err = c.paragraphs(ctx, runID)
	default:
		return StepResult{}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	if err != nil {
		return StepResult{}, fmt.Errorf("%s step on run %d: %w", step, runID, err)
	}

	res := StepResult{Step: step, Changed: n, Elapsed: time.Since(start)}
	c.logger.Info("correction step complete", "run_id", runID, "step", step, "changed", n, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// correctUnmatched retries unmatched bill references, and references that
// never got a match row, with every single-digit variant of their number,
// keeping the best title match at or above DigitThreshold.
func (c *Corrector) correctUnmatched(ctx context.Context, runID int64) (int, error) {
	rows, err := c.store.ListMatches(ctx, runID, storage.MatchFilter{Type: legis.Unmatched})
	if err != nil {
		return 0, err
	}
	pending, err := c.store.ListPendingReferences(ctx, runID)
	if err != nil {
		return 0, err
	}
	for _, ref := range pending {
		rows = append(rows, storage.ReferenceMatch{Reference: ref})
	}
	bills := c.matcher.Index().Bills
	norm := bills.Normalizer()

	changed := 0
	for _, rm := range rows {
		ref := &rm.Reference
		if ref.BillNumber == "" || ref.Title == "" || ref.Congress <= 0 || !ref.BillType.Valid() {
			continue
		}
		var (
			best      float64
			bestBill  *legis.BillRecord
			bestTitle string
		)
		for _, v := range digitVariants(ref.BillNumber) {
			b, ok := bills.Get(ref.Congress, ref.BillType, v)
			if !ok {
				continue
			}
			for _, t := range b.AllTitles() {
				if s := norm.Similarity(ref.Title, t); s > best {
					best, bestBill, bestTitle = s, b, t
				}
			}
		}
		if bestBill == nil || best < DigitThreshold {
			continue
		}
		m := legis.NewMatch(ref, bestBill, legis.HighConfidence, best, bestTitle)
		m.UpdatedBillID = m.BillID
		m.UpdateSource = SourceUnmatched
		if rm.Match == nil {
			err = c.store.SaveMatches(ctx, runID, []*legis.MatchResult{m})
		} else {
			m.MatchID = rm.Match.MatchID
			err = c.store.UpdateMatch(ctx, m)
		}
		if err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// digitVariants returns every number that differs from n in exactly one
// digit, excluding variants with a leading zero.
func digitVariants(n string) []string {
	var out []string
	b := []byte(n)
	for i, orig := range b {
		if orig < '0' || orig > '9' {
			continue
		}
		for d := byte('0'); d <= '9'; d++ {
			if d == orig || (i == 0 && d == '0') {
				continue
			}
			b[i] = d
			out = append(out, string(b))
		}
		b[i] = orig
	}
	return out
}

// effectiveBillID is the bill a match resolves to after corrections.
func effectiveBillID(m *legis.MatchResult) string {
	if m.UpdatedBillID != "" {
		return m.UpdatedBillID
	}
	return m.BillID
}

// dedup keeps, per section and bill, the highest-confidence match (lowest
// match id on ties) and marks the rest Duplicate.
func (c *Corrector) dedup(ctx context.Context, runID int64) (int, error) {
	rows, err := c.store.ListMatches(ctx, runID, storage.MatchFilter{})
	if err != nil {
		return 0, err
	}

	type key struct {
		section int64
		bill    string
	}
	keep := make(map[key]*legis.MatchResult)
	var dups []int64
	for _, rm := range rows {
		m := rm.Match
		id := effectiveBillID(m)
		if !m.Type.CarriesBill() || id == "" {
			continue
		}
		k := key{rm.Reference.SectionID, id}
		cur, ok := keep[k]
		switch {
		case !ok:
			keep[k] = m
		case m.Confidence > cur.Confidence || (m.Confidence == cur.Confidence && m.MatchID < cur.MatchID):
			dups = append(dups, cur.MatchID)
			keep[k] = m
		default:
			dups = append(dups, m.MatchID)
		}
	}

	if err := c.store.MarkDuplicates(ctx, dups); err != nil {
		return 0, err
	}
	return len(dups), nil
}

func adjacentCongresses(congress int, self bool) []int {
	if congress <= 0 {
		if self {
			return []int{0}
		}
		return nil
	}
	out := make([]int, 0, 3)
	if self {
		out = append(out, congress)
	}
	if congress > 1 {
		out = append(out, congress-1)
	}
	return append(out, congress+1)
}

// correctWrongTitles re-matches WrongTitle results at the same congress and
// then its neighbours, taking the first HighConfidence result.
func (c *Corrector) correctWrongTitles(ctx context.Context, runID int64) (int, error) {
	rows, err := c.store.ListMatches(ctx, runID, storage.MatchFilter{Type: legis.WrongTitle})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, rm := range rows {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		for _, congress := range adjacentCongresses(rm.Reference.Congress, true) {
			res := c.matcher.MatchAt(&rm.Reference, congress)
			if res == nil || res.Type != legis.HighConfidence {
				continue
			}
			res.MatchID = rm.Match.MatchID
			res.UpdatedBillID = res.BillID
			res.UpdateSource = SourceWrongTitle
			if err := c.store.UpdateMatch(ctx, res); err != nil {
				return changed, err
			}
			changed++
			break
		}
	}
	return changed, nil
}

// correctLowConfidence retries weak HighConfidence matches that no other
// step has touched at the neighbouring congresses, keeping an improvement.
func (c *Corrector) correctLowConfidence(ctx context.Context, runID int64) (int, error) {
	rows, err := c.store.ListMatches(ctx, runID, storage.MatchFilter{Type: legis.HighConfidence})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, rm := range rows {
		m := rm.Match
		if m.Confidence >= LowConfidenceThreshold || m.UpdateSource != "" {
			continue
		}
		var best *legis.MatchResult
		for _, congress := range adjacentCongresses(rm.Reference.Congress, false) {
			res := c.matcher.MatchAt(&rm.Reference, congress)
			if res == nil || !res.Type.CarriesBill() {
				continue
			}
			if res.Confidence > m.Confidence && (best == nil || res.Confidence > best.Confidence) {
				best = res
			}
		}
		if best == nil {
			continue
		}
		m.UpdatedBillID = best.BillID
		m.MatchedTitle = best.MatchedTitle
		m.Confidence = best.Confidence
		m.UpdateSource = SourceLowConfidence
		if err := c.store.UpdateMatch(ctx, m); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}
