package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/billmatch/internal/correct"
	"github.com/kalambet/billmatch/internal/extract"
	"github.com/kalambet/billmatch/internal/jobs"
	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
	"github.com/kalambet/billmatch/internal/storage"
)

const maxMatchBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Store   *storage.Store
	Matcher *match.Matcher
	Token   string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(deps.Token))

		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
		r.Get("/runs/{id}/matches", handleListMatches(deps))
		r.Get("/runs/{id}/timeouts", handleListTimeouts(deps))
		r.Post("/runs/{id}/post-process", handlePostProcess(deps))
		r.Post("/runs/{id}/match-only", handleMatchOnly(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Post("/match", handleMatch(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runFromPath loads the run named by the {id} URL parameter, writing the
// error response itself when it cannot.
func runFromPath(deps AppDeps, w http.ResponseWriter, r *http.Request) (storage.Run, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid run id %q", chi.URLParam(r, "id"))
		return storage.Run{}, false
	}
	run, err := deps.Store.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "run %d not found", id)
		return storage.Run{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get run: %v", err)
		return storage.Run{}, false
	}
	return run, true
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		runs, err := deps.Store.ListRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		out := make([]runView, len(runs))
		for i, run := range runs {
			out[i] = newRunView(run)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := runFromPath(deps, w, r)
		if !ok {
			return
		}
		v := newRunView(run)
		v.Parameters = run.Parameters

		counts, err := deps.Store.CountMatches(r.Context(), run.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count matches: %v", err)
			return
		}
		v.MatchCounts = make(map[string]int, len(counts))
		for t, n := range counts {
			v.MatchCounts[string(t)] = n
		}

		cp, err := deps.Store.GetCheckpoint(r.Context(), run.ID)
		switch {
		case err == nil:
			v.LastSectionID = cp.LastSectionID
		case !errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get checkpoint: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

var matchTypes = []legis.MatchType{
	legis.HighConfidence, legis.ModerateConfidence, legis.WrongTitle, legis.Unmatched, legis.Duplicate,
}

func handleListMatches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := runFromPath(deps, w, r)
		if !ok {
			return
		}
		f := storage.MatchFilter{
			Type:  legis.MatchType(r.URL.Query().Get("type")),
			Limit: parseIntParam(r, "limit", 100, 1000),
		}
		if f.Type != "" && !slices.Contains(matchTypes, f.Type) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown match type %q", f.Type)
			return
		}
		rows, err := deps.Store.ListMatches(r.Context(), run.ID, f)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list matches: %v", err)
			return
		}
		out := make([]referenceMatchView, len(rows))
		for i := range rows {
			out[i] = referenceMatchView{
				Reference: newReferenceView(&rows[i].Reference),
				Match:     newMatchView(rows[i].Match),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleListTimeouts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := runFromPath(deps, w, r)
		if !ok {
			return
		}
		ts, err := deps.Store.ListTimeouts(r.Context(), run.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list timeouts: %v", err)
			return
		}
		out := make([]timeoutView, len(ts))
		for i, t := range ts {
			out[i] = timeoutView{
				FilingID:       t.FilingID,
				SectionID:      t.SectionID,
				TextLength:     t.TextLength,
				ProcessingTime: t.ProcessingTime.Seconds(),
				Error:          t.Error,
				CreatedAt:      t.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type postProcessRequest struct {
	Steps []string `json:"steps"`
}

func handlePostProcess(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := runFromPath(deps, w, r)
		if !ok {
			return
		}
		var req postProcessRequest
		if r.ContentLength != 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxMatchBodySize)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}
		for _, s := range req.Steps {
			if !slices.Contains(correct.Steps(), s) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown step %q", s)
				return
			}
		}
		enqueue(deps, w, r, storage.JobPostProcess, jobs.Payload{RunID: run.ID, Steps: req.Steps})
	}
}

func handleMatchOnly(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := runFromPath(deps, w, r)
		if !ok {
			return
		}
		enqueue(deps, w, r, storage.JobMatchOnly, jobs.Payload{RunID: run.ID})
	}
}

func enqueue(deps AppDeps, w http.ResponseWriter, r *http.Request, typ string, p jobs.Payload) {
	id, err := jobs.Enqueue(r.Context(), deps.Store, typ, p)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to queue job: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "pending"})
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":     job.ID,
			"type":       job.Type,
			"status":     job.Status,
			"attempts":   job.Attempts,
			"last_error": job.LastError,
		})
	}
}

type matchRequest struct {
	Text       string `json:"text"`
	FilingYear int    `json:"filing_year"`
}

func handleMatch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxMatchBodySize)
		defer r.Body.Close()

		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if !utf8.ValidString(req.Text) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text must be UTF-8")
			return
		}

		out, err := matchText(r.Context(), deps.Matcher, req.Text, req.FilingYear)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "matching failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// matchText extracts, combines and matches text the way a run does, leaving
// out the fragments that were folded into combined references.
func matchText(ctx context.Context, m *match.Matcher, text string, year int) ([]referenceMatchView, error) {
	refs, err := extract.New().ExtractContext(ctx, text, year)
	if err != nil {
		return nil, err
	}
	combined := match.Combine(text, refs)
	refs = append(refs, combined...)
	results, err := m.MatchAll(ctx, refs, 1)
	if err != nil {
		return nil, err
	}
	out := make([]referenceMatchView, 0, len(refs))
	for i := range refs {
		if refs[i].Category.Subsumed() {
			continue
		}
		out = append(out, referenceMatchView{Reference: newReferenceView(&refs[i]), Match: newMatchView(results[i])})
	}
	return out, nil
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
