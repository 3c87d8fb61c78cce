package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kalambet/billmatch/internal/extract"
	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestQueueJob_PostProcess(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /runs/7/post-process": `{"job_id":"job-123","status":"pending"}`,
	})

	job, err := queueJob(ctx, ts.client(), 7, "post-process", map[string]any{"steps": []string{"dedup"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != "job-123" || job.Status != "pending" {
		t.Errorf("job = %+v", job)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string][]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if len(body["steps"]) != 1 || body["steps"][0] != "dedup" {
		t.Errorf("body.steps = %v, want [dedup]", body["steps"])
	}
}

func TestQueueJob_MatchOnlyNoBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /runs/3/match-only": `{"job_id":"job-9","status":"pending"}`,
	})

	job, err := queueJob(ctx, ts.client(), 3, "match-only", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != "job-9" {
		t.Errorf("job.ID = %q, want job-9", job.ID)
	}
	if ts.requests[0].Body != "" {
		t.Errorf("body = %q, want empty", ts.requests[0].Body)
	}
}

func TestJobStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /jobs/job-1": `{"job_id":"job-1","type":"post_process","status":"failed","attempts":3,"last_error":"boom"}`,
	})

	job, err := jobStatus(ctx, ts.client(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != "failed" || job.Attempts != 3 || job.LastError != "boom" {
		t.Errorf("job = %+v", job)
	}
}

func TestListRuns_Remote(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /runs": `[{"run_id":2,"status":"running"},{"run_id":1,"status":"completed"}]`,
	})

	runs, err := listRuns(ctx, ts.client(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != 2 || runs[1].Status != "completed" {
		t.Errorf("runs = %+v", runs)
	}
	if ts.requests[0].Path != "/runs?limit=100" {
		t.Errorf("path = %q, want /runs?limit=100", ts.requests[0].Path)
	}
}

func TestAPIClient_NotReachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	client := &apiClient{baseURL: ts.URL, token: "x", httpClient: ts.Client()}
	ts.Close()

	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/runs")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(5, 100); got != "5" {
		t.Errorf("countLabel(5, 100) = %q", got)
	}
	if got := countLabel(100, 100); got != "100+" {
		t.Errorf("countLabel(100, 100) = %q", got)
	}
}

func TestParseRunID(t *testing.T) {
	if id, err := parseRunID("42"); err != nil || id != 42 {
		t.Errorf("parseRunID(42) = %d, %v", id, err)
	}
	for _, s := range []string{"", "0", "-1", "abc"} {
		if _, err := parseRunID(s); err == nil {
			t.Errorf("parseRunID(%q) succeeded, want error", s)
		}
	}
}

func TestPostProcessCommand_RequiresRunID(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"post-process"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing run id")
	}
	if !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Errorf("error = %q, want it to mention the argument count", err.Error())
	}
}

func TestRunCommand_ModesExclusive(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	defer resetFlags(t, runCmd, "resume", "match-only")

	rootCmd.SetArgs([]string{"run", "--resume", "1", "--match-only", "2"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for --resume with --match-only")
	}
	if !strings.Contains(err.Error(), "none of the others") {
		t.Errorf("error = %q, want a mutually exclusive flags error", err.Error())
	}
}

func TestBatchOptions(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BILLMATCH_BATCH_YEAR_START", "2018")
	t.Setenv("BILLMATCH_BATCH_SECTION_TIMEOUT", "5s")

	cfg, err := loadConfig(runCmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	opts := batchOptions(cfg)
	if opts.Filter.YearStart != 2018 {
		t.Errorf("YearStart = %d, want 2018", opts.Filter.YearStart)
	}
	if opts.SectionTimeout.Seconds() != 5 {
		t.Errorf("SectionTimeout = %v, want 5s", opts.SectionTimeout)
	}
	if opts.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", opts.BatchSize)
	}
}

func TestPrintReferences(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	refs := extract.Extract("Support for H.R. 1625 and tax reform", 2018)
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}
	results := []*legis.MatchResult{{Type: legis.HighConfidence, BillID: "hr1625-115"}}

	var buf bytes.Buffer
	printReferences(&buf, refs, results)
	out := buf.String()
	for _, want := range []string{"H.R. 1625", "congress 115", "high_confidence_match hr1625-115"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

// TestImportAndRun drives the local commands against a temporary data dir.
func TestImportAndRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BILLMATCH_STORAGE_DATA_DIR", dir)
	t.Setenv("BILLMATCH_LOG_LEVEL", "error")
	defer rootCmd.SetArgs(nil)

	bills := filepath.Join(dir, "bills.jsonl")
	sections := filepath.Join(dir, "sections.jsonl")
	writeFile(t, bills, `{"congress": 115, "bill_type": "hr", "bill_number": "1625", "titles": ["Consolidated Appropriations Act, 2018"], "law_number": "115-141"}`+"\n")
	writeFile(t, sections, `{"filing_id": "f1", "section_id": 1, "filing_year": 2018, "text": "Support for H.R. 1625, the Consolidated Appropriations Act"}
{"filing_id": "f1", "section_id": 2, "filing_year": 2018, "text": "General tax issues"}
`)

	for _, args := range [][]string{
		{"import", "bills", bills},
		{"import", "sections", sections},
		{"run", "--skip-post-process", "--description", "cli test"},
	} {
		rootCmd.SetArgs(args)
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	resetFlags(t, runCmd, "skip-post-process", "description")

	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Status != storage.RunCompleted || runs[0].Description != "cli test" {
		t.Errorf("run = %+v", runs[0])
	}
	counts, err := store.CountMatches(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("CountMatches: %v", err)
	}
	if counts[legis.HighConfidence] != 1 {
		t.Errorf("counts = %v, want one high confidence match", counts)
	}
}

// resetFlags restores flags set by an earlier Execute; cobra keeps flag
// state between executions of the same command tree.
func resetFlags(t *testing.T, cmd *cobra.Command, names ...string) {
	t.Helper()
	for _, name := range names {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Fatalf("no flag --%s", name)
		}
		if err := f.Value.Set(f.DefValue); err != nil {
			t.Fatalf("resetting --%s: %v", name, err)
		}
		f.Changed = false
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
