package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/billmatch/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func clientFor(cfg config.Config) *apiClient {
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var newAPIClient = func(cmd *cobra.Command) (*apiClient, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.Token == "" {
		return nil, errors.New("BILLMATCH_SERVER_TOKEN is not set")
	}
	return clientFor(cfg), nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is billmatch serve running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type remoteRun struct {
	ID     int64  `json:"run_id"`
	Status string `json:"status"`
}

func listRuns(ctx context.Context, c *apiClient, limit int) ([]remoteRun, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/runs?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	var runs []remoteRun
	if err := decodeJSON(resp, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

type queuedJob struct {
	ID        string `json:"job_id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

// queueJob posts to a run's job endpoint, "post-process" or "match-only".
func queueJob(ctx context.Context, c *apiClient, runID int64, action string, body any) (queuedJob, error) {
	resp, err := c.post(ctx, fmt.Sprintf("/runs/%d/%s", runID, action), body)
	if err != nil {
		return queuedJob{}, err
	}
	var job queuedJob
	err = decodeJSON(resp, &job)
	return job, err
}

func jobStatus(ctx context.Context, c *apiClient, id string) (queuedJob, error) {
	resp, err := c.get(ctx, "/jobs/"+id)
	if err != nil {
		return queuedJob{}, err
	}
	var job queuedJob
	err = decodeJSON(resp, &job)
	return job, err
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue work on a running server",
}

var queuePostProcessCmd = &cobra.Command{
	Use:   "post-process <run-id>",
	Short: "Queue post-processing of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetStringSlice("step")
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		job, err := queueJob(cmd.Context(), client, runID, "post-process", map[string]any{"steps": steps})
		if err != nil {
			return err
		}
		printSuccess("Queued job %s", job.ID)
		return nil
	},
}

var queueMatchOnlyCmd = &cobra.Command{
	Use:   "match-only <run-id>",
	Short: "Queue a match-only run over a run's references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		job, err := queueJob(cmd.Context(), client, runID, "match-only", nil)
		if err != nil {
			return err
		}
		printSuccess("Queued job %s", job.ID)
		return nil
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a queued job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		job, err := jobStatus(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		printStatus("Job", "%s (%s)", job.ID, job.Type)
		printStatus("Status", "%s", job.Status)
		printStatus("Attempts", "%d", job.Attempts)
		if job.LastError != "" {
			printStatus("Last error", "%s", colorize(colorRed, job.LastError))
		}
		return nil
	},
}

func init() {
	queuePostProcessCmd.Flags().StringSlice("step", nil, "run only these steps, in order")
	queueCmd.AddCommand(queuePostProcessCmd)
	queueCmd.AddCommand(queueMatchOnlyCmd)
	queueCmd.AddCommand(queueStatusCmd)
}
