package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/billmatch/internal/api"
	"github.com/kalambet/billmatch/internal/config"
	"github.com/kalambet/billmatch/internal/correct"
	"github.com/kalambet/billmatch/internal/jobs"
	"github.com/kalambet/billmatch/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and the background job worker (foreground)",
	Long: `Serve the HTTP API and the background job worker.

The API requires a bearer token taken from BILLMATCH_SERVER_TOKEN.
With --mcp the matching tools are also served over stdio.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running billmatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer(cmd)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd)
	},
}

func init() {
	addBatchFlags(serveCmd)
	serveCmd.Flags().Int("port", 0, "port to listen on (127.0.0.1)")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
	rootCmd.AddCommand(stopCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "billmatch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(os.Stderr, "billmatch version %s\n", version)
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server.Token == "" {
		return errors.New("BILLMATCH_SERVER_TOKEN must be set to serve the API")
	}
	withMCP, _ := cmd.Flags().GetBool("mcp")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	matcher, closeIndex, err := loadMatcher(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeIndex()

	worker := jobs.NewWorker(store, &jobs.Service{
		Corrector:    correct.New(store, matcher, cfg.Batch.Workers),
		Orchestrator: pipeline.New(store, matcher, batchOptions(cfg)),
	}, 500*time.Millisecond)
	go worker.Run(ctx)

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Matcher: matcher}))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Store:   store,
			Matcher: matcher,
			Token:   cfg.Server.Token,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "billmatch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("billmatch is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop billmatch (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to billmatch (PID %d)", pid)
	return nil
}

func showStatus(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := clientFor(cfg)
	client.httpClient.Timeout = 2 * time.Second

	resp, err := client.get(cmd.Context(), "/health")
	running := err == nil && resp.StatusCode == http.StatusOK
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case running:
		resp.Body.Close()
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	if running && client.token != "" {
		if runs, err := listRuns(cmd.Context(), client, 100); err == nil {
			printStatus("Runs", "%s", countLabel(len(runs), 100))
			if len(runs) > 0 {
				printStatus("Latest run", "%d (%s)", runs[0].ID, runs[0].Status)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config file", "%s", config.FilePath())
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
