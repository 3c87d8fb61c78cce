package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/billmatch/internal/config"
	"github.com/kalambet/billmatch/internal/corpus"
	"github.com/kalambet/billmatch/internal/correct"
	"github.com/kalambet/billmatch/internal/extract"
	"github.com/kalambet/billmatch/internal/filing"
	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
	"github.com/kalambet/billmatch/internal/pipeline"
	"github.com/kalambet/billmatch/internal/storage"
)

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// loadMatcher builds the corpus index from the store. The returned func
// releases the index.
func loadMatcher(ctx context.Context, cfg config.Config, store *storage.Store) (*match.Matcher, func(), error) {
	idx, err := corpus.Load(ctx, store, corpus.Options{
		CacheSize:       cfg.Matching.CacheSize,
		TitleCandidates: cfg.Matching.TitleCandidates,
	})
	if err != nil {
		return nil, nil, err
	}
	if idx.Bills.Len() == 0 {
		printWarning("The bill corpus is empty; import it with: billmatch import bills FILE")
	}
	return match.New(idx), func() { idx.Close() }, nil
}

func batchOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		BatchSize:      cfg.Batch.Size,
		MaxConcurrent:  cfg.Batch.MaxConcurrent,
		Workers:        cfg.Batch.Workers,
		SectionTimeout: cfg.Batch.SectionTimeoutDuration(),
		MaxRetries:     cfg.Batch.MaxRetries,
		RetryDelay:     cfg.Batch.RetryDelayDuration(),
		Filter: storage.SectionFilter{
			YearStart:   cfg.Batch.YearStart,
			YearEnd:     cfg.Batch.YearEnd,
			MinSections: cfg.Batch.MinSections,
		},
	}
}

// addBatchFlags registers the flags bound to batch.* and matching.* keys.
func addBatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("batch-size", 0, "sections per batch")
	f.Int("max-concurrent-batches", 0, "batches processed at once")
	f.Int("workers-per-batch", 0, "extraction and matching workers per batch")
	f.Int("min-sections", 0, "skip filings with fewer sections")
	f.Int("year-start", 0, "first filing year to process")
	f.Int("year-end", 0, "last filing year to process")
	f.String("section-timeout", "", "extraction timeout per section")
	f.Int("max-retries", 0, "attempts for transient database errors")
	f.String("retry-delay", "", "delay between database retries")
	f.Int("cache-size", 0, "normalized title cache entries")
	f.Int("title-candidates", 0, "candidates considered for title-only references (0 disables)")
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract and match references across the stored filing sections",
	Long: `Extract and match references across the stored filing sections.

A completed run is post-processed unless --skip-post-process is given.

Examples:
  billmatch run --sample-size 500 --description "smoke test"
  billmatch run --year-start 2018 --year-end 2020
  billmatch run --resume 12
  billmatch run --match-only 12
  billmatch run --post-process 12`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	addBatchFlags(runCmd)
	runCmd.Flags().Int("sample-size", 0, "process a random sample of this many sections")
	runCmd.Flags().String("description", "", "description stored with the run")
	runCmd.Flags().Int64("resume", 0, "resume an interrupted run")
	runCmd.Flags().Int64("match-only", 0, "re-match the references of a run into a new run")
	runCmd.Flags().Int64("post-process", 0, "only post-process an existing run")
	runCmd.Flags().Bool("skip-post-process", false, "do not post-process the run")
	runCmd.MarkFlagsMutuallyExclusive("resume", "match-only", "post-process")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	resume, _ := cmd.Flags().GetInt64("resume")
	matchOnly, _ := cmd.Flags().GetInt64("match-only")
	postOnly, _ := cmd.Flags().GetInt64("post-process")
	skipPost, _ := cmd.Flags().GetBool("skip-post-process")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	matcher, closeIndex, err := loadMatcher(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeIndex()

	if postOnly > 0 {
		return postProcess(ctx, store, matcher, cfg.Batch.Workers, postOnly, nil)
	}

	opts := batchOptions(cfg)
	opts.SampleSize, _ = cmd.Flags().GetInt("sample-size")
	opts.Description, _ = cmd.Flags().GetString("description")
	orch := pipeline.New(store, matcher, opts)

	var run storage.Run
	switch {
	case resume > 0:
		printStep("Resuming run %d", resume)
		run, err = orch.Resume(ctx, resume)
	case matchOnly > 0:
		printStep("Re-matching the references of run %d", matchOnly)
		run, err = orch.MatchOnly(ctx, matchOnly)
	default:
		printStep("Starting run")
		run, err = orch.Start(ctx)
	}

	if run.ID > 0 {
		printRun(ctx, store, run)
	}
	if errors.Is(err, pipeline.ErrInterrupted) {
		if run.ParentID == 0 {
			printWarning("Run %d interrupted; continue with: billmatch run --resume %d", run.ID, run.ID)
		}
		return &exitError{code: 130, err: err}
	}
	if err != nil {
		return err
	}
	printSuccess("Run %d %s", run.ID, run.Status)

	if skipPost {
		return nil
	}
	return postProcess(ctx, store, matcher, cfg.Batch.Workers, run.ID, nil)
}

// --- post-process ---

var postProcessCmd = &cobra.Command{
	Use:   "post-process <run-id>",
	Short: "Apply the correction passes to a run",
	Long: `Apply the correction passes to a run.

Without --step the full pipeline runs. Steps: ` + fmt.Sprint(correct.Steps()),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetStringSlice("step")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		matcher, closeIndex, err := loadMatcher(cmd.Context(), cfg, store)
		if err != nil {
			return err
		}
		defer closeIndex()

		return postProcess(cmd.Context(), store, matcher, cfg.Batch.Workers, runID, steps)
	},
}

func init() {
	postProcessCmd.Flags().StringSlice("step", nil, "run only these steps, in order")
	postProcessCmd.Flags().Int("workers-per-batch", 0, "matching workers")
	postProcessCmd.Flags().Int("cache-size", 0, "normalized title cache entries")
	postProcessCmd.Flags().Int("title-candidates", 0, "candidates considered for title-only references (0 disables)")
}

func postProcess(ctx context.Context, store *storage.Store, matcher *match.Matcher, workers int, runID int64, steps []string) error {
	if _, err := store.GetRun(ctx, runID); err != nil {
		return fmt.Errorf("loading run %d: %w", runID, err)
	}
	printStep("Post-processing run %d", runID)

	c := correct.New(store, matcher, workers)
	var (
		results []correct.StepResult
		err     error
	)
	if len(steps) == 0 {
		results, err = c.Run(ctx, runID)
	} else {
		for _, step := range steps {
			var res correct.StepResult
			if res, err = c.RunStep(ctx, runID, step); err != nil {
				break
			}
			results = append(results, res)
		}
	}
	for _, r := range results {
		printStatus(r.Step, "%d changed in %s", r.Changed, r.Elapsed.Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	printSuccess("Post-processed run %d", runID)
	return nil
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the references found in a text or PDF file",
	Long: `Print the references found in a text or PDF file.

With --match the references are matched against the stored corpus.

Examples:
  billmatch extract issues.txt --year 2018
  billmatch extract report.pdf --year 2019 --match`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		year, _ := cmd.Flags().GetInt("year")
		doMatch, _ := cmd.Flags().GetBool("match")

		text, err := filing.ReadText(args[0])
		if err != nil {
			return err
		}
		refs, err := extract.New().ExtractContext(ctx, text, year)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			fmt.Println("No references found.")
			return nil
		}

		results := make([]*legis.MatchResult, len(refs))
		if doMatch {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			matcher, closeIndex, err := loadMatcher(ctx, cfg, store)
			if err != nil {
				return err
			}
			defer closeIndex()

			refs = append(refs, match.Combine(text, refs)...)
			if results, err = matcher.MatchAll(ctx, refs, cfg.Batch.Workers); err != nil {
				return err
			}
		}

		printReferences(os.Stdout, refs, results)
		return nil
	},
}

func init() {
	extractCmd.Flags().Int("year", 0, "filing year used to infer the congress")
	extractCmd.Flags().Bool("match", false, "match references against the stored corpus")
}

func printReferences(w io.Writer, refs []legis.ExtractedReference, results []*legis.MatchResult) {
	for i := range refs {
		ref := &refs[i]
		if ref.Category.Subsumed() {
			continue
		}
		fmt.Fprintf(w, "%s  %-24s %s", colorize(colorCyan, fmt.Sprintf("%5d", ref.Start)), ref.Category, ref.FullText)
		if ref.Congress > 0 {
			fmt.Fprintf(w, "  [congress %d, %s]", ref.Congress, ref.CongressSource)
		}
		if m := results[i]; m != nil {
			fmt.Fprintf(w, "  %s", colorize(matchColor(string(m.Type)), string(m.Type)))
			if m.BillID != "" {
				fmt.Fprintf(w, " %s", m.BillID)
			}
		}
		fmt.Fprintln(w)
	}
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the bill corpus or filing sections from JSON lines",
}

var importBillsCmd = &cobra.Command{
	Use:   "bills <file>",
	Short: "Import bill records (congress, bill_type, bill_number, titles, official_titles, law_number)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], func(ctx context.Context, r io.Reader, s *storage.Store) (int, error) {
			return filing.ImportBills(ctx, r, s)
		})
	},
}

var importSectionsCmd = &cobra.Command{
	Use:   "sections <file>",
	Short: "Import filing sections (filing_id, section_id, filing_year, text)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], func(ctx context.Context, r io.Reader, s *storage.Store) (int, error) {
			return filing.ImportSections(ctx, r, s)
		})
	},
}

func init() {
	importCmd.AddCommand(importBillsCmd)
	importCmd.AddCommand(importSectionsCmd)
}

func runImport(cmd *cobra.Command, path string, load func(context.Context, io.Reader, *storage.Store) (int, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := load(cmd.Context(), r, store)
	if err != nil {
		return fmt.Errorf("importing %s after %d records: %w", path, n, err)
	}
	printSuccess("Imported %d records from %s", n, path)
	return nil
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect processing runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-11s  %s  %6d sections  %s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", r.ID)),
				r.Status,
				r.StartTime.Local().Format(time.DateTime),
				r.TotalSections,
				r.Description,
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its match counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(cmd.Context(), runID)
		if err != nil {
			return fmt.Errorf("loading run %d: %w", runID, err)
		}
		printRun(cmd.Context(), store, run)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

var matchTypeOrder = []legis.MatchType{
	legis.HighConfidence, legis.ModerateConfidence, legis.WrongTitle, legis.Unmatched, legis.Duplicate,
}

// printRun writes a run summary to stderr. Lookup failures are shown inline.
func printRun(ctx context.Context, store *storage.Store, run storage.Run) {
	ctx = context.WithoutCancel(ctx)
	printStatus("Run", "%d", run.ID)
	if run.ParentID > 0 {
		printStatus("Parent", "%d", run.ParentID)
	}
	printStatus("Status", "%s", run.Status)
	if run.Description != "" {
		printStatus("Description", "%s", run.Description)
	}
	printStatus("Started", "%s", run.StartTime.Local().Format(time.DateTime))
	if !run.EndTime.IsZero() {
		printStatus("Elapsed", "%s", run.EndTime.Sub(run.StartTime).Round(time.Second))
	}
	printStatus("Sections", "%d in %d filings", run.TotalSections, run.TotalFilings)
	if run.Error != "" {
		printStatus("Error", "%s", colorize(colorRed, run.Error))
	}

	if cp, err := store.GetCheckpoint(ctx, run.ID); err == nil {
		printStatus("Checkpoint", "section %d", cp.LastSectionID)
	}

	counts, err := store.CountMatches(ctx, run.ID)
	if err != nil {
		printStatus("Matches", "unavailable: %v", err)
		return
	}
	for _, t := range matchTypeOrder {
		if n := counts[t]; n > 0 {
			printStatus(string(t), "%d", n)
		}
	}
	if ts, err := store.ListTimeouts(ctx, run.ID); err == nil && len(ts) > 0 {
		printStatus("Timeouts", "%s", colorize(colorYellow, strconv.Itoa(len(ts))))
	}
	if us, err := store.ListUnmatchedSections(ctx, run.ID); err == nil && len(us) > 0 {
		printStatus("Sections without references", "%d", len(us))
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}

		fmt.Printf("# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
