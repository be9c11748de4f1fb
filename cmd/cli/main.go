package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"goboot/adapters/estimators"
	"goboot/app"
	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/domain/dataset"
	"goboot/internal/config"
	"goboot/internal/container"
	"goboot/internal/migration"
	"goboot/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "goboot-cli",
		Short: "Bootstrap resampling runs from the command line",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newDescribeCmd(),
		newSummarizeCmd(),
		newListCmd(),
		newEstimatorsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		kind       string
		columns    []string
		specJSON   string
		iterations int
		seed       int64
		workers    int
		confidence float64
		method     string
		percent    float64
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run [source]",
		Short: "Bootstrap an estimator over a dataset file or URL",
		Long: `Resample a dataset with replacement and bootstrap the named estimator.

The source is a workbook/csv path or an http(s) URL serving JSON records.
The estimator is a catalog kind plus the columns it consumes. Model
estimators take a full JSON spec instead.

Examples:
  goboot-cli run trial.xlsx --estimator mean --columns severity_score
  goboot-cli run trial.xlsx --estimator quantile --columns severity_score --percent 90
  goboot-cli run trial.xlsx --estimator icc --columns severity_score,site --iterations 2000
  goboot-cli run trial.csv --spec '{"kind":"glm","glm":{"response":"y","predictors":["x"],"family":"gaussian"}}'
  goboot-cli run https://api.example.com/scores --estimator median --columns rating`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := resolveSpec(kind, columns, percent, specJSON)
			if err != nil {
				return err
			}
			return runBootstrap(cmd.Context(), args[0], spec, runParams{
				iterations: iterations,
				seed:       seed,
				workers:    workers,
				confidence: confidence,
				method:     method,
				quiet:      quiet,
			})
		},
	}

	cmd.Flags().StringVar(&kind, "estimator", "mean", "Estimator kind from the catalog")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns the estimator consumes")
	cmd.Flags().Float64Var(&percent, "percent", 0, "Percentile for the quantile estimator")
	cmd.Flags().StringVar(&specJSON, "spec", "", "Full estimator spec as JSON (overrides --estimator/--columns)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "Bootstrap iterations (0 uses BOOT_ITERATIONS)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 draws one and records it)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent estimator workers (0 uses BOOT_WORKERS)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence level (0 uses BOOT_CONFIDENCE)")
	cmd.Flags().StringVar(&method, "method", "", "Interval method: student_t|percentile")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress progress output")

	return cmd
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [source]",
		Short: "Profile a dataset's columns without resampling",
		Long: `Load a source and report per-column shape: usable counts, summary
statistics for numeric columns, level counts for categorical ones.

Example: goboot-cli describe trial.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(cmd.Context(), args[0])
		},
	}
}

func newSummarizeCmd() *cobra.Command {
	var confidence float64
	var method string

	cmd := &cobra.Command{
		Use:   "summarize [run-id]",
		Short: "Recompute the summary table for a stored run",
		Long: `Recompute per-series statistics from a stored run's replicates.

The recomputed rows replace the run's cached summaries.

Example: goboot-cli summarize 0190a8f2-... --confidence 0.99 --method percentile`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			m, err := boot.ParseMethod(method)
			if err != nil {
				return err
			}
			return runSummarize(cmd.Context(), runID, confidence, m)
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence level (0 uses BOOT_CONFIDENCE)")
	cmd.Flags().StringVar(&method, "method", "", "Interval method: student_t|percentile")

	return cmd
}

func newListCmd() *cobra.Command {
	var estimator string
	var partial bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := ports.RunFilters{Limit: limit}
			if estimator != "" {
				filters.Estimator = &estimator
			}
			if cmd.Flags().Changed("partial") {
				filters.Partial = &partial
			}
			return runList(cmd.Context(), filters)
		},
	}

	cmd.Flags().StringVar(&estimator, "estimator", "", "Filter by estimator name")
	cmd.Flags().BoolVar(&partial, "partial", true, "Filter by partial flag")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show")

	return cmd
}

func newEstimatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimators",
		Short: "List built-in estimator kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Built-in estimators:\n")
			for _, d := range estimators.Catalog() {
				fmt.Printf("  %-10s %s\n", d.Kind, d.Description)
				if len(d.Columns) > 0 {
					fmt.Printf("  %-10s columns: %s\n", "", strings.Join(d.Columns, ", "))
				}
			}
			return nil
		},
	}
}

// setupContainer wires a service the same way the API entrypoint does:
// Postgres ledger when DATABASE_URL is set, in-memory otherwise.
func setupContainer() (*container.Container, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migration.NewRunner().Run(context.Background(), db); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		if err := c.InitWithDatabase(db); err != nil {
			return nil, err
		}
	} else {
		if err := c.InitInMemory(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func resolveSpec(kind string, columns []string, percent float64, specJSON string) (estimators.Spec, error) {
	if specJSON != "" {
		var spec estimators.Spec
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			return estimators.Spec{}, fmt.Errorf("invalid --spec JSON: %w", err)
		}
		return spec, nil
	}
	return estimators.Spec{Kind: kind, Columns: columns, Percent: percent}, nil
}

type runParams struct {
	iterations int
	seed       int64
	workers    int
	confidence float64
	method     string
	quiet      bool
}

func runBootstrap(ctx context.Context, source string, spec estimators.Spec, p runParams) error {
	est, err := estimators.Build(spec)
	if err != nil {
		return err
	}
	method, err := boot.ParseMethod(p.method)
	if err != nil {
		return err
	}

	c, err := setupContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	req := app.RunRequest{
		Source:     source,
		Estimator:  est,
		Iterations: p.iterations,
		Seed:       p.seed,
		Workers:    p.workers,
		Confidence: p.confidence,
		Method:     method,
	}
	if !p.quiet {
		req.OnProgress = textualProgress()
	}

	fmt.Printf("🔬 Bootstrapping %s over %s...\n", est.Name(), source)
	started := time.Now()
	result, err := c.Service.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("\n📊 Run %s finished in %v\n", result.RunID, time.Since(started).Round(time.Millisecond))
	fmt.Printf("  estimator:   %s\n", result.Estimator)
	fmt.Printf("  iterations:  %d requested, %d completed, %d usable\n",
		result.Requested, result.Completed, result.Usable)
	fmt.Printf("  seed:        %d\n", result.Seed)
	fmt.Printf("  fingerprint: %s\n", result.Fingerprint)
	if result.Partial {
		fmt.Printf("  ⚠️  partial: the run was cancelled before finishing\n")
	}

	printSummaryTable(result.Summaries, result.Confidence, result.Method)
	return nil
}

func runDescribe(ctx context.Context, source string) error {
	c, err := setupContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	profile, err := c.Service.ProfileSource(ctx, source)
	if err != nil {
		return err
	}

	fmt.Printf("📋 %s: %d columns\n", profile.Source, len(profile.Columns))
	fmt.Printf("  %-20s %-12s %6s %7s %10s %10s %10s %9s %7s\n",
		"column", "kind", "rows", "missing", "mean", "sd", "median", "skewness", "normal")
	for _, p := range profile.Columns {
		switch {
		case p.Summary != nil:
			normal := "no"
			if p.Summary.Normal {
				normal = "yes"
			}
			fmt.Printf("  %-20s %-12s %6d %7d %10.5g %10.5g %10.5g %9.3g %7s\n",
				p.Key, p.Kind, p.Rows, p.Missing,
				p.Summary.Mean, p.Summary.SD, p.Summary.Median, p.Summary.Skewness, normal)
		case p.Kind == dataset.KindNumeric:
			fmt.Printf("  %-20s %-12s %6d %7d  too few usable values to summarize\n",
				p.Key, p.Kind, p.Rows, p.Missing)
		default:
			fmt.Printf("  %-20s %-12s %6d %7d  %d levels", p.Key, p.Kind, p.Rows, p.Missing, p.Cardinality)
			if len(p.Levels) > 0 {
				fmt.Printf(", most common %q x%d", p.Levels[0].Label, p.Levels[0].Count)
			}
			fmt.Println()
		}
	}
	return nil
}

func runSummarize(ctx context.Context, runID core.RunID, confidence float64, method boot.Method) error {
	c, err := setupContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	set, err := c.Service.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	summaries, err := c.Service.Summarize(ctx, runID, confidence, method)
	if err != nil {
		return err
	}

	if confidence == 0 {
		confidence = c.Config.Boot.Confidence
	}
	if method == "" {
		method = boot.MethodStudentT
	}

	fmt.Printf("📊 Run %s: %s, %d replicates (%d usable)\n",
		set.RunID, set.Estimator, set.Completed(), set.Usable())
	printSummaryTable(summaries, confidence, method)
	return nil
}

func runList(ctx context.Context, filters ports.RunFilters) error {
	c, err := setupContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	runs, err := c.Service.ListRuns(ctx, filters)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs match.")
		return nil
	}

	fmt.Printf("%-36s  %-24s %9s %7s %7s %8s  %s\n",
		"run_id", "estimator", "requested", "usable", "partial", "seed", "created")
	for _, r := range runs {
		fmt.Printf("%-36s  %-24s %9d %7d %7t %8d  %s\n",
			r.RunID, r.Estimator, r.Requested, r.Usable, r.Partial, r.Seed, r.CreatedAt)
	}
	return nil
}

// textualProgress prints one line per decile of completed iterations.
// Engine progress calls are serialized, so no lock is needed.
func textualProgress() boot.ProgressFunc {
	last := -1
	return func(completed, total int) {
		pct := completed * 100 / total
		if pct/10 == last && completed != total {
			return
		}
		last = pct / 10
		fmt.Printf("  %3d%% (%d/%d)\n", pct, completed, total)
	}
}

func printSummaryTable(summaries []boot.SeriesSummary, confidence float64, method boot.Method) {
	fmt.Printf("\nSummary (%.0f%% CI, %s):\n", confidence*100, method)
	fmt.Printf("  %-16s %12s %12s %12s %12s %10s %7s %7s\n",
		"series", "mean", "se", "ci_lower", "ci_upper", "p", "usable", "missing")
	for _, s := range summaries {
		if s.Err != nil {
			fmt.Printf("  %-16s %v\n", s.Name, s.Err)
			continue
		}
		fmt.Printf("  %-16s %12.6g %12.6g %12.6g %12.6g %10.4g %7d %7d\n",
			s.Name, s.Mean, s.StdError, s.CILower, s.CIUpper, s.PValue, s.Usable, s.Missing)
	}
}
