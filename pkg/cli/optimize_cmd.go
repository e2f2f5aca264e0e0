package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"qtune/internal/audit"
	"qtune/internal/bench"
	"qtune/internal/config"
	"qtune/internal/domain"
	"qtune/internal/engine"
	"qtune/internal/inspect"
	"qtune/internal/plan"
	"qtune/internal/reason"
	"qtune/internal/session"
	"qtune/internal/tool"
)

func newOptimizeCmd() *cobra.Command {
	cfg := config.LoadFromEnv()
	var timeoutSec int
	var threshold float64

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run one optimization session for a query",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Timeout = time.Duration(timeoutSec) * time.Second
			cfg.Threshold = threshold
			applyUserConfig(cfg, cmd.Flags())

			if err := cfg.Validate(); err != nil {
				return err
			}
			return runOptimize(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.DBPath, "db", "", "path to the DuckDB database file")
	flags.StringVar(&cfg.Query, "query", "", "SQL query literal")
	flags.StringVar(&cfg.QueryFile, "query-file", "", "path to a .sql file")
	flags.StringVar(&cfg.Label, "label", "", "identifying label for the query")
	flags.StringVar(&cfg.Model, "model", cfg.Model, "reasoning service model")
	flags.IntVar(&cfg.Runs, "runs", cfg.Runs, "measured benchmark runs per query")
	flags.IntVar(&cfg.Warmup, "warmup", cfg.Warmup, "discarded warmup runs per query")
	flags.IntVar(&timeoutSec, "timeout", int(cfg.Timeout/time.Second), "per-run execution timeout in seconds")
	flags.IntVar(&cfg.MaxIters, "max-iters", cfg.MaxIters, "iteration budget")
	flags.Float64Var(&threshold, "threshold", cfg.Threshold, "improvement ratio that stops the session, e.g. 0.1 for 10%")
	flags.IntVar(&cfg.MaxToolSteps, "max-tool-steps", cfg.MaxToolSteps, "tool calls allowed per candidate turn")
	flags.StringVar(&cfg.ReportDB, "report-db", "", "optional SQLite file to record the session report")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, or error")

	return cmd
}

// applyUserConfig fills unset flags from ~/.qtune/config.yaml.
func applyUserConfig(cfg *config.Config, flags *pflag.FlagSet) {
	user, err := LoadUserConfig()
	if err != nil || user == nil {
		return
	}
	if !flags.Changed("model") && user.Model != "" {
		cfg.Model = user.Model
	}
	if !flags.Changed("db") && cfg.DBPath == "" && user.Database != "" {
		cfg.DBPath = user.Database
	}
	if cfg.APIKey == "" && user.APIKey != "" {
		cfg.APIKey = user.APIKey
	}
}

func runOptimize(cmd *cobra.Command, cfg *config.Config) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	sqlText, err := cfg.QuerySQL()
	if err != nil {
		return err
	}

	db, err := engine.Open(cfg.DBPath, true)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	harness, err := bench.New(db, bench.Options{
		Warmup:  cfg.Warmup,
		Runs:    cfg.Runs,
		Timeout: cfg.Timeout,
	}, log)
	if err != nil {
		return err
	}

	inspector := inspect.New(db, log)
	profiler := plan.NewProfiler(db, log)
	dispatcher := tool.NewRegistry(tool.Deps{
		Catalog:   inspector,
		Explainer: db,
		Bencher:   harness,
	}, log)
	proposer := reason.NewAnthropicProposer(reason.Options{
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		MaxToolSteps: cfg.MaxToolSteps,
	}, dispatcher, log)

	controller, err := session.New(harness, profiler, proposer, inspector, session.Options{
		MaxIters:  cfg.MaxIters,
		Threshold: cfg.Threshold,
	}, log)
	if err != nil {
		return err
	}

	sess := controller.Run(cmd.Context(), domain.QuerySpec{SQL: sqlText, Label: cfg.Label})

	printReport(cmd.OutOrStdout(), sess)

	if cfg.ReportDB != "" {
		recorder, err := audit.Open(cfg.ReportDB)
		if err != nil {
			log.Error("open report db", "error", err)
		} else {
			defer recorder.Close() //nolint:errcheck
			if err := recorder.Record(cmd.Context(), sess); err != nil {
				log.Error("record session report", "error", err)
			}
		}
	}

	switch sess.Reason {
	case domain.ReasonThresholdMet:
		exitCode = ExitThresholdMet
	case domain.ReasonBudgetExhausted:
		exitCode = ExitBudgetExhausted
	default:
		exitCode = ExitError
	}
	return nil
}
