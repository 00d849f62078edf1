package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/riskguard/internal/backtest"
	"github.com/aristath/riskguard/internal/config"
	"github.com/aristath/riskguard/internal/database"
	"github.com/aristath/riskguard/internal/modules/risk"
	"github.com/aristath/riskguard/pkg/formulas"
)

// runOptions holds the flags of the run command
type runOptions struct {
	input          string
	limitsFile     string
	limitsProfile  string
	workers        int
	dbPath         string
	reportPath     string
	parallelChecks bool
	periodsPerYear float64
}

var runOpts runOptions

// runCmd implements 'replay run'
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a snapshot file",
	Long: `Evaluate every snapshot in a JSON or msgpack file and print a summary.

Examples:
  replay run --input snapshots.json
  replay run --input snapshots.msgpack --limits-file limits.yaml --limits-profile conservative
  replay run --input snapshots.json --db data/replay.db --report report.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runReplay(ctx, runOpts, cmd.OutOrStdout(), newLogger())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOpts.input, "input", "", "Snapshot file (.json, .msgpack)")
	runCmd.Flags().StringVar(&runOpts.limitsFile, "limits-file", "", "YAML file of named limit profiles (default: built-in limits)")
	runCmd.Flags().StringVar(&runOpts.limitsProfile, "limits-profile", config.DefaultProfile, "Profile to use from --limits-file")
	runCmd.Flags().IntVar(&runOpts.workers, "workers", 0, "Dates evaluated concurrently (default: GOMAXPROCS)")
	runCmd.Flags().StringVar(&runOpts.dbPath, "db", "", "Persist breach events to this SQLite database")
	runCmd.Flags().StringVar(&runOpts.reportPath, "report", "", "Write the full JSON report to this file")
	runCmd.Flags().BoolVar(&runOpts.parallelChecks, "parallel-checks", false, "Evaluate the four checks concurrently")
	runCmd.Flags().Float64Var(&runOpts.periodsPerYear, "periods-per-year", formulas.TradingDaysPerYear, "Covariance periods per year")
	_ = runCmd.MarkFlagRequired("input")
}

// resolveLimits returns the built-in limits or the named profile from limitsFile
func resolveLimits(limitsFile, profile string) (risk.Limits, error) {
	if limitsFile == "" {
		return risk.DefaultLimits(), nil
	}
	profiles, err := config.LoadLimitProfiles(limitsFile)
	if err != nil {
		return risk.Limits{}, err
	}
	limits, ok := profiles[profile]
	if !ok {
		return risk.Limits{}, fmt.Errorf("limit profile %q not found in %s", profile, limitsFile)
	}
	return limits, nil
}

func runReplay(ctx context.Context, opts runOptions, out io.Writer, log zerolog.Logger) error {
	limits, err := resolveLimits(opts.limitsFile, opts.limitsProfile)
	if err != nil {
		return err
	}

	snapshots, err := backtest.LoadSnapshots(opts.input)
	if err != nil {
		return err
	}

	var sink risk.EventSink = risk.NopSink{}
	if opts.dbPath != "" {
		db, err := openEventDB(opts.dbPath, database.ProfileScratch)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = risk.NewRepository(db.Conn(), log)
	}

	aggregator := risk.NewAggregator(
		sink,
		log,
		risk.WithParallelChecks(opts.parallelChecks),
		risk.WithPeriodsPerYear(opts.periodsPerYear),
	)
	replayer := backtest.NewReplayer(aggregator, log, backtest.WithWorkers(opts.workers))

	report, err := replayer.Run(ctx, snapshots, limits)
	if err != nil {
		return err
	}

	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, report); err != nil {
			return err
		}
	}
	return report.WriteSummary(out)
}

func openEventDB(path string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    "risk",
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func writeReport(path string, report *backtest.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
