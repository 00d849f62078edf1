package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/riskguard/internal/database"
	"github.com/aristath/riskguard/internal/modules/risk"
)

type eventsOptions struct {
	dbPath   string
	category string
	runID    string
	limit    int
}

var eventsOpts eventsOptions

// eventsCmd implements 'replay events'
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List stored breach events",
	Long: `List breach events persisted by 'replay run --db' or by the riskguard server.

Examples:
  replay events --db data/risk.db
  replay events --db data/replay.db --category jump --run-id 7f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEvents(cmd.Context(), eventsOpts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsOpts.dbPath, "db", "", "SQLite database holding risk events")
	eventsCmd.Flags().StringVar(&eventsOpts.category, "category", "", "Only this category (leverage, correlation, volatility, jump)")
	eventsCmd.Flags().StringVar(&eventsOpts.runID, "run-id", "", "Only events from this run")
	eventsCmd.Flags().IntVar(&eventsOpts.limit, "limit", 100, "Maximum number of events")
	_ = eventsCmd.MarkFlagRequired("db")
}

func listEvents(ctx context.Context, opts eventsOptions, out io.Writer) error {
	filter := risk.EventFilter{RunID: opts.runID, Limit: opts.limit}
	if opts.category != "" {
		c, err := risk.ParseCategory(opts.category)
		if err != nil {
			return err
		}
		filter.Category = c
	}

	if _, err := os.Stat(opts.dbPath); err != nil {
		return fmt.Errorf("risk event database: %w", err)
	}

	db, err := openEventDB(opts.dbPath, database.ProfileStandard)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := risk.NewRepository(db.Conn(), newLogger()).List(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCATEGORY\tMEASURE\tLIMIT\tMULTIPLIER\tRUN")
	for _, e := range list {
		measure := "-"
		if e.PriorValue != nil {
			measure = strconv.FormatFloat(*e.PriorValue, 'f', 4, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%s\n",
			e.Date.Format("2006-01-02"), e.Category, measure, e.Limit, e.Multiplier, e.RunID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d events\n", len(list))
	return nil
}
