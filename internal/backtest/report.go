package backtest

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskguard/internal/modules/risk"
)

// DateResult is the outcome for one rebalancing date
type DateResult struct {
	Date        time.Time          `json:"date"`
	Instruments []string           `json:"instruments,omitempty"`
	Positions   []float64          `json:"positions"`
	Multiplier  float64            `json:"multiplier"`
	Binding     risk.Category      `json:"binding,omitempty"`
	Checks      []risk.CheckResult `json:"checks"`
	Breaches    int                `json:"breaches"`
}

// Report summarises a replay run
type Report struct {
	RunID    string       `json:"run_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Limits   risk.Limits  `json:"limits"`
	Dates    []DateResult `json:"dates"`

	ScaledDates    int                   `json:"scaled_dates"`
	MinMultiplier  float64               `json:"min_multiplier"`
	MeanMultiplier float64               `json:"mean_multiplier"`
	BreachCounts   map[risk.Category]int `json:"breach_counts"`
	BindingCounts  map[risk.Category]int `json:"binding_counts"`
}

func newReport(runID string, limits risk.Limits, started, finished time.Time, dates []DateResult) *Report {
	report := &Report{
		RunID:          runID,
		Started:        started,
		Finished:       finished,
		Limits:         limits,
		Dates:          dates,
		MinMultiplier:  1,
		MeanMultiplier: 1,
		BreachCounts:   make(map[risk.Category]int),
		BindingCounts:  make(map[risk.Category]int),
	}
	if len(dates) == 0 {
		return report
	}

	multipliers := make([]float64, len(dates))
	for i, d := range dates {
		multipliers[i] = d.Multiplier
		if d.Binding != "" {
			report.ScaledDates++
			report.BindingCounts[d.Binding]++
		}
		for _, c := range d.Checks {
			if c.Breached() {
				report.BreachCounts[c.Category]++
			}
		}
	}
	report.MinMultiplier = floats.Min(multipliers)
	report.MeanMultiplier = stat.Mean(multipliers, nil)
	return report
}

// WriteSummary prints a human-readable summary followed by one line per scaled date.
func (r *Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Dates\t%d\n", len(r.Dates))
	fmt.Fprintf(tw, "Scaled dates\t%d\n", r.ScaledDates)
	fmt.Fprintf(tw, "Min multiplier\t%.4f\n", r.MinMultiplier)
	fmt.Fprintf(tw, "Mean multiplier\t%.4f\n", r.MeanMultiplier)
	for _, c := range risk.Categories() {
		fmt.Fprintf(tw, "%s breaches\t%d (binding %d)\n", c, r.BreachCounts[c], r.BindingCounts[c])
	}

	if r.ScaledDates > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "DATE\tMULTIPLIER\tBINDING\tBREACHES")
		for _, d := range r.Dates {
			if d.Binding == "" {
				continue
			}
			fmt.Fprintf(tw, "%s\t%.4f\t%s\t%d\n", d.Date.Format("2006-01-02"), d.Multiplier, d.Binding, d.Breaches)
		}
	}
	return tw.Flush()
}
