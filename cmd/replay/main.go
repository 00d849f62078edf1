// Package main is the riskguard replay CLI. It runs historical rebalancing
// snapshots through the risk aggregator and inspects stored breach events.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/riskguard/pkg/logger"
)

var (
	logLevel  string
	logPretty bool
)

// rootCmd is the base command for the replay CLI
var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay rebalancing snapshots through the risk aggregator",
	Long: `replay evaluates a series of historical rebalancing snapshots against the
leverage, correlation, volatility and jump-risk ceilings and reports how often
each ceiling forced positions down.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", true, "Human-readable log output")
}

func newLogger() zerolog.Logger {
	return logger.New(logger.Config{
		Level:  logLevel,
		Pretty: logPretty,
		Output: os.Stderr,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
