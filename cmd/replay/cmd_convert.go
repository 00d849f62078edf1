package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aristath/riskguard/internal/backtest"
)

var (
	convertInput  string
	convertOutput string
)

// convertCmd implements 'replay convert'
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a snapshot file between JSON and msgpack",
	Long: `Re-encode a snapshot file. The formats are inferred from the file extensions.

Example:
  replay convert --input snapshots.json --output snapshots.msgpack`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return convertSnapshots(convertInput, convertOutput, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&convertInput, "input", "", "Source snapshot file")
	convertCmd.Flags().StringVar(&convertOutput, "output", "", "Destination snapshot file")
	_ = convertCmd.MarkFlagRequired("input")
	_ = convertCmd.MarkFlagRequired("output")
}

func convertSnapshots(input, output string, out io.Writer) error {
	snapshots, err := backtest.LoadSnapshots(input)
	if err != nil {
		return err
	}
	if err := backtest.SaveSnapshots(output, snapshots); err != nil {
		return err
	}
	fmt.Fprintf(out, "converted %d snapshots: %s -> %s\n", len(snapshots), input, output)
	return nil
}
