package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/runner"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Convert a raw PostgreSQL log to NDJSON (or CSV) events",
	RunE:  runParse,
}

var (
	flagDB         string
	flagInput      string
	flagOutput     string
	flagRejectFile string
	flagFormat     string
)

func init() {
	parseCmd.Flags().StringVar(&flagDB, "db", "", "db type (default from config: postgres)")
	parseCmd.Flags().StringVar(&flagInput, "input", "", "input log file (default stdin)")
	parseCmd.Flags().StringVar(&flagOutput, "output", "", "output file (default stdout)")
	parseCmd.Flags().StringVar(&flagRejectFile, "reject-file", "", "file to store lines that did not parse")
	parseCmd.Flags().StringVar(&flagFormat, "format", "ndjson", "output format: ndjson or csv")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	// Override config with command line flags
	if flagDB != "" {
		cfg.Input.DBType = flagDB
	}
	if flagInput != "" {
		cfg.Input.FilePath = flagInput
	}
	if flagRejectFile != "" {
		cfg.Output.RejectFile = flagRejectFile
	}

	if flagFormat != "ndjson" && flagFormat != "csv" {
		return fmt.Errorf("unsupported format %q (want ndjson or csv)", flagFormat)
	}

	in, closeIn, err := openInput(cfg.Input.FilePath)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := createOutput(flagOutput)
	if err != nil {
		return err
	}

	p, err := parsers.NewFactory().NewParser(cfg.Input.DBType)
	if err != nil {
		return fmt.Errorf("create parser: %w", err)
	}

	if flagFormat == "csv" {
		events, _, err := runner.ParseEvents(cmd.Context(), p, in, cfg)
		if err == nil {
			err = parsers.WriteEventsCSV(out, events)
		}
		if err != nil {
			closeOut()
			return err
		}
		return closeOut()
	}

	if _, err := runner.RunParse(cmd.Context(), p, in, out, cfg); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}
