package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/runner"
)

var (
	trainFlagInput         string
	trainFlagEvents        string
	trainFlagReport        string
	trainFlagContamination float64
	trainFlagTrees         int
	trainFlagSeed          int64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the scaler and isolation forest on a historical log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if cmd.Flags().Changed("contamination") {
			cfg.Model.Contamination = trainFlagContamination
		}
		if cmd.Flags().Changed("trees") {
			cfg.Model.NumTrees = trainFlagTrees
		}
		if cmd.Flags().Changed("seed") {
			cfg.Model.Seed = trainFlagSeed
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		events, err := eventSource{input: trainFlagInput, events: trainFlagEvents}.load(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		res, err := runner.RunTrain(cmd.Context(), events, cfg)
		if err != nil {
			return err
		}

		fmt.Printf("trained on %d buckets (%d columns); %d flagged at contamination %.3f\n",
			len(res.Records), len(res.Schema), len(res.Anomalies()), cfg.Model.Contamination)
		fmt.Printf("scaler: %s\nmodel:  %s\n", cfg.Artifacts.ScalerPath, cfg.Artifacts.ModelPath)

		if trainFlagReport == "" {
			return nil
		}
		out, closeOut, err := createOutput(trainFlagReport)
		if err != nil {
			return err
		}
		if err := runner.WriteAnomalyCSV(out, res.Schema, res.Records, false); err != nil {
			closeOut()
			return err
		}
		return closeOut()
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainFlagInput, "input", "", "raw log file (default from config, else stdin)")
	trainCmd.Flags().StringVar(&trainFlagEvents, "events", "", "NDJSON events from `anomr parse` instead of a raw log")
	trainCmd.Flags().StringVar(&trainFlagReport, "report", "", "write every scored training bucket to this CSV")
	trainCmd.Flags().Float64Var(&trainFlagContamination, "contamination", 0.01, "expected share of anomalous buckets")
	trainCmd.Flags().IntVar(&trainFlagTrees, "trees", 100, "number of isolation trees")
	trainCmd.Flags().Int64Var(&trainFlagSeed, "seed", 42, "random seed")
}
