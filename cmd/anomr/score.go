package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/runner"
	"github.com/vaibhaw-/anomr/internal/anomr/store"
)

var (
	scoreFlagInput  string
	scoreFlagEvents string
	scoreFlagOutput string
	scoreFlagAll    bool
	scoreFlagStore  bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a log against trained artifacts and report anomalous buckets (CSV)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		sc, m, err := runner.LoadArtifacts(cfg)
		if err != nil {
			return err
		}
		events, err := eventSource{input: scoreFlagInput, events: scoreFlagEvents}.load(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		var st *store.Store
		if scoreFlagStore {
			st, err = store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()
		}

		records, err := runner.RunScore(cmd.Context(), events, sc, m, st, cfg)
		if err != nil {
			return err
		}

		out, closeOut, err := createOutput(scoreFlagOutput)
		if err != nil {
			return err
		}
		if err := runner.WriteAnomalyCSV(out, sc.Columns, records, !scoreFlagAll); err != nil {
			closeOut()
			return err
		}
		if scoreFlagOutput != "" {
			fmt.Printf("scored %d buckets; report written to %s\n", len(records), scoreFlagOutput)
		}
		return closeOut()
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFlagInput, "input", "", "raw log file (default from config, else stdin)")
	scoreCmd.Flags().StringVar(&scoreFlagEvents, "events", "", "NDJSON events from `anomr parse` instead of a raw log")
	scoreCmd.Flags().StringVar(&scoreFlagOutput, "output", "", "output CSV (default stdout)")
	scoreCmd.Flags().BoolVar(&scoreFlagAll, "all", false, "report every bucket, not only anomalies")
	scoreCmd.Flags().BoolVar(&scoreFlagStore, "store", false, "persist anomalies to the anomaly store")
}
