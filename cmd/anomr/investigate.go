package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/investigate"
	"github.com/vaibhaw-/anomr/internal/anomr/runner"
)

var (
	investigateFlagInput  string
	investigateFlagEvents string
	investigateFlagOutput string
	investigateFlagTop    int
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "List the critical events behind each anomalous bucket (CSV)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if cmd.Flags().Changed("top") {
			cfg.Investigate.TopSessions = investigateFlagTop
		}
		sc, m, err := runner.LoadArtifacts(cfg)
		if err != nil {
			return err
		}
		events, err := eventSource{input: investigateFlagInput, events: investigateFlagEvents}.load(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		records, err := runner.RunScore(cmd.Context(), events, sc, m, nil, cfg)
		if err != nil {
			return err
		}

		findings, top := runner.RunInvestigate(records, events, cfg)
		out, closeOut, err := createOutput(investigateFlagOutput)
		if err != nil {
			return err
		}
		if err := investigate.WriteCSV(out, findings); err != nil {
			closeOut()
			return err
		}
		if err := closeOut(); err != nil {
			return err
		}

		if investigateFlagOutput != "" {
			fmt.Printf("%d findings written to %s\n", len(findings), investigateFlagOutput)
			for _, s := range top {
				fmt.Printf("  pid=%d user=%s events=%d\n", s.PID, s.User, s.Count)
			}
		}
		return nil
	},
}

func init() {
	investigateCmd.Flags().StringVar(&investigateFlagInput, "input", "", "raw log file (default from config, else stdin)")
	investigateCmd.Flags().StringVar(&investigateFlagEvents, "events", "", "NDJSON events from `anomr parse` instead of a raw log")
	investigateCmd.Flags().StringVar(&investigateFlagOutput, "output", "", "output CSV (default stdout)")
	investigateCmd.Flags().IntVar(&investigateFlagTop, "top", 5, "number of most frequent sessions to summarize")
}
