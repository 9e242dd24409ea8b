package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/simulate"
)

var (
	simulateFlagOutput      string
	simulateFlagWindows     int
	simulateFlagSessions    int
	simulateFlagSeed        uint64
	simulateFlagStart       string
	simulateFlagStress      []int
	simulateFlagFollow      bool
	simulateFlagInterval    time.Duration
	simulateFlagStressEvery int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a synthetic PostgreSQL log with optional stress bursts",
	Long: `Generate synthetic PostgreSQL server log lines.

Batch mode writes --windows consecutive bucket-width windows. Windows listed
in --stress get 10x the sessions plus a flood of failed logins.

With --follow, one window is appended to --output every --interval until
interrupted, which is handy for exercising 'anomr detect'.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFlagOutput, "output", "", "output log file (default stdout; required with --follow)")
	simulateCmd.Flags().IntVar(&simulateFlagWindows, "windows", 288, "number of windows to generate")
	simulateCmd.Flags().IntVar(&simulateFlagSessions, "sessions", 20, "sessions per normal window")
	simulateCmd.Flags().Uint64Var(&simulateFlagSeed, "seed", 1, "random seed")
	simulateCmd.Flags().StringVar(&simulateFlagStart, "start", "", "timestamp of the first window (default now, floored to the bucket width)")
	simulateCmd.Flags().IntSliceVar(&simulateFlagStress, "stress", nil, "zero-based window indexes to turn into stress bursts")
	simulateCmd.Flags().BoolVar(&simulateFlagFollow, "follow", false, "keep appending windows to --output")
	simulateCmd.Flags().DurationVar(&simulateFlagInterval, "interval", 5*time.Second, "delay between appended windows with --follow")
	simulateCmd.Flags().IntVar(&simulateFlagStressEvery, "stress-every", 0, "with --follow, make every Nth window a stress burst (0 = never)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	width := cfg.Features.BucketWidth

	start := time.Now().Truncate(width)
	if simulateFlagStart != "" {
		t, err := dateparse.ParseAny(simulateFlagStart)
		if err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
		start = t
	}
	gen := simulate.New(simulateFlagSeed, simulateFlagSessions, start.Location())

	if simulateFlagFollow {
		if simulateFlagOutput == "" {
			return fmt.Errorf("--follow needs --output")
		}
		return followSimulation(cmd, gen, start, width)
	}

	stress := make(map[int]bool, len(simulateFlagStress))
	for _, i := range simulateFlagStress {
		stress[i] = true
	}
	out, closeOut, err := createOutput(simulateFlagOutput)
	if err != nil {
		return err
	}
	lines := gen.Series(start, width, simulateFlagWindows, stress)
	if err := writeLines(out, lines); err != nil {
		closeOut()
		return err
	}
	logger.L().Infow("simulated log written",
		"output", simulateFlagOutput,
		"windows", simulateFlagWindows,
		"stress_windows", simulateFlagStress,
		"lines", len(lines))
	return closeOut()
}

func followSimulation(cmd *cobra.Command, gen *simulate.Generator, start time.Time, width time.Duration) error {
	f, err := os.OpenFile(simulateFlagOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	ticker := time.NewTicker(simulateFlagInterval)
	defer ticker.Stop()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for i := 0; ; i++ {
		scenario := simulate.ScenarioNormal
		if simulateFlagStressEvery > 0 && (i+1)%simulateFlagStressEvery == 0 {
			scenario = simulate.ScenarioStress
		}
		lines := gen.Window(start.Add(time.Duration(i)*width), width, scenario)
		if err := writeLines(f, lines); err != nil {
			return err
		}
		logger.L().Infow("appended window", "index", i, "scenario", scenario, "lines", len(lines))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	if len(lines) > 0 {
		if _, err := bw.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
