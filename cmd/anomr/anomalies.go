package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/model"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/store"
)

var (
	anomaliesFlagLimit int
	anomaliesFlagJSON  bool
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List anomalies from the anomaly store, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.List(anomaliesFlagLimit)
		if err != nil {
			return err
		}
		if anomaliesFlagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		fmt.Println(anomalyTable(records))
		return nil
	},
}

var severityColors = map[model.Severity]lipgloss.Color{
	model.SeverityCritical: lipgloss.Color("9"),
	model.SeverityHigh:     lipgloss.Color("208"),
	model.SeverityMedium:   lipgloss.Color("11"),
	model.SeverityLow:      lipgloss.Color("14"),
}

const severityCol = 2

func anomalyTable(records []model.Record) *table.Table {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("BUCKET", "SCORE", "SEVERITY", "SOURCE", "ID").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 || row >= len(records) {
				return cell.Bold(true)
			}
			if c, ok := severityColors[records[row].Severity]; ok && col == severityCol {
				return cell.Foreground(c)
			}
			return cell
		})
	for _, r := range records {
		t.Row(r.BucketStart.Format(parsers.TimestampLayout), fmt.Sprintf("%.4f", r.Score), string(r.Severity), r.Source, r.ID)
	}
	return t
}

func init() {
	anomaliesCmd.Flags().IntVar(&anomaliesFlagLimit, "limit", 20, "maximum anomalies to list (0 = all)")
	anomaliesCmd.Flags().BoolVar(&anomaliesFlagJSON, "json", false, "print JSON instead of a table")
}
