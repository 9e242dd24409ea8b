package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/features"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
)

var (
	featuresFlagInput  string
	featuresFlagEvents string
	featuresFlagOutput string
	featuresFlagWidth  time.Duration
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Aggregate events into per-bucket feature vectors (CSV)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if cmd.Flags().Changed("bucket-width") {
			cfg.Features.BucketWidth = featuresFlagWidth
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		src := eventSource{input: featuresFlagInput, events: featuresFlagEvents}
		events, err := src.load(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		schema := features.SchemaFromEvents(events)
		vectors := features.Aggregator{Width: cfg.Features.BucketWidth, FillGaps: cfg.Features.FillGaps}.Aggregate(events)
		logger.L().Infow("aggregated buckets",
			"events", len(events),
			"buckets", len(vectors),
			"columns", len(schema))

		out, closeOut, err := createOutput(featuresFlagOutput)
		if err != nil {
			return err
		}
		if err := features.WriteCSV(out, schema, vectors); err != nil {
			closeOut()
			return err
		}
		return closeOut()
	},
}

func init() {
	featuresCmd.Flags().StringVar(&featuresFlagInput, "input", "", "raw log file (default from config, else stdin)")
	featuresCmd.Flags().StringVar(&featuresFlagEvents, "events", "", "NDJSON events from `anomr parse` instead of a raw log")
	featuresCmd.Flags().StringVar(&featuresFlagOutput, "output", "", "output CSV (default stdout)")
	featuresCmd.Flags().DurationVar(&featuresFlagWidth, "bucket-width", 5*time.Minute, "bucket width (default from config)")
}
