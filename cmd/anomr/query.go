package main

import (
	"fmt"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/query"
)

var (
	queryFlagInput    string
	queryFlagOutput   string
	queryFlagUser     string
	queryFlagDatabase string
	queryFlagPIDs     []int
	queryFlagTypes    []string
	queryFlagSince    string
	queryFlagUntil    string
	queryFlagLast     string
	queryFlagNoAudit  bool
	queryFlagSummary  bool
	queryFlagLimit    int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Filter parsed NDJSON events by user, session, type or time",
	Long: `Filter NDJSON events written by 'anomr parse'.

Typical use is drilling into an anomalous bucket reported by 'anomr investigate':

  anomr query --input events.ndjson --since 2025-10-04T21:00:00+07:00 \
    --until 2025-10-04T21:05:00+07:00 --type FATAL --type connect_* --summary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := query.Options{
			User:         queryFlagUser,
			Database:     queryFlagDatabase,
			PIDs:         queryFlagPIDs,
			Types:        queryFlagTypes,
			ExcludeAudit: queryFlagNoAudit,
			Summary:      queryFlagSummary && queryFlagOutput == "",
			Limit:        queryFlagLimit,
		}
		var err error
		if queryFlagSince != "" {
			if opts.Since, err = dateparse.ParseAny(queryFlagSince); err != nil {
				return fmt.Errorf("parse --since: %w", err)
			}
		}
		if queryFlagUntil != "" {
			if opts.Until, err = dateparse.ParseAny(queryFlagUntil); err != nil {
				return fmt.Errorf("parse --until: %w", err)
			}
		}
		if queryFlagLast != "" {
			if opts.Last, err = query.ParseDuration(queryFlagLast); err != nil {
				return fmt.Errorf("parse --last: %w", err)
			}
		}

		in, closeIn, err := openInput(queryFlagInput)
		if err != nil {
			return err
		}
		defer closeIn()
		out, closeOut, err := createOutput(queryFlagOutput)
		if err != nil {
			return err
		}

		stats, err := query.Run(in, out, opts, time.Now())
		if err != nil {
			closeOut()
			return err
		}
		// summary goes to stderr, events to stdout
		if queryFlagSummary {
			stats.PrintSummary(os.Stderr)
		}
		return closeOut()
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryFlagInput, "input", "", "NDJSON events (default stdin)")
	queryCmd.Flags().StringVar(&queryFlagOutput, "output", "", "output NDJSON (default stdout)")
	queryCmd.Flags().StringVar(&queryFlagUser, "user", "", "filter by database user")
	queryCmd.Flags().StringVar(&queryFlagDatabase, "database", "", "filter by database name")
	queryCmd.Flags().IntSliceVar(&queryFlagPIDs, "pid", nil, "filter by backend pid (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryFlagTypes, "type", nil, "filter by event type; trailing * matches a prefix (repeatable)")
	queryCmd.Flags().StringVar(&queryFlagSince, "since", "", "include events at or after this time")
	queryCmd.Flags().StringVar(&queryFlagUntil, "until", "", "include events before this time")
	queryCmd.Flags().StringVar(&queryFlagLast, "last", "", "include events from the last duration, e.g. 24h or 7d")
	queryCmd.Flags().BoolVar(&queryFlagNoAudit, "exclude-audit", false, "drop AUDIT_* events")
	queryCmd.Flags().BoolVar(&queryFlagSummary, "summary", false, "print summary counts to stderr (events are not written unless --output is set)")
	queryCmd.Flags().IntVar(&queryFlagLimit, "limit", 0, "stop after this many matches (0 = no limit)")
}
