package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vaibhaw-/anomr/internal/anomr/api"
	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/parsers"
	"github.com/vaibhaw-/anomr/internal/anomr/realtime"
	"github.com/vaibhaw-/anomr/internal/anomr/runner"
	"github.com/vaibhaw-/anomr/internal/anomr/store"
)

var (
	detectFlagLog       string
	detectFlagInterval  time.Duration
	detectFlagFromStart bool
	detectFlagNoStore   bool
	detectFlagServe     bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Tail a live PostgreSQL log and flag anomalous poll windows",
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectFlagLog, "log", "", "log file to watch (default from config realtime.log_path)")
	detectCmd.Flags().DurationVar(&detectFlagInterval, "interval", 5*time.Second, "poll interval (default from config)")
	detectCmd.Flags().BoolVar(&detectFlagFromStart, "from-start", false, "score lines already in the log on first start")
	detectCmd.Flags().BoolVar(&detectFlagNoStore, "no-store", false, "do not persist anomalies to the anomaly store")
	detectCmd.Flags().BoolVar(&detectFlagServe, "serve", false, "also serve the HTTP API while detecting")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if detectFlagLog != "" {
		cfg.Realtime.LogPath = detectFlagLog
	}
	if cmd.Flags().Changed("interval") {
		cfg.Realtime.PollInterval = detectFlagInterval
	}
	if cmd.Flags().Changed("from-start") {
		cfg.Realtime.FromStart = detectFlagFromStart
	}
	if cfg.Realtime.LogPath == "" {
		return fmt.Errorf("no log to watch: set --log or realtime.log_path")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc, m, err := runner.LoadArtifacts(cfg)
	if err != nil {
		return err
	}
	p, err := parsers.NewFactory().NewParser(cfg.Input.DBType)
	if err != nil {
		return fmt.Errorf("create parser: %w", err)
	}

	cur, err := realtime.LoadCursor(cfg.Realtime.CursorFile, cfg.Realtime.LogPath)
	if err != nil {
		return err
	}
	if !cfg.Realtime.FromStart {
		if err := cur.SkipToEnd(); err != nil {
			return err
		}
	}

	reporters := realtime.MultiReporter{realtime.LogReporter{}}
	var st *store.Store
	if !detectFlagNoStore {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		reporters = append(reporters, realtime.StoreReporter{Store: st})
	}

	det, err := realtime.New(realtime.Options{
		PollInterval: cfg.Realtime.PollInterval,
		Bands:        runner.Bands(cfg),
	}, p, sc, m, cur, reporters)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return det.Run(gctx) })
	if detectFlagServe && st != nil {
		srv := api.NewServer(api.Deps{Store: st, AuthToken: cfg.Server.AuthToken}, api.Config{Addr: cfg.Server.Addr})
		g.Go(func() error { return srv.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.L().Infow("detector exited", "offset", cur.Offset)
	return nil
}
