package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/anomr/internal/anomr/api"
	"github.com/vaibhaw-/anomr/internal/anomr/config"
	"github.com/vaibhaw-/anomr/internal/anomr/store"
)

var serveFlagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored anomalies and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if serveFlagAddr != "" {
			cfg.Server.Addr = serveFlagAddr
		}
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv := api.NewServer(api.Deps{Store: st, AuthToken: cfg.Server.AuthToken}, api.Config{Addr: cfg.Server.Addr})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlagAddr, "addr", "", "listen address (default from config server.addr)")
}
