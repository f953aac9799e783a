package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/esports-agent/internal/server"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		Long: `Serve the agent over HTTP.

Endpoints:
  POST /query           {"question": "...", "session_id": "..."}
  POST /execute_query   {"sql_query": "..."}  (only with ENABLE_RAW_QUERY=true)
  GET  /health
  GET  /metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if port == "" {
				port = a.cfg.Port
			}
			srv := server.New(server.Options{
				Addr:           ":" + port,
				Engine:         a.engine,
				Executor:       a.store,
				DB:             a.store,
				Metrics:        a.metrics,
				Gatherer:       a.registry,
				Logger:         a.log,
				EnableRawQuery: a.cfg.EnableRawQuery,
			})
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default $PORT or 5001)")
	return cmd
}
