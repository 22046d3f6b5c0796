package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the collection, indexing, search and context routes over HTTP.
Prometheus metrics are exposed at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr != "" {
				c.cfg.Server.Addr = addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			app, err := c.app(ctx, reg)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.EnsureCollection(ctx); err != nil {
				return err
			}

			srv, err := app.NewServer(reg)
			if err != nil {
				return err
			}

			err = srv.ListenAndServe(ctx, c.cfg.Server.Addr, c.cfg.Server.ShutdownTimeout)
			c.log.Info("server stopped", zap.Error(err))
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
