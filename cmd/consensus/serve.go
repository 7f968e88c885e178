package main

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-consensus/infrastructure/httpapi"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Serve the HTTP API",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{jsonLogsAnnotation: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.config.Server.Addr = addr
			}

			if c.config.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx := cmd.Context()
			rt, err := c.newRuntime(ctx, c.config, c.logger, true)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					c.logger.Warn("shutdown incomplete", "error", err)
				}
			}()

			server := httpapi.NewServer(rt.submissions, rt.catalog,
				httpapi.WithGatherer(rt.gatherer),
				httpapi.WithLogger(c.logger),
			)
			if err := server.ListenAndServe(ctx, c.config.Server.Addr); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overriding server.addr")
	return cmd
}
