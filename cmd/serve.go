package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/api"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/service"
)

// newServeCmd creates the `serve` command, which runs the HTTP API until interrupted.
func newServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerCfg.Addr = addr
			}
			logger := observability.GetLogger()

			components, err := service.NewComponentFactory().Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			srv, err := api.New(components, api.WithSandboxOptions(executionOptions...))
			if err != nil {
				return fmt.Errorf("failed to create API server: %w", err)
			}

			logger.Info("Starting API server",
				zap.String("addr", cfg.ServerCfg.Addr),
				zap.Bool("persistence", components.Store != nil))
			return srv.Run(ctx)
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serveCmd
}
