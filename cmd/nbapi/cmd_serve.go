package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/nbapi/internal/infrastructure/server"
)

func (c *cli) serveCmd() *cobra.Command {
	var host, port, registryDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				c.cfg.Server.Host = host
			}
			if port != "" {
				c.cfg.Server.Port = port
			}
			if registryDir != "" {
				c.cfg.Registry.Dir = registryDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.NewServer(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides HOST)")
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	cmd.Flags().StringVar(&registryDir, "registry", "", "service registry directory (overrides REGISTRY_DIR)")
	return cmd
}
