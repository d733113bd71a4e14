package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/yhlin07/when2meet-mcp-2025/internal/logging"
	"github.com/yhlin07/when2meet-mcp-2025/internal/runtime"
	"github.com/yhlin07/when2meet-mcp-2025/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if serveAddr != "" {
				a.cfg.Server.Address = serveAddr
			}
			e := server.New(a.cfg.Server, a.agent, logging.Component(a.logger, "http"), a.metrics)
			a.logger.Info().Str("addr", a.cfg.Server.Address).Int("tools", len(a.agent.Tools())).Msg("serving")
			return runtime.Serve(cmd.Context(), a.logger,
				func() error { return e.Start(a.cfg.Server.Address) },
				e.Shutdown,
				10*time.Second,
			)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	return serve
}
