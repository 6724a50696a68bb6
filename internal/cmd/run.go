package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/a5c-ai/mcpml/internal/server"
)

var runTransport string

func newRunCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, rt)
		},
	}
	cmd.Flags().StringVarP(&runTransport, "transport", "t", server.TransportHTTP,
		"Transport to serve on: stdio, sse, or http")
	return cmd
}

func runServe(cmd *cobra.Command, rt *runtime) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.load(ctx); err != nil {
		return err
	}

	srv := server.New(rt.reg, rt.build.Version)
	addr := fmt.Sprintf("%s:%d", rt.cfg.Settings.Server.Host, rt.cfg.Settings.Server.Port)
	return srv.Serve(ctx, runTransport, addr)
}
