// Package server exposes a registry's tools over the MCP protocol, on
// stdio, SSE, or streamable HTTP transports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a5c-ai/mcpml/internal/errs"
	"github.com/a5c-ai/mcpml/internal/registry"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Server serves the tools of a registry over MCP.
type Server struct {
	reg *registry.Registry
	mcp *server.MCPServer
}

// New builds the MCP server and registers every configured tool on it.
func New(reg *registry.Registry, version string) *Server {
	name := reg.Config().Name
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{reg: reg, mcp: mcpServer}
	for _, tool := range reg.Tools() {
		properties, required := reg.InputSchema(tool)
		if properties == nil {
			properties = map[string]any{}
		}
		mcpServer.AddTool(mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		}, s.handle(tool.Name))
	}
	return s
}

func (s *Server) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
		}

		result, err := s.reg.Call(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		switch v := result.(type) {
		case string:
			return mcp.NewToolResultText(v), nil
		case nil:
			return mcp.NewToolResultText(""), nil
		case map[string]any, []any:
			return mcp.NewToolResultStructuredOnly(v), nil
		default:
			b, merr := json.Marshal(v)
			if merr != nil {
				return mcp.NewToolResultText(fmt.Sprint(v)), nil
			}
			return mcp.NewToolResultText(string(b)), nil
		}
	}
}

// Serve runs the server on the given transport until ctx is canceled.
// addr is only used by the HTTP-based transports.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	switch transport {
	case TransportStdio:
		return s.serveStdio(ctx)
	case TransportSSE:
		return s.serveSSE(ctx, addr)
	case TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return errs.Error{Reason: fmt.Sprintf("Unknown transport %q; supported transports are: stdio, sse, http.", transport)}
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	slog.Info("serving MCP over stdio", "server", s.reg.Config().Name)
	err := server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return errs.Wrap(err, "The stdio server stopped unexpectedly.")
	}
	return nil
}

func (s *Server) serveSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcp)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over SSE", "server", s.reg.Config().Name, "addr", addr)
		if err := sseServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errs.Wrapf(err, "Could not serve on %s.", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sseServer.Shutdown(shutdownCtx)
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	streamable := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(func(_ context.Context, _ *http.Request) context.Context {
			return ctx
		}),
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           streamable,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over HTTP", "server", s.reg.Config().Name, "url", "http://"+addr+"/mcp")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errs.Wrapf(err, "Could not serve on %s.", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
