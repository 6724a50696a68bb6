// Package mcp connects to the upstream MCP servers declared in mcpml.yaml
// and exposes their tools for discovery and execution.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/errs"
)

// Service provides access to upstream MCP server discovery and tool
// execution. Connections are opened per call; the upstream servers own all
// state.
type Service struct {
	servers []config.MCPServer
	timeout time.Duration
}

// New creates a service over the given upstream servers.
func New(servers []config.MCPServer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = config.DefaultMCPTimeout
	}
	return &Service{servers: servers, timeout: timeout}
}

// Servers returns the upstream servers the service talks to.
func (s *Service) Servers() []config.MCPServer {
	return s.servers
}

// FullName builds the namespaced tool name exposed for an upstream tool.
func FullName(server, tool string) string {
	return server + "_" + tool
}

// Tools lists tools from every upstream server concurrently, grouped by
// server name.
func (s *Service) Tools(ctx context.Context) (map[string][]mcp.Tool, error) {
	var mu sync.Mutex
	var wg errgroup.Group
	result := map[string][]mcp.Tool{}
	for _, server := range s.servers {
		wg.Go(func() error {
			serverTools, err := s.toolsFor(ctx, server)
			if errors.Is(err, context.DeadlineExceeded) {
				return errs.Wrap(
					fmt.Errorf("timeout while listing tools for %q - make sure the configuration is correct and the server is reachable", server.Name),
					"Could not list tools",
				)
			}
			if err != nil {
				return errs.Wrap(err, "Could not list tools")
			}
			mu.Lock()
			result[server.Name] = append(result[server.Name], serverTools...)
			mu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	return result, nil
}

// CallTool executes a tool call against the owning upstream server.
// fullName must be of the form: <server>_<tool>.
func (s *Service) CallTool(ctx context.Context, fullName string, args map[string]any) (string, error) {
	sname, tool, ok := strings.Cut(fullName, "_")
	if !ok {
		return "", fmt.Errorf("mcp: invalid tool name: %q", fullName)
	}
	var server config.MCPServer
	found := false
	for _, srv := range s.servers {
		if srv.Name == sname {
			server, found = srv, true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("mcp: invalid server name: %q", sname)
	}

	cli, err := s.connect(ctx, server)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}
	defer cli.Close() //nolint:errcheck

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}

	if result.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}

func (s *Service) connect(ctx context.Context, server config.MCPServer) (*client.Client, error) {
	var cli *client.Client
	var err error

	switch server.Type {
	case "", "stdio":
		if server.Command == "" {
			return nil, fmt.Errorf("server %q has no command", server.Name)
		}
		env := os.Environ()
		for k, v := range server.Env {
			env = append(env, k+"="+v)
		}
		cli, err = client.NewStdioMCPClient(
			server.Command,
			env,
			server.Args...,
		)
	case "sse":
		cli, err = client.NewSSEMCPClient(server.URL)
	case "http":
		cli, err = client.NewStreamableHttpClient(server.URL)
	default:
		return nil, fmt.Errorf("unsupported MCP server type: %q, supported types are: stdio, sse, http", server.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := cli.Start(initCtx); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	if _, err := cli.Initialize(initCtx, mcp.InitializeRequest{}); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return cli, nil
}

func (s *Service) toolsFor(ctx context.Context, server config.MCPServer) ([]mcp.Tool, error) {
	cli, err := s.connect(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", server.Name, err)
	}
	defer cli.Close() //nolint:errcheck

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tools, err := cli.ListTools(listCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", server.Name, err)
	}
	return tools.Tools, nil
}
