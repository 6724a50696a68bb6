package server

import (
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/registry"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Name: "test",
		Settings: config.Settings{
			ToolTimeout: 5 * time.Second,
		},
		Tools: []config.Tool{
			{
				Name:        "shout",
				Type:        config.ToolTypeFunction,
				Description: "Uppercase text",
				Code:        `strings.to_upper(string(ctx.get("args", {}).get("text", "")))`,
				Parameters: []config.Parameter{
					{Name: "text", Type: "string"},
				},
			},
			{
				Name: "pair",
				Type: config.ToolTypeFunction,
				Code: `{"a": 1}`,
			},
		},
		Dir: t.TempDir(),
	}
	reg, err := registry.New(cfg)
	require.NoError(t, err)
	return New(reg, "test")
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestHandleTextResult(t *testing.T) {
	s := testServer(t)

	result, err := s.handle("shout")(t.Context(), callRequest("shout", map[string]any{"text": "hi"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	require.Equal(t, "HI", text.Text)
}

func TestHandleStructuredResult(t *testing.T) {
	s := testServer(t)

	result, err := s.handle("pair")(t.Context(), callRequest("pair", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, map[string]any{"a": int64(1)}, result.StructuredContent)
}

func TestHandleToolError(t *testing.T) {
	s := testServer(t)

	result, err := s.handle("missing")(t.Context(), callRequest("missing", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestServeUnknownTransport(t *testing.T) {
	s := testServer(t)
	err := s.Serve(t.Context(), "carrier-pigeon", "127.0.0.1:0")
	require.Error(t, err)
}
