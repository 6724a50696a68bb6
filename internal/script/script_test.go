package script

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/mcpml/internal/config"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		Name: "test",
		Settings: config.Settings{
			ToolTimeout: 5 * time.Second,
		},
		Dir: dir,
	}
}

func TestCompileAndCallInlineRisor(t *testing.T) {
	tool := config.Tool{
		Name: "shout",
		Type: config.ToolTypeFunction,
		Code: `strings.to_upper(string(ctx.get("args", {}).get("text", "")))`,
	}

	fn, err := Compile(testConfig(t.TempDir()), tool)
	require.NoError(t, err)
	require.Equal(t, EngineRisor, fn.Engine())

	result, err := fn.Call(t.Context(), map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.Equal(t, "HELLO", result)
}

func TestCompileAndCallRisorFile(t *testing.T) {
	dir := t.TempDir()
	script := `
args := ctx.get("args", {})
{"sum": int(args.get("a", 0)) + int(args.get("b", 0))}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sum.risor"), []byte(script), 0o600))

	tool := config.Tool{
		Name:           "sum",
		Type:           config.ToolTypeFunction,
		Implementation: "sum.risor",
	}
	fn, err := Compile(testConfig(dir), tool)
	require.NoError(t, err)

	result, err := fn.Call(t.Context(), map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 5, m["sum"])
}

func TestCompileAndCallStarlarkFile(t *testing.T) {
	dir := t.TempDir()
	script := `
args = ctx.get("args", {})
_ = args.get("name", "world").upper()
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "up.star"), []byte(script), 0o600))

	tool := config.Tool{
		Name:           "up",
		Type:           config.ToolTypeFunction,
		Implementation: "up.star",
	}
	fn, err := Compile(testConfig(dir), tool)
	require.NoError(t, err)
	require.Equal(t, EngineStarlark, fn.Engine())

	result, err := fn.Call(t.Context(), map[string]any{"name": "mcpml"})
	require.NoError(t, err)
	require.Equal(t, "MCPML", result)
}

func TestCompileBrokenScriptFails(t *testing.T) {
	tool := config.Tool{
		Name: "broken",
		Type: config.ToolTypeFunction,
		Code: `func incomplete(`,
	}
	_, err := Compile(testConfig(t.TempDir()), tool)
	require.Error(t, err)
}

func TestCompileMissingFileFails(t *testing.T) {
	tool := config.Tool{
		Name:           "missing",
		Type:           config.ToolTypeFunction,
		Implementation: "nope.risor",
	}
	_, err := Compile(testConfig(t.TempDir()), tool)
	require.Error(t, err)
}

func TestPickEngine(t *testing.T) {
	tests := []struct {
		name    string
		tool    config.Tool
		want    string
		wantErr bool
	}{
		{"explicit risor", config.Tool{Engine: "risor", Implementation: "x.star"}, EngineRisor, false},
		{"explicit starlark", config.Tool{Engine: "starlark"}, EngineStarlark, false},
		{"risor extension", config.Tool{Implementation: "tool.risor"}, EngineRisor, false},
		{"starlark extension", config.Tool{Implementation: "tool.star"}, EngineStarlark, false},
		{"inline defaults to risor", config.Tool{Code: "1"}, EngineRisor, false},
		{"unknown engine", config.Tool{Engine: "lua"}, "", true},
		{"unknown extension", config.Tool{Implementation: "tool.py"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickEngine(tt.tool)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCallTimeout(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Settings.ToolTimeout = 50 * time.Millisecond

	tool := config.Tool{
		Name: "spin",
		Type: config.ToolTypeFunction,
		Code: `
x := 0
for {
    x++
}
x
`,
	}
	fn, err := Compile(cfg, tool)
	require.NoError(t, err)

	_, err = fn.Call(t.Context(), nil)
	require.Error(t, err)
}
