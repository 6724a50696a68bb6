package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/mcpml/internal/config"
)

func testConfig(t *testing.T, tools ...config.Tool) *config.Config {
	t.Helper()
	return &config.Config{
		Name: "test",
		Settings: config.Settings{
			ToolTimeout: 5 * time.Second,
		},
		Tools: tools,
		Dir:   t.TempDir(),
	}
}

func TestNewCompilesFunctions(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name: "shout",
		Type: config.ToolTypeFunction,
		Code: `strings.to_upper(string(ctx.get("args", {}).get("text", "")))`,
	})

	reg, err := New(cfg)
	require.NoError(t, err)

	fn, ok := reg.Function("shout")
	require.True(t, ok)
	require.NotNil(t, fn)
}

func TestNewFailsOnBrokenScript(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name: "broken",
		Type: config.ToolTypeFunction,
		Code: `func nope(`,
	})
	_, err := New(cfg)
	require.Error(t, err)
}

func TestCallFunction(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name: "shout",
		Type: config.ToolTypeFunction,
		Code: `strings.to_upper(string(ctx.get("args", {}).get("text", "")))`,
	})
	reg, err := New(cfg)
	require.NoError(t, err)

	result, err := reg.Call(t.Context(), "shout", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.Equal(t, "HI", result)
}

func TestCallAppliesParameterDefaults(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name: "greet",
		Type: config.ToolTypeFunction,
		Code: `"hello " + string(ctx.get("args", {}).get("name", ""))`,
		Parameters: []config.Parameter{
			{Name: "name", Type: "string", Default: "world"},
		},
	})
	reg, err := New(cfg)
	require.NoError(t, err)

	result, err := reg.Call(t.Context(), "greet", nil)
	require.NoError(t, err)
	require.Equal(t, "hello world", result)

	result, err = reg.Call(t.Context(), "greet", map[string]any{"name": "there"})
	require.NoError(t, err)
	require.Equal(t, "hello there", result)
}

func TestCallUnknownTool(t *testing.T) {
	reg, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = reg.Call(t.Context(), "nope", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unknown tool")
}

func TestCallAgentWithoutRunner(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name:         "helper",
		Type:         config.ToolTypeAgent,
		Instructions: "help",
	})
	reg, err := New(cfg)
	require.NoError(t, err)

	_, err = reg.Call(t.Context(), "helper", map[string]any{"input": "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "credentials")
}

type fakeRunner struct {
	gotInput string
	out      string
}

func (f *fakeRunner) Run(_ context.Context, _ config.Tool, input string) (string, error) {
	f.gotInput = input
	return f.out, nil
}

func TestCallAgentDelegates(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name:         "helper",
		Type:         config.ToolTypeAgent,
		Instructions: "help",
	})
	reg, err := New(cfg)
	require.NoError(t, err)

	runner := &fakeRunner{out: "done"}
	reg.SetAgentRunner(runner)

	result, err := reg.Call(t.Context(), "helper", map[string]any{"input": "do the thing"})
	require.NoError(t, err)
	require.Equal(t, "done", result)
	require.Equal(t, "do the thing", runner.gotInput)
}

func TestInputSchema(t *testing.T) {
	reg, err := New(testConfig(t))
	require.NoError(t, err)

	t.Run("function tool", func(t *testing.T) {
		required := true
		optional := false
		tool := config.Tool{
			Name: "fn",
			Type: config.ToolTypeFunction,
			Parameters: []config.Parameter{
				{Name: "text", Type: "string", Description: "the text", Required: &required},
				{Name: "count", Type: "integer", Required: &optional, Default: 3},
				{Name: "implicit"},
			},
		}
		properties, req := reg.InputSchema(tool)
		require.Len(t, properties, 3)
		require.ElementsMatch(t, []string{"text", "implicit"}, req)

		text := properties["text"].(map[string]any)
		require.Equal(t, "string", text["type"])
		require.Equal(t, "the text", text["description"])

		count := properties["count"].(map[string]any)
		require.Equal(t, "integer", count["type"])
		require.Equal(t, 3, count["default"])

		implicit := properties["implicit"].(map[string]any)
		require.Equal(t, "string", implicit["type"])
	})

	t.Run("agent tool", func(t *testing.T) {
		tool := config.Tool{Name: "ag", Type: config.ToolTypeAgent}
		properties, req := reg.InputSchema(tool)
		require.Len(t, properties, 1)
		require.Contains(t, properties, "input")
		require.Equal(t, []string{"input"}, req)
	})
}

func TestOutputSchemaValidation(t *testing.T) {
	dir := t.TempDir()
	schema := `{
  "type": "object",
  "properties": {
    "sentiment": {"type": "string", "enum": ["positive", "negative", "neutral"]}
  },
  "required": ["sentiment"]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.json"), []byte(schema), 0o600))

	cfg := &config.Config{
		Name: "test",
		Settings: config.Settings{
			ToolTimeout: 5 * time.Second,
		},
		Tools: []config.Tool{
			{
				Name:         "classify",
				Type:         config.ToolTypeAgent,
				Instructions: "classify",
				OutputSchema: "schema.json",
			},
		},
		Dir: dir,
	}
	reg, err := New(cfg)
	require.NoError(t, err)
	require.True(t, reg.HasOutputSchema("classify"))

	t.Run("valid output passes", func(t *testing.T) {
		reg.SetAgentRunner(&fakeRunner{out: `{"sentiment": "positive"}`})
		result, err := reg.Call(t.Context(), "classify", map[string]any{"input": "great"})
		require.NoError(t, err)
		require.Equal(t, `{"sentiment": "positive"}`, result)
	})

	t.Run("invalid output fails", func(t *testing.T) {
		reg.SetAgentRunner(&fakeRunner{out: `{"sentiment": "confused"}`})
		_, err := reg.Call(t.Context(), "classify", map[string]any{"input": "hm"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not match its schema")
	})

	t.Run("non-JSON output fails", func(t *testing.T) {
		reg.SetAgentRunner(&fakeRunner{out: "definitely positive"})
		_, err := reg.Call(t.Context(), "classify", map[string]any{"input": "hm"})
		require.Error(t, err)
	})
}

func TestMissingOutputSchemaFailsStartup(t *testing.T) {
	cfg := testConfig(t, config.Tool{
		Name:         "t",
		Type:         config.ToolTypeAgent,
		Instructions: "hi",
		OutputSchema: "missing.json",
	})
	_, err := New(cfg)
	require.Error(t, err)
}
