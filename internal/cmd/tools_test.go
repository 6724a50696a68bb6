package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/mcpml/internal/config"
)

func TestCoerceArg(t *testing.T) {
	tool := config.Tool{
		Name: "t",
		Parameters: []config.Parameter{
			{Name: "count", Type: "integer"},
			{Name: "ratio", Type: "number"},
			{Name: "loud", Type: "boolean"},
			{Name: "tags", Type: "array"},
			{Name: "meta", Type: "object"},
			{Name: "text", Type: "string"},
		},
	}

	require.Equal(t, 3, coerceArg(tool, "count", "3"))
	require.Equal(t, 0.5, coerceArg(tool, "ratio", "0.5"))
	require.Equal(t, true, coerceArg(tool, "loud", "true"))
	require.Equal(t, []any{"a", "b"}, coerceArg(tool, "tags", `["a","b"]`))
	require.Equal(t, map[string]any{"k": "v"}, coerceArg(tool, "meta", `{"k":"v"}`))
	require.Equal(t, "hello", coerceArg(tool, "text", "hello"))

	// Unparseable values fall back to the raw string.
	require.Equal(t, "abc", coerceArg(tool, "count", "abc"))
	// Undeclared keys stay strings.
	require.Equal(t, "5", coerceArg(tool, "unknown", "5"))
}
