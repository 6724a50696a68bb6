package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringify(t *testing.T) {
	require.Equal(t, "plain", stringify("plain"))
	require.Equal(t, "", stringify(nil))
	require.Equal(t, `{"a":1}`, stringify(map[string]any{"a": 1}))
	require.Equal(t, "[1,2]", stringify([]int{1, 2}))
}

func TestFunctionDef(t *testing.T) {
	def := functionDef("word_stats", "Counts words", map[string]any{
		"text": map[string]any{"type": "string"},
	}, []string{"text"})

	require.NotNil(t, def.OfFunction)
	fn := def.OfFunction.Function
	require.Equal(t, "word_stats", fn.Name)
	require.Equal(t, "object", fn.Parameters["type"])
	require.Equal(t, []string{"text"}, fn.Parameters["required"])
}

func TestFunctionDefNoRequired(t *testing.T) {
	def := functionDef("ping", "", map[string]any{}, nil)
	require.NotNil(t, def.OfFunction)
	require.NotContains(t, def.OfFunction.Function.Parameters, "required")
}
