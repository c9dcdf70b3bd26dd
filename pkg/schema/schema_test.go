package schema

import (
	"testing"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/reconstruct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetSig() ToolSignature {
	return ToolSignature{
		Name:        "mock.greet",
		Description: "greets someone",
		Params: []ParamSignature{
			{Name: "name", Type: reconstruct.Build(descriptor.Primitive(descriptor.KindString)), Required: true},
			{Name: "excited", Type: reconstruct.Build(descriptor.Union(descriptor.Primitive(descriptor.KindBoolean), descriptor.Primitive(descriptor.KindNull))), Required: false},
		},
	}
}

func TestFormat_OpenAIChatCompletions(t *testing.T) {
	out, err := Format(greetSig(), OpenAIChatCompletions)
	require.NoError(t, err)
	assert.Equal(t, "function", out["type"])
	fn := out["function"].(map[string]any)
	assert.Equal(t, "mock-greet", fn["name"])
	assert.Equal(t, true, fn["strict"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, false, params["additionalProperties"])
}

func TestFormat_AnthropicUsesInputSchema(t *testing.T) {
	out, err := Format(greetSig(), Anthropic)
	require.NoError(t, err)
	assert.Equal(t, "mock-greet", out["name"])
	_, ok := out["input_schema"]
	assert.True(t, ok)
}

func TestFormat_GeminiKeepsDotsAndSeparateNullable(t *testing.T) {
	out, err := Format(greetSig(), GoogleGemini)
	require.NoError(t, err)
	assert.Equal(t, "mock.greet", out["name"])

	params := out["parameters"].(map[string]any)
	props := params["properties"].(map[string]any)
	excited := props["excited"].(map[string]any)
	assert.Equal(t, true, excited["nullable"])
}

func TestFormat_NonGeminiMergesNullIntoTypeArray(t *testing.T) {
	out, err := Format(greetSig(), OpenAIResponses)
	require.NoError(t, err)
	params := out["parameters"].(map[string]any)
	props := params["properties"].(map[string]any)
	excited := props["excited"].(map[string]any)
	assert.Equal(t, []string{"boolean", "null"}, excited["type"])
}

func TestFormat_RestrictedIntegerValuesBecomeStringEnum(t *testing.T) {
	sig := ToolSignature{
		Name: "mock.restricted",
		Params: []ParamSignature{
			{Name: "bar", Type: reconstruct.Build(descriptor.Literal(1.0, 2.0, 3.0)), Required: true},
		},
	}
	out, err := Format(sig, Anthropic)
	require.NoError(t, err)
	schema := out["input_schema"].(map[string]any)
	props := schema["properties"].(map[string]any)
	bar := props["bar"].(map[string]any)
	assert.ElementsMatch(t, []any{"1", "2", "3"}, bar["enum"])
}

func TestFormat_EmptyTupleFailsWithInsufficientTypeInformation(t *testing.T) {
	sig := ToolSignature{
		Name: "mock.badtuple",
		Params: []ParamSignature{
			{Name: "t", Type: reconstruct.Type{Kind: descriptor.KindTuple}, Required: true},
		},
	}
	_, err := Format(sig, Anthropic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient type information")
}

func TestFormatAll_RejectsDuplicateNames(t *testing.T) {
	sigs := []ToolSignature{greetSig(), greetSig()}
	_, err := FormatAll(sigs, Anthropic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestFormat_ListOfStrings(t *testing.T) {
	sig := ToolSignature{
		Name: "mock.tags",
		Params: []ParamSignature{
			{Name: "tags", Type: reconstruct.Build(descriptor.List(descriptor.Primitive(descriptor.KindString))), Required: true},
		},
	}
	out, err := Format(sig, OpenAIChatCompletions)
	require.NoError(t, err)
	fn := out["function"].(map[string]any)
	params := fn["parameters"].(map[string]any)
	props := params["properties"].(map[string]any)
	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])
	items := tags["items"].(map[string]any)
	assert.Equal(t, "string", items["type"])
}
