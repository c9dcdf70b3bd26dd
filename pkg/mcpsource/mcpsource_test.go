package mcpsource

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresCommandOrURL(t *testing.T) {
	_, err := New(Config{Name: "broken"})
	require.Error(t, err)
}

func TestNew_AcceptsCommand(t *testing.T) {
	s, err := New(Config{Name: "local", Command: "mcp-server"})
	require.NoError(t, err)
	assert.Equal(t, "local", s.Name())
}

func TestDescriptorFromJSONSchema_Primitives(t *testing.T) {
	assert.Equal(t, descriptor.Primitive(descriptor.KindString), descriptorFromJSONSchema(map[string]any{"type": "string"}))
	assert.Equal(t, descriptor.Primitive(descriptor.KindInteger), descriptorFromJSONSchema(map[string]any{"type": "integer"}))
}

func TestDescriptorFromJSONSchema_Enum(t *testing.T) {
	tt := descriptorFromJSONSchema(map[string]any{"enum": []any{"a", "b"}})
	assert.Equal(t, descriptor.KindLiteral, tt.Kind)
	assert.Equal(t, []any{"a", "b"}, tt.LiteralValues)
}

func TestDescriptorFromJSONSchema_Array(t *testing.T) {
	tt := descriptorFromJSONSchema(map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	})
	require.Equal(t, descriptor.KindList, tt.Kind)
	assert.Equal(t, descriptor.KindString, tt.ListItem.Kind)
}

func TestDescriptorTool_RequiredVsOptionalFields(t *testing.T) {
	info := ToolInfo{
		Name:        "search",
		Description: "search the web",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []any{"query"},
		},
	}

	d := DescriptorTool("web", info)
	assert.Equal(t, "web.search", d.ID)
	assert.Equal(t, descriptor.Plain, d.Shape)

	byName := map[string]descriptor.Param{}
	for _, p := range d.Params {
		byName[p.Name] = p
	}

	require.Contains(t, byName, "query")
	assert.False(t, byName["query"].Default.HasDefault())

	require.Contains(t, byName, "limit")
	assert.True(t, byName["limit"].Default.HasDefault())
	assert.True(t, byName["limit"].Type.IsNullable())
}

func TestParseResult_SingleJSONTextContent(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: `{"ok":true}`}},
	}
	v, err := parseResult(resp)
	require.NoError(t, err)
	asMap, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, asMap["ok"])
}

func TestParseResult_PlainTextFallsBackToString(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hello"}},
	}
	v, err := parseResult(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestParseResult_ErrorFlagReturnsError(t *testing.T) {
	resp := &mcp.CallToolResult{IsError: true}
	_, err := parseResult(resp)
	require.Error(t, err)
}
