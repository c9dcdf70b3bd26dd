package index

import (
	"context"
	"iter"
	"testing"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetTool(id string) InlineTool {
	return InlineTool{
		ID:  id,
		Doc: "greet someone",
		Params: []descriptor.Param{
			{Name: "name", Kind: descriptor.PositionalOrKeyword, Default: descriptor.NoDefault(), Type: descriptor.Primitive(descriptor.KindString)},
			{Name: "excited", Kind: descriptor.PositionalOrKeyword, Default: descriptor.NewDefault(false), Type: descriptor.Primitive(descriptor.KindBoolean)},
		},
		Return: descriptor.Primitive(descriptor.KindString),
		Shape:  descriptor.Plain,
		Call: func(ctx context.Context, kwargs map[string]any) (any, error) {
			name, _ := kwargs["name"].(string)
			greeting := "Hello, " + name
			if excited, _ := kwargs["excited"].(bool); excited {
				greeting += "!"
			}
			return greeting, nil
		},
	}
}

func TestNew_InlineToolDefaultsAreReinjected(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("mock.greet")}, Options{})
	require.NoError(t, err)

	result, err := idx.Execute(context.Background(), "mock.greet", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", result.Content)
}

func TestNew_DuplicateToolNameAbortsConstruction(t *testing.T) {
	_, err := New(context.Background(), []any{greetTool("mock.greet"), greetTool("mock.greet")}, Options{})
	require.Error(t, err)
}

func TestResolve_ExactNameWins(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("mock.greet")}, Options{})
	require.NoError(t, err)

	result, err := idx.Execute(context.Background(), "mock.greet", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", result.Content)
}

func TestResolve_UniqueShortSuffixMatches(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("alpha.greet")}, Options{})
	require.NoError(t, err)

	result, err := idx.Execute(context.Background(), "greet", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", result.Content)
}

func TestResolve_AmbiguousShortNameFails(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("alpha.greet"), greetTool("beta.greet")}, Options{})
	require.NoError(t, err)

	_, err = idx.Execute(context.Background(), "greet", nil)
	require.Error(t, err)

	var nameErr *NameError
	require.ErrorAs(t, err, &nameErr)
	assert.ElementsMatch(t, []string{"alpha.greet", "beta.greet"}, nameErr.Matches)
}

func TestResolve_UnknownNameFails(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("alpha.greet")}, Options{})
	require.NoError(t, err)

	_, err = idx.Execute(context.Background(), "nonexistent", nil)
	require.Error(t, err)
}

func TestDescribe_EmitsRequestedDialect(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("mock.greet")}, Options{})
	require.NoError(t, err)

	out, err := idx.Describe("mock.greet", schema.Anthropic)
	require.NoError(t, err)
	assert.Equal(t, "mock-greet", out["name"])
	assert.Contains(t, out, "input_schema")
}

func TestStreamExecute_AsyncGenYieldsEachValue(t *testing.T) {
	streamTool := InlineTool{
		ID:     "mock.countup",
		Doc:    "counts up",
		Shape:  descriptor.AsyncGen,
		Return: descriptor.Primitive(descriptor.KindInteger),
		Stream: func(ctx context.Context, kwargs map[string]any) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				for i := 1; i <= 3; i++ {
					if !yield(i, nil) {
						return
					}
				}
			}
		},
	}

	idx, err := New(context.Background(), []any{streamTool}, Options{})
	require.NoError(t, err)

	var got []any
	for res, err := range idx.StreamExecute(context.Background(), "mock.countup", nil) {
		require.NoError(t, err)
		got = append(got, res.Content)
	}
	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestExecute_GeneratorOnlyInlineToolResolvesToLastValue(t *testing.T) {
	streamTool := InlineTool{
		ID:     "mock.countup",
		Doc:    "counts up",
		Shape:  descriptor.AsyncGen,
		Return: descriptor.Primitive(descriptor.KindInteger),
		Stream: func(ctx context.Context, kwargs map[string]any) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				for i := 1; i <= 3; i++ {
					if !yield(i, nil) {
						return
					}
				}
			}
		},
	}

	idx, err := New(context.Background(), []any{streamTool}, Options{})
	require.NoError(t, err)

	result, err := idx.Execute(context.Background(), "mock.countup", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Content)
}

func TestNew_NonInlineTypeEntryFailsConstruction(t *testing.T) {
	_, err := New(context.Background(), []any{42}, Options{})
	require.Error(t, err)
}

func TestParseAndExecute_RecoversCallFromProse(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("mock.greet")}, Options{})
	require.NoError(t, err)

	text := "I'll greet them now:\n```json\n{\"toolname\": \"greet\", \"kwargs\": {\"name\": \"Ada\"}}\n```"
	result, err := idx.ParseAndExecute(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", result.Content)
}

func TestParseAndExecute_UnparsableProseFails(t *testing.T) {
	idx, err := New(context.Background(), []any{greetTool("mock.greet")}, Options{})
	require.NoError(t, err)

	_, err = idx.ParseAndExecute(context.Background(), "no structure here at all")
	require.Error(t, err)
}
