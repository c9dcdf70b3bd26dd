package reconstruct

import (
	"testing"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_PrimitiveIsNotNullable(t *testing.T) {
	got := Build(descriptor.Primitive(descriptor.KindString))
	assert.Equal(t, descriptor.KindString, got.Kind)
	assert.False(t, got.Nullable)
}

func TestBuild_OptionalSingleTypeFlattensNullability(t *testing.T) {
	tt := descriptor.Union(descriptor.Primitive(descriptor.KindInteger), descriptor.Primitive(descriptor.KindNull))
	got := Build(tt)
	assert.Equal(t, descriptor.KindInteger, got.Kind)
	assert.True(t, got.Nullable)
}

func TestBuild_MultiOptionUnionPreservesOptions(t *testing.T) {
	tt := descriptor.Union(
		descriptor.Primitive(descriptor.KindString),
		descriptor.Primitive(descriptor.KindInteger),
		descriptor.Primitive(descriptor.KindNull),
	)
	got := Build(tt)
	assert.Equal(t, descriptor.KindUnion, got.Kind)
	assert.True(t, got.Nullable)
	require.Len(t, got.UnionOptions, 2)
}

func TestBuild_EnumPreservesNonStringMembers(t *testing.T) {
	tt := descriptor.Enum("Color", map[string]any{"RED": 1.0, "GREEN": 2.0})
	got := Build(tt)
	assert.Equal(t, "Color", got.EnumName)
	assert.Equal(t, 1.0, got.EnumMembers["RED"])
}

func TestBuild_NestedRecordOfLists(t *testing.T) {
	tt := descriptor.Record("Row", map[string]descriptor.TypeTag{
		"tags": descriptor.List(descriptor.Primitive(descriptor.KindString)),
	})
	got := Build(tt)
	require.Contains(t, got.RecordFields, "tags")
	assert.Equal(t, descriptor.KindList, got.RecordFields["tags"].Kind)
	require.NotNil(t, got.RecordFields["tags"].ListItem)
	assert.Equal(t, descriptor.KindString, got.RecordFields["tags"].ListItem.Kind)
}

func TestBuildSignature_OrdersParamsAndReconstructsReturn(t *testing.T) {
	tool := descriptor.Tool{
		ID: "mock.alpha",
		Params: []descriptor.Param{
			{Name: "a", Kind: descriptor.PositionalOrKeyword, Default: descriptor.NoDefault(), Type: descriptor.Primitive(descriptor.KindString)},
			{Name: "b", Kind: descriptor.KeywordOnly, Default: descriptor.NewDefault(1.0), Type: descriptor.Primitive(descriptor.KindInteger)},
		},
		Return: descriptor.Primitive(descriptor.KindBoolean),
		Shape:  descriptor.Plain,
	}
	sig := BuildSignature(tool)
	require.Len(t, sig.Params, 2)
	assert.Equal(t, "a", sig.Params[0].Name)
	assert.Equal(t, "b", sig.Params[1].Name)
	assert.True(t, sig.Params[1].Default.HasDefault())
	assert.Equal(t, descriptor.KindBoolean, sig.Return.Kind)
}
