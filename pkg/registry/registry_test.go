package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRegistry_RegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestBaseRegistry_DuplicateNameFails(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("x", "one"))
	err := r.Register("x", "two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestBaseRegistry_PreservesInsertionOrder(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("c", "C"))
	require.NoError(t, r.Register("a", "A"))
	require.NoError(t, r.Register("b", "B"))

	assert.Equal(t, []string{"c", "a", "b"}, r.Names())
	assert.Equal(t, []string{"C", "A", "B"}, r.List())
}

func TestBaseRegistry_RemoveKeepsOrderOfRemainder(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))
	require.NoError(t, r.Register("c", 3))

	require.NoError(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, r.Names())
	assert.Equal(t, 2, r.Count())

	err := r.Remove("b")
	require.Error(t, err)
}
