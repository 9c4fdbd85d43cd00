package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGetRemove(t *testing.T) {
	table := New(2)
	h, err := table.Add(5, 3, 11)
	require.NoError(t, err)
	assert.Equal(t, 0, h)

	f, err := table.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 5, f.GetInode())
	assert.Equal(t, uint64(3), f.GetGeneration())
	assert.Equal(t, 11, f.GetOffset())
	f.SetOffset(12)

	again, err := table.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 12, again.GetOffset())

	require.NoError(t, table.Remove(h))
	assert.ErrorIs(t, table.Remove(h), ErrBadHandle)
	_, err = table.Get(h)
	assert.ErrorIs(t, err, ErrBadHandle)
}

func TestIndependentCursors(t *testing.T) {
	table := New(4)
	a, err := table.Add(1, 1, 0)
	require.NoError(t, err)
	b, err := table.Add(1, 1, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	fa, _ := table.Get(a)
	fb, _ := table.Get(b)
	fa.SetOffset(7)
	assert.Equal(t, 0, fb.GetOffset())
	assert.Equal(t, 2, table.Len())
}

func TestTableFull(t *testing.T) {
	table := New(1)
	_, err := table.Add(1, 1, 0)
	require.NoError(t, err)
	_, err = table.Add(2, 1, 0)
	assert.ErrorIs(t, err, ErrTableFull)

	require.NoError(t, table.Remove(0))
	h, err := table.Add(2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, h)
}

func TestInvalidHandles(t *testing.T) {
	table := New(2)
	assert.False(t, table.Valid(-1))
	assert.False(t, table.Valid(2))
	assert.True(t, table.Valid(1))
	_, err := table.Get(-1)
	assert.ErrorIs(t, err, ErrBadHandle)
	assert.ErrorIs(t, table.Remove(5), ErrBadHandle)
	assert.Equal(t, 2, table.Size())
}

func TestAddAppending(t *testing.T) {
	table := New(2)
	a, err := table.AddAppending(3, 2, 10)
	require.NoError(t, err)
	b, err := table.Add(3, 2, 0)
	require.NoError(t, err)

	fa, _ := table.Get(a)
	fb, _ := table.Get(b)
	assert.True(t, fa.Appending())
	assert.Equal(t, 10, fa.GetOffset())
	assert.False(t, fb.Appending())
}
