package dir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDir(t *testing.T, slots int) *Dir {
	d, err := New(make([]byte, slots*RecordSize+3))
	require.NoError(t, err)
	return d
}

func TestAddFindClear(t *testing.T) {
	d := newDir(t, 3)
	assert.Equal(t, 3, d.Capacity())

	require.NoError(t, d.Add("f1", 1))
	require.NoError(t, d.Add("f2", 2))
	inum, err := d.Find("f2")
	require.NoError(t, err)
	assert.Equal(t, 2, inum)

	_, err = d.Find("f3")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, d.Add("f1", 9), ErrExists)

	require.NoError(t, d.Clear("f1"))
	assert.ErrorIs(t, d.Clear("f1"), ErrNotFound)

	// cleared slot is reused, the other entry keeps its slot
	require.NoError(t, d.Add("f3", 3))
	entries, err := d.Entries()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "f3", Inumber: 3}, {Name: "f2", Inumber: 2}}, entries)
}

func TestDirectoryFull(t *testing.T) {
	d := newDir(t, 2)
	require.NoError(t, d.Add("a", 1))
	require.NoError(t, d.Add("b", 2))
	assert.ErrorIs(t, d.Add("c", 3), ErrDirectoryFull)
	// a duplicate is reported as such even when full
	assert.ErrorIs(t, d.Add("a", 3), ErrExists)
}

func TestNames(t *testing.T) {
	d := newDir(t, 2)
	assert.ErrorIs(t, d.Add("", 1), ErrInvalidName)
	assert.ErrorIs(t, d.Add(strings.Repeat("x", MaxNameLen+1), 1), ErrNameTooLong)

	long := strings.Repeat("y", MaxNameLen)
	require.NoError(t, d.Add(long, 1))
	inum, err := d.Find(long)
	require.NoError(t, err)
	assert.Equal(t, 1, inum)

	// separators are part of the opaque name
	require.NoError(t, d.Add("a/b", 2))
	inum, err = d.Find("a/b")
	require.NoError(t, err)
	assert.Equal(t, 2, inum)
}

func TestBlockTooSmall(t *testing.T) {
	_, err := New(make([]byte, RecordSize-1))
	assert.Error(t, err)
}

func TestCorruptSlot(t *testing.T) {
	block := make([]byte, 2*RecordSize)
	d, err := New(block)
	require.NoError(t, err)
	require.NoError(t, d.Add("f1", 1))
	block[headerSize] ^= 0xff
	_, err = d.Find("f1")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRecordRoundTrip(t *testing.T) {
	buf := make([]byte, RecordSize)
	require.NoError(t, NewRecord("box", 12).Encode(buf))
	r := &Record{}
	require.NoError(t, r.Decode(buf))
	assert.True(t, r.IsUsed())
	assert.Equal(t, uint64(12), r.Inumber)
	assert.Equal(t, "box", r.Name)

	free := &Record{}
	require.NoError(t, free.Decode(make([]byte, RecordSize)))
	assert.False(t, free.IsUsed())
}

func TestCapacityAtDefaultBlockSize(t *testing.T) {
	d, err := New(make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, 57, RecordSize)
	assert.Equal(t, 17, d.Capacity())
}
