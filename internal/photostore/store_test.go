package photostore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRead(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "photos"))
	require.NoError(t, err)

	require.NoError(t, s.Create("a.jpg", []byte("one")))

	ok, err := s.Exists("a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Read("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestCreateNeverOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Create("a.jpg", []byte("first")))
	err = s.Create("a.jpg", []byte("second"))
	require.ErrorIs(t, err, ErrExists)

	data, err := s.Read("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestReadMissing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read("nope.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists("nope.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectsPathTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../etc/passwd", "a/b.jpg", `a\b.jpg`, ".hidden", ".."} {
		_, err := s.Read(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
}
