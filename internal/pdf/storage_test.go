package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pdfs")
	s, err := NewStorage(dir)
	require.NoError(t, err)

	id := "0b9f4c3e-5d1a-4e2b-8f7c-6a5d4c3b2a19"
	assert.Equal(t, filepath.Join(dir, id+".pdf"), s.Path(id))
	assert.False(t, s.Exists(id))

	path, err := s.Save(id, samplePDFContent)
	require.NoError(t, err)
	assert.Equal(t, s.Path(id), path)
	assert.True(t, s.Exists(id))

	got, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, samplePDFContent, got)

	// Overwrite replaces the file and leaves no temp files behind.
	_, err = s.Save(id, []byte("%PDF-2.0"))
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStorage_EmptyFileIsMissing(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("empty"), nil, 0o644))
	assert.False(t, s.Exists("empty"))
}

func TestStorage_PathStaysInDir(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.dir, "passwd.pdf"), s.Path("../../etc/passwd"))
}

func TestNewStorage_RequiresDir(t *testing.T) {
	_, err := NewStorage("")
	assert.Error(t, err)
}
