package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.png", true},
		{"B.JPG", true},
		{"c.jpeg", true},
		{"d.webp", true},
		{"e.bmp", true},
		{"f.gif", true},
		{"notes.txt", false},
		{"noext", false},
		{".png.bak", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsImageFile(tt.name), tt.name)
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.JPG"), filepath.Join(dir, "b.png")}, files)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "photo.png"), OutputPath(filepath.Join("in", "photo.jpeg"), "out"))
	assert.Equal(t, filepath.Join("in", "output"), DefaultOutputDir("in"))
}

func TestCheckWritableDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, CheckWritableDir(filepath.Join(dir, "not", "yet", "there")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, CheckWritableDir(filepath.Join(file, "sub")))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}
