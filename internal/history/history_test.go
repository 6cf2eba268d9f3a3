package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), FileName))
	assert.Empty(t, h.Load())
}

func TestLoadCorruptFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(file, []byte("{not a list"), 0o644))
	assert.Empty(t, New(file).Load())

	require.NoError(t, os.WriteFile(file, []byte(`{"a":1}`), 0o644))
	assert.Empty(t, New(file).Load())
}

func TestSaveNewestFirstAndDedup(t *testing.T) {
	base := t.TempDir()
	h := New(filepath.Join(base, FileName))

	a := filepath.Join(base, "a")
	b := filepath.Join(base, "b")
	require.NoError(t, os.Mkdir(a, 0o755))
	require.NoError(t, os.Mkdir(b, 0o755))

	require.NoError(t, h.Save(a))
	require.NoError(t, h.Save(b))
	require.NoError(t, h.Save(a+string(filepath.Separator)))

	assert.Equal(t, []string{a, b}, h.Load())
}

func TestSaveKeepsAtMostTen(t *testing.T) {
	base := t.TempDir()
	h := New(filepath.Join(base, FileName))

	var dirs []string
	for i := 0; i < 12; i++ {
		d := filepath.Join(base, fmt.Sprintf("d%02d", i))
		require.NoError(t, os.Mkdir(d, 0o755))
		require.NoError(t, h.Save(d))
		dirs = append(dirs, d)
	}

	got := h.Load()
	require.Len(t, got, MaxEntries)
	assert.Equal(t, dirs[11], got[0])
	assert.Equal(t, dirs[2], got[9])
}

func TestLoadDropsVanishedFolders(t *testing.T) {
	base := t.TempDir()
	h := New(filepath.Join(base, FileName))

	keep := filepath.Join(base, "keep")
	gone := filepath.Join(base, "gone")
	require.NoError(t, os.Mkdir(keep, 0o755))
	require.NoError(t, os.Mkdir(gone, 0o755))
	require.NoError(t, h.Save(keep))
	require.NoError(t, h.Save(gone))
	require.NoError(t, os.Remove(gone))

	assert.Equal(t, []string{keep}, h.Load())
}
