package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	path := filepath.Join(dir, "vault.json")

	require.NoError(t, WriteAtomic(path, []byte("first"), FileMode))
	require.NoError(t, WriteAtomic(path, []byte("second"), FileMode))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(FileMode), info.Mode().Perm())

		dirInfo, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(DirMode), dirInfo.Mode().Perm())
	}
}

func TestEnsureDir(t *testing.T) {
	assert.Error(t, EnsureDir(""))

	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, Exists(dir))
	require.NoError(t, EnsureDir(dir))
}

func TestInsecurePerm(t *testing.T) {
	assert.False(t, InsecurePerm(0600))
	assert.False(t, InsecurePerm(0700))
	assert.True(t, InsecurePerm(0644))
	assert.True(t, InsecurePerm(0660))
}

func TestDiskSpace(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "not", "yet", "created")

	info, err := DiskSpace(missing)
	require.NoError(t, err)
	assert.Greater(t, info.Total, uint64(0))
	assert.LessOrEqual(t, info.Available, info.Total)
	assert.GreaterOrEqual(t, info.UsedPct, 0)
	assert.LessOrEqual(t, info.UsedPct, 100)
}

func TestCheckFree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, CheckFree(dir, 16))

	err := CheckFree(dir, int(^uint(0)>>2))
	assert.ErrorIs(t, err, ErrInsufficientDisk)
}
