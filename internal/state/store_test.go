package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbookctl/internal/core"
)

func TestDirStore_WriteReadDelete(t *testing.T) {
	base := t.TempDir()
	store, err := NewDirStore(filepath.Join(base, "var"))
	require.NoError(t, err)

	require.NoError(t, store.Write("setup.yml.srchash", []byte("abc\n")))

	data, err := os.ReadFile(filepath.Join(base, "var", "setup.yml.srchash"))
	require.NoError(t, err)
	assert.Equal(t, "abc\n", string(data))

	got, err := store.Read("setup.yml.srchash")
	require.NoError(t, err)
	assert.Equal(t, "abc\n", string(got))

	require.NoError(t, store.Delete("setup.yml.srchash"))
	_, err = store.Read("setup.yml.srchash")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// Deleting twice is fine.
	require.NoError(t, store.Delete("setup.yml.srchash"))
}

func TestDirStore_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Write("requirements.yml.srchash", []byte(strings.Repeat("x", i+1))))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "requirements.yml.srchash", entries[0].Name())
}

func TestDirStore_ListSortedAndSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write("setup.yml.srchash", []byte("1")))
	require.NoError(t, store.Write("mash_servers.srchash", []byte("2")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), nil, 0o644))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"mash_servers.srchash", "setup.yml.srchash"}, names)
}

func TestDirStore_ListMissingDirIsEmpty(t *testing.T) {
	store, err := NewDirStore(filepath.Join(t.TempDir(), "never-created"))
	require.NoError(t, err)
	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDirStore_RejectsPathLikeNames(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	err = store.Write("../escape", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestDirStore_WriteFailureIsIOError(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "var")
	// A regular file where the run-directory should be.
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store, err := NewDirStore(blocker)
	require.NoError(t, err)
	err = store.Write("setup.yml.srchash", []byte("abc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIO))
}

func TestNewDirStore_RequiresDir(t *testing.T) {
	_, err := NewDirStore("  ")
	require.Error(t, err)
}

func TestMemoryStore_CopiesData(t *testing.T) {
	m := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, m.Write("r", buf))
	buf[0] = 'z'

	got, err := m.Read("r")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
