package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitRepo(dir, ""))

	assert.True(t, IsRepo(dir))
	assert.FileExists(t, filepath.Join(dir, DevicesFile))

	status, err := Status(dir)
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.False(t, status.Dirty)
	assert.Empty(t, status.RemoteURL)
}

func TestStatusUninitialized(t *testing.T) {
	status, err := Status(t.TempDir())
	require.NoError(t, err)
	assert.False(t, status.Initialized)
}

func TestSyncCommitsLocalChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitRepo(dir, ""))

	// Mutate the devices document, then sync.
	store := NewStore(filepath.Join(dir, DevicesFile))
	reg, err := NewRegistry(store)
	require.NoError(t, err)
	require.NoError(t, reg.Add(Device{Name: "alpha", Host: "pi@bench-1", RemotePort: 4000, LocalPort: 4000}))

	status, err := Status(dir)
	require.NoError(t, err)
	assert.True(t, status.Dirty)

	summary, err := Sync(dir, "Register alpha")
	require.NoError(t, err)
	assert.Equal(t, "Committed locally (no remote configured)", summary)

	status, err = Status(dir)
	require.NoError(t, err)
	assert.False(t, status.Dirty)
}

func TestSyncCleanTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitRepo(dir, ""))

	// Nothing to commit; still succeeds.
	_, err := Sync(dir, "noop")
	assert.NoError(t, err)
}

func TestSyncNotARepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DevicesFile), []byte("[device]\n"), 0o644))

	_, err := Sync(dir, "update")
	assert.Error(t, err)
}
