package launcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSocket(t *testing.T) {
	dir := t.TempDir()
	cleanup, err := LinkSocket(dir, "wayland-1", "marathon-wayland-0")
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(dir, "marathon-wayland-0"))
	require.NoError(t, err)
	assert.Equal(t, "wayland-1", target)

	cleanup()
	_, err = os.Lstat(filepath.Join(dir, "marathon-wayland-0"))
	assert.True(t, os.IsNotExist(err))
}

func TestLinkSocketReplacesStaleLink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("wayland-9", filepath.Join(dir, "marathon-wayland-0")))

	_, err := LinkSocket(dir, "wayland-2", "marathon-wayland-0")
	require.NoError(t, err)
	target, err := os.Readlink(filepath.Join(dir, "marathon-wayland-0"))
	require.NoError(t, err)
	assert.Equal(t, "wayland-2", target)
}

func TestLinkSocketRefusesRealFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marathon-wayland-0"), nil, 0o600))

	_, err := LinkSocket(dir, "wayland-1", "marathon-wayland-0")
	assert.Error(t, err)
}

func TestLinkSocketSameName(t *testing.T) {
	dir := t.TempDir()
	cleanup, err := LinkSocket(dir, "marathon-wayland-0", "marathon-wayland-0")
	require.NoError(t, err)
	cleanup()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
