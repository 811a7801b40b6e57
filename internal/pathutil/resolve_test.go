package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAbsolutePath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	home, err = filepath.EvalSymlinks(home)
	require.NoError(t, err)

	got, err := ResolveAbsolutePath("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ResolveAbsolutePath("~/srbxfer-no-such-dir/media")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "srbxfer-no-such-dir", "media"), got)
}

func TestResolveAbsolutePath_Empty(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err := ResolveAbsolutePath("")
	require.NoError(t, err)
	assert.Equal(t, wd, got)
}

func TestResolveAbsolutePath_SymlinkedParent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	target := filepath.Join(base, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(target, link))

	got, err := ResolveAbsolutePath(filepath.Join(link, "downloads", "today"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, "downloads", "today"), got)

	got, err = ResolveAbsolutePath(link)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestResolveAbsolutePath_TildeInName(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	p := filepath.Join(dir, "~media")
	got, err := ResolveAbsolutePath(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
