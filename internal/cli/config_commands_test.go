package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/config"
)

// cliEnv isolates one CLI run: its own config dir, config.csv, profiles.ini,
// store root and local directories.
type cliEnv struct {
	dir       string
	config    string
	profiles  string
	store     string
	media     string
	downloads string
	history   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HTTPS_PROXY", "")
	return &cliEnv{
		dir:       dir,
		config:    filepath.Join(dir, "config.csv"),
		profiles:  filepath.Join(dir, "profiles.ini"),
		store:     filepath.Join(dir, "store"),
		media:     filepath.Join(dir, "media"),
		downloads: filepath.Join(dir, "downloads"),
		history:   filepath.Join(dir, "history.csv"),
	}
}

// writeConfig saves a localdir configuration pointing into the env.
func (e *cliEnv) writeConfig(t *testing.T) {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendLocalDir
	cfg.StoreRoot = e.store
	cfg.LocalDir = e.downloads
	cfg.JournalPath = e.history
	cfg.CheckDiskSpace = false
	require.NoError(t, config.SaveConfigCSV(cfg, e.config))
}

// run executes the CLI with the env's config and profiles files.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.config, "--profiles-file", e.profiles}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommandStructure(t *testing.T) {
	cmd := newConfigCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
		assert.NotEmpty(t, c.Short, "%s has no short description", c.Name())
		assert.NotNil(t, c.RunE, "%s has no RunE", c.Name())
	}
	assert.ElementsMatch(t, []string{"init", "show", "set", "path"}, names)
}

func TestConfigSetAndShow(t *testing.T) {
	e := newCLIEnv(t)
	e.writeConfig(t)

	out, err := e.run(t, "", "config", "set", "chunk_size", "8192")
	require.NoError(t, err)
	assert.Contains(t, out, "chunk_size updated")

	cfg, err := config.LoadConfigCSV(e.config)
	require.NoError(t, err)
	assert.Equal(t, 8192, cfg.ChunkSize)
	assert.Equal(t, e.store, cfg.StoreRoot, "other settings survive a set")

	out, err = e.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "chunk_size:")
	assert.Contains(t, out, "8192")
	assert.Contains(t, out, "Profile: (none)")
}

func TestConfigSetRejectsBadInput(t *testing.T) {
	e := newCLIEnv(t)
	e.writeConfig(t)

	_, err := e.run(t, "", "config", "set", "no_such_key", "1")
	assert.Error(t, err)

	_, err = e.run(t, "", "config", "set", "chunk_size", "10")
	assert.ErrorIs(t, err, config.ErrInvalidChunkSize)

	cfg, err := config.LoadConfigCSV(e.config)
	require.NoError(t, err)
	assert.Equal(t, 400000, cfg.ChunkSize, "rejected value is not saved")
}

func TestConfigInit(t *testing.T) {
	e := newCLIEnv(t)
	store := filepath.Join(e.dir, "init-store")

	// backend, store root, chunk size, local dir, resource, proxy?
	answers := "localdir\n" + store + "\n65536\n" + e.media + "\nunix-sdsc\nn\n"
	out, err := e.run(t, answers, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to")

	cfg, err := config.LoadConfigCSV(e.config)
	require.NoError(t, err)
	assert.Equal(t, config.BackendLocalDir, cfg.Backend)
	assert.Equal(t, store, cfg.StoreRoot)
	assert.Equal(t, 65536, cfg.ChunkSize)
	assert.Equal(t, e.media, cfg.LocalDir)
	assert.Equal(t, "unix-sdsc", cfg.DefaultResource)
	assert.Equal(t, "no-proxy", cfg.ProxyMode)

	out, err = e.run(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigInitInvalidBackendChoiceFallsBack(t *testing.T) {
	e := newCLIEnv(t)

	// An invalid answer is re-asked; the empty answer then takes the default.
	answers := "ftp\n\n\n\n\n\nn\n"
	_, err := e.run(t, answers, "config", "init")
	require.NoError(t, err)

	cfg, err := config.LoadConfigCSV(e.config)
	require.NoError(t, err)
	assert.Equal(t, config.BackendLocalDir, cfg.Backend)
}

func TestConfigPath(t *testing.T) {
	e := newCLIEnv(t)
	e.writeConfig(t)

	out, err := e.run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, e.config)
	assert.Contains(t, out, "bytes, modified")
	assert.Contains(t, out, e.profiles+" (missing)")
}

func TestProfilesLifecycle(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "", "profiles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No profiles")

	_, err = e.run(t, "", "profiles", "add", "archive",
		"--backend", "localdir", "--collection", "interviews", "--resource", "unix-sdsc", "--default")
	require.NoError(t, err)
	_, err = e.run(t, "", "profiles", "add", "scratch", "--backend", "memory")
	require.NoError(t, err)

	out, err = e.run(t, "", "profiles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "archive")
	assert.Contains(t, out, "interviews")
	assert.Contains(t, out, "scratch")

	out, err = e.run(t, "", "profiles", "default")
	require.NoError(t, err)
	assert.Equal(t, "archive\n", out)

	_, err = e.run(t, "", "profiles", "default", "scratch")
	require.NoError(t, err)
	ps, err := config.LoadProfiles(e.profiles)
	require.NoError(t, err)
	assert.Equal(t, "scratch", ps.Default)

	_, err = e.run(t, "", "profiles", "rm", "scratch")
	require.NoError(t, err)
	ps, err = config.LoadProfiles(e.profiles)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive"}, ps.Names())
	assert.Empty(t, ps.Default, "deleting the default clears it")
}

func TestProfilesErrors(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "", "profiles", "add", "bad", "--backend", "ftp")
	assert.ErrorIs(t, err, config.ErrUnknownBackend)

	_, err = e.run(t, "", "profiles", "rm", "missing")
	assert.ErrorIs(t, err, config.ErrProfileNotFound)

	_, err = e.run(t, "", "profiles", "default", "missing")
	assert.ErrorIs(t, err, config.ErrProfileNotFound)
}

func TestUnknownProfileFailsLoad(t *testing.T) {
	e := newCLIEnv(t)
	e.writeConfig(t)

	_, err := e.run(t, "", "--profile", "nope", "download", "a.wav", "-C", "x")
	assert.ErrorIs(t, err, config.ErrProfileNotFound)
}
