package mock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/mm"
)

func fixturePath(t *testing.T, name string) string {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Join(cwd, FixturesDir, name)
}

func chdir(t *testing.T, dir string) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestFormatOptionsDefaults(t *testing.T) {
	opts, err := FormatOptions(Options{BaseDir: "demo"})
	require.NoError(t, err)

	assert.Equal(t, fixturePath(t, "demo"), opts.BaseDir)
	assert.Equal(t, egg.DefaultFramework, opts.Framework)
	assert.True(t, *opts.Cache)
	assert.True(t, *opts.Coverage)
	assert.True(t, *opts.Clean)
	assert.False(t, *opts.Plugin)
	assert.Equal(t, egg.Plugin{Enable: true}, opts.Plugins[PluginName])
}

func TestFormatOptionsEmptyBaseDirIsWorkingDirectory(t *testing.T) {
	opts, err := FormatOptions(Options{})
	require.NoError(t, err)
	cwd, _ := os.Getwd()
	assert.Equal(t, cwd, opts.BaseDir)
}

func TestFormatOptionsKeepsAbsoluteBaseDir(t *testing.T) {
	dir := t.TempDir()
	opts, err := FormatOptions(Options{BaseDir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, opts.BaseDir)
}

func TestFormatOptionsMissingBaseDir(t *testing.T) {
	_, err := FormatOptions(Options{BaseDir: "no-such-fixture"})
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "baseDir", ce.Field)
}

func TestFormatOptionsDoesNotModifyCallerPlugins(t *testing.T) {
	plugins := map[string]egg.Plugin{"view": {Enable: true}}
	opts, err := FormatOptions(Options{BaseDir: "demo", Plugins: plugins})
	require.NoError(t, err)
	assert.Len(t, plugins, 1)
	assert.Contains(t, opts.Plugins, "view")
	assert.Contains(t, opts.Plugins, PluginName)
}

func TestFormatOptionsFrameworkFromEnv(t *testing.T) {
	t.Setenv(EnvFramework, "custom")
	opts, err := FormatOptions(Options{BaseDir: "demo"})
	require.NoError(t, err)
	assert.Equal(t, "custom", opts.Framework)

	opts, err = FormatOptions(Options{BaseDir: "demo", Framework: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", opts.Framework)
}

func TestFormatOptionsPluginMode(t *testing.T) {
	demo := fixturePath(t, "demo")
	pluginDir := fixturePath(t, "plugin-dir")
	chdir(t, pluginDir)

	opts, err := FormatOptions(Options{BaseDir: demo})
	require.NoError(t, err)
	assert.True(t, *opts.Plugin)
	assert.Equal(t, egg.Plugin{Enable: true, Path: pluginDir}, opts.Plugins["session"])

	opts, err = FormatOptions(Options{BaseDir: demo, Plugin: boolPtr(false)})
	require.NoError(t, err)
	assert.NotContains(t, opts.Plugins, "session")
}

func TestFormatOptionsPluginModeRequiresPluginName(t *testing.T) {
	_, err := FormatOptions(Options{BaseDir: "demo", Plugin: boolPtr(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should set eggPlugin.name")
}

func TestFormatOptionsMockServerEnvDisablesCache(t *testing.T) {
	t.Setenv(EnvMockServerEnv, "prod")
	opts, err := FormatOptions(Options{BaseDir: "demo"})
	require.NoError(t, err)
	assert.False(t, *opts.Cache)
}

func TestFormatOptionsMocksHomeInTestEnvironments(t *testing.T) {
	t.Setenv("HOME", "/home/original")
	t.Setenv(EnvServerEnv, "test")
	opts, err := FormatOptions(Options{BaseDir: "demo"})
	require.NoError(t, err)
	assert.Equal(t, opts.BaseDir, os.Getenv("HOME"))
	assert.True(t, mm.IsMocked(mm.Env, "HOME"))

	require.NoError(t, Restore(testContext(t)))
	assert.Equal(t, "/home/original", os.Getenv("HOME"))
}

func TestFormatOptionsLeavesHomeInOtherEnvironments(t *testing.T) {
	t.Setenv("HOME", "/home/original")
	t.Setenv(EnvServerEnv, "local")
	_, err := FormatOptions(Options{BaseDir: "demo"})
	require.NoError(t, err)
	assert.Equal(t, "/home/original", os.Getenv("HOME"))
}

func TestEnvConsoleLevelAndHome(t *testing.T) {
	t.Setenv(EnvServerEnv, "")
	t.Setenv(EnvMockServerEnv, "")
	t.Setenv(EnvLog, "")
	t.Setenv(EnvHome, "")

	Env("prod")
	ConsoleLevel("warn")
	Home("/tmp/egg-home")
	assert.Equal(t, "prod", os.Getenv(EnvServerEnv))
	assert.Equal(t, "prod", os.Getenv(EnvMockServerEnv))
	assert.Equal(t, "WARN", os.Getenv(EnvLog))
	assert.Equal(t, "/tmp/egg-home", os.Getenv(EnvHome))

	require.NoError(t, Restore(testContext(t)))
	assert.Equal(t, "", os.Getenv(EnvServerEnv))
	assert.Equal(t, "", os.Getenv(EnvLog))
	assert.Equal(t, "", os.Getenv(EnvHome))
}

func TestEggOptions(t *testing.T) {
	opts := Options{BaseDir: "/app", Framework: "egg", ClusterPort: 7001, Plugins: map[string]egg.Plugin{"a": {Enable: true}}}
	eo := opts.EggOptions()
	assert.Equal(t, egg.Options{
		BaseDir:     "/app",
		Framework:   "egg",
		ClusterPort: 7001,
		Plugins:     map[string]egg.Plugin{"a": {Enable: true}},
	}, eo)
}
