package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/mm"
)

// FixturesDir is where relative base directories are looked up, relative to the working
// directory of the test.
const FixturesDir = "testdata/fixtures"

// Environment variables read while formatting options.
const (
	EnvBaseDir       = "EGG_BASE_DIR"
	EnvFramework     = "EGG_FRAMEWORK"
	EnvServerEnv     = "EGG_SERVER_ENV"
	EnvMockServerEnv = "EGG_MOCK_SERVER_ENV"
	EnvHome          = "EGG_HOME"
	EnvLog           = "EGG_LOG"
	EnvClusterPort   = "CLUSTER_PORT"
)

// Options configures an application under test.
type Options struct {
	// BaseDir is the application directory. A relative path is resolved against
	// testdata/fixtures in the working directory; an empty one means the working directory.
	BaseDir string `json:"baseDir"`

	// Framework is the name of a registered egg.Framework.
	Framework string `json:"framework,omitempty"`

	Plugins map[string]egg.Plugin `json:"plugins,omitempty"`

	// Plugin says whether the working directory is a plugin under test. When nil, that is
	// decided by whether its egg.toml has an [eggPlugin] table.
	Plugin *bool `json:"plugin,omitempty"`

	Cache    *bool `json:"cache,omitempty"`
	Coverage *bool `json:"coverage,omitempty"`

	// Clean removes the logs and run directories under BaseDir before booting.
	Clean *bool `json:"clean,omitempty"`

	// MockCtxStorage is the default of ContextOptions.MockCtxStorage.
	MockCtxStorage *bool `json:"mockCtxStorage,omitempty"`

	ClusterPort int `json:"clusterPort,omitempty"`

	// BeforeInit runs once, before the framework is loaded.
	BeforeInit func(ctx context.Context, m Manager) error `json:"-"`
}

func boolOption(v *bool, dflt bool) bool {
	if v == nil {
		return dflt
	}
	return *v
}

func boolPtr(v bool) *bool { return &v }

func (o Options) cache() bool          { return boolOption(o.Cache, true) }
func (o Options) clean() bool          { return boolOption(o.Clean, true) }
func (o Options) mockCtxStorage() bool { return boolOption(o.MockCtxStorage, true) }

// EggOptions returns the options handed to the framework.
func (o Options) EggOptions() egg.Options {
	plugins := make(map[string]egg.Plugin, len(o.Plugins))
	for k, v := range o.Plugins {
		plugins[k] = v
	}
	return egg.Options{
		BaseDir:     o.BaseDir,
		Framework:   o.Framework,
		Plugins:     plugins,
		ClusterPort: o.ClusterPort,
	}
}

// ConfigError is returned by FormatOptions for options that cannot be used.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// FormatOptions fills in the defaults of opts. It also mocks HOME to the base directory in the
// default, test and prod server environments, which Restore undoes.
func FormatOptions(opts Options) (Options, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return opts, err
	}

	switch {
	case opts.BaseDir == "":
		opts.BaseDir = cwd
	case !filepath.IsAbs(opts.BaseDir):
		opts.BaseDir = filepath.Join(cwd, FixturesDir, opts.BaseDir)
	}
	if info, err := os.Stat(opts.BaseDir); err != nil || !info.IsDir() {
		return opts, &ConfigError{Field: "baseDir", Message: fmt.Sprintf("baseDir %s is not a directory", opts.BaseDir)}
	}

	plugins := make(map[string]egg.Plugin, len(opts.Plugins)+2)
	for k, v := range opts.Plugins {
		plugins[k] = v
	}
	opts.Plugins = plugins

	cwdManifest, _, err := egg.ReadManifest(cwd)
	if err != nil {
		return opts, &ConfigError{Field: "manifest", Message: err.Error()}
	}

	if opts.Framework == "" {
		opts.Framework, err = resolveFramework(opts.BaseDir, cwdManifest)
		if err != nil {
			return opts, err
		}
	}

	opts.Cache = boolPtr(opts.cache())
	opts.Coverage = boolPtr(boolOption(opts.Coverage, true))
	opts.Clean = boolPtr(opts.clean())

	pluginMode := boolOption(opts.Plugin, cwdManifest.EggPlugin != nil)
	opts.Plugin = boolPtr(pluginMode)
	if pluginMode {
		if cwdManifest.EggPlugin == nil || cwdManifest.EggPlugin.Name == "" {
			return opts, &ConfigError{
				Field:   "plugin",
				Message: fmt.Sprintf("should set eggPlugin.name in %s", filepath.Join(cwd, egg.ManifestFile)),
			}
		}
		opts.Plugins[cwdManifest.EggPlugin.Name] = egg.Plugin{Enable: true, Path: cwd}
	}
	opts.Plugins[PluginName] = egg.Plugin{Enable: true}

	switch os.Getenv(EnvServerEnv) {
	case "default", "test", "prod":
		if !mm.IsMocked(mm.Env, "HOME") {
			mm.Mock(mm.Env, "HOME", opts.BaseDir)
		}
	}

	if os.Getenv(EnvMockServerEnv) != "" {
		opts.Cache = boolPtr(false)
	}
	return opts, nil
}

// resolveFramework picks the framework for baseDir: the framework repository being tested,
// then EGG_FRAMEWORK, then the application's own manifest, then the default.
func resolveFramework(baseDir string, cwdManifest egg.Manifest) (string, error) {
	if cwdManifest.EggFramework != nil && cwdManifest.EggFramework.Name != "" {
		return cwdManifest.EggFramework.Name, nil
	}
	if name := os.Getenv(EnvFramework); name != "" {
		return name, nil
	}
	m, _, err := egg.ReadManifest(baseDir)
	if err != nil {
		return "", &ConfigError{Field: "manifest", Message: err.Error()}
	}
	if m.Framework != "" {
		return m.Framework, nil
	}
	return egg.DefaultFramework, nil
}

// Env mocks the server environment that applications booted afterwards will see.
func Env(env string) {
	mm.Mock(mm.Env, EnvMockServerEnv, env)
	mm.Mock(mm.Env, EnvServerEnv, env)
}

// ConsoleLevel mocks the console log level of applications booted afterwards.
func ConsoleLevel(level string) {
	mm.Mock(mm.Env, EnvLog, strings.ToUpper(level))
}

// Home mocks the home directory of applications booted afterwards.
func Home(dir string) {
	mm.Mock(mm.Env, EnvHome, dir)
}
