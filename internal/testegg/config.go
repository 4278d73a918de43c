package testegg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/launchdarkly/egg-mock/egg"
)

// ConfigFile is the name of the configuration file read from the base directory.
const ConfigFile = "config.toml"

var defaultCoreMiddleware = []string{"securities"}

// RouteConfig declares one route. Handler selects one of the built-in handlers; the other fields
// are its parameters.
type RouteConfig struct {
	Name    string `toml:"name"`
	Method  string `toml:"method"`
	Path    string `toml:"path"`
	Handler string `toml:"handler"`

	Body    string `toml:"body"`
	Service string `toml:"service"`
	Call    string `toml:"call"`
	URL     string `toml:"url"`
	Header  string `toml:"header"`
	Cookie  string `toml:"cookie"`
	Key     string `toml:"key"`
	Logger  string `toml:"logger"`
}

type fileConfig struct {
	Name           string                      `toml:"name"`
	CoreMiddleware *[]string                   `toml:"coreMiddleware"`
	BootError      string                      `toml:"bootError"`
	AgentBootError string                      `toml:"agentBootError"`
	Routes         []RouteConfig               `toml:"route"`
	CustomLoader   map[string]egg.CustomLoader `toml:"customLoader"`
}

// reserved top-level keys that are not copied into the application config as they are
var structuralKeys = map[string]bool{
	"route":          true,
	"customLoader":   true,
	"coreMiddleware": true,
	"service":        true,
}

type loadedConfig struct {
	file       fileConfig
	config     *egg.Config
	components map[string]map[string]interface{}
}

func loadConfig(opts egg.Options) (loadedConfig, error) {
	var ret loadedConfig
	raw := make(map[string]interface{})
	path := filepath.Join(opts.BaseDir, ConfigFile)
	if _, err := toml.DecodeFile(path, &ret.file); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return ret, fmt.Errorf("malformed %s: %w", path, err)
		}
	} else if _, err := toml.DecodeFile(path, &raw); err != nil {
		return ret, fmt.Errorf("malformed %s: %w", path, err)
	}

	values := make(map[string]interface{})
	for k, v := range raw {
		if !structuralKeys[k] {
			values[k] = v
		}
	}
	name := ret.file.Name
	if name == "" {
		name = filepath.Base(opts.BaseDir)
	}
	values[egg.ConfigName] = name
	values[egg.ConfigBaseDir] = opts.BaseDir
	env := serverEnv()
	values[egg.ConfigEnv] = env
	values[egg.ConfigServerEnv] = env
	if len(ret.file.CustomLoader) > 0 {
		values[egg.ConfigCustomLoader] = ret.file.CustomLoader
	}
	ret.config = egg.NewConfig(values)
	if ret.file.CoreMiddleware != nil {
		ret.config.SetCoreMiddleware(*ret.file.CoreMiddleware)
	} else {
		ret.config.SetCoreMiddleware(defaultCoreMiddleware)
	}

	ret.components = make(map[string]map[string]interface{})
	if svc, ok := raw["service"].(map[string]interface{}); ok {
		ret.components["service"] = svc
	}
	for field := range ret.file.CustomLoader {
		if tree, ok := raw[field].(map[string]interface{}); ok {
			ret.components[field] = tree
		}
	}
	return ret, nil
}

func serverEnv() string {
	if env := os.Getenv("EGG_MOCK_SERVER_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("EGG_SERVER_ENV"); env != "" {
		return env
	}
	return "unittest"
}

// buildComponent turns a decoded TOML table into a component tree. Nested tables become nested
// bags and string leaves become methods returning that string.
func buildComponent(tree map[string]interface{}) *egg.Properties {
	p := egg.NewProperties(nil)
	for k, v := range tree {
		switch value := v.(type) {
		case map[string]interface{}:
			p.Store(k, buildComponent(value))
		case string:
			p.Store(k, staticMethod(value))
		default:
			p.Store(k, value)
		}
	}
	return p
}

func staticMethod(value string) egg.Method {
	return func(c *egg.Context, args ...interface{}) (interface{}, error) {
		return value, nil
	}
}
