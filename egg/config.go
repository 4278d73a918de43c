package egg

// Config keys with a meaning to egg-mock.
const (
	ConfigName           = "name"
	ConfigEnv            = "env"
	ConfigServerEnv      = "serverEnv"
	ConfigCoreMiddleware = "coreMiddleware"
	ConfigCustomLoader   = "customLoader"
	ConfigBaseDir        = "baseDir"
)

// CustomLoader describes a component loaded from a custom directory, such as "adapter" loaded from
// app/adapter. Inject is "app" or "ctx", depending on where the component is attached.
type CustomLoader struct {
	Directory string `json:"directory" toml:"directory"`
	Inject    string `json:"inject" toml:"inject"`
}

// Config is the application configuration. It is a property bag so that individual keys can be
// mocked; the typed accessors below read the well-known keys.
type Config struct {
	*Properties
}

// NewConfig creates a configuration initialized from values.
func NewConfig(values map[string]interface{}) *Config {
	return &Config{Properties: PropertiesFrom(values)}
}

func (c *Config) Name() string { return c.GetString(ConfigName) }

func (c *Config) Env() string { return c.GetString(ConfigEnv) }

func (c *Config) ServerEnv() string { return c.GetString(ConfigServerEnv) }

// CoreMiddleware returns a copy of the ordered list of framework middleware names.
func (c *Config) CoreMiddleware() []string {
	v, _ := c.Get(ConfigCoreMiddleware)
	switch names := v.(type) {
	case []string:
		return append([]string(nil), names...)
	case []interface{}:
		ret := make([]string, 0, len(names))
		for _, n := range names {
			if s, ok := n.(string); ok {
				ret = append(ret, s)
			}
		}
		return ret
	}
	return nil
}

func (c *Config) SetCoreMiddleware(names []string) {
	c.Store(ConfigCoreMiddleware, append([]string(nil), names...))
}

// CustomLoaders returns the configured custom loaders by property name.
func (c *Config) CustomLoaders() map[string]CustomLoader {
	v, _ := c.Get(ConfigCustomLoader)
	loaders, _ := v.(map[string]CustomLoader)
	return loaders
}
