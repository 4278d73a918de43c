package egg

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

// DefaultFramework is the framework name used when nothing else selects one.
const DefaultFramework = "egg"

// Options are the boot options handed to a framework. They are JSON-serializable because they
// are also passed to cluster child processes.
type Options struct {
	BaseDir     string            `json:"baseDir"`
	Framework   string            `json:"framework,omitempty"`
	Plugins     map[string]Plugin `json:"plugins,omitempty"`
	ClusterPort int               `json:"clusterPort,omitempty"`
	Port        int               `json:"port,omitempty"`
	Workers     int               `json:"workers,omitempty"`
}

// Plugin is a plugin entry in Options.
type Plugin struct {
	Enable bool   `json:"enable"`
	Path   string `json:"path,omitempty"`
}

// Notifier receives cluster-level messages from Framework.StartCluster, such as the egg-ready
// message or a worker death.
type Notifier func(Message)

// Framework constructs agents and applications.
type Framework interface {
	NewAgent(opts Options) (Agent, error)
	NewApplication(opts Options) (Application, error)

	// StartCluster runs a complete cluster listening on opts.Port until ctx is cancelled. It must
	// call notify with an egg-ready message once the cluster is serving, and with an
	// app-worker-died or agent-worker-died message if a worker fails to start.
	StartCluster(ctx context.Context, opts Options, notify Notifier) error
}

// Cluster lifecycle actions sent to a Notifier.
const (
	ActionAppWorkerDied   = "app-worker-died"
	ActionAgentWorkerDied = "agent-worker-died"
)

// PluginConfigWillLoad is implemented by plugins that adjust an application's configuration
// before it is used.
type PluginConfigWillLoad interface {
	ConfigWillLoad(app Application)
}

// PluginMiddleware is implemented by plugins that provide named middleware.
type PluginMiddleware interface {
	Middleware(name string, app Application) (func(http.Handler) http.Handler, bool)
}

var (
	frameworks = make(map[string]Framework)
	plugins    = make(map[string]interface{})
	regLock    sync.RWMutex
)

// Register makes a framework available by name. It panics if the name is already taken.
func Register(name string, f Framework) {
	regLock.Lock()
	defer regLock.Unlock()
	if f == nil {
		panic("egg: Register framework is nil")
	}
	if _, dup := frameworks[name]; dup {
		panic("egg: Register called twice for framework " + name)
	}
	frameworks[name] = f
}

// Lookup returns a registered framework.
func Lookup(name string) (Framework, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	f, ok := frameworks[name]
	return f, ok
}

// Frameworks returns the sorted names of the registered frameworks.
func Frameworks() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	ret := make([]string, 0, len(frameworks))
	for name := range frameworks {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// RegisterPlugin makes plugin hooks available by name. The hooks value should implement one or
// more of the Plugin* interfaces; a later registration replaces an earlier one.
func RegisterPlugin(name string, hooks interface{}) {
	regLock.Lock()
	plugins[name] = hooks
	regLock.Unlock()
}

// LookupPlugin returns registered plugin hooks.
func LookupPlugin(name string) (interface{}, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	p, ok := plugins[name]
	return p, ok
}

// EnabledPlugins returns the hooks of every enabled plugin in opts that has been registered, in
// name order.
func EnabledPlugins(opts Options) []interface{} {
	names := make([]string, 0, len(opts.Plugins))
	for name, p := range opts.Plugins {
		if p.Enable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var ret []interface{}
	for _, name := range names {
		if hooks, ok := LookupPlugin(name); ok {
			ret = append(ret, hooks)
		}
	}
	return ret
}
