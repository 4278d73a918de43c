package mock

import (
	"net/http"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/rpc"
)

// PluginName is the name of the plugin that FormatOptions enables for every application.
const PluginName = "egg-mock"

// MiddlewareName is the core middleware that answers forwarded calls.
const MiddlewareName = "clusterAppMock"

// plugin puts the call-forwarding middleware in front of the security middleware, so that the
// reserved path is answered without a CSRF token.
type plugin struct{}

func init() {
	egg.RegisterPlugin(PluginName, plugin{})
}

func (plugin) ConfigWillLoad(app egg.Application) {
	ExtensionFor(app)
	cfg := app.Config()
	names := cfg.CoreMiddleware()
	for _, n := range names {
		if n == MiddlewareName {
			return
		}
	}
	ret := make([]string, 0, len(names)+1)
	inserted := false
	for _, n := range names {
		if n == "securities" && !inserted {
			ret = append(ret, MiddlewareName)
			inserted = true
		}
		ret = append(ret, n)
	}
	if !inserted {
		ret = append(ret, MiddlewareName)
	}
	cfg.SetCoreMiddleware(ret)
}

func (plugin) Middleware(name string, app egg.Application) (func(http.Handler) http.Handler, bool) {
	if name != MiddlewareName {
		return nil, false
	}
	ext := ExtensionFor(app)
	return rpc.Middleware(func(*http.Request) rpc.Target { return ext }), true
}
