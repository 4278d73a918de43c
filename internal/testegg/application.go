package testegg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/egg"
)

var registeredServices struct {
	methods map[string]egg.Method
	lock    sync.Mutex
}

// RegisterService adds a Go-implemented service method to every application booted afterwards.
// path is the dot-separated service name, such as "user.profile".
func RegisterService(path, method string, fn egg.Method) {
	registeredServices.lock.Lock()
	defer registeredServices.lock.Unlock()
	if registeredServices.methods == nil {
		registeredServices.methods = make(map[string]egg.Method)
	}
	registeredServices.methods[path+"."+method] = fn
}

// Application is the testegg implementation of egg.Application.
type Application struct {
	*node
	proto      *egg.Properties
	ctxStorage *egg.ContextStorage
	components map[string]*egg.Properties
	router     *mux.Router
	handler    http.Handler
	agent      egg.Agent
	lock       sync.RWMutex
}

// NewApplication loads the configuration and starts booting in the background. Use Ready to wait
// for the boot to finish.
func NewApplication(opts egg.Options) (*Application, error) {
	n, err := newNode(opts, egg.ToApp)
	if err != nil {
		return nil, err
	}
	a := &Application{
		node:       n,
		proto:      egg.NewProperties(nil),
		ctxStorage: egg.NewContextStorage(),
		components: make(map[string]*egg.Properties),
	}
	a.messenger.On(egg.ActionEggReady, func(interface{}) {
		a.props.Store("eggReady", true)
	})
	a.messenger.On("pong", func(data interface{}) {
		a.props.Store("pong", data)
	})
	for name, tree := range a.cfg.components {
		a.components[name] = buildComponent(tree)
	}
	if _, ok := a.components["service"]; !ok {
		a.components["service"] = egg.NewProperties(nil)
	}
	a.mergeRegisteredServices()

	go a.boot()
	return a, nil
}

func (a *Application) boot() {
	if msg := a.cfg.file.BootError; msg != "" {
		a.finishBoot(errors.New(msg))
		return
	}
	for _, hooks := range egg.EnabledPlugins(a.opts) {
		if p, ok := hooks.(egg.PluginConfigWillLoad); ok {
			p.ConfigWillLoad(a)
		}
	}

	router, handler, err := a.buildHandler()
	if err != nil {
		a.finishBoot(err)
		return
	}
	a.lock.Lock()
	a.router, a.handler = router, handler
	a.lock.Unlock()
	a.Logger(CoreLoggerName).Log(ldlog.Info, fmt.Sprintf("[testegg] application %s is ready", a.cfg.config.Name()))
	a.finishBoot(nil)
}

func (a *Application) mergeRegisteredServices() {
	registeredServices.lock.Lock()
	defer registeredServices.lock.Unlock()
	for key, fn := range registeredServices.methods {
		parts := strings.Split(key, ".")
		cur := a.components["service"]
		for _, part := range parts[:len(parts)-1] {
			v, ok := cur.Lookup(part)
			next, isBag := v.(*egg.Properties)
			if !ok || !isBag {
				next = egg.NewProperties(nil)
				cur.Store(part, next)
			}
			cur = next
		}
		cur.Store(parts[len(parts)-1], fn)
	}
}

func (a *Application) buildHandler() (*mux.Router, http.Handler, error) {
	router := mux.NewRouter()
	for _, rc := range a.cfg.file.Routes {
		h, err := routeHandler(rc)
		if err != nil {
			return nil, nil, err
		}
		route := router.Handle(rc.Path, h)
		if rc.Method != "" {
			route.Methods(strings.ToUpper(rc.Method))
		}
		if rc.Name != "" {
			route.Name(rc.Name)
		}
	}

	var h http.Handler = router
	names := a.cfg.config.CoreMiddleware()
	for i := len(names) - 1; i >= 0; i-- {
		mw, err := a.middleware(names[i])
		if err != nil {
			return nil, nil, err
		}
		h = mw(h)
	}
	return router, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := a.CreateContext(r, w)
		_ = a.ctxStorage.Run(r.Context(), c, func(ctx context.Context) error {
			h.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
	}), nil
}

func (a *Application) middleware(name string) (func(http.Handler) http.Handler, error) {
	if name == "securities" {
		return securities, nil
	}
	for _, hooks := range egg.EnabledPlugins(a.opts) {
		if p, ok := hooks.(egg.PluginMiddleware); ok {
			if mw, ok := p.Middleware(name, a); ok {
				return mw, nil
			}
		}
	}
	return nil, fmt.Errorf("middleware %q not found", name)
}

func (a *Application) ContextPrototype() *egg.Properties { return a.proto }

func (a *Application) CreateContext(req *http.Request, w http.ResponseWriter) *egg.Context {
	return egg.NewContext(a, req, w)
}

func (a *Application) CtxStorage() *egg.ContextStorage { return a.ctxStorage }

func (a *Application) Component(field string) (*egg.Properties, bool) {
	p, ok := a.components[field]
	return p, ok
}

func (a *Application) Router() egg.Router { return muxRouter{a} }

// Handler returns the request pipeline. Before the application is ready it answers 503.
func (a *Application) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.lock.RLock()
		h := a.handler
		a.lock.RUnlock()
		if h == nil {
			http.Error(w, "application is not ready", http.StatusServiceUnavailable)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (a *Application) Agent() egg.Agent {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.agent
}

func (a *Application) SetAgent(agent egg.Agent) {
	a.lock.Lock()
	a.agent = agent
	a.lock.Unlock()
}

type muxRouter struct {
	app *Application
}

func (r muxRouter) PathFor(name string, pairs ...string) (string, error) {
	r.app.lock.RLock()
	router := r.app.router
	r.app.lock.RUnlock()
	if router == nil {
		return "", errors.New("router is not ready")
	}
	route := router.Get(name)
	if route == nil {
		return "", fmt.Errorf("route %q not found", name)
	}
	u, err := route.URLPath(pairs...)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}
