package egg

import (
	"context"
	"net/http"
	"sync"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

// Node is what agents and applications have in common.
type Node interface {
	Emitter

	// Ready blocks until the node has finished booting, and returns the boot error if any.
	Ready(ctx context.Context) error

	// Close shuts the node down.
	Close(ctx context.Context) error

	Options() Options
	Messenger() Messenger

	// Properties returns the node's own dynamic members. egg-mock reads and writes these when
	// test code uses the generic property accessors of a mocked application.
	Properties() *Properties

	HTTPClient() *HTTPClient

	// Logger returns the named logger ("logger", "coreLogger", or a custom one), or nil.
	Logger(name string) Logger
	Loggers() *Properties
}

// Application is the worker-side object that serves requests.
type Application interface {
	Node

	Config() *Config

	// ContextPrototype returns the bag that every Context created by this application falls
	// back to.
	ContextPrototype() *Properties

	CreateContext(req *http.Request, w http.ResponseWriter) *Context
	CtxStorage() *ContextStorage

	// Component returns a loaded component tree such as "service", or one configured through a
	// custom loader.
	Component(field string) (*Properties, bool)

	Router() Router
	Handler() http.Handler

	Agent() Agent
	SetAgent(a Agent)
}

// Agent is the coordination-side object. There is one agent per cluster.
type Agent interface {
	Node

	App() Application
	SetApp(a Application)
}

// ContextCustomizer can be implemented by an Application that wants to pre-seed the fields of
// mocked contexts.
type ContextCustomizer interface {
	CustomMockContext(data map[string]interface{})
}

// ModuleScoper can be implemented by an Application that binds module-level state to a context
// scope. Test-runner injection prefers it over the basic context scope.
type ModuleScoper interface {
	MockModuleContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error
}

// Router resolves named routes.
type Router interface {
	PathFor(name string, pairs ...string) (string, error)
}

// Logger is a named application logger.
type Logger interface {
	Log(level ldlog.LogLevel, message string)

	// Filename returns the file the logger writes to, or "" if it only writes to memory or the
	// console.
	Filename() string
}

// HTTPClient is an application's outbound HTTP client. Its dispatcher can be swapped at any time;
// with no dispatcher it uses whatever http.DefaultTransport is at the time of each request.
type HTTPClient struct {
	dispatcher http.RoundTripper
	lock       sync.RWMutex
}

// NewHTTPClient creates a client with no dispatcher of its own.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{}
}

// Dispatcher returns the client's own dispatcher, which may be nil.
func (c *HTTPClient) Dispatcher() http.RoundTripper {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.dispatcher
}

func (c *HTTPClient) SetDispatcher(rt http.RoundTripper) {
	c.lock.Lock()
	c.dispatcher = rt
	c.lock.Unlock()
}

func (c *HTTPClient) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := c.Dispatcher()
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

// Do sends a request.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	client := &http.Client{Transport: c}
	return client.Do(req)
}

// Get sends a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
