package mock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/httpmock"
	"github.com/launchdarkly/egg-mock/mm"
)

// Extension holds the mocking helpers of one application. The same Extension serves the
// MockApplication methods in process and forwarded calls in a cluster child.
type Extension struct {
	app            egg.Application
	httpMock       *httpmock.Client
	mockCtxStorage bool
	tasks          []*backgroundTask
	customs        map[string]string
	lock           sync.Mutex
}

var extensions struct {
	byApp map[egg.Application]*Extension
	lock  sync.Mutex
}

// ExtensionFor returns the Extension of app, creating it the first time. Creating it installs
// the background task tracking on the application's context prototype.
func ExtensionFor(app egg.Application) *Extension {
	extensions.lock.Lock()
	defer extensions.lock.Unlock()
	if extensions.byApp == nil {
		extensions.byApp = make(map[egg.Application]*Extension)
	}
	if e, ok := extensions.byApp[app]; ok {
		return e
	}
	e := &Extension{
		app:            app,
		httpMock:       httpmock.NewClient(app.HTTPClient()),
		mockCtxStorage: true,
	}
	app.ContextPrototype().Store(egg.ProtoRunInBackground, egg.BackgroundRunner(e.runInBackground))
	extensions.byApp[app] = e
	return e
}

func forgetExtension(app egg.Application) {
	extensions.lock.Lock()
	delete(extensions.byApp, app)
	extensions.lock.Unlock()
}

// App returns the application the extension belongs to.
func (e *Extension) App() egg.Application {
	return e.app
}

// ContextOptions change how MockContext builds a context.
type ContextOptions struct {
	// MockCtxStorage makes the context storage return the new context for any lookup. The
	// default comes from Options.MockCtxStorage.
	MockCtxStorage *bool

	// ReuseCtxStorage lets MockContext return the context that is already current in ctx, the
	// first time it is asked to. Defaults to true.
	ReuseCtxStorage *bool
}

// reusedKey marks a context that MockContext has already returned once in place of a new one.
const reusedKey = "egg-mock:reused"

// MockRequestFrom is the value of the X-Mock-Request-From header of mocked requests.
const MockRequestFrom = "egg-mock"

// MockContext returns a context for a request described by data. Every key of data is also
// mocked on the context prototype. The request-shaping keys are "method", "url", "host",
// "remoteAddress", "query" and "headers". data itself is never modified.
func (e *Extension) MockContext(ctx context.Context, data map[string]interface{}, opts ...ContextOptions) *egg.Context {
	e.lock.Lock()
	mockStorage, reuse := e.mockCtxStorage, true
	e.lock.Unlock()
	for _, o := range opts {
		if o.MockCtxStorage != nil {
			mockStorage = *o.MockCtxStorage
		}
		if o.ReuseCtxStorage != nil {
			reuse = *o.ReuseCtxStorage
		}
	}

	data = copyMap(data)
	if c, ok := e.app.(egg.ContextCustomizer); ok {
		c.CustomMockContext(data)
	}
	proto := e.app.ContextPrototype()
	for k, v := range data {
		mm.Mock(proto, k, v)
	}

	headers := headerValues(data["headers"])
	if reuse && ctx != nil {
		if current := e.app.CtxStorage().GetStore(ctx); current != nil {
			if _, reused := current.Locals().Lookup(reusedKey); !reused {
				if current.Request != nil {
					target := mm.Header(current.Request.Header)
					for k, vs := range headers {
						mm.Mock(target, http.CanonicalHeaderKey(k), vs)
						mm.Mock(target, strings.ToLower(k), vs)
					}
				}
				current.Set(reusedKey, true)
				return current
			}
		}
	}

	c := e.app.CreateContext(mockRequest(data, headers), httptest.NewRecorder())
	if mockStorage {
		mm.Mock(e.app.CtxStorage().Properties(), egg.StorageGetStore, func(context.Context) *egg.Context {
			return c
		})
	}
	return c
}

// MockContextScope runs fn with a context.Context that carries a new mocked context. Nested and
// concurrent scopes each see their own context.
func (e *Extension) MockContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c := e.MockContext(ctx, data, ContextOptions{MockCtxStorage: boolPtr(false), ReuseCtxStorage: boolPtr(false)})
	return e.app.CtxStorage().Run(ctx, c, fn)
}

// MockModuleContextScope uses the application's own module scope if it has one, and
// MockContextScope otherwise.
func (e *Extension) MockModuleContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error {
	if s, ok := e.app.(egg.ModuleScoper); ok {
		return s.MockModuleContextScope(ctx, fn, data)
	}
	return e.MockContextScope(ctx, fn, data)
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}

func stringValue(v interface{}, dflt string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return dflt
}

func headerValues(v interface{}) map[string][]string {
	ret := make(map[string][]string)
	switch h := v.(type) {
	case http.Header:
		for k, vs := range h {
			ret[k] = append([]string(nil), vs...)
		}
	case map[string][]string:
		for k, vs := range h {
			ret[k] = append([]string(nil), vs...)
		}
	case map[string]string:
		for k, s := range h {
			ret[k] = []string{s}
		}
	case map[string]interface{}:
		for k, item := range h {
			switch iv := item.(type) {
			case string:
				ret[k] = []string{iv}
			case []string:
				ret[k] = append([]string(nil), iv...)
			case []interface{}:
				for _, s := range iv {
					if str, ok := s.(string); ok {
						ret[k] = append(ret[k], str)
					}
				}
			}
		}
	}
	return ret
}

func mockRequest(data map[string]interface{}, headers map[string][]string) *http.Request {
	method := strings.ToUpper(stringValue(data["method"], http.MethodGet))
	target := stringValue(data["url"], "/")
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		req, _ = http.NewRequest(method, "/", nil)
	}
	req.Host = stringValue(data["host"], "127.0.0.1")
	req.RemoteAddr = stringValue(data["remoteAddress"], "127.0.0.1:7001")
	if query, ok := data["query"].(map[string]interface{}); ok {
		q := req.URL.Query()
		for k, v := range query {
			if s, ok := v.(string); ok {
				q.Set(k, s)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	req.RequestURI = req.URL.RequestURI()

	set := func(k string, vs []string) {
		req.Header[http.CanonicalHeaderKey(k)] = vs
		req.Header[strings.ToLower(k)] = vs
	}
	for k, vs := range headers {
		set(k, vs)
	}
	if req.Header.Get("X-Forwarded-For") == "" {
		set("X-Forwarded-For", []string{"127.0.0.1"})
	}
	set("X-Mock-Request-From", []string{MockRequestFrom})
	return req
}
