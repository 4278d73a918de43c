package egg

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

// Keys of the context prototype that change how a Context behaves. egg-mock stores replacements
// under these keys to mock request-level behavior.
const (
	// ProtoRunInBackground holds a BackgroundRunner.
	ProtoRunInBackground = "runInBackground"
	// ProtoGetHeader holds a func(name string) (string, bool) consulted before the request headers.
	ProtoGetHeader = "getHeader"
	// ProtoCookies holds a map[string]string consulted before the request cookies.
	ProtoCookies = "cookies"
	// ProtoSession holds the session value.
	ProtoSession = "session"
	// ProtoAssertCSRF holds a func(*Context) error replacing the default CSRF check.
	ProtoAssertCSRF = "assertCSRF"
)

// CSRFHeader is the request header that the default CSRF check expects.
const CSRFHeader = "X-Csrf-Token"

// ErrInvalidCSRF is returned by the default CSRF check.
var ErrInvalidCSRF = errors.New("invalid csrf token")

// TaskFunc is a unit of background work.
type TaskFunc func(ctx context.Context) error

// BackgroundRunner schedules a background task on behalf of a Context.
type BackgroundRunner func(c *Context, name string, fn TaskFunc)

// Method is the shape of every callable member of a loaded component, such as a service method.
type Method func(c *Context, args ...interface{}) (interface{}, error)

// Session is the session data of a context.
type Session map[string]interface{}

// Save is a no-op; it exists so that code written against a persisted session keeps working.
func (s Session) Save() error { return nil }

// Context is the per-request execution scope. Values set on it shadow the ones on the
// application's context prototype.
type Context struct {
	App      Application
	Request  *http.Request
	Response http.ResponseWriter
	locals   *Properties
}

// NewContext creates a context whose values fall back to app.ContextPrototype().
func NewContext(app Application, req *http.Request, w http.ResponseWriter) *Context {
	return &Context{
		App:      app,
		Request:  req,
		Response: w,
		locals:   NewProperties(app.ContextPrototype()),
	}
}

// Locals returns the context's own property bag.
func (c *Context) Locals() *Properties {
	return c.locals
}

// Get returns a value from the context or its prototype.
func (c *Context) Get(key string) (interface{}, bool) {
	return c.locals.Get(key)
}

// Set stores a value on this context only.
func (c *Context) Set(key string, value interface{}) {
	c.locals.Store(key, value)
}

// Header returns a request header value.
func (c *Context) Header(name string) string {
	if v, ok := c.Get(ProtoGetHeader); ok {
		if get, ok := v.(func(string) (string, bool)); ok {
			if s, ok := get(name); ok {
				return s
			}
		}
	}
	if c.Request == nil {
		return ""
	}
	return c.Request.Header.Get(name)
}

// Cookie returns a request cookie value.
func (c *Context) Cookie(name string) (string, bool) {
	if v, ok := c.Get(ProtoCookies); ok {
		if cookies, ok := v.(map[string]string); ok {
			if s, ok := cookies[name]; ok {
				return s, true
			}
		}
	}
	if c.Request == nil {
		return "", false
	}
	ck, err := c.Request.Cookie(name)
	if err != nil {
		return "", false
	}
	return ck.Value, true
}

// Session returns the session data, or nil if there is none.
func (c *Context) Session() Session {
	v, _ := c.Get(ProtoSession)
	switch s := v.(type) {
	case Session:
		return s
	case map[string]interface{}:
		return Session(s)
	}
	return nil
}

// AssertCSRF checks that the request carries a CSRF token matching the csrfToken cookie.
func (c *Context) AssertCSRF() error {
	if v, ok := c.Get(ProtoAssertCSRF); ok {
		if f, ok := v.(func(*Context) error); ok {
			return f(c)
		}
	}
	token := c.Header(CSRFHeader)
	cookie, _ := c.Cookie("csrfToken")
	if token == "" || token != cookie {
		return ErrInvalidCSRF
	}
	return nil
}

// RunInBackground runs fn without blocking the request. Errors are logged by the application's
// core logger.
func (c *Context) RunInBackground(name string, fn TaskFunc) {
	if v, ok := c.Get(ProtoRunInBackground); ok {
		if run, ok := v.(BackgroundRunner); ok {
			run(c, name, fn)
			return
		}
	}
	go func() {
		_ = c.RunTask(name, fn)
	}()
}

// RunTask runs fn synchronously with this context attached to its context.Context, logging an
// error result. It is the body of every background task.
func (c *Context) RunTask(name string, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in background task %q: %v", name, r)
		}
		if err != nil && c.App != nil {
			if logger := c.App.Logger("coreLogger"); logger != nil {
				logger.Log(ldlog.Error, fmt.Sprintf("[egg:background] task %s failed: %s", name, err))
			}
		}
	}()
	return fn(WithContext(context.Background(), c))
}

// Component resolves a dot-separated path inside one of the application's loaded components,
// for instance Component("service", "user.profile").
func (c *Context) Component(field, path string) (*Properties, error) {
	root, ok := c.App.Component(field)
	if !ok {
		return nil, fmt.Errorf("component %q is not loaded", field)
	}
	if path == "" {
		return root, nil
	}
	v, ok := root.Path(path)
	if !ok {
		return nil, fmt.Errorf("%s %q not found", field, path)
	}
	p, ok := v.(*Properties)
	if !ok {
		return nil, fmt.Errorf("%s %q is not an object", field, path)
	}
	return p, nil
}

// Call invokes a method of a loaded component, for instance Call("service", "foo", "get").
func (c *Context) Call(field, path, method string, args ...interface{}) (interface{}, error) {
	target, err := c.Component(field, path)
	if err != nil {
		return nil, err
	}
	v, _ := target.Get(method)
	fn, ok := v.(Method)
	if !ok {
		return nil, fmt.Errorf("%s %q has no method %q", field, path, method)
	}
	return fn(c, args...)
}

// Service is shorthand for Call("service", ...).
func (c *Context) Service(path, method string, args ...interface{}) (interface{}, error) {
	return c.Call("service", path, method, args...)
}

type contextKey struct{}

// WithContext returns a copy of parent that carries c.
func WithContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey{}, c)
}

// FromContext returns the Context carried by ctx, if any.
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}

// ContextStorage tracks which Context is current for a chain of calls. The current context
// travels in a context.Context; GetStore can be overridden through Properties by storing a
// func(context.Context) *Context under the "getStore" key.
type ContextStorage struct {
	props *Properties
}

// StorageGetStore is the key of the GetStore override.
const StorageGetStore = "getStore"

// NewContextStorage creates an empty storage.
func NewContextStorage() *ContextStorage {
	return &ContextStorage{props: NewProperties(nil)}
}

// Properties returns the storage's overridable members.
func (s *ContextStorage) Properties() *Properties {
	return s.props
}

// Run calls fn with a context.Context derived from parent that carries c. Each call gets its own
// frame, so concurrent or nested calls never see each other's context.
func (s *ContextStorage) Run(parent context.Context, c *Context, fn func(ctx context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	return fn(WithContext(parent, c))
}

// GetStore returns the current context for ctx.
func (s *ContextStorage) GetStore(ctx context.Context) *Context {
	if v, ok := s.props.Get(StorageGetStore); ok {
		if get, ok := v.(func(context.Context) *Context); ok {
			return get(ctx)
		}
	}
	return FromContext(ctx)
}
