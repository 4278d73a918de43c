package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/httpmock"
	"github.com/launchdarkly/egg-mock/mm"
	"github.com/launchdarkly/egg-mock/rpc"
)

// ServiceComponent is the component that MockService works on.
const ServiceComponent = "service"

// MockService replaces a service method. service is a dot-separated path such as "user.profile".
//
// data is what the method should do: an egg.Method (or a function of the same shape) or an
// rpc.Func is called in its place, an error is returned as the method's error, and anything
// else is returned as its result.
func (e *Extension) MockService(service, method string, data interface{}) error {
	return e.MockCustom(ServiceComponent, service, method, data)
}

// MockServiceError makes a service method fail with err, or with "mock <method> error" if err
// is nil.
func (e *Extension) MockServiceError(service, method string, err error) error {
	if err == nil {
		err = fmt.Errorf("mock %s error", method)
	}
	return e.MockService(service, method, err)
}

// MockCustom replaces a method of a component loaded by a custom loader. It is what the
// mock<Field> methods registered for custom loaders call.
func (e *Extension) MockCustom(field, path, method string, data interface{}) error {
	root, ok := e.app.Component(field)
	if !ok {
		return fmt.Errorf("component %s is not loaded", field)
	}
	target := root
	if path != "" {
		v, ok := root.Path(path)
		if !ok {
			return fmt.Errorf("%s %s not found", field, path)
		}
		if target, ok = v.(*egg.Properties); !ok {
			return fmt.Errorf("%s %s is not an object", field, path)
		}
	}
	return mockFn(target, method, data)
}

func mockFn(target *egg.Properties, method string, data interface{}) error {
	original, _ := target.Get(method)
	if _, ok := original.(egg.Method); !ok {
		return fmt.Errorf("property %s in original object must be function", method)
	}
	mm.Mock(target, method, toMethod(data))
	return nil
}

func toMethod(data interface{}) egg.Method {
	switch d := data.(type) {
	case egg.Method:
		return d
	case func(*egg.Context, ...interface{}) (interface{}, error):
		return d
	case rpc.Func:
		return func(c *egg.Context, args ...interface{}) (interface{}, error) {
			return d(egg.WithContext(context.Background(), c), args)
		}
	case func(ctx context.Context, args []interface{}) (interface{}, error):
		return toMethod(rpc.Func(d))
	case error:
		return func(*egg.Context, ...interface{}) (interface{}, error) {
			return nil, d
		}
	}
	return func(*egg.Context, ...interface{}) (interface{}, error) {
		return data, nil
	}
}

// customMethodName returns the name of the method that mocks the custom loader field, such as
// mockAdapter for adapter.
func customMethodName(field string) string {
	if field == "" {
		return ""
	}
	return "mock" + strings.ToUpper(field[:1]) + field[1:]
}

// registerCustomLoaders makes mock<Field> available for every custom loader in the
// application config. A name that is taken already is not overridden.
func (e *Extension) registerCustomLoaders() {
	loaders := e.app.Config().CustomLoaders()
	fields := make([]string, 0, len(loaders))
	for field := range loaders {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	e.lock.Lock()
	defer e.lock.Unlock()
	if e.customs == nil {
		e.customs = make(map[string]string)
	}
	for _, field := range fields {
		name := customMethodName(field)
		if _, builtin := rpcMethods[name]; builtin || e.customs[name] != "" {
			if l := e.app.Logger("coreLogger"); l != nil {
				l.Log(ldlog.Warn, fmt.Sprintf("Can't override app.%s", name))
			}
			continue
		}
		loggers.Debugf("[addMethod] %s => %s", name, field)
		e.customs[name] = field
	}
}

// customField returns the custom loader field that a mock<Field> method name was registered
// for.
func (e *Extension) customField(name string) (string, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	field, ok := e.customs[name]
	return field, ok
}

// MockSession sets the session of every context. A nil map does nothing.
func (e *Extension) MockSession(data map[string]interface{}) {
	if data == nil {
		return
	}
	mm.Mock(e.app.ContextPrototype(), egg.ProtoSession, egg.Session(copyMap(data)))
}

// MockCookies makes contexts see the given cookie values before those of the request.
// Repeated calls add to each other until Restore.
func (e *Extension) MockCookies(cookies map[string]string) {
	if cookies == nil {
		return
	}
	proto := e.app.ContextPrototype()
	merged := make(map[string]string)
	if v, ok := proto.Get(egg.ProtoCookies); ok {
		if prev, ok := v.(map[string]string); ok {
			for k, s := range prev {
				merged[k] = s
			}
		}
	}
	for k, s := range cookies {
		merged[k] = s
	}
	mm.Mock(proto, egg.ProtoCookies, merged)
}

// MockHeaders makes contexts see the given header values before those of the request. Names
// are matched case-insensitively.
func (e *Extension) MockHeaders(headers map[string]string) {
	if headers == nil {
		return
	}
	proto := e.app.ContextPrototype()
	var prev func(string) (string, bool)
	if v, ok := proto.Get(egg.ProtoGetHeader); ok {
		prev, _ = v.(func(string) (string, bool))
	}
	values := make(map[string]string, len(headers))
	for k, s := range headers {
		values[strings.ToLower(k)] = s
	}
	mm.Mock(proto, egg.ProtoGetHeader, func(name string) (string, bool) {
		if s, ok := values[strings.ToLower(name)]; ok && s != "" {
			return s, true
		}
		if prev != nil {
			return prev(name)
		}
		return "", false
	})
}

// MockCsrf disables the CSRF check.
func (e *Extension) MockCsrf() {
	mm.Mock(e.app.ContextPrototype(), egg.ProtoAssertCSRF, func(*egg.Context) error { return nil })
}

// MockEnv changes the env and serverEnv of the application config.
func (e *Extension) MockEnv(env string) {
	cfg := e.app.Config()
	mm.Mock(cfg.Properties, egg.ConfigEnv, env)
	mm.Mock(cfg.Properties, egg.ConfigServerEnv, env)
}

// MockHTTPClient registers a mock rule for outbound requests; see httpmock.Client.Mock for the
// argument forms.
func (e *Extension) MockHTTPClient(mockURL interface{}, args ...interface{}) error {
	return e.httpMock.Mock(mockURL, args...)
}

// MockAgent returns the process-wide HTTP mock agent, installing it on the application's HTTP
// client if needed.
func (e *Extension) MockAgent() *httpmock.Agent {
	return e.httpMock.Agent()
}

// MockAgentRestore removes the HTTP mock agent and every rule.
func (e *Extension) MockAgentRestore() {
	httpmock.Restore()
}

// MockRestore undoes every mock; see Restore.
func (e *Extension) MockRestore(ctx context.Context) error {
	return Restore(ctx)
}
