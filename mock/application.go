package mock

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/httpmock"
	"github.com/launchdarkly/egg-mock/internal/ports"
	"github.com/launchdarkly/egg-mock/supertest"
)

// MockApplication is an egg application booted in the test process, together with its agent.
//
// Construction does not boot anything; the first call to Ready does, and every later call
// waits for the same boot. Until boot has constructed the framework's application, only Ready,
// Close, IsClosed, Agent, App, On, Once and Emit may be used. The property operations (Get,
// Set, Define, Delete, Describe and Underlying) return a *NotReadyError before that point, and
// every other method panics with one.
type MockApplication struct {
	lifecycle
	opts    Options
	appOnly bool
	agent   egg.Agent
	app     egg.Application
	ext     *Extension
	relay   *relay
	server  *http.Server
}

func newMockApplication(opts Options, appOnly bool) *MockApplication {
	return &MockApplication{opts: opts, appOnly: appOnly}
}

// BaseDir returns the formatted base directory.
func (a *MockApplication) BaseDir() string {
	return a.opts.BaseDir
}

// Ready boots the application the first time it is called and waits for boot to finish. A boot
// failure is also emitted as an "error" event.
func (a *MockApplication) Ready(ctx context.Context) error {
	return a.ready(ctx, a.init)
}

func (a *MockApplication) takeBeforeInit() func(context.Context, Manager) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	fn := a.opts.BeforeInit
	a.opts.BeforeInit = nil
	return fn
}

func (a *MockApplication) clusterPort() (int, error) {
	if !a.appOnly {
		return ports.Ephemeral()
	}
	if a.opts.ClusterPort != 0 {
		return a.opts.ClusterPort, nil
	}
	if port, err := strconv.Atoi(os.Getenv(EnvClusterPort)); err == nil && port > 0 {
		return port, nil
	}
	return 0, fmt.Errorf("cannot get env.%s, parallel run fail", EnvClusterPort)
}

func (a *MockApplication) init(ctx context.Context) error {
	if fn := a.takeBeforeInit(); fn != nil {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	if a.opts.clean() && !a.appOnly {
		platformGrace(ctx)
		cleanDirs(a.opts.BaseDir, "logs", "run")
	}

	port, err := a.clusterPort()
	if err != nil {
		return err
	}
	loggers.Debugf("get clusterPort %d", port)
	fw, ok := egg.Lookup(a.opts.Framework)
	if !ok {
		return fmt.Errorf("framework %q is not registered (registered: %s)", a.opts.Framework, strings.Join(egg.Frameworks(), ", "))
	}
	eggOpts := a.opts.EggOptions()
	eggOpts.ClusterPort = port

	r := newRelay()
	a.lock.Lock()
	a.relay = r
	a.lock.Unlock()

	var agent egg.Agent
	if !a.appOnly {
		agent, err = fw.NewAgent(eggOpts)
		if err != nil {
			return err
		}
		a.lock.Lock()
		a.agent = agent
		a.lock.Unlock()
		r.connect(agent.Messenger(), egg.ToAgent)
		loggers.Debug("agent instantiate")
		if err := agent.Ready(ctx); err != nil {
			return err
		}
		loggers.Debug("agent ready")
	}

	app, err := fw.NewApplication(eggOpts)
	if err != nil {
		return err
	}
	r.connect(app.Messenger(), egg.ToApp)
	if agent != nil {
		app.SetAgent(agent)
		agent.SetApp(app)
	}
	ext := ExtensionFor(app)
	ext.lock.Lock()
	ext.mockCtxStorage = a.opts.mockCtxStorage()
	ext.lock.Unlock()
	a.lock.Lock()
	a.app, a.ext = app, ext
	a.lock.Unlock()
	loggers.Debug("app instantiate")

	a.bind(app)
	server := &http.Server{Handler: app.Handler()}
	a.lock.Lock()
	a.server = server
	a.lock.Unlock()
	app.Emit("server", server)

	if err := app.Ready(ctx); err != nil {
		return err
	}
	ext.registerCustomLoaders()

	msg := egg.Message{Action: egg.ActionEggReady, Data: eggOpts}
	r.markAgentReady()
	app.Messenger().OnMessage(msg)
	if agent != nil {
		agent.Messenger().OnMessage(msg)
	}
	loggers.Debug("app ready")
	return nil
}

// Close shuts down the application and its agent and removes it from the cache. It is safe to
// call on an application whose boot failed or never started.
func (a *MockApplication) Close(ctx context.Context) error {
	a.markClosed()
	a.lock.RLock()
	app, agent, r := a.app, a.agent, a.relay
	a.lock.RUnlock()

	var err error
	if app != nil {
		err = app.Close(ctx)
		forgetExtension(app)
	} else {
		sleep(ctx, closeGrace)
	}
	if agent != nil {
		if agentErr := agent.Close(ctx); err == nil {
			err = agentErr
		}
	}
	if r != nil {
		r.stop()
	}
	evict(a)
	platformGrace(ctx)
	return err
}

// Agent returns the framework's agent, or nil if boot has not constructed it.
func (a *MockApplication) Agent() egg.Agent {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.agent
}

// App returns the framework's application, or nil if boot has not constructed it.
func (a *MockApplication) App() egg.Application {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.app
}

func (a *MockApplication) current(op, property string) (egg.Application, *Extension, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	if a.target == nil {
		return nil, nil, &NotReadyError{Op: op, Property: property}
	}
	return a.app, a.ext, nil
}

func (a *MockApplication) mustApp(property string) egg.Application {
	app, _, err := a.current("get", property)
	if err != nil {
		panic(err)
	}
	return app
}

func (a *MockApplication) mustExt(property string) *Extension {
	_, ext, err := a.current("get", property)
	if err != nil {
		panic(err)
	}
	return ext
}

// Get returns a member of the application: config, agent, router, httpclient, server, or one
// of its dynamic properties. Absent members are nil.
func (a *MockApplication) Get(name string) (interface{}, error) {
	app, _, err := a.current("get", name)
	if err != nil {
		return nil, err
	}
	switch name {
	case "config":
		return app.Config(), nil
	case "agent":
		return app.Agent(), nil
	case "router":
		return app.Router(), nil
	case "httpclient":
		return app.HTTPClient(), nil
	case "server":
		a.lock.RLock()
		defer a.lock.RUnlock()
		return a.server, nil
	}
	v, _ := app.Properties().Get(name)
	return v, nil
}

// Set stores a dynamic property of the application.
func (a *MockApplication) Set(name string, value interface{}) error {
	app, _, err := a.current("set", name)
	if err != nil {
		return err
	}
	app.Properties().Store(name, value)
	return nil
}

// Define is Set under the name of the operation that defines a property.
func (a *MockApplication) Define(name string, value interface{}) error {
	app, _, err := a.current("defineProperty", name)
	if err != nil {
		return err
	}
	app.Properties().Store(name, value)
	return nil
}

// Delete removes a dynamic property of the application.
func (a *MockApplication) Delete(name string) error {
	app, _, err := a.current("delete", name)
	if err != nil {
		return err
	}
	app.Properties().Delete(name)
	return nil
}

// Describe returns a dynamic property that the application holds itself, without looking at
// inherited values.
func (a *MockApplication) Describe(name string) (interface{}, bool, error) {
	app, _, err := a.current("getOwnPropertyDescriptor", name)
	if err != nil {
		return nil, false, err
	}
	v, ok := app.Properties().Lookup(name)
	return v, ok, nil
}

// Underlying returns the framework's application.
func (a *MockApplication) Underlying() (egg.Application, error) {
	app, _, err := a.current("getPrototypeOf", "")
	return app, err
}

func (a *MockApplication) Config() *egg.Config { return a.mustApp("config").Config() }

func (a *MockApplication) Messenger() egg.Messenger { return a.mustApp("messenger").Messenger() }

func (a *MockApplication) Handler() http.Handler { return a.mustApp("handler").Handler() }

func (a *MockApplication) Router() egg.Router { return a.mustApp("router").Router() }

func (a *MockApplication) CtxStorage() *egg.ContextStorage {
	return a.mustApp("ctxStorage").CtxStorage()
}

func (a *MockApplication) HTTPClient() *egg.HTTPClient { return a.mustApp("httpclient").HTTPClient() }

func (a *MockApplication) Logger(name string) egg.Logger { return a.mustApp("logger").Logger(name) }

func (a *MockApplication) Loggers() *egg.Properties { return a.mustApp("loggers").Loggers() }

func (a *MockApplication) Component(field string) (*egg.Properties, bool) {
	return a.mustApp(field).Component(field)
}

func (a *MockApplication) ContextPrototype() *egg.Properties {
	return a.mustApp("context").ContextPrototype()
}

func (a *MockApplication) Properties() *egg.Properties {
	return a.mustApp("properties").Properties()
}

// Server returns the HTTP server that wraps the application's handler. It is not listening;
// it exists for code that expects an application to have one.
func (a *MockApplication) Server() *http.Server {
	a.mustApp("server")
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.server
}

// Extension returns the mocking helpers of the application.
func (a *MockApplication) Extension() *Extension { return a.mustExt("extension") }

func (a *MockApplication) MockContext(ctx context.Context, data map[string]interface{}, opts ...ContextOptions) *egg.Context {
	return a.mustExt("mockContext").MockContext(ctx, data, opts...)
}

func (a *MockApplication) MockContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error {
	_, ext, err := a.current("get", "mockContextScope")
	if err != nil {
		return err
	}
	return ext.MockContextScope(ctx, fn, data)
}

func (a *MockApplication) MockModuleContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error {
	_, ext, err := a.current("get", "mockModuleContextScope")
	if err != nil {
		return err
	}
	return ext.MockModuleContextScope(ctx, fn, data)
}

func (a *MockApplication) MockService(service, method string, data interface{}) error {
	_, ext, err := a.current("get", "mockService")
	if err != nil {
		return err
	}
	return ext.MockService(service, method, data)
}

func (a *MockApplication) MockServiceError(service, method string, e error) error {
	_, ext, err := a.current("get", "mockServiceError")
	if err != nil {
		return err
	}
	return ext.MockServiceError(service, method, e)
}

// MockCustom mocks a method of a component loaded by a custom loader, as the mock<Field>
// method of that loader would.
func (a *MockApplication) MockCustom(field, path, method string, data interface{}) error {
	_, ext, err := a.current("get", customMethodName(field))
	if err != nil {
		return err
	}
	return ext.MockCustom(field, path, method, data)
}

func (a *MockApplication) MockSession(data map[string]interface{}) {
	a.mustExt("mockSession").MockSession(data)
}

func (a *MockApplication) MockCookies(cookies map[string]string) {
	a.mustExt("mockCookies").MockCookies(cookies)
}

func (a *MockApplication) MockHeaders(headers map[string]string) {
	a.mustExt("mockHeaders").MockHeaders(headers)
}

func (a *MockApplication) MockCsrf() { a.mustExt("mockCsrf").MockCsrf() }

func (a *MockApplication) MockEnv(env string) { a.mustExt("mockEnv").MockEnv(env) }

func (a *MockApplication) MockHTTPClient(mockURL interface{}, args ...interface{}) error {
	_, ext, err := a.current("get", "mockHttpclient")
	if err != nil {
		return err
	}
	return ext.MockHTTPClient(mockURL, args...)
}

func (a *MockApplication) MockAgent() *httpmock.Agent { return a.mustExt("mockAgent").MockAgent() }

func (a *MockApplication) MockAgentRestore() { a.mustExt("mockAgentRestore").MockAgentRestore() }

func (a *MockApplication) MockRestore(ctx context.Context) error {
	return Restore(ctx)
}

func (a *MockApplication) MockLog(logger string) error {
	_, ext, err := a.current("get", "mockLog")
	if err != nil {
		return err
	}
	return ext.MockLog(logger)
}

func (a *MockApplication) ExpectLog(pattern interface{}, logger string) error {
	_, ext, err := a.current("get", "expectLog")
	if err != nil {
		return err
	}
	return ext.ExpectLog(pattern, logger)
}

func (a *MockApplication) NotExpectLog(pattern interface{}, logger string) error {
	_, ext, err := a.current("get", "notExpectLog")
	if err != nil {
		return err
	}
	return ext.NotExpectLog(pattern, logger)
}

func (a *MockApplication) ExpectLogEventually(ctx context.Context, pattern interface{}, logger string) error {
	_, ext, err := a.current("get", "expectLogEventually")
	if err != nil {
		return err
	}
	return ext.ExpectLogEventually(ctx, pattern, logger)
}

func (a *MockApplication) BackgroundTasksFinished(ctx context.Context) error {
	_, ext, err := a.current("get", "backgroundTasksFinished")
	if err != nil {
		return err
	}
	return ext.BackgroundTasksFinished(ctx)
}

// HTTPRequest returns a request builder that calls the application's handler directly.
func (a *MockApplication) HTTPRequest() *supertest.Agent {
	app := a.mustApp("httpRequest")
	return supertest.NewForHandler(app.Handler(), app.Router())
}

var _ Manager = (*MockApplication)(nil)
