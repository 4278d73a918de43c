package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/harness"
)

type fakeScopedApp struct {
	readyErr error
	scopeErr error
	scopes   int
}

func (f *fakeScopedApp) Ready(context.Context) error { return f.readyErr }

func (f *fakeScopedApp) MockContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error {
	f.scopes++
	if f.scopeErr != nil {
		return f.scopeErr
	}
	return fn(ctx)
}

func withGetApp(t *testing.T, fn GetAppFunc) {
	SetGetAppCallback(fn)
	t.Cleanup(func() { SetGetAppCallback(nil) })
}

func failureMessages(results harness.Results) []string {
	var ret []string
	for _, err := range results.Errors() {
		ret = append(ret, err.Error())
	}
	return ret
}

func TestInjectContextRunsTestsInScope(t *testing.T) {
	app := readyApp(t, "demo")
	withGetApp(t, func(context.Context, *harness.Suite, *harness.Test) (ScopedApp, error) {
		return app, nil
	})

	r := harness.NewRunner()
	InjectContext(r)
	InjectContext(r)

	var seen []*egg.Context
	r.Root().Describe("suite", func(s *harness.Suite) {
		s.It("first", func(c *harness.Context) {
			seen = append(seen, app.CtxStorage().GetStore(c.Ctx()))
		})
		s.It("second", func(c *harness.Context) {
			seen = append(seen, app.CtxStorage().GetStore(c.Ctx()))
		})
	})
	results := r.Run(context.Background())
	assert.True(t, results.OK(), failureMessages(results))

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	require.NotNil(t, seen[1])
	assert.NotSame(t, seen[0], seen[1])
}

func TestInjectContextWrapsOnlyOnce(t *testing.T) {
	fake := &fakeScopedApp{}
	withGetApp(t, func(context.Context, *harness.Suite, *harness.Test) (ScopedApp, error) {
		return fake, nil
	})
	r := harness.NewRunner()
	InjectContext(r)
	InjectContext(r)
	r.Root().It("test", func(*harness.Context) {})
	r.Run(context.Background())

	// one scope for the root suite and one for the test
	assert.Equal(t, 2, fake.scopes)
}

func TestInjectContextSuiteRunsUnscopedWhenAppFails(t *testing.T) {
	withGetApp(t, func(_ context.Context, _ *harness.Suite, test *harness.Test) (ScopedApp, error) {
		if test == nil {
			return nil, errors.New("no app for suite")
		}
		return &fakeScopedApp{}, nil
	})
	r := harness.NewRunner()
	InjectContext(r)
	ran := false
	r.Root().It("test", func(*harness.Context) { ran = true })
	results := r.Run(context.Background())

	assert.True(t, ran)
	assert.True(t, results.OK(), failureMessages(results))
}

func TestInjectContextSuiteScopeFailure(t *testing.T) {
	suiteApp := &fakeScopedApp{scopeErr: errors.New("no scope")}
	withGetApp(t, func(_ context.Context, _ *harness.Suite, test *harness.Test) (ScopedApp, error) {
		if test == nil {
			return suiteApp, nil
		}
		return &fakeScopedApp{}, nil
	})
	r := harness.NewRunner()
	InjectContext(r)
	ran := false
	r.Root().Describe("suite", func(s *harness.Suite) {
		s.It("test", func(*harness.Context) { ran = true })
	})
	results := r.Run(context.Background())

	assert.False(t, ran)
	assert.False(t, results.OK())
	assert.Contains(t, failureMessages(results)[0], "failed to create context scope for suite: no scope")
}

func TestInjectContextTestFailures(t *testing.T) {
	withGetApp(t, func(_ context.Context, _ *harness.Suite, test *harness.Test) (ScopedApp, error) {
		switch {
		case test == nil:
			return &fakeScopedApp{}, nil
		case test.Name == "not ready":
			return &fakeScopedApp{readyErr: errors.New("boot failed")}, nil
		case test.Name == "no scope":
			return &fakeScopedApp{scopeErr: errors.New("scope failed")}, nil
		}
		return &fakeScopedApp{}, nil
	})
	r := harness.NewRunner()
	InjectContext(r)
	var ran []string
	for _, name := range []string{"not ready", "no scope", "fine"} {
		name := name
		r.Root().It(name, func(*harness.Context) { ran = append(ran, name) })
	}
	results := r.Run(context.Background())

	assert.Equal(t, []string{"fine"}, ran)
	messages := failureMessages(results)
	require.Len(t, messages, 2)
	assert.Equal(t, "[not ready]: boot failed", messages[0])
	assert.Equal(t, "[no scope]: failed to create context scope for test: scope failed", messages[1])
}

func TestInjectContextKeepsTestFailures(t *testing.T) {
	withGetApp(t, func(context.Context, *harness.Suite, *harness.Test) (ScopedApp, error) {
		return &fakeScopedApp{}, nil
	})
	r := harness.NewRunner()
	InjectContext(r)
	r.Root().It("fails", func(c *harness.Context) {
		assert.Equal(c, 1, 2)
	})
	results := r.Run(context.Background())
	assert.False(t, results.OK())
}

func TestRegisterHooks(t *testing.T) {
	t.Setenv(EnvBaseDir, fixturePath(t, "demo"))
	t.Setenv(EnvParallel, "")

	r := harness.NewRunner()
	RegisterHooks(r)
	var app *MockApplication
	r.Root().It("mocks a service", func(c *harness.Context) {
		var err error
		app, err = Bootstrap()
		require.NoError(c, err)
		require.NoError(c, app.MockService("foo", "get", "mocked"))
		app.HTTPRequest().Get("/foo").Expect(c, 200, "mocked")
		app.HTTPRequest().Get("/background").Expect(c, 200)
	})
	r.Root().It("sees the restored service", func(c *harness.Context) {
		app.HTTPRequest().Get("/foo").Expect(c, 200, "bar")
	})
	results := r.Run(context.Background())
	assert.True(t, results.OK(), failureMessages(results))
	require.NotNil(t, app)
	assert.True(t, app.IsClosed())
}

func TestRegisterHooksReportsBootstrapFailure(t *testing.T) {
	t.Setenv(EnvBaseDir, fixturePath(t, "plugin-dir"))
	r := harness.NewRunner()
	RegisterHooks(r)
	ran := false
	r.Root().It("test", func(*harness.Context) { ran = true })
	results := r.Run(context.Background())
	assert.False(t, ran)
	assert.False(t, results.OK())
}
