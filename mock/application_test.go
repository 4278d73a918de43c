package mock

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/egg"
)

func TestAccessBeforeReady(t *testing.T) {
	app := newApp(t, Options{BaseDir: "demo"})

	_, err := app.Get("config")
	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, err.Error(), "config")
	assert.Contains(t, err.Error(), "before ready")

	assert.EqualError(t, app.Set("foo", 1), "can't set foo before ready")
	assert.EqualError(t, app.Delete("foo"), "can't delete foo before ready")
	_, _, err = app.Describe("foo")
	assert.EqualError(t, err, "can't getOwnPropertyDescriptor foo before ready")
	_, err = app.Underlying()
	assert.EqualError(t, err, "can't getPrototypeOf before ready")
	assert.PanicsWithError(t, "can't get config before ready", func() { app.Config() })
	assert.PanicsWithError(t, "can't get mockSession before ready", func() { app.MockSession(nil) })
	assert.EqualError(t, app.MockService("foo", "get", "x"), "can't get mockService before ready")

	assert.False(t, app.IsClosed())
	assert.Nil(t, app.App())
	assert.Nil(t, app.Agent())
}

func TestAccessAfterReady(t *testing.T) {
	app := readyApp(t, "demo")

	v, err := app.Get("config")
	require.NoError(t, err)
	cfg, ok := v.(*egg.Config)
	require.True(t, ok)
	assert.Equal(t, "demo", cfg.Name())
	assert.Equal(t, "demo", app.Config().Name())

	v, err = app.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "demo", v)
	v, err = app.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, app.Set("answer", 42))
	v, ok, err = app.Describe("answer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	require.NoError(t, app.Delete("answer"))
	_, ok, _ = app.Describe("answer")
	assert.False(t, ok)

	underlying, err := app.Underlying()
	require.NoError(t, err)
	assert.Equal(t, app.App(), underlying)
	assert.NotNil(t, app.Agent())
	assert.Equal(t, app.Agent(), app.App().Agent())
	assert.Equal(t, app.App(), app.Agent().App())
}

func TestReadyBootsOnce(t *testing.T) {
	calls := 0
	app := newApp(t, Options{BaseDir: "demo", BeforeInit: func(ctx context.Context, m Manager) error {
		calls++
		return nil
	}})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = app.Ready(testContext(t))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	require.NoError(t, app.Ready(testContext(t)))
	assert.Equal(t, 1, calls)
}

func TestAppIsCachedUntilClosed(t *testing.T) {
	app1 := newApp(t, Options{BaseDir: "demo"})
	app2 := newApp(t, Options{BaseDir: "demo"})
	assert.Same(t, app1, app2)

	require.NoError(t, app1.Close(context.Background()))
	assert.True(t, app1.IsClosed())

	app3 := newApp(t, Options{BaseDir: "demo"})
	assert.NotSame(t, app1, app3)
}

func TestAppWithoutCache(t *testing.T) {
	app1 := newApp(t, Options{BaseDir: "demo", Cache: boolPtr(false)})
	app2 := newApp(t, Options{BaseDir: "demo", Cache: boolPtr(false)})
	assert.NotSame(t, app1, app2)
}

func TestBootErrorIsReturnedAndEmitted(t *testing.T) {
	app := newApp(t, Options{BaseDir: "app-boot-error"})
	emitted := make(chan error, 1)
	app.On("error", func(args ...interface{}) {
		if err, ok := args[0].(error); ok {
			emitted <- err
		}
	})

	assert.EqualError(t, app.Ready(testContext(t)), "boot failed")
	select {
	case err := <-emitted:
		assert.EqualError(t, err, "boot failed")
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for error event")
	}
	assert.EqualError(t, app.Ready(testContext(t)), "boot failed")
	assert.NoError(t, app.Close(context.Background()))
}

func TestAgentBootError(t *testing.T) {
	app := newApp(t, Options{BaseDir: "agent-boot-error"})
	assert.EqualError(t, app.Ready(testContext(t)), "agent boot failed")
	assert.Nil(t, app.App())
	assert.NoError(t, app.Close(context.Background()))
}

func TestBeforeInitError(t *testing.T) {
	app := newApp(t, Options{BaseDir: "demo", Cache: boolPtr(false), BeforeInit: func(context.Context, Manager) error {
		return assert.AnError
	}})
	assert.Equal(t, assert.AnError, app.Ready(testContext(t)))
}

func TestListenersRegisteredBeforeReadyAreMoved(t *testing.T) {
	app := newApp(t, Options{BaseDir: "demo"})
	var lock sync.Mutex
	var got []interface{}
	app.On("custom", func(args ...interface{}) {
		lock.Lock()
		got = append(got, args[0])
		lock.Unlock()
	})
	onceCalls := 0
	app.Once("early", func(...interface{}) { onceCalls++ })

	assert.True(t, app.Emit("early"))
	require.NoError(t, app.Ready(testContext(t)))

	app.Emit("custom", 1)
	app.Emit("custom", 2)
	app.Emit("early")
	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, []interface{}{1, 2}, got)
	assert.Equal(t, 1, onceCalls)
}

func TestServerEvent(t *testing.T) {
	app := newApp(t, Options{BaseDir: "demo"})
	servers := make(chan *http.Server, 1)
	app.On("server", func(args ...interface{}) {
		if s, ok := args[0].(*http.Server); ok {
			servers <- s
		}
	})
	require.NoError(t, app.Ready(testContext(t)))
	select {
	case s := <-servers:
		assert.Same(t, app.Server(), s)
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for server event")
	}
}

func TestEggReadyIsDelivered(t *testing.T) {
	app := readyApp(t, "demo")
	v, _ := app.Properties().Get("eggReady")
	assert.Equal(t, true, v)
	v, _ = app.Agent().Properties().Get("eggReady")
	assert.Equal(t, true, v)
}

func TestMessagesAreRelayed(t *testing.T) {
	app := readyApp(t, "demo")
	app.Messenger().SendToAgent("ping", "x")
	require.Eventually(t, func() bool {
		v, _ := app.Properties().Get("pong")
		return v == "x"
	}, time.Second, 10*time.Millisecond)
}

func TestCloseWithoutReady(t *testing.T) {
	app := newApp(t, Options{BaseDir: "demo"})
	start := time.Now()
	require.NoError(t, app.Close(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), closeGrace)
	assert.True(t, app.IsClosed())
}

func TestHTTPRequest(t *testing.T) {
	app := readyApp(t, "demo")
	app.HTTPRequest().Get("/").Expect(t, 200, "hello world")
	app.HTTPRequest().Get("user", "id", "1").Expect(t, 200, "user")
	_, err := app.HTTPRequest().Get("nope").Do(context.Background())
	assert.EqualError(t, err, "Can't find router:nope, please check your router")
}
