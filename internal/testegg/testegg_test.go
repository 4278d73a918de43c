package testegg

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/internal/ports"
)

const demoConfig = `
name = "demo"

[[route]]
name = "home"
method = "GET"
path = "/"
handler = "text"
body = "hello world"

[[route]]
name = "user"
method = "GET"
path = "/users/{id}"
handler = "text"
body = "user"

[[route]]
name = "foo"
method = "GET"
path = "/foo"
handler = "service"
service = "foo"
call = "get"

[[route]]
name = "submit"
method = "POST"
path = "/submit"
handler = "text"
body = "submitted"

[[route]]
name = "log"
method = "GET"
path = "/log"
handler = "log"
body = "hello log"

[service.foo]
get = "bar"

[customLoader.adapter]
directory = "app/adapter"
inject = "app"

[adapter.docs]
get = "docs"
`

func withApp(t *testing.T, config string, action func(app *Application)) {
	helpers.WithTempDir(func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(config), 0o644))
		app, err := NewApplication(egg.Options{BaseDir: dir})
		require.NoError(t, err)
		defer app.Close(context.Background()) //nolint:errcheck
		require.NoError(t, app.Ready(context.Background()))
		action(app)
	})
}

func get(t *testing.T, h http.Handler, method, path string) (int, string) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestApplicationServesRoutes(t *testing.T) {
	withApp(t, demoConfig, func(app *Application) {
		status, body := get(t, app.Handler(), "GET", "/")
		assert.Equal(t, 200, status)
		assert.Equal(t, "hello world", body)

		status, body = get(t, app.Handler(), "GET", "/foo")
		assert.Equal(t, 200, status)
		assert.Equal(t, "bar", body)
	})
}

func TestSecuritiesRejectsPostWithoutCSRFToken(t *testing.T) {
	withApp(t, demoConfig, func(app *Application) {
		status, _ := get(t, app.Handler(), "POST", "/submit")
		assert.Equal(t, 403, status)

		app.ContextPrototype().Store(egg.ProtoAssertCSRF, func(*egg.Context) error { return nil })
		status, body := get(t, app.Handler(), "POST", "/submit")
		assert.Equal(t, 200, status)
		assert.Equal(t, "submitted", body)
	})
}

func TestDisabledSecurities(t *testing.T) {
	withApp(t, "coreMiddleware = []\n"+demoConfig, func(app *Application) {
		status, _ := get(t, app.Handler(), "POST", "/submit")
		assert.Equal(t, 200, status)
	})
}

func TestRouterPathFor(t *testing.T) {
	withApp(t, demoConfig, func(app *Application) {
		p, err := app.Router().PathFor("user", "id", "42")
		require.NoError(t, err)
		assert.Equal(t, "/users/42", p)

		_, err = app.Router().PathFor("nope")
		assert.Error(t, err)
	})
}

func TestComponentsAndConfig(t *testing.T) {
	withApp(t, demoConfig, func(app *Application) {
		assert.Equal(t, "demo", app.Config().Name())
		assert.Equal(t, []string{"securities"}, app.Config().CoreMiddleware())
		assert.Equal(t, "app", app.Config().CustomLoaders()["adapter"].Inject)

		adapter, ok := app.Component("adapter")
		require.True(t, ok)
		c := app.CreateContext(httptest.NewRequest("GET", "/", nil), httptest.NewRecorder())
		result, err := c.Call("adapter", "docs", "get")
		require.NoError(t, err)
		assert.Equal(t, "docs", result)
		assert.True(t, adapter.Has("docs"))
	})
}

func TestLoggerWritesFile(t *testing.T) {
	withApp(t, demoConfig, func(app *Application) {
		status, _ := get(t, app.Handler(), "GET", "/log")
		assert.Equal(t, 200, status)
		file := app.Logger(LoggerName).Filename()
		assert.Equal(t, filepath.Join(app.Options().BaseDir, "logs", "demo", "logger.log"), file)
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Contains(t, string(data), "INFO")
		assert.Contains(t, string(data), "hello log")
	})
}

func TestBootError(t *testing.T) {
	helpers.WithTempDir(func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`bootError = "boom"`), 0o644))
		app, err := NewApplication(egg.Options{BaseDir: dir})
		require.NoError(t, err)
		assert.EqualError(t, app.Ready(context.Background()), "boom")
	})
}

func TestMalformedConfig(t *testing.T) {
	helpers.WithTempDir(func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`name = `), 0o644))
		_, err := NewApplication(egg.Options{BaseDir: dir})
		assert.Error(t, err)
	})
}

func TestStartCluster(t *testing.T) {
	helpers.WithTempDir(func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(demoConfig), 0o644))
		port, err := ports.Ephemeral()
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		messages := make(chan egg.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- Framework{}.StartCluster(ctx, egg.Options{BaseDir: dir, Port: port}, func(m egg.Message) { messages <- m })
		}()

		select {
		case m := <-messages:
			assert.Equal(t, egg.ActionEggReady, m.Action)
		case <-time.After(5 * time.Second):
			require.Fail(t, "timed out waiting for egg-ready")
		}

		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, "hello world", string(body))

		cancel()
		assert.NoError(t, <-done)
	})
}

func TestStartClusterReportsWorkerDeath(t *testing.T) {
	helpers.WithTempDir(func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`bootError = "boom"`), 0o644))
		var got []egg.Message
		err := Framework{}.StartCluster(context.Background(), egg.Options{BaseDir: dir}, func(m egg.Message) { got = append(got, m) })
		assert.Error(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, egg.ActionAppWorkerDied, got[0].Action)
	})
}

func TestClusterMessengers(t *testing.T) {
	agent := egg.NewBaseMessenger(egg.ToAgent)
	app := egg.NewBaseMessenger(egg.ToApp)
	connectMessengers(agent, app)

	received := make(chan interface{}, 1)
	app.On("pong", func(data interface{}) { received <- data })
	agent.On("ping", func(data interface{}) { agent.SendRandom("pong", data) })
	app.SendToAgent("ping", "x")

	select {
	case data := <-received:
		assert.Equal(t, "x", data)
	case <-time.After(time.Second):
		require.Fail(t, "timed out")
	}
}
