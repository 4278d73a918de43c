package cluster

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/bootstrap"
	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/httpmock"
	_ "github.com/launchdarkly/egg-mock/internal/testegg"
	"github.com/launchdarkly/egg-mock/mock"
	"github.com/launchdarkly/egg-mock/rpc"
)

const testTimeout = 30 * time.Second

func TestMain(m *testing.M) {
	bootstrap.Main(m)
}

func upperGreeting(c *egg.Context, args ...interface{}) (interface{}, error) {
	return "HELLO FROM FUNC", nil
}

func init() {
	rpc.RegisterFunc("cluster.upperGreeting", upperGreeting)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func startCluster(t *testing.T, opts Options) *Cluster {
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close(context.Background()))
	})
	return c
}

func demoCluster(t *testing.T, opts Options) *Cluster {
	opts.BaseDir = "demo"
	opts.Cache = boolPtr(false)
	c := startCluster(t, opts)
	require.NoError(t, c.Ready(testContext(t)))
	return c
}

func boolPtr(v bool) *bool { return &v }

func TestClusterServesRequests(t *testing.T) {
	c := demoCluster(t, Options{})

	assert.NotZero(t, c.Port())
	assert.NotNil(t, c.Process())
	c.HTTPRequest().Get("/").Expect(t, 200, "hello world")
	c.HTTPRequest().Get("user", "id", "3").Expect(t, 200, "user")
	assert.False(t, c.IsClosed())
}

func TestClusterIsCached(t *testing.T) {
	c := startCluster(t, Options{Options: mock.Options{BaseDir: "demo"}})
	again, err := New(Options{Options: mock.Options{BaseDir: "demo"}})
	require.NoError(t, err)
	assert.Same(t, c, again)
	require.NoError(t, c.Ready(testContext(t)))
}

func TestClusterMockServiceRoundTrip(t *testing.T) {
	c := demoCluster(t, Options{})
	ctx := testContext(t)

	require.NoError(t, c.MockService(ctx, "foo", "get", "mocked in child"))
	c.HTTPRequest().Get("/foo").Expect(t, 200, "mocked in child")

	require.NoError(t, c.MockService(ctx, "foo", "get", upperGreeting))
	c.HTTPRequest().Get("/foo").Expect(t, 200, "HELLO FROM FUNC")

	require.NoError(t, c.MockServiceError(ctx, "foo", "get", errors.New("child failure")))
	c.HTTPRequest().Get("/foo").Expect(t, 500, "child failure")

	require.NoError(t, c.MockServiceError(ctx, "foo", "get", nil))
	c.HTTPRequest().Get("/foo").Expect(t, 500, "mock get error")

	require.NoError(t, mock.Restore(ctx))
	c.HTTPRequest().Get("/foo").Expect(t, 200, "bar")
}

func TestClusterMockHeadersAndHTTPClient(t *testing.T) {
	c := demoCluster(t, Options{})
	ctx := testContext(t)

	require.NoError(t, c.MockHeaders(ctx, map[string]string{"X-Custom": "from parent"}))
	c.HTTPRequest().Get("/header").Expect(t, 200, "from parent")

	require.NoError(t, c.MockHTTPClient(ctx, "http://mock.egg.test/y", "get", map[string]interface{}{"data": "child mock"}))
	c.HTTPRequest().Get("/fetch").Expect(t, 200, "child mock")

	require.NoError(t, c.MockRestore(ctx))
	c.HTTPRequest().Get("/header").Expect(t, 200, "")
}

func TestClusterMockErrors(t *testing.T) {
	c := demoCluster(t, Options{})
	ctx := testContext(t)

	_, err := c.Mock(ctx, "restore")
	assert.EqualError(t, err, "restore is not a mock method")

	_, err = c.Mock(ctx, "mockNothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `method "mockNothing" not exists on app`)

	raw, err := c.Mock(ctx, "mockLog")
	assert.NoError(t, err)
	assert.Nil(t, raw)

	err = c.MockService(ctx, "foo", "get", func() {})
	assert.EqualError(t, err, "argument 2: function arguments must be registered with rpc.RegisterFunc")
}

func TestClusterResolvesRoutesOnWorker(t *testing.T) {
	c := demoCluster(t, Options{})
	raw, err := c.CallFunctionOnAppWorker(testContext(t), "pathFor", []interface{}{"user", map[string]string{"id": "9"}}, "router", true)
	require.NoError(t, err)
	assert.Equal(t, `"/users/9"`, string(raw))
}

func TestClusterExpectLog(t *testing.T) {
	c := demoCluster(t, Options{})
	ctx := testContext(t)
	c.MockLog("")
	c.HTTPRequest().Get("/log").Expect(t, 200)

	assert.NoError(t, c.ExpectLog(ctx, "hello log", ""))
	assert.NoError(t, c.ExpectLog(ctx, regexp.MustCompile(`INFO \d+ hello log`), "logger"))
	assert.Error(t, c.NotExpectLog(ctx, "hello log", ""))
	assert.NoError(t, c.NotExpectLog(ctx, "goodbye", ""))
}

func TestClusterWithSpawnedCaller(t *testing.T) {
	c := demoCluster(t, Options{SpawnCaller: true})
	require.NoError(t, c.MockService(testContext(t), "foo", "get", "via helper"))
	c.HTTPRequest().Get("/foo").Expect(t, 200, "via helper")
}

func TestClusterProxiesOutboundRequests(t *testing.T) {
	c := demoCluster(t, Options{ProxyOutbound: true})
	require.NoError(t, httpmock.NewClient(nil).Mock("http://mock.egg.test/y", "get", map[string]interface{}{"data": "from parent rule"}))
	t.Cleanup(httpmock.Restore)
	c.HTTPRequest().Get("/fetch").Expect(t, 200, "from parent rule")
}

func TestClusterBootError(t *testing.T) {
	c := startCluster(t, Options{Options: mock.Options{BaseDir: "app-boot-error", Cache: boolPtr(false)}})
	events := make(chan interface{}, 1)
	c.Once("error", func(args ...interface{}) { events <- args[0] })

	err := c.Ready(testContext(t))
	var died *WorkerDiedError
	require.ErrorAs(t, err, &died)
	assert.Equal(t, egg.ActionAppWorkerDied, died.Action)
	assert.Equal(t, "boot failed", died.Message)

	select {
	case <-events:
	case <-time.After(time.Second):
		// the error may have been emitted before the listener was added
	}
	assert.Error(t, c.Wait(testContext(t)))
}

func TestClusterMissingBaseDir(t *testing.T) {
	_, err := New(Options{Options: mock.Options{BaseDir: "nope"}})
	assert.Error(t, err)
}

func TestClusterExitsBeforeReady(t *testing.T) {
	c := startCluster(t, Options{
		Options: mock.Options{BaseDir: "demo", Cache: boolPtr(false)},
		Bin:     "false",
	})
	err := c.Ready(testContext(t))
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}

func TestCloseAllClosesClusters(t *testing.T) {
	c, err := New(Options{Options: mock.Options{BaseDir: "demo", Cache: boolPtr(false)}})
	require.NoError(t, err)
	require.NoError(t, c.Ready(testContext(t)))

	require.NoError(t, mock.CloseAll(testContext(t)))
	assert.True(t, c.IsClosed())
	select {
	case <-c.exited:
	default:
		assert.Fail(t, "cluster process is still running")
	}
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, `/bin/app start-cluster '{"baseDir":"/a b"}'`,
		commandLine([]string{"/bin/app", "start-cluster", `{"baseDir":"/a b"}`}))
}
