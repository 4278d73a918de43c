package httpmock

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRestore(t *testing.T) {
	Restore()
	t.Cleanup(Restore)
}

func get(t *testing.T, target string) (int, string) {
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

type testSlot struct {
	rt http.RoundTripper
}

func (s *testSlot) Dispatcher() http.RoundTripper      { return s.rt }
func (s *testSlot) SetDispatcher(rt http.RoundTripper) { s.rt = rt }

func TestDuplicateExactURLFirstRuleWins(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://mock.test/y", "get", MockResult{Data: "first"}))
	require.NoError(t, c.Mock("http://mock.test/y", "get", MockResult{Data: "second"}))

	for i := 0; i < 3; i++ {
		status, body := get(t, "http://mock.test/y")
		assert.Equal(t, 200, status)
		assert.Equal(t, "first", body)
	}
}

func TestRepeatsLimitMatchesThenFallsThrough(t *testing.T) {
	withRestore(t)
	httphelpers.WithServer(httphelpers.HandlerWithResponse(200, nil, []byte("real")), func(server *httptest.Server) {
		persist := false
		c := NewClient(nil)
		require.NoError(t, c.Mock(server.URL+"/data", MockResult{Data: "mocked", Persist: &persist, Repeats: 2}))

		_, body := get(t, server.URL+"/data")
		assert.Equal(t, "mocked", body)
		_, body = get(t, server.URL+"/data")
		assert.Equal(t, "mocked", body)
		_, body = get(t, server.URL+"/data")
		assert.Equal(t, "real", body)
	})
}

func TestPersistFalseWithoutRepeatsMatchesOnce(t *testing.T) {
	withRestore(t)
	persist := false
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://mock.test/once", MockResult{Data: "x", Persist: &persist}))
	c.Agent().DisableNetConnect()

	_, body := get(t, "http://mock.test/once")
	assert.Equal(t, "x", body)
	_, err := http.Get("http://mock.test/once")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestQueryStringMatchesByPrefix(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://mock.test/foo", "hello"))
	c.Agent().DisableNetConnect()

	_, body := get(t, "http://mock.test/foo?a=1")
	assert.Equal(t, "hello", body)

	_, err := http.Get("http://mock.test/foo/bar")
	assert.Error(t, err)
}

func TestMethodsAreNormalized(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://mock.test/m", []string{"post", ""}, "ok"))
	c.Agent().DisableNetConnect()

	resp, err := http.Post("http://mock.test/m", "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	_, body := get(t, "http://mock.test/m")
	assert.Equal(t, "ok", body)

	req, _ := http.NewRequest("PUT", "http://mock.test/m", nil)
	_, err = http.DefaultClient.Do(req)
	assert.Error(t, err)
}

func TestRegexRulesFirstMatchingPatternAnswers(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock(regexp.MustCompile(`mock\.test/api/`), "api"))
	require.NoError(t, c.Mock(regexp.MustCompile(`mock\.test/`), "any"))
	c.Agent().DisableNetConnect()

	_, body := get(t, "http://mock.test/api/users?page=2")
	assert.Equal(t, "api", body)
	_, body = get(t, "http://other.mock.test/index")
	assert.Equal(t, "any", body)
}

func TestResultFuncAndDataNormalization(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	var seen []string
	require.NoError(t, c.Mock("http://mock.test/fn", "*", ResultFunc(func(u string, opts ReplyOptions) interface{} {
		seen = append(seen, u+" "+opts.Method)
		return &MockResult{
			Data:    map[string]interface{}{"url": u},
			Status:  201,
			Headers: map[string]string{"x-mock": "1"},
		}
	})))

	resp, err := http.Get("http://mock.test/fn?q=1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Mock"))
	assert.JSONEq(t, `{"url":"http://mock.test/fn?q=1"}`, string(body))
	assert.Equal(t, []string{"http://mock.test/fn?q=1 GET"}, seen)
}

func TestJSONMapResult(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://mock.test/map", map[string]interface{}{
		"data":    []interface{}{1, 2},
		"status":  float64(202),
		"headers": map[string]interface{}{"content-type": "application/json"},
	}))

	resp, err := http.Get("http://mock.test/map")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "[1,2]", string(body))
}

func TestInvalidDataIsRejected(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	err := c.Mock("http://mock.test/bad", MockResult{Data: 42})
	require.Error(t, err)
	assert.Equal(t, "`mockResult.data` must be buffer, string or json", err.Error())

	err = c.Mock("http://mock.test/bad", 42)
	assert.Error(t, err)

	err = c.Mock("http://mock.test/bad")
	assert.Error(t, err)

	err = c.Mock("not a url", "x")
	assert.Error(t, err)
}

func TestDelayHonorsRequestCancellation(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://mock.test/slow", MockResult{Data: "late", Delay: 5000}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", "http://mock.test/slow", nil)
	start := time.Now()
	_, err := http.DefaultClient.Do(req)
	assert.Error(t, err)
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestAcquireAndRestoreDispatchers(t *testing.T) {
	withRestore(t)
	original := http.DefaultTransport
	slotOriginal := &testSlot{}
	slot := &testSlot{rt: slotOriginal}

	agent := Acquire(slot)
	assert.Same(t, agent, Acquire(slot))
	assert.Equal(t, http.RoundTripper(agent), http.DefaultTransport)
	assert.Equal(t, http.RoundTripper(agent), slot.rt)
	assert.Same(t, agent, Current())

	Restore()
	assert.Equal(t, original, http.DefaultTransport)
	assert.Equal(t, http.RoundTripper(slotOriginal), slot.rt)
	assert.Nil(t, Current())
	assert.NotPanics(t, Restore)
}

func TestRestoreDropsRules(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock(regexp.MustCompile(`mock\.test`), "x"))
	assert.Equal(t, 1, Current().PendingInterceptors())

	Restore()
	require.NoError(t, c.Mock("http://mock.test/z", "z"))
	assert.Equal(t, 1, Current().PendingInterceptors())
	c.Agent().DisableNetConnect()
	_, err := http.Get("http://mock.test/other")
	assert.Error(t, err)
}

func TestProxyAnswersFromMockRules(t *testing.T) {
	withRestore(t)
	c := NewClient(nil)
	require.NoError(t, c.Mock("http://proxied.test/hello", MockResult{Data: "from proxy", Status: 203}))

	p := NewProxy()
	require.NoError(t, p.Start("127.0.0.1:0"))
	defer p.Close()
	proxyURL, err := url.Parse(p.URL())
	require.NoError(t, err)

	// a client that does not go through the agent directly, like a child process would
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	resp, err := client.Get("http://proxied.test/hello")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 203, resp.StatusCode)
	assert.Equal(t, "from proxy", string(body))
}
