// Package supertest builds HTTP requests against an application under test, either straight
// through its http.Handler or over the network to a URL, and checks the responses.
//
//     resp := supertest.NewForHandler(app.Handler(), app.Router()).
//         Get("/users/1").
//         Set("Accept", "application/json").
//         Expect(t, 200, `{"id":1}`)
//
// A path that does not start with "/" is the name of a route, resolved through the router.
package supertest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"runtime"
	"strings"

	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/servicedef"
)

// Router resolves named routes.
type Router interface {
	PathFor(name string, pairs ...string) (string, error)
}

// UserAgent is sent with every request that does not set its own.
var UserAgent = fmt.Sprintf("egg-mock/%s Go/%s", servicedef.Version, runtime.Version())

// Agent creates requests for one application.
type Agent struct {
	handler http.Handler
	baseURL string
	router  Router
	client  *http.Client
}

// NewForHandler creates an Agent that calls h directly. router may be nil.
func NewForHandler(h http.Handler, router Router) *Agent {
	return &Agent{handler: h, router: router}
}

// NewForURL creates an Agent that sends requests to baseURL. It has a transport of its own, so
// HTTP mocking in the test process does not affect it.
func NewForURL(baseURL string, router Router) *Agent {
	return &Agent{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		router:  router,
		client:  &http.Client{Transport: &http.Transport{}},
	}
}

func (a *Agent) Get(path string, pairs ...string) *Request {
	return a.Request(http.MethodGet, path, pairs...)
}

func (a *Agent) Head(path string, pairs ...string) *Request {
	return a.Request(http.MethodHead, path, pairs...)
}

func (a *Agent) Post(path string, pairs ...string) *Request {
	return a.Request(http.MethodPost, path, pairs...)
}

func (a *Agent) Put(path string, pairs ...string) *Request {
	return a.Request(http.MethodPut, path, pairs...)
}

func (a *Agent) Patch(path string, pairs ...string) *Request {
	return a.Request(http.MethodPatch, path, pairs...)
}

func (a *Agent) Delete(path string, pairs ...string) *Request {
	return a.Request(http.MethodDelete, path, pairs...)
}

func (a *Agent) Options(path string, pairs ...string) *Request {
	return a.Request(http.MethodOptions, path, pairs...)
}

// Request starts a request. pairs are the variables of a named route.
func (a *Agent) Request(method, path string, pairs ...string) *Request {
	r := &Request{agent: a, method: method, header: make(http.Header), query: make(url.Values)}
	r.header.Set("User-Agent", UserAgent)
	r.path, r.err = a.resolve(path, pairs)
	return r
}

func (a *Agent) resolve(path string, pairs []string) (string, error) {
	if strings.HasPrefix(path, "/") || strings.Contains(path, "://") {
		return path, nil
	}
	if a.router != nil {
		if p, err := a.router.PathFor(path, pairs...); err == nil && p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("Can't find router:%s, please check your router", path)
}

// Request is a request being built.
type Request struct {
	agent  *Agent
	method string
	path   string
	header http.Header
	query  url.Values
	body   []byte
	err    error
}

// Set sets a request header.
func (r *Request) Set(key, value string) *Request {
	r.header.Set(key, value)
	return r
}

// Query adds a query parameter.
func (r *Request) Query(key, value string) *Request {
	r.query.Add(key, value)
	return r
}

// Send sets the body. A string or []byte is sent as it is; anything else is sent as JSON.
func (r *Request) Send(body interface{}) *Request {
	switch b := body.(type) {
	case string:
		r.body = []byte(b)
		if r.header.Get("Content-Type") == "" {
			r.header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	case []byte:
		r.body = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			r.err = err
			return r
		}
		r.body = data
		r.header.Set("Content-Type", "application/json")
	}
	return r
}

// Form sets a URL-encoded form body.
func (r *Request) Form(values url.Values) *Request {
	r.body = []byte(values.Encode())
	r.header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func (r *Request) target() string {
	target := r.path
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}
	if r.agent.handler == nil && !strings.Contains(target, "://") {
		target = r.agent.baseURL + target
	}
	return target
}

// Do sends the request.
func (r *Request) Do(ctx context.Context) (*Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.agent.handler != nil {
		req := httptest.NewRequest(r.method, r.target(), bytes.NewReader(r.body)).WithContext(ctx)
		req.Header = r.header.Clone()
		rec := httptest.NewRecorder()
		r.agent.handler.ServeHTTP(rec, req)
		return &Response{Status: rec.Code, Header: rec.Header(), Body: rec.Body.Bytes()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.target(), bytes.NewReader(r.body))
	if err != nil {
		return nil, err
	}
	req.Header = r.header.Clone()
	resp, err := r.agent.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Expect sends the request and checks the status, and optionally the body: a string must equal
// the body text, a *regexp.Regexp must match it, and a func(*Response) error must succeed.
func (r *Request) Expect(t require.TestingT, status int, body ...interface{}) *Response {
	resp, err := r.Do(context.Background())
	require.NoError(t, err)
	require.Equal(t, status, resp.Status, "unexpected status for %s %s: %s", r.method, r.path, resp.Text())
	for _, b := range body {
		switch check := b.(type) {
		case string:
			require.Equal(t, check, resp.Text())
		case *regexp.Regexp:
			require.Regexp(t, check, resp.Text())
		case func(*Response) error:
			require.NoError(t, check(resp))
		default:
			require.Fail(t, fmt.Sprintf("unsupported body expectation %T", b))
		}
	}
	return resp
}

// Response is a received response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}
