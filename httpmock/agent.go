package httpmock

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
)

// ErrNoMatch is returned by an Agent with net connect disabled when no interceptor matches a
// request.
var ErrNoMatch = errors.New("no mock interceptor matched the request")

// Dispatch is the matching state of one request as it passes through an Agent. Predicates may
// record which rule they matched in Pin, and the reply of the same request can read it back.
type Dispatch struct {
	Request *http.Request
	Origin  string
	Path    string
	Method  string
	Pin     int
}

// URL returns the full request URL as origin plus path.
func (d *Dispatch) URL() string {
	return d.Origin + d.Path
}

// Reply is a canned response.
type Reply struct {
	Status int
	Body   []byte
	Header http.Header
}

// ReplyFunc computes the reply for a matched request.
type ReplyFunc func(d *Dispatch) (Reply, error)

// Interceptor matches requests within a Pool and replies to them. By default it matches once;
// Persist and Times change that.
type Interceptor struct {
	matchPath   func(d *Dispatch) bool
	matchMethod func(method string) bool
	reply       ReplyFunc
	times       int
	invoked     int
	persist     bool
	delay       time.Duration
}

// Reply sets the function that produces the response.
func (i *Interceptor) Reply(fn ReplyFunc) *Interceptor {
	i.reply = fn
	return i
}

// Delay defers every reply by d.
func (i *Interceptor) Delay(d time.Duration) *Interceptor {
	i.delay = d
	return i
}

// Persist makes the interceptor match any number of requests.
func (i *Interceptor) Persist() *Interceptor {
	i.persist = true
	return i
}

// Times makes the interceptor match n requests.
func (i *Interceptor) Times(n int) *Interceptor {
	i.times = n
	return i
}

func (i *Interceptor) consumed() bool {
	return !i.persist && i.invoked >= i.times
}

// Pool holds the interceptors for one origin, or for every origin accepted by a predicate.
type Pool struct {
	matchOrigin  func(origin string) bool
	interceptors []*Interceptor
	agent        *Agent
}

// Intercept adds an interceptor. A nil method matcher matches GET only.
func (p *Pool) Intercept(path func(d *Dispatch) bool, method func(string) bool) *Interceptor {
	if method == nil {
		method = MethodMatcher("GET")
	}
	i := &Interceptor{matchPath: path, matchMethod: method, times: 1}
	p.agent.lock.Lock()
	p.interceptors = append(p.interceptors, i)
	p.agent.lock.Unlock()
	return i
}

// Agent is an http.RoundTripper that answers requests from registered interceptors and passes
// everything else to a fallback transport.
type Agent struct {
	exact      map[string]*Pool
	predicates []*Pool
	fallback   http.RoundTripper
	noNet      bool
	lock       sync.Mutex
}

// NewAgent creates an Agent. Unmatched requests go to fallback, or fail if it is nil.
func NewAgent(fallback http.RoundTripper) *Agent {
	return &Agent{exact: make(map[string]*Pool), fallback: fallback}
}

// Get returns the pool for an exact origin such as "http://example.com:8080".
func (a *Agent) Get(origin string) *Pool {
	a.lock.Lock()
	defer a.lock.Unlock()
	if p, ok := a.exact[origin]; ok {
		return p
	}
	p := &Pool{agent: a}
	a.exact[origin] = p
	return p
}

// GetMatching returns a new pool for every origin accepted by match.
func (a *Agent) GetMatching(match func(origin string) bool) *Pool {
	p := &Pool{agent: a, matchOrigin: match}
	a.lock.Lock()
	a.predicates = append(a.predicates, p)
	a.lock.Unlock()
	return p
}

// DisableNetConnect makes unmatched requests fail with ErrNoMatch instead of reaching the network.
func (a *Agent) DisableNetConnect() {
	a.lock.Lock()
	a.noNet = true
	a.lock.Unlock()
}

// EnableNetConnect undoes DisableNetConnect.
func (a *Agent) EnableNetConnect() {
	a.lock.Lock()
	a.noNet = false
	a.lock.Unlock()
}

func (a *Agent) clear() {
	a.lock.Lock()
	a.exact = make(map[string]*Pool)
	a.predicates = nil
	a.lock.Unlock()
}

// PendingInterceptors returns the number of interceptors that can still match a request.
func (a *Agent) PendingInterceptors() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	n := 0
	for _, p := range a.allPools() {
		for _, i := range p.interceptors {
			if !i.consumed() {
				n++
			}
		}
	}
	return n
}

func (a *Agent) allPools() []*Pool {
	ret := make([]*Pool, 0, len(a.exact)+len(a.predicates))
	for _, p := range a.exact {
		ret = append(ret, p)
	}
	return append(ret, a.predicates...)
}

func newDispatch(req *http.Request) *Dispatch {
	return &Dispatch{
		Request: req,
		Origin:  req.URL.Scheme + "://" + req.URL.Host,
		Path:    req.URL.RequestURI(),
		Method:  req.Method,
		Pin:     -1,
	}
}

// match finds and consumes the first interceptor for the request. The exact-origin pool is
// searched before predicate pools, which are searched in registration order.
func (a *Agent) match(d *Dispatch) *Interceptor {
	a.lock.Lock()
	defer a.lock.Unlock()
	var pools []*Pool
	if p, ok := a.exact[d.Origin]; ok {
		pools = append(pools, p)
	}
	for _, p := range a.predicates {
		if p.matchOrigin(d.Origin) {
			pools = append(pools, p)
		}
	}
	for _, p := range pools {
		var candidates []*Interceptor
		for _, i := range p.interceptors {
			if !i.consumed() && i.matchPath(d) {
				candidates = append(candidates, i)
			}
		}
		for _, i := range candidates {
			if i.matchMethod(d.Method) {
				i.invoked++
				return i
			}
		}
	}
	return nil
}

// Match returns the mocked response for req, or false if no interceptor matches.
func (a *Agent) Match(req *http.Request) (*http.Response, bool, error) {
	d := newDispatch(req)
	i := a.match(d)
	if i == nil {
		return nil, false, nil
	}
	if i.delay > 0 {
		timer := time.NewTimer(i.delay)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, true, req.Context().Err()
		}
	}
	if i.reply == nil {
		return nil, true, fmt.Errorf("mock interceptor for %s %s has no reply", d.Method, d.URL())
	}
	reply, err := i.reply(d)
	if err != nil {
		return nil, true, err
	}
	return buildResponse(req, reply), true, nil
}

func (a *Agent) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, matched, err := a.Match(req)
	if matched {
		return resp, err
	}
	a.lock.Lock()
	noNet, fallback := a.noNet, a.fallback
	a.lock.Unlock()
	if noNet || fallback == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoMatch, req.Method, req.URL)
	}
	return fallback.RoundTrip(req)
}

func buildResponse(req *http.Request, reply Reply) *http.Response {
	rec := httptest.NewRecorder()
	httphelpers.HandlerWithResponse(reply.Status, reply.Header, reply.Body).ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp
}

// MethodMatcher returns a matcher for the given upper-case methods, where "*" matches any method.
func MethodMatcher(methods ...string) func(string) bool {
	return func(method string) bool {
		for _, m := range methods {
			if m == "*" || m == method {
				return true
			}
		}
		return false
	}
}
