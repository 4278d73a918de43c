package httpmock

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

type resultProducer struct {
	static *MockResult
	fn     ResultFunc
}

func (s resultProducer) compute(d *Dispatch) (Reply, error) {
	if s.fn == nil {
		return normalize(*s.static)
	}
	v := s.fn(d.URL(), ReplyOptions{
		Origin: d.Origin,
		Path:   d.Path,
		Method: d.Method,
		Header: d.Request.Header.Clone(),
	})
	return normalize(v)
}

type regexRule struct {
	pattern  *regexp.Regexp
	producer resultProducer
}

// Client registers mock rules on behalf of one application. Regular-expression rules of a client
// share one ordered list: a request is answered by the first pattern in that list matching its
// full URL, whichever interceptor caught it.
type Client struct {
	slot  DispatcherSlot
	agent *Agent
	regex []regexRule
	lock  sync.Mutex
}

// NewClient creates a Client for an application whose own HTTP client dispatcher is slot. The
// slot may be nil.
func NewClient(slot DispatcherSlot) *Client {
	return &Client{slot: slot}
}

// Agent installs and returns the process-wide Agent.
func (c *Client) Agent() *Agent {
	return Acquire(c.slot)
}

// Mock registers a rule using the flexible argument forms:
//
//     Mock(url, result)             // any method
//     Mock(url, "post", result)
//     Mock(url, []string{"get", "head"}, result)
//
// url is a string or a *regexp.Regexp.
func (c *Client) Mock(mockURL interface{}, args ...interface{}) error {
	switch len(args) {
	case 1:
		return c.Register(mockURL, []string{"*"}, args[0])
	case 2:
		methods, err := toMethods(args[0])
		if err != nil {
			return err
		}
		return c.Register(mockURL, methods, args[1])
	}
	return fmt.Errorf("mockHttpclient expects a url plus a result, or a url, a method and a result; got %d arguments", len(args)+1)
}

func toMethods(v interface{}) ([]string, error) {
	switch m := v.(type) {
	case string:
		return []string{m}, nil
	case []string:
		return m, nil
	case []interface{}:
		ret := make([]string, 0, len(m))
		for _, item := range m {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("http method must be a string, got %T", item)
			}
			ret = append(ret, s)
		}
		return ret, nil
	}
	return nil, fmt.Errorf("http method must be a string or a list of strings, got %T", v)
}

// Register adds a rule for the given methods; "*" matches any method and an empty string means
// GET. result is a string, a MockResult, a map with MockResult keys, or a ResultFunc.
func (c *Client) Register(mockURL interface{}, methods []string, result interface{}) error {
	producer, err := toProducer(result)
	if err != nil {
		return err
	}
	upper := make([]string, 0, len(methods))
	for _, m := range methods {
		if m == "" {
			m = "GET"
		}
		upper = append(upper, strings.ToUpper(m))
	}
	if len(upper) == 0 {
		upper = []string{"*"}
	}

	agent := Acquire(c.slot)
	c.lock.Lock()
	if c.agent != agent {
		// the agent was restored since the last registration, and the old rules with it
		c.agent = agent
		c.regex = nil
	}
	var pool *Pool
	var matchPath func(d *Dispatch) bool
	var reply ReplyFunc
	switch u := mockURL.(type) {
	case string:
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host == "" {
			c.lock.Unlock()
			return fmt.Errorf("invalid mock url %q", u)
		}
		pathname := parsed.EscapedPath()
		if pathname == "" {
			pathname = "/"
		}
		matchPath = func(d *Dispatch) bool {
			if d.Path == pathname {
				return true
			}
			// should match /foo?a=1 including query
			return strings.Contains(d.Path, "?") && strings.HasPrefix(d.Path, pathname)
		}
		reply = producer.compute
		c.lock.Unlock()
		pool = agent.Get(parsed.Scheme + "://" + parsed.Host)
	case *regexp.Regexp:
		c.regex = append(c.regex, regexRule{pattern: u, producer: producer})
		matchPath = c.matchRegex
		reply = func(d *Dispatch) (Reply, error) {
			rule, ok := c.regexRule(d.Pin)
			if !ok {
				return Reply{}, fmt.Errorf("no mock rule pinned for %s", d.URL())
			}
			return rule.producer.compute(d)
		}
		c.lock.Unlock()
		pool = agent.GetMatching(func(string) bool { return true })
	default:
		c.lock.Unlock()
		return fmt.Errorf("mock url must be a string or a *regexp.Regexp, got %T", mockURL)
	}

	for _, m := range upper {
		i := pool.Intercept(matchPath, MethodMatcher(m)).Reply(reply)
		if producer.static == nil {
			i.Persist()
			continue
		}
		if producer.static.Delay > 0 {
			i.Delay(time.Duration(producer.static.Delay) * time.Millisecond)
		}
		if producer.static.Persist == nil || *producer.static.Persist {
			i.Persist()
		} else if producer.static.Repeats > 0 {
			i.Times(producer.static.Repeats)
		}
	}
	loggers.Debugf("Registered HTTP mock %v for %v", mockURL, upper)
	return nil
}

func (c *Client) matchRegex(d *Dispatch) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	for i, r := range c.regex {
		if r.pattern.MatchString(d.URL()) {
			d.Pin = i
			return true
		}
	}
	return false
}

func (c *Client) regexRule(i int) (regexRule, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if i < 0 || i >= len(c.regex) {
		return regexRule{}, false
	}
	return c.regex[i], true
}

func toProducer(result interface{}) (resultProducer, error) {
	switch f := result.(type) {
	case ResultFunc:
		return resultProducer{fn: f}, nil
	case func(string, ReplyOptions) interface{}:
		return resultProducer{fn: f}, nil
	}
	r, err := toMockResult(result)
	if err != nil {
		return resultProducer{}, err
	}
	if _, err := dataBytes(r.Data); err != nil {
		return resultProducer{}, err
	}
	return resultProducer{static: &r}, nil
}
