package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
}

// errNoFailureMessage is recorded when a test calls FailNow without reporting anything first.
var errNoFailureMessage = errors.New("test failed with no failure message")

// Context is the state of one running test or hook. It satisfies require.TestingT, so testify
// assertions can be used against it.
type Context struct {
	env        *environment
	id         TestID
	ctx        context.Context
	debug      DebugCapture
	failed     bool
	skipped    bool
	skipReason string
	errors     []error
}

func newContext(env *environment, id TestID, ctx context.Context) *Context {
	return &Context{env: env, id: id, ctx: ctx}
}

// stop is the panic value used by FailNow and Skip to unwind out of the test body.
type stop struct{}

// run calls action and converts whatever ended it into a TestResult.
func (c *Context) run(action func(*Context)) TestResult {
	func() {
		defer func() {
			r := recover()
			if r == nil || c.skipped {
				return
			}
			c.failed = true
			if _, ok := r.(stop); ok {
				if len(c.errors) == 0 {
					c.fail(errNoFailureMessage)
				}
				return
			}
			c.fail(fmt.Errorf("unexpected panic in test: %+v\n%s", r, debug.Stack()))
		}()
		action(c)
	}()
	return TestResult{TestID: c.id, Errors: c.errors, Skipped: c.skipped}
}

func (c *Context) fail(err error) {
	c.failed = true
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, err)
}

func (c *Context) record(result TestResult) {
	c.env.results.Tests = append(c.env.results.Tests, result)
	if c.failed {
		c.env.results.Failures = append(c.env.results.Failures, result)
	}
}

func (c *Context) ID() TestID { return c.id }

// Ctx returns the context.Context the test runs with. It carries whatever scope the test
// executor was given, such as a mocked request context.
func (c *Context) Ctx() context.Context { return c.ctx }

func (c *Context) Failed() bool { return c.failed }

func (c *Context) Errorf(format string, args ...interface{}) {
	c.fail(fmt.Errorf(format, args...))
}

func (c *Context) FailNow() {
	panic(stop{})
}

func (c *Context) Skip() {
	c.skipped = true
	panic(stop{})
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

// Debug adds a line to the test's debug output.
func (c *Context) Debug(format string, args ...interface{}) {
	c.debug.Printf(format, args...)
}

// Loggers returns loggers whose output becomes part of the test's debug output.
func (c *Context) Loggers() ldlog.Loggers {
	return c.debug.Loggers()
}
