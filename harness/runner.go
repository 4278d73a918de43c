package harness

import (
	"context"
	"sync"
)

// SuiteExecutor runs a whole suite: its hooks, its tests and its nested suites.
type SuiteExecutor func(ctx context.Context, s *Suite)

// TestExecutor runs the body of one test. The Context's Ctx is set to ctx.
type TestExecutor func(ctx context.Context, c *Context, t *Test)

// Runner runs a tree of suites.
type Runner struct {
	Filter     Filter
	TestLogger TestLogger

	root      *Suite
	suiteExec SuiteExecutor
	testExec  TestExecutor
	env       *environment
	markers   map[string]bool
	lock      sync.Mutex
}

// NewRunner creates a Runner with an empty root suite.
func NewRunner() *Runner {
	r := &Runner{root: &Suite{}, markers: make(map[string]bool)}
	r.suiteExec = r.executeSuite
	r.testExec = executeTest
	return r
}

// Root returns the root suite, which tests and suites are declared on.
func (r *Runner) Root() *Suite {
	return r.root
}

// WrapSuite replaces the suite executor with wrap(current). Nested suites go through the
// wrapped executor too.
func (r *Runner) WrapSuite(wrap func(next SuiteExecutor) SuiteExecutor) {
	r.lock.Lock()
	r.suiteExec = wrap(r.suiteExec)
	r.lock.Unlock()
}

// WrapTest replaces the test executor with wrap(current).
func (r *Runner) WrapTest(wrap func(next TestExecutor) TestExecutor) {
	r.lock.Lock()
	r.testExec = wrap(r.testExec)
	r.lock.Unlock()
}

// Mark sets a named flag on the runner. It returns false if the flag was already set.
func (r *Runner) Mark(marker string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.markers[marker] {
		return false
	}
	r.markers[marker] = true
	return true
}

// Run runs every suite and test in declaration order.
func (r *Runner) Run(ctx context.Context) Results {
	logger := r.TestLogger
	if logger == nil {
		logger = nullTestLogger{}
	}
	r.env = &environment{filter: r.Filter, testLogger: logger}
	r.runSuite(ctx, r.root)
	return r.env.results
}

func (r *Runner) runSuite(ctx context.Context, s *Suite) {
	r.lock.Lock()
	exec := r.suiteExec
	r.lock.Unlock()
	exec(ctx, s)
}

func (r *Runner) executeSuite(ctx context.Context, s *Suite) {
	ok := true
	for _, h := range s.beforeAll {
		if !r.runHook(ctx, s.ID().Plus(`"before all" hook`), h) {
			ok = false
			break
		}
	}
	if ok {
		for _, child := range s.children {
			switch v := child.(type) {
			case *Suite:
				r.runSuite(ctx, v)
			case *Test:
				r.runTest(ctx, v)
			}
		}
	}
	for _, h := range s.afterAll {
		r.runHook(ctx, s.ID().Plus(`"after all" hook`), h)
	}
}

// runHook runs h and records it only if it fails.
func (r *Runner) runHook(ctx context.Context, id TestID, h Hook) bool {
	c := newContext(r.env, id, ctx)
	result := c.run(h)
	if c.failed {
		c.record(result)
		return false
	}
	return true
}

func (r *Runner) runTest(ctx context.Context, t *Test) {
	id := t.ID()
	env := r.env
	env.testLogger.TestStarted(id)
	if env.filter != nil && !env.filter(id) {
		env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}

	before, after := t.suite.eachHooks()
	for _, h := range before {
		if !r.runHook(ctx, id.Plus(`"before each" hook`), h) {
			return
		}
	}

	r.lock.Lock()
	exec := r.testExec
	r.lock.Unlock()
	c := newContext(env, id, ctx)
	result := c.run(func(c *Context) { exec(ctx, c, t) })
	c.record(result)
	if c.skipped {
		env.testLogger.TestSkipped(id, c.skipReason)
	} else {
		env.testLogger.TestFinished(id, c.failed, c.debug.Lines())
	}

	for _, h := range after {
		r.runHook(ctx, id.Plus(`"after each" hook`), h)
	}
}

func executeTest(ctx context.Context, c *Context, t *Test) {
	c.ctx = ctx
	if t.Fn != nil {
		t.Fn(c)
	}
}
