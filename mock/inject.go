package mock

import (
	"context"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/harness"
)

const injectMarker = "egg-mock:injectContext"

func scopeOf(app ScopedApp) func(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error {
	if s, ok := app.(egg.ModuleScoper); ok {
		return s.MockModuleContextScope
	}
	return app.MockContextScope
}

// InjectContext makes r run every suite, and every test within it, inside a mocked context
// scope of the application returned by GetApp. Calling it again on the same runner does
// nothing.
//
// A suite whose application cannot be resolved or fails to boot runs without a scope. A test
// whose scope cannot be entered fails, and the run continues.
func InjectContext(r *harness.Runner) {
	if !r.Mark(injectMarker) {
		return
	}

	r.WrapSuite(func(next harness.SuiteExecutor) harness.SuiteExecutor {
		return func(ctx context.Context, s *harness.Suite) {
			app, err := GetApp(ctx, s, nil)
			if err == nil {
				err = app.Ready(ctx)
			}
			if err != nil {
				loggers.Debugf("suite %q runs without a context scope: %s", s.ID(), err)
				next(ctx, s)
				return
			}
			ran := false
			err = scopeOf(app)(ctx, func(ctx context.Context) error {
				ran = true
				next(ctx, s)
				return nil
			}, nil)
			if err != nil && !ran {
				scopeErr := err
				s.PrependBeforeAll(func(c *harness.Context) {
					c.Errorf("failed to create context scope for suite: %s", scopeErr)
				})
				next(ctx, s)
			}
		}
	})

	r.WrapTest(func(next harness.TestExecutor) harness.TestExecutor {
		return func(ctx context.Context, c *harness.Context, t *harness.Test) {
			app, err := GetApp(ctx, t.Suite(), t)
			if err == nil {
				err = app.Ready(ctx)
			}
			if err != nil {
				c.Errorf("%s", err)
				return
			}
			ran := false
			err = scopeOf(app)(ctx, func(ctx context.Context) error {
				ran = true
				c.Debug("running %s in a context scope", t.ID())
				next(ctx, c, t)
				return nil
			}, nil)
			if err != nil && !ran {
				c.Errorf("failed to create context scope for test: %s", err)
			}
		}
	})
}

// RegisterHooks adds the standard hooks to the root suite of r: boot the bootstrap application
// before everything, wait for its background tasks and restore every mock after each test, and
// close it at the end.
func RegisterHooks(r *harness.Runner) {
	root := r.Root()
	root.BeforeAll(func(c *harness.Context) {
		app, err := Bootstrap()
		if err != nil {
			c.Errorf("%s", err)
			c.FailNow()
		}
		if err := app.Ready(c.Ctx()); err != nil {
			c.Errorf("%s", err)
			c.FailNow()
		}
	})
	root.AfterEach(func(c *harness.Context) {
		app, err := Bootstrap()
		if err == nil && app.initialized() {
			if err := app.BackgroundTasksFinished(c.Ctx()); err != nil {
				c.Errorf("%s", err)
			}
		}
		if err := Restore(c.Ctx()); err != nil {
			c.Errorf("%s", err)
			return
		}
		c.Loggers().Debug("mocks restored")
	})
	root.AfterAll(func(c *harness.Context) {
		app, err := Bootstrap()
		if err != nil {
			return
		}
		if err := app.Close(c.Ctx()); err != nil {
			c.Errorf("%s", err)
		}
	})
}
