package mock

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/harness"
)

// Environment variables that select a parallel test run, where the agent is started once and
// shared by the applications of every worker.
const (
	EnvParallel  = "ENABLE_MOCHA_PARALLEL"
	EnvAutoAgent = "AUTO_AGENT"
)

// ScopedApp is what context injection needs from an application.
type ScopedApp interface {
	Ready(ctx context.Context) error
	MockContextScope(ctx context.Context, fn func(ctx context.Context) error, data map[string]interface{}) error
}

// GetAppFunc resolves the application for a suite, or for a test when test is non-nil.
type GetAppFunc func(ctx context.Context, suite *harness.Suite, test *harness.Test) (ScopedApp, error)

var bootstrapState struct {
	getApp GetAppFunc
	lock   sync.Mutex
}

func parallelMode() bool {
	return os.Getenv(EnvParallel) == "true" && os.Getenv(EnvAutoAgent) == "true"
}

// BootstrapOptions returns the options of the bootstrap application: EGG_BASE_DIR or the
// working directory, and EGG_FRAMEWORK if set.
func BootstrapOptions() (Options, error) {
	baseDir := os.Getenv(EnvBaseDir)
	if baseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Options{}, err
		}
		baseDir = cwd
	}
	m, _, err := egg.ReadManifest(baseDir)
	if err != nil {
		return Options{}, err
	}
	if m.EggPlugin != nil {
		return Options{}, errors.New("DO NOT USE bootstrap to test plugin")
	}
	return Options{BaseDir: baseDir, Framework: os.Getenv(EnvFramework)}, nil
}

// Bootstrap returns the application for the project under test. In parallel mode it does not
// start an agent of its own; SetupAgent starts the shared one.
func Bootstrap() (*MockApplication, error) {
	opts, err := BootstrapOptions()
	if err != nil {
		return nil, err
	}
	if parallelMode() {
		return ParallelApp(opts)
	}
	return App(opts)
}

// SetupAgent starts the shared agent of a parallel run and waits for it. Outside parallel mode
// it returns nil.
func SetupAgent(ctx context.Context) (*AgentManager, error) {
	if !parallelMode() {
		return nil, nil
	}
	opts, err := BootstrapOptions()
	if err != nil {
		return nil, err
	}
	m, err := ParallelAgent(opts)
	if err != nil {
		return nil, err
	}
	return m, m.Ready(ctx)
}

// SetGetAppCallback replaces how context injection finds the application of a suite or test.
// nil restores the default, which is the bootstrap application.
func SetGetAppCallback(fn GetAppFunc) {
	bootstrapState.lock.Lock()
	bootstrapState.getApp = fn
	bootstrapState.lock.Unlock()
}

// GetApp returns the application for a suite, or for a test when test is non-nil.
func GetApp(ctx context.Context, suite *harness.Suite, test *harness.Test) (ScopedApp, error) {
	bootstrapState.lock.Lock()
	fn := bootstrapState.getApp
	bootstrapState.lock.Unlock()
	if fn != nil {
		return fn(ctx, suite, test)
	}
	app, err := Bootstrap()
	if err != nil {
		return nil, err
	}
	return app, nil
}
