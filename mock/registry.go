package mock

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

var registry struct {
	apps   map[string]*MockApplication
	agents map[string]*AgentManager
	lock   sync.Mutex
}

// App returns an application for opts, booting it lazily on the first Ready. With caching on
// (the default), every call for the same base directory returns the same instance until that
// instance is closed.
func App(opts Options) (*MockApplication, error) {
	return cachedApp(opts, false)
}

// ParallelApp is App for a parallel test run: the application does not start its own agent and
// connects to the one started by ParallelAgent instead.
func ParallelApp(opts Options) (*MockApplication, error) {
	return cachedApp(opts, true)
}

func cachedApp(opts Options, appOnly bool) (*MockApplication, error) {
	opts, err := FormatOptions(opts)
	if err != nil {
		return nil, err
	}
	registry.lock.Lock()
	defer registry.lock.Unlock()
	if registry.apps == nil {
		registry.apps = make(map[string]*MockApplication)
	}
	if a, ok := registry.apps[opts.BaseDir]; ok && opts.cache() {
		if !a.IsClosed() {
			return a, nil
		}
		delete(registry.apps, opts.BaseDir)
	}
	a := newMockApplication(opts, appOnly)
	registry.apps[opts.BaseDir] = a
	return a, nil
}

// ParallelAgent returns the agent manager for opts, cached the same way as App.
func ParallelAgent(opts Options) (*AgentManager, error) {
	opts, err := FormatOptions(opts)
	if err != nil {
		return nil, err
	}
	registry.lock.Lock()
	defer registry.lock.Unlock()
	if registry.agents == nil {
		registry.agents = make(map[string]*AgentManager)
	}
	if m, ok := registry.agents[opts.BaseDir]; ok && opts.cache() && !m.IsClosed() {
		return m, nil
	}
	m := newAgentManager(opts)
	registry.agents[opts.BaseDir] = m
	return m, nil
}

// evict removes m from the cache if it is still the cached instance for its base directory.
func evict(m Manager) {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	switch v := m.(type) {
	case *MockApplication:
		if registry.apps[v.opts.BaseDir] == v {
			delete(registry.apps, v.opts.BaseDir)
		}
	case *AgentManager:
		if registry.agents[v.opts.BaseDir] == v {
			delete(registry.agents, v.opts.BaseDir)
		}
	}
}

func openManagers() []Manager {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	var ret []Manager
	for _, a := range registry.apps {
		ret = append(ret, a)
	}
	for _, m := range registry.agents {
		ret = append(ret, m)
	}
	return ret
}

// CloseAll closes every cached application and agent, and then runs the shutdown hooks, such
// as the one that stops cluster children. It returns the first error.
func CloseAll(ctx context.Context) error {
	var g errgroup.Group
	for _, m := range openManagers() {
		m := m
		if m.IsClosed() {
			continue
		}
		g.Go(func() error { return m.Close(ctx) })
	}
	err := g.Wait()
	for _, h := range hookList(&hooks.shutdown) {
		if hookErr := h.fn(ctx); hookErr != nil {
			loggers.Warnf("shutdown %s failed: %s", h.name, hookErr)
			if err == nil {
				err = hookErr
			}
		}
	}
	return err
}
