package mock

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/internal/ports"
)

// AgentManager boots only the agent of an application. In parallel mode one AgentManager runs
// in the test process, and the application managers of each worker connect to its cluster port
// through CLUSTER_PORT.
type AgentManager struct {
	lifecycle
	opts  Options
	agent egg.Agent
	port  int
}

func newAgentManager(opts Options) *AgentManager {
	return &AgentManager{opts: opts}
}

// Ready boots the agent the first time it is called and waits for boot to finish.
func (m *AgentManager) Ready(ctx context.Context) error {
	return m.ready(ctx, m.init)
}

func (m *AgentManager) init(ctx context.Context) error {
	if fn := m.takeBeforeInit(); fn != nil {
		if err := fn(ctx, m); err != nil {
			return err
		}
	}
	if m.opts.clean() {
		platformGrace(ctx)
		cleanDirs(m.opts.BaseDir, "logs", "run")
	}
	port, err := ports.Ephemeral()
	if err != nil {
		return err
	}
	if err := os.Setenv(EnvClusterPort, strconv.Itoa(port)); err != nil {
		return err
	}
	loggers.Debugf("set env.%s %d", EnvClusterPort, port)

	fw, ok := egg.Lookup(m.opts.Framework)
	if !ok {
		return fmt.Errorf("framework %q is not registered", m.opts.Framework)
	}
	eggOpts := m.opts.EggOptions()
	eggOpts.ClusterPort = port
	agent, err := fw.NewAgent(eggOpts)
	if err != nil {
		return err
	}
	m.lock.Lock()
	m.agent, m.port = agent, port
	m.lock.Unlock()

	m.bind(agent)
	if err := agent.Ready(ctx); err != nil {
		return err
	}
	agent.Messenger().OnMessage(egg.Message{Action: egg.ActionEggReady, Data: eggOpts})
	loggers.Debug("agent ready")
	return nil
}

func (m *AgentManager) takeBeforeInit() func(context.Context, Manager) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	fn := m.opts.BeforeInit
	m.opts.BeforeInit = nil
	return fn
}

// Agent returns the framework's agent, or nil if boot has not constructed it.
func (m *AgentManager) Agent() egg.Agent {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.agent
}

// ClusterPort returns the port exported through CLUSTER_PORT, or 0 before boot.
func (m *AgentManager) ClusterPort() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.port
}

// Close shuts the agent down.
func (m *AgentManager) Close(ctx context.Context) error {
	m.markClosed()
	var err error
	if agent := m.Agent(); agent != nil {
		err = agent.Close(ctx)
	} else {
		sleep(ctx, closeGrace)
	}
	evict(m)
	platformGrace(ctx)
	return err
}

var _ Manager = (*AgentManager)(nil)
