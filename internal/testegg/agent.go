package testegg

import (
	"errors"
	"sync"

	"github.com/launchdarkly/egg-mock/egg"
)

// Agent is the testegg implementation of egg.Agent. It answers "ping" messages with a "pong"
// to the application.
type Agent struct {
	*node
	app  egg.Application
	lock sync.RWMutex
}

// NewAgent loads the configuration and starts booting in the background.
func NewAgent(opts egg.Options) (*Agent, error) {
	n, err := newNode(opts, egg.ToAgent)
	if err != nil {
		return nil, err
	}
	a := &Agent{node: n}
	a.messenger.On("ping", func(data interface{}) {
		a.messenger.SendToApp("pong", data)
	})
	a.messenger.On(egg.ActionEggReady, func(interface{}) {
		a.props.Store("eggReady", true)
	})
	go func() {
		if msg := a.cfg.file.AgentBootError; msg != "" {
			a.finishBoot(errors.New(msg))
			return
		}
		a.finishBoot(nil)
	}()
	return a, nil
}

func (a *Agent) App() egg.Application {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.app
}

func (a *Agent) SetApp(app egg.Application) {
	a.lock.Lock()
	a.app = app
	a.lock.Unlock()
}
