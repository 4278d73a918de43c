package mock

import (
	"sync"

	"github.com/launchdarkly/egg-mock/egg"
)

// relay delivers messages between the agent and the application of an in-process cluster. It
// stands in for the master process: messages are queued and delivered one at a time, in the
// order they were sent, from a goroutine of its own, so a send never runs the receiver's
// handlers on the sender's stack.
type relay struct {
	queue      []egg.Message
	agent      egg.Messenger
	app        egg.Messenger
	agentReady bool
	stopped    bool
	cond       *sync.Cond
	lock       sync.Mutex
}

func newRelay() *relay {
	r := &relay{}
	r.cond = sync.NewCond(&r.lock)
	go r.run()
	return r
}

// connect makes m send through the relay. from is ToAgent or ToApp.
func (r *relay) connect(m egg.Messenger, from string) {
	r.lock.Lock()
	if from == egg.ToAgent {
		r.agent = m
	} else {
		r.app = m
	}
	r.lock.Unlock()
	m.SetTransport(func(msg egg.Message) {
		if msg.From == "" {
			msg.From = from
		}
		r.enqueue(msg)
	})
}

// markAgentReady allows the agent to send to a random application. Before the cluster is
// ready there is no application to pick from.
func (r *relay) markAgentReady() {
	r.lock.Lock()
	r.agentReady = true
	r.lock.Unlock()
}

func (r *relay) enqueue(msg egg.Message) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.stopped {
		return
	}
	r.queue = append(r.queue, msg)
	r.cond.Signal()
}

func (r *relay) stop() {
	r.lock.Lock()
	r.stopped = true
	r.queue = nil
	r.cond.Signal()
	r.lock.Unlock()
}

func (r *relay) run() {
	for {
		r.lock.Lock()
		for len(r.queue) == 0 && !r.stopped {
			r.cond.Wait()
		}
		if r.stopped {
			r.lock.Unlock()
			return
		}
		msg := r.queue[0]
		r.queue = r.queue[1:]
		dest := r.destination(msg)
		r.lock.Unlock()

		if dest == nil {
			loggers.Debugf("Dropped message %q from %s to %s", msg.Action, msg.From, msg.To)
			continue
		}
		dest.OnMessage(msg)
	}
}

// destination must be called with the lock held.
func (r *relay) destination(msg egg.Message) egg.Messenger {
	switch msg.To {
	case egg.ToApp:
		return r.app
	case egg.ToAgent:
		return r.agent
	case egg.ToRandom:
		if msg.From == egg.ToAgent {
			if !r.agentReady {
				return nil
			}
			return r.app
		}
		return r.agent
	}
	return nil
}
