package httpmock

import (
	"net/http"
	"sync"
)

// DispatcherSlot is an application's own swappable HTTP dispatcher.
type DispatcherSlot interface {
	Dispatcher() http.RoundTripper
	SetDispatcher(rt http.RoundTripper)
}

type slotOriginal struct {
	slot     DispatcherSlot
	original http.RoundTripper
}

// the single process-wide interception handle
var global struct {
	agent           *Agent
	originalDefault http.RoundTripper
	slots           []slotOriginal
	lock            sync.Mutex
}

// Acquire returns the process-wide Agent, installing it as http.DefaultTransport and as the
// dispatcher of each given slot if it is not installed there already. The original dispatchers
// are remembered the first time each is replaced, and are put back by Restore.
func Acquire(slots ...DispatcherSlot) *Agent {
	global.lock.Lock()
	defer global.lock.Unlock()
	if global.agent == nil {
		global.originalDefault = http.DefaultTransport
		global.agent = NewAgent(global.originalDefault)
		http.DefaultTransport = global.agent
		loggers.Debug("Installed mock HTTP agent")
	}
	for _, slot := range slots {
		if slot == nil || slotInstalled(slot) {
			continue
		}
		global.slots = append(global.slots, slotOriginal{slot: slot, original: slot.Dispatcher()})
		slot.SetDispatcher(global.agent)
	}
	return global.agent
}

func slotInstalled(slot DispatcherSlot) bool {
	for _, s := range global.slots {
		if s.slot == slot {
			return true
		}
	}
	return false
}

// Current returns the installed Agent, or nil.
func Current() *Agent {
	global.lock.Lock()
	defer global.lock.Unlock()
	return global.agent
}

// Restore puts back every original dispatcher, drops all interceptors and releases the Agent.
// It does nothing if no Agent is installed.
func Restore() {
	global.lock.Lock()
	defer global.lock.Unlock()
	if global.agent == nil {
		return
	}
	http.DefaultTransport = global.originalDefault
	for _, s := range global.slots {
		s.slot.SetDispatcher(s.original)
	}
	global.agent.clear()
	global.agent, global.originalDefault, global.slots = nil, nil, nil
	loggers.Debug("Restored original HTTP dispatchers")
}
