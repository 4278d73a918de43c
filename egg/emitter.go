package egg

import (
	"sync"
)

// Listener receives the arguments passed to Emit.
type Listener func(args ...interface{})

// Emitter is the event surface shared by agents, applications and egg-mock's own managers.
type Emitter interface {
	On(event string, l Listener)
	Once(event string, l Listener)
	Emit(event string, args ...interface{}) bool
}

type listenerEntry struct {
	id   uint64
	fn   Listener
	once bool
}

// EventEmitter is a basic Emitter implementation. The zero value is ready to use.
type EventEmitter struct {
	listeners map[string][]listenerEntry
	lastID    uint64
	lock      sync.Mutex
}

// On adds a listener that is called for every emission of event.
func (e *EventEmitter) On(event string, l Listener) {
	e.Subscribe(event, l, false)
}

// Once adds a listener that is removed after its first call.
func (e *EventEmitter) Once(event string, l Listener) {
	e.Subscribe(event, l, true)
}

// Subscribe adds a listener and returns a function that removes it again. Go functions are not
// comparable, so this is the only way to remove a specific listener.
func (e *EventEmitter) Subscribe(event string, l Listener, once bool) func() {
	e.lock.Lock()
	if e.listeners == nil {
		e.listeners = make(map[string][]listenerEntry)
	}
	e.lastID++
	id := e.lastID
	e.listeners[event] = append(e.listeners[event], listenerEntry{id: id, fn: l, once: once})
	e.lock.Unlock()
	return func() { e.remove(event, id) }
}

func (e *EventEmitter) remove(event string, id uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit calls every listener for event in registration order, and returns true if there were any.
// Listeners are called outside of the emitter's lock, so they may add or remove listeners.
func (e *EventEmitter) Emit(event string, args ...interface{}) bool {
	e.lock.Lock()
	entries := append([]listenerEntry(nil), e.listeners[event]...)
	if len(entries) > 0 {
		kept := e.listeners[event][:0:0]
		for _, entry := range e.listeners[event] {
			if !entry.once {
				kept = append(kept, entry)
			}
		}
		e.listeners[event] = kept
	}
	e.lock.Unlock()

	for _, entry := range entries {
		entry.fn(args...)
	}
	return len(entries) > 0
}

// ListenerCount returns the number of listeners currently registered for event.
func (e *EventEmitter) ListenerCount(event string) int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.listeners[event])
}
