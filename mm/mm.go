// Package mm records property mutations so that they can be undone later.
//
// A mutation is registered with Mock, which replaces the value stored under a key of some
// Target and remembers what was there before. Only the first original value for each
// (target, key) pair is remembered: mocking the same pair again changes the live value but
// Restore still brings back the value that existed before the first Mock. Restore runs
// synchronously, so an assertion made right after it observes the restored state.
package mm

import (
	"sync"
)

// Target is anything whose values can be replaced by key.
//
// Lookup reports the current value and whether the key is present at all; Delete must make a
// subsequent Lookup report the key as absent.
type Target interface {
	Lookup(key string) (interface{}, bool)
	Store(key string, value interface{})
	Delete(key string)
}

// Identifier can be implemented by a Target whose dynamic type is not comparable (for instance
// a map type) to provide a comparable identity for tracking purposes.
type Identifier interface {
	Identity() interface{}
}

type trackKey struct {
	id  interface{}
	key string
}

type registration struct {
	target   Target
	key      string
	original interface{}
	present  bool
}

// Tracker holds the original values for a set of mocked (target, key) pairs.
//
// The zero value is ready to use.
type Tracker struct {
	registrations map[trackKey]*registration
	order         []trackKey
	lock          sync.Mutex
}

func identityOf(target Target) interface{} {
	if i, ok := target.(Identifier); ok {
		return i.Identity()
	}
	return target
}

// Mock stores value under key in target, first capturing the current value if this pair has
// not been mocked since the last Restore.
func (t *Tracker) Mock(target Target, key string, value interface{}) {
	tk := trackKey{id: identityOf(target), key: key}
	t.lock.Lock()
	if t.registrations == nil {
		t.registrations = make(map[trackKey]*registration)
	}
	if _, ok := t.registrations[tk]; !ok {
		original, present := target.Lookup(key)
		t.registrations[tk] = &registration{target: target, key: key, original: original, present: present}
		t.order = append(t.order, tk)
	}
	t.lock.Unlock()
	target.Store(key, value)
}

// IsMocked returns true if the pair has been mocked since the last Restore.
func (t *Tracker) IsMocked(target Target, key string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	_, ok := t.registrations[trackKey{id: identityOf(target), key: key}]
	return ok
}

// Restore puts back every original value, deleting keys that did not exist before they were
// mocked, and then forgets all registrations. Calling it with nothing mocked does nothing.
func (t *Tracker) Restore() {
	t.lock.Lock()
	registrations, order := t.registrations, t.order
	t.registrations, t.order = nil, nil
	t.lock.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		r := registrations[order[i]]
		if r.present {
			r.target.Store(r.key, r.original)
		} else {
			r.target.Delete(r.key)
		}
	}
}

// Count returns the number of pairs currently tracked.
func (t *Tracker) Count() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.order)
}

// Default is the process-wide tracker used by the package-level functions.
var Default = &Tracker{}

// Mock calls Default.Mock.
func Mock(target Target, key string, value interface{}) {
	Default.Mock(target, key, value)
}

// IsMocked calls Default.IsMocked.
func IsMocked(target Target, key string) bool {
	return Default.IsMocked(target, key)
}

// Restore calls Default.Restore.
func Restore() {
	Default.Restore()
}
