package egg

import (
	"sort"
	"strings"
	"sync"
)

// Properties is a concurrency-safe bag of named values with an optional parent. Get falls back
// to the parent when a key is not set locally, which is how a context sees values stored on the
// application's context prototype.
//
// Properties implements the mm.Target interface: Lookup, Store and Delete only look at local
// values, so restoring a mocked key that was previously inherited simply removes the local
// override.
type Properties struct {
	values map[string]interface{}
	parent *Properties
	lock   sync.RWMutex
}

// NewProperties creates an empty bag whose lookups fall back to parent, which may be nil.
func NewProperties(parent *Properties) *Properties {
	return &Properties{values: make(map[string]interface{}), parent: parent}
}

// PropertiesFrom creates a bag initialized with a copy of values.
func PropertiesFrom(values map[string]interface{}) *Properties {
	p := NewProperties(nil)
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Lookup returns the local value for key.
func (p *Properties) Lookup(key string) (interface{}, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Store sets the local value for key.
func (p *Properties) Store(key string, value interface{}) {
	p.lock.Lock()
	p.values[key] = value
	p.lock.Unlock()
}

// Delete removes the local value for key.
func (p *Properties) Delete(key string) {
	p.lock.Lock()
	delete(p.values, key)
	p.lock.Unlock()
}

// Get returns the value for key, consulting the parent chain if it is not set locally.
func (p *Properties) Get(key string) (interface{}, bool) {
	for cur := p; cur != nil; cur = cur.parent {
		if v, ok := cur.Lookup(key); ok {
			return v, true
		}
	}
	return nil, false
}

// GetString returns the value for key if it is a string.
func (p *Properties) GetString(key string) string {
	v, _ := p.Get(key)
	s, _ := v.(string)
	return s
}

// Has reports whether key is set locally or in the parent chain.
func (p *Properties) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Parent returns the bag that lookups fall back to.
func (p *Properties) Parent() *Properties {
	return p.parent
}

// Keys returns the sorted local keys.
func (p *Properties) Keys() []string {
	p.lock.RLock()
	ret := make([]string, 0, len(p.values))
	for k := range p.values {
		ret = append(ret, k)
	}
	p.lock.RUnlock()
	sort.Strings(ret)
	return ret
}

// Path resolves a dot-separated path through nested bags and maps, for instance "user.profile"
// against a bag whose "user" key holds another *Properties.
func (p *Properties) Path(path string) (interface{}, bool) {
	var cur interface{} = p
	for _, part := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case *Properties:
			v, ok := c.Get(part)
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]interface{}:
			v, ok := c[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Snapshot returns a plain map of every visible value, with local values taking precedence over
// inherited ones. Nested bags are converted recursively.
func (p *Properties) Snapshot() map[string]interface{} {
	ret := make(map[string]interface{})
	var chain []*Properties
	for cur := p; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].lock.RLock()
		for k, v := range chain[i].values {
			if nested, ok := v.(*Properties); ok {
				ret[k] = nested.Snapshot()
			} else {
				ret[k] = v
			}
		}
		chain[i].lock.RUnlock()
	}
	return ret
}
