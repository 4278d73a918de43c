package mm

import (
	"net/http"
	"os"
	"reflect"
)

// Map adapts a plain map as a Target.
type Map map[string]interface{}

func (m Map) Lookup(key string) (interface{}, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Map) Store(key string, value interface{}) { m[key] = value }

func (m Map) Delete(key string) { delete(m, key) }

func (m Map) Identity() interface{} { return reflect.ValueOf(m).Pointer() }

type envTarget struct{}

// Env is a Target for the process environment. A value that is not a string is stored as an
// empty string.
var Env Target = envTarget{}

func (envTarget) Lookup(key string) (interface{}, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, false
	}
	return v, true
}

func (envTarget) Store(key string, value interface{}) {
	s, _ := value.(string)
	_ = os.Setenv(key, s)
}

func (envTarget) Delete(key string) { _ = os.Unsetenv(key) }

// Header adapts an http.Header as a Target. Keys are used as given, without canonicalization,
// so that both "X-Foo" and "x-foo" can be mocked independently.
type Header http.Header

func (h Header) Lookup(key string) (interface{}, bool) {
	v, ok := h[key]
	if !ok {
		return nil, false
	}
	return v, true
}

func (h Header) Store(key string, value interface{}) {
	switch v := value.(type) {
	case []string:
		h[key] = v
	case string:
		h[key] = []string{v}
	}
}

func (h Header) Delete(key string) { delete(h, key) }

func (h Header) Identity() interface{} { return reflect.ValueOf(h).Pointer() }

type fieldTarget struct {
	ptr reflect.Value
}

// Field returns a Target for the variable that ptr points to. The key passed to the Target
// methods is ignored; Delete sets the variable to its zero value.
//
//     var timeout = time.Second
//     mm.Mock(mm.Field(&timeout), "", time.Millisecond)
func Field(ptr interface{}) Target {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		panic("mm.Field requires a non-nil pointer")
	}
	return fieldTarget{ptr: v}
}

func (f fieldTarget) Lookup(string) (interface{}, bool) {
	return f.ptr.Elem().Interface(), true
}

func (f fieldTarget) Store(_ string, value interface{}) {
	elem := f.ptr.Elem()
	if value == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return
	}
	elem.Set(reflect.ValueOf(value))
}

func (f fieldTarget) Delete(string) {
	elem := f.ptr.Elem()
	elem.Set(reflect.Zero(elem.Type()))
}

func (f fieldTarget) Identity() interface{} { return f.ptr.Pointer() }
