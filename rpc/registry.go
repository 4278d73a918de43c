package rpc

import (
	"fmt"
	"reflect"
	"sync"
)

var funcs struct {
	byName map[string]interface{}
	byPtr  map[uintptr]string
	lock   sync.RWMutex
}

// RegisterFunc makes fn available under name to calls coming from another process, and lets
// EncodeArgs send fn by that name. Both processes must register the same functions, which is
// naturally the case when the child is a re-exec of the test binary and registration happens
// in an init function.
//
// Functions are recognized by their code pointer, so every closure created by the same function
// literal counts as the same function. Register top-level functions.
func RegisterFunc(name string, fn interface{}) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		panic(fmt.Sprintf("rpc.RegisterFunc(%q) requires a function, got %T", name, fn))
	}
	funcs.lock.Lock()
	defer funcs.lock.Unlock()
	if funcs.byName == nil {
		funcs.byName = make(map[string]interface{})
		funcs.byPtr = make(map[uintptr]string)
	}
	funcs.byName[name] = fn
	funcs.byPtr[v.Pointer()] = name
}

// LookupFunc returns the function registered under name.
func LookupFunc(name string) (interface{}, bool) {
	funcs.lock.RLock()
	defer funcs.lock.RUnlock()
	fn, ok := funcs.byName[name]
	return fn, ok
}

func funcName(fn interface{}) (string, bool) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", false
	}
	funcs.lock.RLock()
	defer funcs.lock.RUnlock()
	name, ok := funcs.byPtr[v.Pointer()]
	return name, ok
}

// FuncRef refers to a registered function by name without having the function value at hand.
type FuncRef string
