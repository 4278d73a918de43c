package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/launchdarkly/egg-mock/servicedef"
)

// RemoteError is an error reconstructed from a tagged error argument.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
	Props   map[string]interface{}
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ErrorName returns the error's name, such as "TypeError".
func (e *RemoteError) ErrorName() string {
	return e.Name
}

// StackTrace returns the stack recorded where the error was created.
func (e *RemoteError) StackTrace() string {
	return e.Stack
}

type namedError interface {
	ErrorName() string
}

type stackTracer interface {
	StackTrace() string
}

func errorName(err error) string {
	var n namedError
	if errors.As(err, &n) && n.ErrorName() != "" {
		return n.ErrorName()
	}
	return "Error"
}

// EncodeError converts an error to its tagged form. Exported fields of the error (as produced by
// json.Marshal) travel as own properties.
func EncodeError(err error) map[string]interface{} {
	ret := make(map[string]interface{})
	var remote *RemoteError
	if errors.As(err, &remote) {
		for k, v := range remote.Props {
			ret[k] = v
		}
	} else if raw, jerr := json.Marshal(err); jerr == nil {
		var props map[string]interface{}
		if json.Unmarshal(raw, &props) == nil {
			for k, v := range props {
				ret[k] = v
			}
		}
	}
	name := errorName(err)
	stack := name + ": " + err.Error()
	var st stackTracer
	if errors.As(err, &st) && st.StackTrace() != "" {
		stack = st.StackTrace()
	}
	ret[servicedef.TypeTag] = servicedef.TypeError
	ret["name"] = name
	ret["message"] = err.Error()
	ret["stack"] = stack
	return ret
}

// EncodeArgs serializes call arguments, tagging functions, errors and regular expressions.
func EncodeArgs(args []interface{}) (json.RawMessage, error) {
	encoded := make([]interface{}, 0, len(args))
	for i, arg := range args {
		v, err := encodeArg(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		encoded = append(encoded, v)
	}
	return json.Marshal(encoded)
}

func encodeArg(arg interface{}) (interface{}, error) {
	switch a := arg.(type) {
	case nil:
		return nil, nil
	case FuncRef:
		return servicedef.TaggedFunction{Type: servicedef.TypeFunction, Name: string(a)}, nil
	case *regexp.Regexp:
		return servicedef.TaggedRegexp{Type: servicedef.TypeRegexp, Source: a.String()}, nil
	case error:
		return EncodeError(a), nil
	}
	if reflect.TypeOf(arg).Kind() == reflect.Func {
		name, ok := funcName(arg)
		if !ok {
			return nil, errors.New("function arguments must be registered with rpc.RegisterFunc")
		}
		return servicedef.TaggedFunction{Type: servicedef.TypeFunction, Name: name}, nil
	}
	return arg, nil
}

// IsArray reports whether raw holds a JSON array, ignoring leading whitespace.
func IsArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

// DecodeArgs parses an argument array, turning tagged values back into live values.
func DecodeArgs(raw json.RawMessage) ([]interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	for i, item := range items {
		v, err := decodeArg(item)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		items[i] = v
	}
	return items, nil
}

func decodeArg(item interface{}) (interface{}, error) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return item, nil
	}
	tag, _ := m[servicedef.TypeTag].(string)
	switch tag {
	case servicedef.TypeFunction:
		name, _ := m["name"].(string)
		fn, ok := LookupFunc(name)
		if !ok {
			return nil, fmt.Errorf("function %q is not registered", name)
		}
		return fn, nil
	case servicedef.TypeError:
		e := &RemoteError{Props: make(map[string]interface{})}
		for k, v := range m {
			switch k {
			case servicedef.TypeTag:
			case "name":
				e.Name, _ = v.(string)
			case "message":
				e.Message, _ = v.(string)
			case "stack":
				e.Stack, _ = v.(string)
			default:
				e.Props[k] = v
			}
		}
		return e, nil
	case servicedef.TypeRegexp:
		source, _ := m["source"].(string)
		return regexp.Compile(source)
	}
	return item, nil
}
