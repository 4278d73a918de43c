package httpmock

import (
	"encoding/json"
	"net/http"
	"reflect"
)

// MockResult describes a mocked response.
type MockResult struct {
	// Data is the body: a string, a []byte, or anything that marshals to a JSON object or array.
	Data interface{} `json:"data"`

	// Status defaults to 200.
	Status int `json:"status,omitempty"`

	Headers map[string]string `json:"headers,omitempty"`

	// Delay defers the reply, in milliseconds.
	Delay int `json:"delay,omitempty"`

	// Persist defaults to true. When it is false the rule matches Repeats times, or once if
	// Repeats is not positive.
	Persist *bool `json:"persist,omitempty"`

	Repeats int `json:"repeats,omitempty"`
}

// ReplyOptions describes the request a ResultFunc is computing a result for.
type ReplyOptions struct {
	Origin string
	Path   string
	Method string
	Header http.Header
}

// ResultFunc computes a result per request. It returns a string, a MockResult, a *MockResult or
// a map with the same keys as MockResult.
type ResultFunc func(url string, opts ReplyOptions) interface{}

// ValidationError reports a mock result that cannot be turned into a response.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

var errInvalidData = ValidationError{Message: "`mockResult.data` must be buffer, string or json"}

func toMockResult(v interface{}) (MockResult, error) {
	switch r := v.(type) {
	case string:
		return MockResult{Data: r}, nil
	case []byte:
		return MockResult{Data: r}, nil
	case MockResult:
		return r, nil
	case *MockResult:
		if r == nil {
			return MockResult{}, nil
		}
		return *r, nil
	case map[string]interface{}:
		// a result that arrived as JSON; data is kept as decoded
		data := r["data"]
		raw, err := json.Marshal(r)
		if err != nil {
			return MockResult{}, ValidationError{Message: "invalid mock result: " + err.Error()}
		}
		var ret MockResult
		if err := json.Unmarshal(raw, &ret); err != nil {
			return MockResult{}, ValidationError{Message: "invalid mock result: " + err.Error()}
		}
		ret.Data = data
		return ret, nil
	}
	return MockResult{}, ValidationError{Message: "mock result must be a string, a MockResult or a function"}
}

func dataBytes(data interface{}) ([]byte, error) {
	switch d := data.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return append([]byte{}, d...), nil
	case string:
		return []byte(d), nil
	case json.RawMessage:
		return append([]byte{}, d...), nil
	}
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		body, err := json.Marshal(data)
		if err != nil {
			return nil, errInvalidData
		}
		return body, nil
	}
	return nil, errInvalidData
}

// normalize turns a result into a fresh Reply, so no two replies share mutable state.
func normalize(v interface{}) (Reply, error) {
	r, err := toMockResult(v)
	if err != nil {
		return Reply{}, err
	}
	body, err := dataBytes(r.Data)
	if err != nil {
		return Reply{}, err
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := make(http.Header)
	for k, v := range r.Headers {
		header.Set(k, v)
	}
	return Reply{Status: status, Body: body, Header: header}, nil
}
