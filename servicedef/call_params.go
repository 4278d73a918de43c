package servicedef

import (
	"encoding/json"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// CallFunctionPath is the reserved path that the call-forwarding middleware listens on.
const CallFunctionPath = "/__egg_mock_call_function"

// GetterMethod is the method name that asks for the value of CallParams.Property instead of
// calling a method on it.
const GetterMethod = "__getter__"

// TypeTag is the key that marks an argument object as a tagged value.
const TypeTag = "__egg_mock_type"

// Values of TypeTag.
const (
	TypeFunction = "function"
	TypeError    = "error"
	TypeRegexp   = "regexp"
)

// CallParams is the body of a call-forwarding request.
//
// Port is only used between the test process and a spawned call helper, which needs to know
// where to send the request; it is not part of the HTTP body the middleware reads.
type CallParams struct {
	Port       ldvalue.OptionalInt    `json:"port,omitempty"`
	Method     string                 `json:"method"`
	Property   ldvalue.OptionalString `json:"property,omitempty"`
	Args       json.RawMessage        `json:"args,omitempty"`
	NeedResult bool                   `json:"needResult,omitempty"`
}

// CallResponse is the body of a call-forwarding response.
type CallResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TaggedFunction refers to a callable registered by name in the receiving process.
type TaggedFunction struct {
	Type string `json:"__egg_mock_type"`
	Name string `json:"name"`
}

// TaggedRegexp carries a regular expression.
type TaggedRegexp struct {
	Type   string `json:"__egg_mock_type"`
	Source string `json:"source"`
}
