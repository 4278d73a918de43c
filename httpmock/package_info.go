// Package httpmock intercepts outbound HTTP requests made by an application under test and
// answers them from registered rules.
//
// The low-level piece is Agent, an http.RoundTripper holding interceptors grouped by origin.
// There is one process-wide Agent at a time: Acquire installs it as http.DefaultTransport (and
// as the dispatcher of any application HTTP client passed to it), and Restore puts the original
// dispatchers back. Client is the rule-oriented API that egg-mock's MockHTTPClient is built on.
package httpmock

import (
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

var loggers = ldlog.NewDisabledLoggers()

// SetLoggers sets the loggers used for debug output.
func SetLoggers(l ldlog.Loggers) {
	loggers = l
}
