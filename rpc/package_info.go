// Package rpc implements the call-forwarding protocol that lets a test process invoke mock and
// assertion methods on an application object living in another process.
//
// The caller POSTs a servicedef.CallParams envelope to servicedef.CallFunctionPath on the
// application's port. Middleware installed in the application resolves the method on a Target,
// decodes the arguments and answers with a servicedef.CallResponse.
//
// Arguments are JSON values, with three tagged exceptions. A function is sent as the name it was
// registered under with RegisterFunc, and is looked up by that name on the other side; source
// code is never sent or evaluated. An error is sent with its name, message, stack and the
// fields it marshals to, and comes back as a *RemoteError. A *regexp.Regexp is sent as its
// source.
package rpc

import (
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

var loggers = ldlog.NewDisabledLoggers()

// SetLoggers sets the loggers used for debug output.
func SetLoggers(l ldlog.Loggers) {
	loggers = l
}
