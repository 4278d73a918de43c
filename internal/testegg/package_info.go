// Package testegg is a small implementation of the egg framework contract. It exists so that
// egg-mock can be exercised end to end: it boots an agent and an application from a config.toml
// in the base directory, serves the routes declared there through a gorilla/mux router, writes
// named loggers to files under logs/, and can run as a complete cluster in a child process.
//
// Importing the package registers it as the "egg" framework.
//
// A config.toml looks like this:
//
//     name = "demo"
//     coreMiddleware = ["securities"]
//
//     [[route]]
//     name = "home"
//     method = "GET"
//     path = "/"
//     handler = "text"
//     body = "hello world"
//
//     [service.foo]
//     get = "bar"
//
// String leaves of the service table (and of any table named after a custom loader) become
// methods that return that string.
package testegg

import (
	"github.com/launchdarkly/egg-mock/egg"
)

// FrameworkName is the name the package registers itself under.
const FrameworkName = egg.DefaultFramework

func init() {
	egg.Register(FrameworkName, Framework{})
}
