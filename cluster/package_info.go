// Package cluster runs an application under test as a complete cluster in a child process,
// and forwards mock and assertion calls to the application worker inside it.
//
// The child is the test binary itself, started again with the start-cluster subcommand. A test
// package that uses clusters must hand control to the bootstrap package in its TestMain:
//
//	func TestMain(m *testing.M) {
//		bootstrap.Main(m)
//	}
package cluster

import (
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/mock"
)

func loggers() ldlog.Loggers {
	return mock.Loggers()
}

func init() {
	mock.RegisterRestorer("cluster", Restore)
	mock.RegisterShutdown("cluster", CloseAll)
}
