package cluster

import (
	"time"

	"github.com/launchdarkly/egg-mock/mock"
)

// DefaultStartTimeout is how long Ready waits for the child when Options.StartTimeout is zero.
const DefaultStartTimeout = 2 * time.Minute

// Options configures a cluster.
type Options struct {
	mock.Options

	// Port is the port the cluster serves on. When zero, the next port of a sequence that
	// starts at 17000 is used.
	Port int

	// Workers defaults to 1.
	Workers int

	// Bin is the binary to start. It defaults to the running executable.
	Bin string

	// Env is added to the child's environment.
	Env []string

	// SpawnCaller makes every forwarded call run in a short-lived helper process instead of
	// being posted from the test process.
	SpawnCaller bool

	// ProxyOutbound starts a proxy that answers the child's outbound HTTP requests from the HTTP
	// mock rules of this process, and points the child's HTTP_PROXY at it.
	ProxyOutbound bool

	StartTimeout time.Duration
}
