package servicedef

// Environment variables used between a test process and the child processes it starts.
const (
	// EnvBootstrap is set to "1" when a binary is started as an egg-mock child.
	EnvBootstrap = "EGG_MOCK_BOOTSTRAP"

	// EnvIPCFD is the file descriptor that a cluster child writes its lifecycle messages to.
	EnvIPCFD = "EGG_MOCK_IPC_FD"
)

// Subcommands understood by a child process.
const (
	CommandStartCluster = "start-cluster"
	CommandCall         = "call"
)

// Exit codes of the call subcommand.
const (
	CallExitOK          = 0
	CallExitTransport   = 1
	CallExitCallFailure = 2
)

// Version is the egg-mock version reported in the User-Agent of test requests.
const Version = "1.0.0"
