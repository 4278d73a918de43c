package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/mock"
	"github.com/launchdarkly/egg-mock/rpc"
	"github.com/launchdarkly/egg-mock/servicedef"
)

// Main runs a child entry point when the binary was started as an egg-mock child, and the tests
// of m otherwise. It does not return.
func Main(m mock.M) {
	if os.Getenv(servicedef.EnvBootstrap) == "1" {
		os.Exit(Run(os.Args[1:]))
	}
	os.Exit(mock.RunMain(m))
}

// Run runs the subcommand in args and returns the exit code.
func Run(args []string) int {
	cmd := NewCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err != nil {
		return 1
	}
	return 0
}

// ExitCodeError ends a subcommand with a specific exit code.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// StartCluster runs the cluster described by arg, a JSON egg.Options, until the process is asked
// to stop. Lifecycle messages are written to ipc as JSON lines.
func StartCluster(ctx context.Context, arg string, ipc io.Writer) error {
	var opts egg.Options
	if err := json.Unmarshal([]byte(arg), &opts); err != nil {
		return fmt.Errorf("invalid cluster options: %w", err)
	}
	m, _, err := egg.ReadManifest(opts.BaseDir)
	if err != nil {
		return err
	}
	if m.EggPlugin != nil {
		return errors.New("DO NOT USE cluster to start a plugin, use a fixture application instead")
	}
	if opts.Framework == "" {
		opts.Framework = egg.DefaultFramework
	}
	fw, ok := egg.Lookup(opts.Framework)
	if !ok {
		return fmt.Errorf("framework %q is not registered in this binary", opts.Framework)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	encoder := json.NewEncoder(ipc)
	notify := func(msg egg.Message) {
		if err := encoder.Encode(msg); err != nil {
			mock.Loggers().Errorf("Could not send %s to the parent: %s", msg.Action, err)
		}
	}
	return fw.StartCluster(ctx, opts, notify)
}

// ipcWriter returns the file named by EGG_MOCK_IPC_FD, or stdout when there is none.
func ipcWriter() io.Writer {
	fd, err := strconv.Atoi(os.Getenv(servicedef.EnvIPCFD))
	if err != nil || fd < 3 {
		return os.Stdout
	}
	return os.NewFile(uintptr(fd), "egg-mock-ipc")
}

// Call forwards the call in arg and returns the exit code of the call helper.
func Call(ctx context.Context, arg string, stdout, stderr io.Writer) int {
	return rpc.RunCall(ctx, arg, stdout, stderr)
}
