package cluster

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alessio/shellescape"
	"github.com/google/uuid"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/httpmock"
	"github.com/launchdarkly/egg-mock/internal/ports"
	"github.com/launchdarkly/egg-mock/mock"
	"github.com/launchdarkly/egg-mock/rpc"
	"github.com/launchdarkly/egg-mock/servicedef"
)

const windowsGrace = time.Second

// Cluster is an application running as a cluster in a child process.
type Cluster struct {
	egg.EventEmitter
	ID        string
	opts      Options
	eggOpts   egg.Options
	cmd       *exec.Cmd
	caller    rpc.Caller
	proxy     *httpmock.Proxy
	ready     chan struct{}
	exited    chan struct{}
	readyErr  error
	exitErr   error
	readyOnce sync.Once
	closed    bool
	lock      sync.Mutex
}

var registry struct {
	clusters map[string]*Cluster
	lock     sync.Mutex
}

// New starts a cluster for opts, or returns the cached one for the same base directory. Use
// Ready to wait for it.
func New(opts Options) (*Cluster, error) {
	formatted, err := mock.FormatOptions(opts.Options)
	if err != nil {
		return nil, err
	}
	opts.Options = formatted

	registry.lock.Lock()
	defer registry.lock.Unlock()
	if registry.clusters == nil {
		registry.clusters = make(map[string]*Cluster)
	}
	if c, ok := registry.clusters[opts.BaseDir]; ok && *opts.Cache {
		if !c.IsClosed() {
			return c, nil
		}
		delete(registry.clusters, opts.BaseDir)
	}

	if opts.Port == 0 {
		port, err := ports.NewSequence("").Next(context.Background())
		if err != nil {
			return nil, err
		}
		opts.Port = port
	}
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.Bin == "" {
		bin, err := os.Executable()
		if err != nil {
			return nil, err
		}
		opts.Bin = bin
	}
	if *opts.Clean {
		for _, dir := range []string{"logs", "run"} {
			_ = os.RemoveAll(filepath.Join(opts.BaseDir, dir))
		}
	}

	c := &Cluster{
		ID:     uuid.NewString(),
		opts:   opts,
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
	}
	c.eggOpts = opts.EggOptions()
	c.eggOpts.Port = opts.Port
	c.eggOpts.Workers = opts.Workers
	if opts.SpawnCaller {
		c.caller = &rpc.ProcessCaller{Bin: opts.Bin, Port: opts.Port, Env: opts.Env}
	} else {
		c.caller = rpc.NewHTTPCaller(opts.Port)
	}
	if err := c.start(); err != nil {
		return nil, err
	}
	registry.clusters[opts.BaseDir] = c
	return c, nil
}

func (c *Cluster) start() error {
	data, err := json.Marshal(c.eggOpts)
	if err != nil {
		return err
	}
	env := append(os.Environ(), c.opts.Env...)
	env = append(env, servicedef.EnvBootstrap+"=1", servicedef.EnvIPCFD+"=3")
	if c.opts.ProxyOutbound {
		c.proxy = httpmock.NewProxy()
		if err := c.proxy.Start("127.0.0.1:0"); err != nil {
			return err
		}
		env = append(env, "HTTP_PROXY="+c.proxy.URL(), "http_proxy="+c.proxy.URL())
	}

	ipcRead, ipcWrite, err := os.Pipe()
	if err != nil {
		return err
	}
	cmd := exec.Command(c.opts.Bin, servicedef.CommandStartCluster, string(data))
	cmd.Env = env
	cmd.ExtraFiles = []*os.File{ipcWrite}
	stdout := c.outputWriter(os.Stdout)
	stderr := c.outputWriter(os.Stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	loggers().Debugf("Starting cluster: %s", commandLine(cmd.Args))
	if err := cmd.Start(); err != nil {
		ipcRead.Close()
		ipcWrite.Close()
		return err
	}
	ipcWrite.Close()
	c.cmd = cmd

	go c.readIPC(ipcRead)
	go func() {
		err := cmd.Wait()
		stdout.Close()
		stderr.Close()
		c.lock.Lock()
		c.exitErr = err
		c.lock.Unlock()
		close(c.exited)
		code := cmd.ProcessState.ExitCode()
		loggers().Debugf("Cluster %s exited with code %d", c.opts.BaseDir, code)
		c.resolve(&ExitError{Code: code})
		c.Emit("exit", code)
	}()
	return nil
}

// outputWriter copies the child's output to dest line by line.
func (c *Cluster) outputWriter(dest io.Writer) io.WriteCloser {
	r, w := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			fmt.Fprintln(dest, scanner.Text())
		}
	}()
	return w
}

func (c *Cluster) readIPC(r io.ReadCloser) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var msg egg.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			loggers().Warnf("Malformed message from cluster: %s", scanner.Text())
			continue
		}
		loggers().Debugf("Cluster message: %s", msg.Action)
		switch msg.Action {
		case egg.ActionEggReady:
			c.resolve(nil)
		case egg.ActionAppWorkerDied, egg.ActionAgentWorkerDied:
			message, _ := msg.Data.(string)
			c.resolve(&WorkerDiedError{Action: msg.Action, Message: message})
		}
		c.Emit(msg.Action, msg.Data)
	}
}

func (c *Cluster) resolve(err error) {
	c.readyOnce.Do(func() {
		c.lock.Lock()
		c.readyErr = err
		c.lock.Unlock()
		close(c.ready)
		if err != nil {
			c.Emit("error", err)
		}
	})
}

// Ready waits until the child reports that the cluster is serving, or that it failed.
func (c *Cluster) Ready(ctx context.Context) error {
	timer := time.NewTimer(c.opts.StartTimeout)
	defer timer.Stop()
	select {
	case <-c.ready:
		c.lock.Lock()
		defer c.lock.Unlock()
		return c.readyErr
	case <-timer.C:
		return fmt.Errorf("cluster %s was not ready after %s", c.opts.BaseDir, c.opts.StartTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed reports whether Close has been called.
func (c *Cluster) IsClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// Close stops the child with SIGTERM and waits for it to exit.
func (c *Cluster) Close(ctx context.Context) error {
	c.lock.Lock()
	c.closed = true
	c.lock.Unlock()

	select {
	case <-c.exited:
	default:
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			loggers().Warnf("Could not stop cluster %s: %s", c.opts.BaseDir, err)
		}
		select {
		case <-c.exited:
		case <-ctx.Done():
			_ = c.cmd.Process.Kill()
			<-c.exited
		}
	}
	if c.proxy != nil {
		_ = c.proxy.Close()
	}
	evict(c)
	if runtime.GOOS == "windows" {
		time.Sleep(windowsGrace)
	}
	return nil
}

func evict(c *Cluster) {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	if registry.clusters[c.opts.BaseDir] == c {
		delete(registry.clusters, c.opts.BaseDir)
	}
}

func openClusters() []*Cluster {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	ret := make([]*Cluster, 0, len(registry.clusters))
	for _, c := range registry.clusters {
		ret = append(ret, c)
	}
	return ret
}

// CloseAll closes every open cluster.
func CloseAll(ctx context.Context) error {
	var first error
	for _, c := range openClusters() {
		if c.IsClosed() {
			continue
		}
		if err := c.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Restore restores the mocks of every open cluster.
func Restore(ctx context.Context) error {
	var first error
	for _, c := range openClusters() {
		if c.IsClosed() {
			continue
		}
		if err := c.MockRestore(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BaseDir returns the formatted base directory.
func (c *Cluster) BaseDir() string {
	return c.opts.BaseDir
}

// Port returns the port the cluster serves on.
func (c *Cluster) Port() int {
	return c.opts.Port
}

// URL returns the base URL of the cluster.
func (c *Cluster) URL() string {
	return "http://127.0.0.1:" + strconv.Itoa(c.opts.Port)
}

// Process returns the child process.
func (c *Cluster) Process() *os.Process {
	return c.cmd.Process
}

func commandLine(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, shellescape.Quote(a))
	}
	return strings.Join(quoted, " ")
}

var _ mock.Manager = (*Cluster)(nil)

// Wait waits for the child to exit and returns the error of its exit, if any.
func (c *Cluster) Wait(ctx context.Context) error {
	select {
	case <-c.exited:
		c.lock.Lock()
		defer c.lock.Unlock()
		return c.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
