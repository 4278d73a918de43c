// Package ports allocates TCP ports for applications started by tests.
package ports

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// FirstClusterPort is the port that Sequence starts counting from.
const FirstClusterPort = 17000

const lockTimeout = 10 * time.Second

// Ephemeral returns a port that the operating system considers free right now.
func Ephemeral() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// IsAvailable checks if a port is available by attempting to listen on it.
func IsAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// Sequence hands out increasing ports. The last port handed out is kept in a state file guarded
// by a file lock, so that test binaries running in parallel never pick the same port.
type Sequence struct {
	dir string
}

// NewSequence creates a Sequence whose state lives in dir. An empty dir means the system
// temporary directory.
func NewSequence(dir string) *Sequence {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Sequence{dir: dir}
}

func (s *Sequence) statePath() string {
	return filepath.Join(s.dir, "egg-mock-ports.state")
}

// Next returns the next available port above the last one handed out by any process.
func (s *Sequence) Next(ctx context.Context) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create port state directory: %w", err)
	}
	fileLock := flock.New(filepath.Join(s.dir, "egg-mock-ports.lock"))

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire port lock: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("failed to acquire port lock within %s", lockTimeout)
	}
	defer fileLock.Unlock() //nolint:errcheck

	last := FirstClusterPort
	if data, err := os.ReadFile(s.statePath()); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && n >= FirstClusterPort {
			last = n
		}
	}
	for port := last + 1; port <= 65535; port++ {
		if !IsAvailable(port) {
			continue
		}
		if err := os.WriteFile(s.statePath(), []byte(strconv.Itoa(port)), 0o644); err != nil {
			return 0, err
		}
		return port, nil
	}
	// start counting from the beginning again next time
	if err := os.Remove(s.statePath()); err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return 0, fmt.Errorf("no available ports above %d", last)
}
