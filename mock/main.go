package mock

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const closeAllTimeout = 30 * time.Second

// M is the part of *testing.M that RunMain uses.
type M interface {
	Run() int
}

// RunMain runs the tests of m and then closes every application, agent and cluster that is
// still open. If the process receives SIGINT or SIGTERM first, it closes everything and exits
// with status 0.
//
//	func TestMain(m *testing.M) {
//		os.Exit(mock.RunMain(m))
//	}
func RunMain(m M) int {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigs
		if !ok {
			return
		}
		loggers.Infof("receive signal %s, closing", sig)
		closeAllWithTimeout()
		os.Exit(0)
	}()

	code := m.Run()
	signal.Stop(sigs)
	close(sigs)
	closeAllWithTimeout()
	return code
}

func closeAllWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), closeAllTimeout)
	defer cancel()
	if err := CloseAll(ctx); err != nil {
		loggers.Warnf("close all failed: %s", err)
	}
}
