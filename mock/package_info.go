// Package mock boots egg applications for tests and lets test code change what those
// applications see.
//
// App returns a MockApplication for a base directory. It is cached per directory, so every test
// file asking for the same fixture shares one booted application. Before it is ready, only
// Ready, Close, IsClosed, Agent, App and the event methods may be used; everything else either
// returns or panics with a *NotReadyError. Once ready, the mocking extensions (MockService,
// MockContext, MockHTTPClient, MockLog and so on) are available on it, and Restore undoes
// everything they changed.
//
// The same extensions can be invoked on an application running in another process through the
// call-forwarding protocol implemented by package rpc; see package cluster.
package mock

import (
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/httpmock"
	"github.com/launchdarkly/egg-mock/rpc"
)

// EnvDebug turns on debug logging when set to a non-empty value.
const EnvDebug = "EGG_MOCK_DEBUG"

var (
	loggers     = defaultLoggers()
	loggersLock sync.RWMutex
)

func init() {
	rpc.SetLoggers(loggers)
	httpmock.SetLoggers(loggers)
}

func debugEnabled() bool {
	return os.Getenv(EnvDebug) != "" || strings.Contains(os.Getenv("DEBUG"), "egg-mock")
}

func defaultLoggers() ldlog.Loggers {
	l := ldlog.NewDefaultLoggers()
	l.SetBaseLogger(log.New(os.Stderr, "[egg-mock] ", log.LstdFlags))
	if debugEnabled() {
		l.SetMinLevel(ldlog.Debug)
	} else {
		l.SetMinLevel(ldlog.Info)
	}
	return l
}

// Loggers returns the loggers used by egg-mock.
func Loggers() ldlog.Loggers {
	loggersLock.RLock()
	defer loggersLock.RUnlock()
	return loggers
}

// SetLoggers replaces the loggers used by egg-mock, including those of packages rpc and
// httpmock.
func SetLoggers(l ldlog.Loggers) {
	loggersLock.Lock()
	loggers = l
	loggersLock.Unlock()
	rpc.SetLoggers(l)
	httpmock.SetLoggers(l)
}
