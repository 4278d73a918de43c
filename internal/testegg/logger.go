package testegg

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/egg"
)

// Names of the loggers every node has.
const (
	LoggerName     = "logger"
	CoreLoggerName = "coreLogger"
)

// LogDir returns the directory that the loggers of an application write to.
func LogDir(baseDir, appName string) string {
	return filepath.Join(baseDir, "logs", appName)
}

// fileLogger appends one line per message to <baseDir>/logs/<app>/<name>.log.
type fileLogger struct {
	path string
	file *os.File
	lock sync.Mutex
}

func newFileLogger(dir, name string) *fileLogger {
	return &fileLogger{path: filepath.Join(dir, name+".log")}
}

func (l *fileLogger) Log(level ldlog.LogLevel, message string) {
	line := fmt.Sprintf("%s %s %d %s\n", time.Now().Format("2006-01-02 15:04:05.000"), level.String(), os.Getpid(), message)
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		l.file = f
	}
	_, _ = l.file.WriteString(line)
}

func (l *fileLogger) Filename() string {
	return l.path
}

func (l *fileLogger) close() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

func newLoggers(dir string) (*egg.Properties, []*fileLogger) {
	p := egg.NewProperties(nil)
	var files []*fileLogger
	for _, name := range []string{LoggerName, CoreLoggerName} {
		fl := newFileLogger(dir, name)
		p.Store(name, fl)
		files = append(files, fl)
	}
	return p, files
}
