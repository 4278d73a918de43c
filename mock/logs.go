package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/mm"
)

// DefaultLogger is the logger that the log helpers use when none is named.
const DefaultLogger = "logger"

const logTail = 500

// capturingLogger keeps every line in memory and passes it on to the logger it replaces.
type capturingLogger struct {
	egg.Logger
	lines []string
	lock  sync.Mutex
}

func (l *capturingLogger) Log(level ldlog.LogLevel, message string) {
	l.lock.Lock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s", level, message))
	l.lock.Unlock()
	l.Logger.Log(level, message)
}

func (l *capturingLogger) content() string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return strings.Join(l.lines, "\n")
}

func loggerName(name string) string {
	if name == "" {
		return DefaultLogger
	}
	return name
}

// MockLog starts keeping the lines of a logger in memory, so that ExpectLog does not depend on
// how fast they reach the disk. Calling it again for the same logger does nothing.
func (e *Extension) MockLog(name string) error {
	name = loggerName(name)
	logger := e.app.Logger(name)
	if logger == nil {
		return fmt.Errorf("logger %s not found", name)
	}
	if _, ok := logger.(*capturingLogger); ok {
		return nil
	}
	mm.Mock(e.app.Loggers(), name, &capturingLogger{Logger: logger})
	return nil
}

func (e *Extension) logContent(name string) (content, source string, err error) {
	name = loggerName(name)
	logger := e.app.Logger(name)
	if logger == nil {
		return "", "", fmt.Errorf("logger %s not found", name)
	}
	if c, ok := logger.(*capturingLogger); ok {
		return c.content(), c.Filename(), nil
	}
	file := logger.Filename()
	data, err := os.ReadFile(file)
	if err != nil {
		return "", file, err
	}
	return string(data), file, nil
}

// ExpectLog fails unless the logger has written a line matching pattern, which is a string to
// look for or a *regexp.Regexp.
func (e *Extension) ExpectLog(pattern interface{}, logger string) error {
	return e.checkLog(true, pattern, logger)
}

// NotExpectLog fails if the logger has written a line matching pattern.
func (e *Extension) NotExpectLog(pattern interface{}, logger string) error {
	return e.checkLog(false, pattern, logger)
}

func (e *Extension) checkLog(expect bool, pattern interface{}, logger string) error {
	content, source, err := e.logContent(logger)
	if err != nil {
		return err
	}
	return CheckLogContent(expect, pattern, content, source)
}

// CheckLogContent reports whether content matches pattern as expected. source names where the
// content came from in the error message.
func CheckLogContent(expect bool, pattern interface{}, content, source string) error {
	var match bool
	var kind, text string
	switch p := pattern.(type) {
	case *regexp.Regexp:
		match, kind, text = p.MatchString(content), "RegExp", p.String()
	default:
		text = fmt.Sprint(p)
		match, kind = strings.Contains(content, text), "String"
	}
	tail := content
	if len(tail) > logTail {
		tail = tail[len(tail)-logTail:]
	}
	if expect && !match {
		return fmt.Errorf(`Can't find %s:"%s" in %s, log content: ...%s`, kind, text, source, tail)
	}
	if !expect && match {
		return fmt.Errorf(`Find %s:"%s" in %s, log content: ...%s`, kind, text, source, tail)
	}
	return nil
}

// ExpectLogEventually waits until the logger has written a line matching pattern, or ctx is
// done. File loggers are watched for writes; captured loggers are polled.
func (e *Extension) ExpectLogEventually(ctx context.Context, pattern interface{}, logger string) error {
	if e.checkLog(true, pattern, logger) == nil {
		return nil
	}
	l := e.app.Logger(loggerName(logger))
	if _, captured := l.(*capturingLogger); captured || l == nil || l.Filename() == "" {
		return e.pollLog(ctx, pattern, logger)
	}

	file := l.Filename()
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		return err
	}
	// the line may have been written between the first check and the watch
	if e.checkLog(true, pattern, logger) == nil {
		return nil
	}
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return e.checkLog(true, pattern, logger)
			}
			if filepath.Clean(ev.Name) != filepath.Clean(file) || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if e.checkLog(true, pattern, logger) == nil {
				return nil
			}
		case err := <-watcher.Errors:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			if err := e.checkLog(true, pattern, logger); err != nil {
				return fmt.Errorf("%w: %s", ctx.Err(), err)
			}
			return nil
		}
	}
}

func (e *Extension) pollLog(ctx context.Context, pattern interface{}, logger string) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.checkLog(true, pattern, logger) == nil {
				return nil
			}
		case <-ctx.Done():
			if err := e.checkLog(true, pattern, logger); err != nil {
				return fmt.Errorf("%w: %s", ctx.Err(), err)
			}
			return nil
		}
	}
}
