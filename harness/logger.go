package harness

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

// DebugLine is one line of debug output produced while a test or hook ran.
type DebugLine struct {
	At   time.Time
	Text string
}

type DebugOutput []DebugLine

// Print writes each line to w, indented and stamped with the time of day it was produced.
func (o DebugOutput) Print(w io.Writer, indent string) {
	for _, line := range o {
		fmt.Fprintf(w, "%s%s %s\n", indent, line.At.Format("15:04:05.000"), line.Text)
	}
}

// DebugCapture holds a test's debug output until the test finishes, so that it can be shown only
// when it is wanted. It is an ldlog.BaseLogger.
type DebugCapture struct {
	lines []DebugLine
	lock  sync.Mutex
}

func (d *DebugCapture) Println(values ...interface{}) {
	d.add(strings.TrimSuffix(fmt.Sprintln(values...), "\n"))
}

func (d *DebugCapture) Printf(format string, args ...interface{}) {
	d.add(fmt.Sprintf(format, args...))
}

func (d *DebugCapture) add(text string) {
	d.lock.Lock()
	d.lines = append(d.lines, DebugLine{At: time.Now(), Text: text})
	d.lock.Unlock()
}

// Lines returns a copy of everything captured so far.
func (d *DebugCapture) Lines() DebugOutput {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append(DebugOutput(nil), d.lines...)
}

// Loggers returns ldlog loggers at Debug level that write into the capture.
func (d *DebugCapture) Loggers() ldlog.Loggers {
	loggers := ldlog.Loggers{}
	loggers.SetBaseLogger(d)
	loggers.SetMinLevel(ldlog.Debug)
	return loggers
}
