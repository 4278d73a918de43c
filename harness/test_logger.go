package harness

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// TestLogger is told about each test as it runs.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, failed bool, debugOutput DebugOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (nullTestLogger) TestStarted(TestID)                     {}
func (nullTestLogger) TestError(TestID, error)                {}
func (nullTestLogger) TestFinished(TestID, bool, DebugOutput) {}
func (nullTestLogger) TestSkipped(TestID, string)             {}

// DebugPolicy says when ConsoleTestLogger prints a test's debug output.
type DebugPolicy int

const (
	DebugNever DebugPolicy = iota
	DebugOnFailure
	DebugAlways
)

var (
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	passColor = color.New(color.FgGreen)
)

// ConsoleTestLogger prints test progress to Out in the same shape as go test -v.
type ConsoleTestLogger struct {
	Out       io.Writer
	ShowDebug DebugPolicy
}

func (c *ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Fprintf(c.Out, "=== RUN   %s\n", id)
}

func (c *ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(c.Out, "    %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id TestID, failed bool, debugOutput DebugOutput) {
	if failed {
		failColor.Fprintf(c.Out, "--- FAIL: %s\n", id)
	} else {
		passColor.Fprintf(c.Out, "--- PASS: %s\n", id)
	}
	if c.ShowDebug == DebugAlways || (failed && c.ShowDebug == DebugOnFailure) {
		debugOutput.Print(c.Out, "    | ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason != "" {
		skipColor.Fprintf(c.Out, "--- SKIP: %s (%s)\n", id, reason)
		return
	}
	skipColor.Fprintf(c.Out, "--- SKIP: %s\n", id)
}
