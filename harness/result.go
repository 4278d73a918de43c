package harness

import (
	"fmt"
	"strings"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Errors returns every failure as a TestFailure.
func (r Results) Errors() []error {
	var ret []error
	for _, f := range r.Failures {
		for _, err := range f.Errors {
			ret = append(ret, TestFailure{ID: f.TestID, Err: err})
		}
	}
	return ret
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}
