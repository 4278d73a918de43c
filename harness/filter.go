package harness

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Filter decides whether the test or suite with the given ID runs.
type Filter func(TestID) bool

// Patterns is a list of regular expressions that can be filled from repeated command-line flags.
type Patterns []*regexp.Regexp

func (p Patterns) String() string {
	quoted := make([]string, 0, len(p))
	for _, rx := range p {
		quoted = append(quoted, fmt.Sprintf("%q", rx.String()))
	}
	return strings.Join(quoted, " or ")
}

func (p *Patterns) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	*p = append(*p, rx)
	return nil
}

func (p Patterns) Type() string { return "regex" }

func (p Patterns) matchAny(s string) bool {
	for _, rx := range p {
		if rx.MatchString(s) {
			return true
		}
	}
	return false
}

// RegexFilters selects tests by their slash-joined ID. With no Include patterns every test is a
// candidate; Exclude always wins.
type RegexFilters struct {
	Include Patterns
	Exclude Patterns
}

func (r RegexFilters) AsFilter(id TestID) bool {
	name := id.String()
	if r.Exclude.matchAny(name) {
		return false
	}
	return len(r.Include) == 0 || r.Include.matchAny(name)
}

// Describe explains the active filters on w. It writes nothing when there are none.
func (r RegexFilters) Describe(w io.Writer) {
	if len(r.Include) == 0 && len(r.Exclude) == 0 {
		return
	}
	fmt.Fprintln(w, "Tests are filtered for this run:")
	if len(r.Include) > 0 {
		fmt.Fprintf(w, "  only running tests matching %s\n", r.Include)
	}
	if len(r.Exclude) > 0 {
		fmt.Fprintf(w, "  skipping tests matching %s\n", r.Exclude)
	}
	fmt.Fprintln(w)
}
