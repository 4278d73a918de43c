package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/launchdarkly/egg-mock/httpmock"
	"github.com/launchdarkly/egg-mock/mm"
)

type namedHook struct {
	name string
	fn   func(ctx context.Context) error
}

var hooks struct {
	restorers []namedHook
	shutdown  []namedHook
	lock      sync.Mutex
}

func addHook(list *[]namedHook, name string, fn func(ctx context.Context) error) {
	hooks.lock.Lock()
	defer hooks.lock.Unlock()
	for i, h := range *list {
		if h.name == name {
			(*list)[i].fn = fn
			return
		}
	}
	*list = append(*list, namedHook{name: name, fn: fn})
}

func hookList(list *[]namedHook) []namedHook {
	hooks.lock.Lock()
	defer hooks.lock.Unlock()
	return append([]namedHook(nil), *list...)
}

// RegisterRestorer adds a step to Restore. A later registration under the same name replaces
// the earlier one.
func RegisterRestorer(name string, fn func(ctx context.Context) error) {
	addHook(&hooks.restorers, name, fn)
}

// RegisterShutdown adds a step to CloseAll.
func RegisterShutdown(name string, fn func(ctx context.Context) error) {
	addHook(&hooks.shutdown, name, fn)
}

// Restore undoes every mock: first the recorded property mutations, synchronously, then each
// registered restorer (such as the one that restores cluster children), and finally the HTTP
// mock agent. Every step runs even if an earlier one fails; the first error is returned.
func Restore(ctx context.Context) error {
	mm.Restore()
	var first error
	for _, h := range hookList(&hooks.restorers) {
		if err := h.fn(ctx); err != nil {
			loggers.Warnf("restore %s failed: %s", h.name, err)
			if first == nil {
				first = fmt.Errorf("restore %s: %w", h.name, err)
			}
		}
	}
	httpmock.Restore()
	loggers.Debug("restore all")
	return first
}
