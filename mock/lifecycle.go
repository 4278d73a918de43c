package mock

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/egg-mock/egg"
)

// Manager is what MockApplication and AgentManager have in common.
type Manager interface {
	egg.Emitter
	Ready(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

const (
	// closeGrace is how long Close waits when boot failed before the application existed.
	closeGrace = 200 * time.Millisecond

	// windowsGrace is added to boot and close on Windows, which keeps file handles open for a
	// while after they are closed.
	windowsGrace = time.Second
)

type pendingListener struct {
	event  string
	fn     egg.Listener
	once   bool
	fired  int32
	remove func()
}

// lifecycle runs a boot function exactly once and buffers event listeners until there is a
// real emitter to hand them to.
type lifecycle struct {
	events   egg.EventEmitter
	pending  []*pendingListener
	target   egg.Emitter
	closed   bool
	initOnce sync.Once
	initDone chan struct{}
	initErr  error
	lock     sync.RWMutex
}

// ready starts boot the first time it is called and waits for it to finish. Boot runs with its
// own context, so a caller giving up does not abort it for the other callers.
func (l *lifecycle) ready(ctx context.Context, boot func(ctx context.Context) error) error {
	l.initOnce.Do(func() {
		l.initDone = make(chan struct{})
		go func() {
			err := boot(context.Background())
			if err != nil {
				loggers.Errorf("Boot failed: %s", err)
				l.events.Emit("error", err)
			}
			l.lock.Lock()
			l.initErr = err
			l.lock.Unlock()
			close(l.initDone)
		}()
	})
	select {
	case <-l.initDone:
		l.lock.RLock()
		defer l.lock.RUnlock()
		return l.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lifecycle) initialized() bool {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.target != nil
}

// IsClosed reports whether Close has been called.
func (l *lifecycle) IsClosed() bool {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.closed
}

func (l *lifecycle) markClosed() {
	l.lock.Lock()
	l.closed = true
	l.lock.Unlock()
}

// On adds an event listener. Before boot has constructed the underlying object, the listener
// is kept here and moved onto that object later.
func (l *lifecycle) On(event string, fn egg.Listener) {
	l.listen(event, fn, false)
}

// Once adds a listener that is called at most once.
func (l *lifecycle) Once(event string, fn egg.Listener) {
	l.listen(event, fn, true)
}

func (l *lifecycle) listen(event string, fn egg.Listener, once bool) {
	l.lock.Lock()
	if t := l.target; t != nil {
		l.lock.Unlock()
		if once {
			t.Once(event, fn)
		} else {
			t.On(event, fn)
		}
		return
	}
	p := &pendingListener{event: event, fn: fn, once: once}
	p.remove = l.events.Subscribe(event, func(args ...interface{}) {
		if once {
			atomic.StoreInt32(&p.fired, 1)
		}
		fn(args...)
	}, once)
	l.pending = append(l.pending, p)
	l.lock.Unlock()
	loggers.Debugf("Listener for %q cached until the application is initialized", event)
}

// Emit emits on the underlying object once there is one, and on the internal emitter before.
func (l *lifecycle) Emit(event string, args ...interface{}) bool {
	l.lock.RLock()
	t := l.target
	l.lock.RUnlock()
	if t != nil {
		return t.Emit(event, args...)
	}
	return l.events.Emit(event, args...)
}

// bind makes t the underlying emitter and moves the buffered listeners onto it.
func (l *lifecycle) bind(t egg.Emitter) {
	l.lock.Lock()
	l.target = t
	pending := l.pending
	l.pending = nil
	l.lock.Unlock()

	for _, p := range pending {
		p.remove()
		if !p.once {
			t.On(p.event, p.fn)
			continue
		}
		if atomic.LoadInt32(&p.fired) == 0 {
			t.Once(p.event, p.fn)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func platformGrace(ctx context.Context) {
	if runtime.GOOS == "windows" {
		sleep(ctx, windowsGrace)
	}
}

// cleanDirs removes the given directories under baseDir. Failures are logged, not returned.
func cleanDirs(baseDir string, names ...string) {
	for _, name := range names {
		dir := filepath.Join(baseDir, name)
		if err := os.RemoveAll(dir); err != nil {
			loggers.Errorf("remove %s dir %s failed: %s", name, dir, err)
		}
	}
}
