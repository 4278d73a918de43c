package testegg

import (
	"context"
	"sync"

	"github.com/launchdarkly/egg-mock/egg"
)

// node holds what agents and applications have in common.
type node struct {
	egg.EventEmitter
	opts       egg.Options
	cfg        loadedConfig
	messenger  *egg.BaseMessenger
	props      *egg.Properties
	httpClient *egg.HTTPClient
	loggers    *egg.Properties
	files      []*fileLogger
	ready      chan struct{}
	bootErr    error
	closeOnce  sync.Once
}

func newNode(opts egg.Options, from string) (*node, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	loggers, files := newLoggers(LogDir(opts.BaseDir, cfg.config.Name()))
	n := &node{
		opts:       opts,
		cfg:        cfg,
		messenger:  egg.NewBaseMessenger(from),
		props:      egg.NewProperties(nil),
		httpClient: egg.NewHTTPClient(),
		loggers:    loggers,
		files:      files,
		ready:      make(chan struct{}),
	}
	n.props.Store("name", cfg.config.Name())
	n.props.Store("baseDir", opts.BaseDir)
	n.props.Store("config", cfg.config)
	return n, nil
}

func (n *node) finishBoot(err error) {
	n.bootErr = err
	close(n.ready)
	if err != nil {
		n.Emit("error", err)
	}
}

func (n *node) Ready(ctx context.Context) error {
	select {
	case <-n.ready:
		return n.bootErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *node) Close(ctx context.Context) error {
	n.closeOnce.Do(func() {
		for _, f := range n.files {
			f.close()
		}
		n.Emit("close")
	})
	return nil
}

func (n *node) Options() egg.Options { return n.opts }

func (n *node) Messenger() egg.Messenger { return n.messenger }

func (n *node) Properties() *egg.Properties { return n.props }

func (n *node) HTTPClient() *egg.HTTPClient { return n.httpClient }

func (n *node) Config() *egg.Config { return n.cfg.config }

func (n *node) Logger(name string) egg.Logger {
	v, _ := n.loggers.Get(name)
	l, _ := v.(egg.Logger)
	return l
}

func (n *node) Loggers() *egg.Properties { return n.loggers }
