package testegg

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/launchdarkly/egg-mock/egg"
)

const shutdownTimeout = 5 * time.Second

// Framework is the testegg egg.Framework.
type Framework struct{}

func (Framework) NewAgent(opts egg.Options) (egg.Agent, error) {
	a, err := NewAgent(opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (Framework) NewApplication(opts egg.Options) (egg.Application, error) {
	a, err := NewApplication(opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// StartCluster boots an agent and one application worker, serves the application on opts.Port
// and blocks until ctx is cancelled. Worker counts above one are served by the same worker.
func (Framework) StartCluster(ctx context.Context, opts egg.Options, notify egg.Notifier) error {
	agent, err := NewAgent(opts)
	if err == nil {
		err = agent.Ready(ctx)
	}
	if err != nil {
		notify(egg.Message{Action: egg.ActionAgentWorkerDied, Data: err.Error()})
		return fmt.Errorf("agent failed to start: %w", err)
	}
	defer agent.Close(context.Background()) //nolint:errcheck

	app, err := NewApplication(opts)
	if err == nil {
		app.SetAgent(agent)
		agent.SetApp(app)
		connectMessengers(agent.messenger, app.messenger)
		err = app.Ready(ctx)
	}
	if err != nil {
		notify(egg.Message{Action: egg.ActionAppWorkerDied, Data: err.Error()})
		return fmt.Errorf("application failed to start: %w", err)
	}
	defer app.Close(context.Background()) //nolint:errcheck

	server, err := startServer(opts.Port, app.Handler())
	if err != nil {
		notify(egg.Message{Action: egg.ActionAppWorkerDied, Data: err.Error()})
		return err
	}

	ready := egg.Message{Action: egg.ActionEggReady, Data: opts}
	app.messenger.OnMessage(ready)
	agent.messenger.OnMessage(ready)
	notify(ready)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// connectMessengers delivers messages between the agent and the application of a cluster. Each
// direction has its own goroutine, so messages are delivered in the order they were sent.
func connectMessengers(agent, app *egg.BaseMessenger) {
	toApp := make(chan egg.Message, 100)
	toAgent := make(chan egg.Message, 100)
	go func() {
		for msg := range toApp {
			app.OnMessage(msg)
		}
	}()
	go func() {
		for msg := range toAgent {
			agent.OnMessage(msg)
		}
	}()
	route := func(msg egg.Message) {
		if msg.To == egg.ToApp || (msg.To == egg.ToRandom && msg.From == egg.ToAgent) {
			toApp <- msg
		} else {
			toAgent <- msg
		}
	}
	agent.SetTransport(route)
	app.SetTransport(route)
}

func startServer(port int, handler http.Handler) (*http.Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("could not listen on port %d: %w", port, err)
	}
	server := &http.Server{Handler: handler}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()
	return server, nil
}
