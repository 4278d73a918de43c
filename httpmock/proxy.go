package httpmock

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/elazarl/goproxy"
)

// Proxy is an HTTP forward proxy that answers requests from the process-wide Agent. A child
// process whose HTTP_PROXY points at it sees the rules registered in this process; requests that
// no rule matches are forwarded as usual.
//
// Only plain HTTP requests can be matched. HTTPS requests are tunneled untouched.
type Proxy struct {
	proxy    *goproxy.ProxyHttpServer
	server   *http.Server
	listener net.Listener
}

// NewProxy creates a Proxy; call Start to begin serving.
func NewProxy() *Proxy {
	p := goproxy.NewProxyHttpServer()
	p.Verbose = false
	p.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		agent := Current()
		if agent == nil {
			return r, nil
		}
		resp, matched, err := agent.Match(r)
		if !matched {
			return r, nil
		}
		if err != nil {
			loggers.Warnf("Mocked reply for %s %s failed: %s", r.Method, r.URL, err)
			return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusBadGateway, err.Error())
		}
		loggers.Debugf("Proxy answered %s %s from a mock rule", r.Method, r.URL)
		return r, resp
	})
	return &Proxy{proxy: p}
}

// Start listens on addr, for instance "127.0.0.1:0".
func (p *Proxy) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	p.listener = l
	p.server = &http.Server{Handler: p.proxy, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := p.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.Errorf("Mock proxy stopped: %s", err)
		}
	}()
	return nil
}

// URL returns the proxy URL to use in HTTP_PROXY.
func (p *Proxy) URL() string {
	if p.listener == nil {
		return ""
	}
	return "http://" + p.listener.Addr().String()
}

// Close stops the proxy.
func (p *Proxy) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}
