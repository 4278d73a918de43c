package testegg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/egg-mock/egg"
)

type contextHandler func(c *egg.Context, rc RouteConfig) (int, interface{})

var handlers = map[string]contextHandler{
	"text":       textHandler,
	"service":    serviceHandler,
	"fetch":      fetchHandler,
	"session":    sessionHandler,
	"header":     headerHandler,
	"cookie":     cookieHandler,
	"value":      valueHandler,
	"log":        logHandler,
	"background": backgroundHandler,
}

func routeHandler(rc RouteConfig) (http.Handler, error) {
	h, ok := handlers[rc.Handler]
	if !ok {
		return nil, fmt.Errorf("route %q: unknown handler %q", rc.Path, rc.Handler)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := egg.FromContext(r.Context())
		if c == nil {
			http.Error(w, "no context", http.StatusInternalServerError)
			return
		}
		status, body := h(c, rc)
		writeBody(w, status, body)
	}), nil
}

func writeBody(w http.ResponseWriter, status int, body interface{}) {
	switch b := body.(type) {
	case string:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, b)
	case []byte:
		w.WriteHeader(status)
		_, _ = w.Write(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(data)
	}
}

func textHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	return http.StatusOK, rc.Body
}

func serviceHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	result, err := c.Service(rc.Service, rc.Call)
	if err != nil {
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusOK, result
}

func fetchHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	resp, err := c.App.HTTPClient().Get(c.Request.Context(), rc.URL)
	if err != nil {
		return http.StatusBadGateway, err.Error()
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return http.StatusBadGateway, err.Error()
	}
	return resp.StatusCode, body
}

func sessionHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	s := c.Session()
	if s == nil {
		return http.StatusOK, map[string]interface{}{}
	}
	return http.StatusOK, map[string]interface{}(s)
}

func headerHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	return http.StatusOK, c.Header(rc.Header)
}

func cookieHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	v, _ := c.Cookie(rc.Cookie)
	return http.StatusOK, v
}

func valueHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	v, ok := c.Get(rc.Key)
	if !ok {
		return http.StatusNotFound, fmt.Sprintf("%s is not set", rc.Key)
	}
	return http.StatusOK, map[string]interface{}{rc.Key: v}
}

func logHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	name := rc.Logger
	if name == "" {
		name = LoggerName
	}
	logger := c.App.Logger(name)
	if logger == nil {
		return http.StatusNotFound, fmt.Sprintf("logger %s not found", name)
	}
	logger.Log(ldlog.Info, rc.Body)
	return http.StatusOK, "ok"
}

// backgroundHandler writes rc.Body to run/<key>.txt from a background task, which then schedules
// a second task that appends a line.
func backgroundHandler(c *egg.Context, rc RouteConfig) (int, interface{}) {
	key := rc.Key
	if key == "" {
		key = rc.Name
	}
	path := filepath.Join(c.App.Options().BaseDir, "run", key+".txt")
	c.RunInBackground("write "+key, func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(rc.Body), 0o644); err != nil {
			return err
		}
		egg.FromContext(ctx).RunInBackground("append "+key, func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = f.WriteString("\ndone")
			return err
		})
		return nil
	})
	return http.StatusOK, "ok"
}

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// securities rejects unsafe requests that fail the CSRF check.
func securities(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !safeMethods[r.Method] {
			if c := egg.FromContext(r.Context()); c != nil {
				if err := c.AssertCSRF(); err != nil {
					http.Error(w, err.Error(), http.StatusForbidden)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
