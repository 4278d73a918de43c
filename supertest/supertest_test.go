package supertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type muxRouter struct {
	router *mux.Router
}

func (m muxRouter) PathFor(name string, pairs ...string) (string, error) {
	route := m.router.Get(name)
	if route == nil {
		return "", errors.New("no route")
	}
	u, err := route.URLPath(pairs...)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

func echoRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q}`, mux.Vars(r)["id"])
	}).Name("user")
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s %s %s %s %s", r.Method, r.Header.Get("Content-Type"), r.Header.Get("X-Test"),
			r.URL.Query().Get("q"), string(body))
	})
	router.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.UserAgent())
	})
	return router
}

func TestRequestThroughHandler(t *testing.T) {
	router := echoRouter()
	agent := NewForHandler(router, muxRouter{router})

	agent.Post("/echo").Set("X-Test", "yes").Query("q", "1").Send("hi").
		Expect(t, 200, "POST text/plain; charset=utf-8 yes 1 hi")
	agent.Put("/echo").Send(map[string]int{"a": 1}).
		Expect(t, 200, `PUT application/json   {"a":1}`)
	agent.Get("/agent").Expect(t, 200, UserAgent)
	agent.Get("/nowhere").Expect(t, 404)
}

func TestNamedRoutes(t *testing.T) {
	router := echoRouter()
	agent := NewForHandler(router, muxRouter{router})

	resp := agent.Get("user", "id", "42").Expect(t, 200, regexp.MustCompile(`"42"`))
	var body map[string]string
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "42", body["id"])

	_, err := agent.Get("missing").Do(context.Background())
	assert.EqualError(t, err, "Can't find router:missing, please check your router")

	_, err = NewForHandler(router, nil).Get("user", "id", "1").Do(context.Background())
	assert.Error(t, err)
}

func TestRequestToURL(t *testing.T) {
	router := echoRouter()
	server := httptest.NewServer(router)
	defer server.Close()

	agent := NewForURL(server.URL+"/", muxRouter{router})
	agent.Delete("/echo").Expect(t, 200, "DELETE    ")
	agent.Get("user", "id", "7").Expect(t, 200, `{"id":"7"}`, func(r *Response) error {
		if r.Header.Get("Content-Type") != "application/json" {
			return errors.New("wrong content type")
		}
		return nil
	})
}
