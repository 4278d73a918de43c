package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/launchdarkly/egg-mock/servicedef"
)

// Func is a method that can be invoked through call forwarding.
type Func func(ctx context.Context, args []interface{}) (interface{}, error)

// Target resolves the methods and properties that forwarded calls refer to. An empty property
// means a method of the application itself.
type Target interface {
	Method(property, name string) (Func, bool)
	Property(name string) (interface{}, bool)
}

const maxBodySize = 10 << 20

// Middleware returns middleware that answers call-forwarding requests against the Target that
// resolve returns for the request, and passes every other request to the next handler.
func Middleware(resolve func(r *http.Request) Target) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != servicedef.CallFunctionPath {
				next.ServeHTTP(w, r)
				return
			}
			serveCall(w, r, resolve(r))
		})
	}
}

// Handler returns a handler that answers call-forwarding requests against target.
func Handler(target Target) http.Handler {
	return Middleware(func(*http.Request) Target { return target })(http.NotFoundHandler())
}

func serveCall(w http.ResponseWriter, r *http.Request, target Target) {
	if r.Method != http.MethodPost {
		writeResponse(w, http.StatusMethodNotAllowed, servicedef.CallResponse{Error: "call forwarding requires POST"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, servicedef.CallResponse{Error: err.Error()})
		return
	}
	var params servicedef.CallParams
	if err := json.Unmarshal(body, &params); err != nil {
		writeResponse(w, http.StatusUnprocessableEntity, servicedef.CallResponse{Error: "malformed request body: " + err.Error()})
		return
	}
	loggers.Debugf("%s %s, body: %s", r.Method, r.URL.Path, string(body))

	status, resp := Invoke(r.Context(), target, params)
	writeResponse(w, status, resp)
}

// Invoke validates and runs one call against target, returning the HTTP status and body that
// the middleware would respond with.
func Invoke(ctx context.Context, target Target, params servicedef.CallParams) (int, servicedef.CallResponse) {
	if target == nil {
		return http.StatusServiceUnavailable, servicedef.CallResponse{Error: "application is not ready"}
	}
	if params.Method == "" {
		return http.StatusUnprocessableEntity, servicedef.CallResponse{Error: "Missing method"}
	}
	if len(params.Args) > 0 && string(params.Args) != "null" && !IsArray(params.Args) {
		return http.StatusUnprocessableEntity, servicedef.CallResponse{Error: "args should be an Array instance"}
	}
	property := params.Property.StringValue()

	if property != "" && params.Method == servicedef.GetterMethod {
		v, ok := target.Property(property)
		if !ok || v == nil {
			return http.StatusUnprocessableEntity, servicedef.CallResponse{
				Error: fmt.Sprintf(`property "%s" not exists on app`, property),
			}
		}
		return resultResponse(v, true)
	}

	fn, ok := target.Method(property, params.Method)
	if !ok {
		where := "app"
		if property != "" {
			where = "app." + property
		}
		loggers.Debugf("method %s not exists on %s", params.Method, where)
		return http.StatusUnprocessableEntity, servicedef.CallResponse{
			Error: fmt.Sprintf(`method "%s" not exists on %s`, params.Method, where),
		}
	}

	args, err := DecodeArgs(params.Args)
	if err != nil {
		return http.StatusUnprocessableEntity, servicedef.CallResponse{Error: err.Error()}
	}
	loggers.Debugf("call %s with %s", params.Method, string(params.Args))

	result, err := callSafely(ctx, fn, args)
	if err != nil {
		return http.StatusInternalServerError, servicedef.CallResponse{Error: err.Error()}
	}
	return resultResponse(result, params.NeedResult)
}

func callSafely(ctx context.Context, fn Func, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	return fn(ctx, args)
}

func resultResponse(result interface{}, needResult bool) (int, servicedef.CallResponse) {
	resp := servicedef.CallResponse{Success: true}
	if needResult && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return http.StatusInternalServerError, servicedef.CallResponse{Error: "cannot serialize result: " + err.Error()}
		}
		resp.Result = data
	}
	return http.StatusOK, resp
}

func writeResponse(w http.ResponseWriter, status int, resp servicedef.CallResponse) {
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
