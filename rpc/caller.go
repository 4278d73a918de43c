package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/alessio/shellescape"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/launchdarkly/egg-mock/servicedef"
)

// CallError is the failure of a forwarded call.
type CallError struct {
	// Status is the HTTP status of the response, or 0 if the failure was reported by a helper
	// process.
	Status  int
	Message string
}

func (e *CallError) Error() string {
	return e.Message
}

// Caller sends a call envelope to an application and returns the JSON result, which is empty
// unless NeedResult was set.
type Caller interface {
	Call(ctx context.Context, params servicedef.CallParams) (json.RawMessage, error)
}

// HTTPCaller posts call envelopes straight to an application listening on a local port.
//
// It never uses http.DefaultTransport, which may have been replaced by an HTTP mock agent in
// the test process.
type HTTPCaller struct {
	Port    int
	Timeout time.Duration
	client  *http.Client
}

// NewHTTPCaller creates a caller for the application on port.
func NewHTTPCaller(port int) *HTTPCaller {
	return &HTTPCaller{
		Port:   port,
		client: &http.Client{Transport: &http.Transport{Proxy: nil}},
	}
}

// URL returns the call-forwarding endpoint.
func (c *HTTPCaller) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", c.Port, servicedef.CallFunctionPath)
}

func (c *HTTPCaller) Call(ctx context.Context, params servicedef.CallParams) (json.RawMessage, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	params.Port = ldvalue.OptionalInt{}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := c.client
	if client == nil {
		client = &http.Client{Transport: &http.Transport{}}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var result servicedef.CallResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &CallError{Status: resp.StatusCode, Message: fmt.Sprintf("unexpected response (HTTP %d): %s", resp.StatusCode, string(body))}
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("call %s failed with HTTP %d", params.Method, resp.StatusCode)
		}
		return nil, &CallError{Status: resp.StatusCode, Message: msg}
	}
	return result.Result, nil
}

// IsConnectionRefused reports whether err means that nothing was listening.
func IsConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || (err != nil && strings.Contains(err.Error(), "connection refused"))
}

// ProcessCaller runs every call in a short-lived helper process ("<Bin> call <json>"), waiting
// for it to exit. The helper's stdout is the result and its stderr the error message.
type ProcessCaller struct {
	Bin  string
	Port int
	Env  []string
}

func (c *ProcessCaller) Call(ctx context.Context, params servicedef.CallParams) (json.RawMessage, error) {
	params.Port = ldvalue.NewOptionalInt(c.Port)
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, c.Bin, servicedef.CommandCall, string(data))
	cmd.Env = append(append(os.Environ(), c.Env...), servicedef.EnvBootstrap+"=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	loggers.Debugf("Running %s", commandLine(cmd.Args))

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("call helper exited with code %d", exitErr.ExitCode())
		}
		return nil, &CallError{Message: msg}
	}
	out := bytes.TrimSpace(stdout.Bytes())
	if !params.NeedResult || len(out) == 0 {
		return nil, nil
	}
	return json.RawMessage(out), nil
}

func commandLine(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, shellescape.Quote(a))
	}
	return strings.Join(quoted, " ")
}

// RunCall is the body of the call helper process. It sends the envelope in arg to the port it
// names, writes the result to stdout or the error to stderr, and returns the exit code:
// 0 on success, 2 if the call failed, 1 if the application could not be reached. A mockRestore
// that cannot reach the application succeeds, since the application may already be gone.
func RunCall(ctx context.Context, arg string, stdout, stderr io.Writer) int {
	var params servicedef.CallParams
	if err := json.Unmarshal([]byte(arg), &params); err != nil {
		fmt.Fprintf(stderr, "invalid call parameters: %s\n", err)
		return servicedef.CallExitTransport
	}
	caller := NewHTTPCaller(params.Port.IntValue())
	result, err := caller.Call(ctx, params)
	if err != nil {
		var callErr *CallError
		if errors.As(err, &callErr) && callErr.Status != 0 {
			fmt.Fprintln(stderr, callErr.Message)
			return servicedef.CallExitCallFailure
		}
		if params.Method == "mockRestore" {
			return servicedef.CallExitOK
		}
		fmt.Fprintf(stderr, "POST %s error, method: %s, args: %s\n%s\n", caller.URL(), params.Method, string(params.Args), err)
		return servicedef.CallExitTransport
	}
	if len(result) > 0 {
		fmt.Fprintln(stdout, string(result))
	}
	return servicedef.CallExitOK
}
