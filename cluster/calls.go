package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/mock"
	"github.com/launchdarkly/egg-mock/rpc"
	"github.com/launchdarkly/egg-mock/servicedef"
	"github.com/launchdarkly/egg-mock/supertest"
)

var mockMethodPattern = regexp.MustCompile(`^mock\w+$`)

// CallFunctionOnAppWorker calls method on the application worker, or on its property when
// property is not empty, and blocks until the call has finished. The result is only decoded
// when needResult is set.
//
// Functions in args must have been registered with rpc.RegisterFunc in the test binary, which
// is also the binary of the child.
func (c *Cluster) CallFunctionOnAppWorker(ctx context.Context, method string, args []interface{}, property string, needResult bool) (json.RawMessage, error) {
	encoded, err := rpc.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	params := servicedef.CallParams{
		Method:     method,
		Args:       encoded,
		NeedResult: needResult,
	}
	if property != "" {
		params.Property = ldvalue.NewOptionalString(property)
	}
	result, err := c.caller.Call(ctx, params)
	if err != nil {
		if method == "mockRestore" && rpc.IsConnectionRefused(err) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// Mock forwards a mock<Something> call to the application worker and returns its result.
// mockLog does nothing, since the worker's loggers already write to files.
func (c *Cluster) Mock(ctx context.Context, name string, args ...interface{}) (json.RawMessage, error) {
	if !mockMethodPattern.MatchString(name) {
		return nil, fmt.Errorf("%s is not a mock method", name)
	}
	if name == "mockLog" {
		return nil, nil
	}
	return c.CallFunctionOnAppWorker(ctx, name, args, "", true)
}

func (c *Cluster) MockService(ctx context.Context, service, method string, data interface{}) error {
	_, err := c.Mock(ctx, "mockService", service, method, data)
	return err
}

func (c *Cluster) MockServiceError(ctx context.Context, service, method string, e error) error {
	args := []interface{}{service, method}
	if e != nil {
		args = append(args, e)
	}
	_, err := c.Mock(ctx, "mockServiceError", args...)
	return err
}

func (c *Cluster) MockHTTPClient(ctx context.Context, mockURL interface{}, args ...interface{}) error {
	_, err := c.Mock(ctx, "mockHttpclient", append([]interface{}{mockURL}, args...)...)
	return err
}

func (c *Cluster) MockHeaders(ctx context.Context, headers map[string]string) error {
	_, err := c.Mock(ctx, "mockHeaders", headers)
	return err
}

func (c *Cluster) MockRestore(ctx context.Context) error {
	_, err := c.CallFunctionOnAppWorker(ctx, "mockRestore", nil, "", false)
	return err
}

// MockLog does nothing; see Mock.
func (c *Cluster) MockLog(string) {}

// ExpectLog fails unless the log file of the worker's logger matches pattern.
func (c *Cluster) ExpectLog(ctx context.Context, pattern interface{}, logger string) error {
	return c.checkLog(ctx, true, pattern, logger)
}

// NotExpectLog fails if the log file of the worker's logger matches pattern.
func (c *Cluster) NotExpectLog(ctx context.Context, pattern interface{}, logger string) error {
	return c.checkLog(ctx, false, pattern, logger)
}

func (c *Cluster) checkLog(ctx context.Context, expect bool, pattern interface{}, logger string) error {
	if logger == "" {
		logger = mock.DefaultLogger
	}
	name, err := c.appName(ctx)
	if err != nil {
		return err
	}
	file := filepath.Join(c.opts.BaseDir, "logs", name, logger+".log")
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return mock.CheckLogContent(expect, pattern, string(data), file)
}

func (c *Cluster) appName(ctx context.Context) (string, error) {
	raw, err := c.CallFunctionOnAppWorker(ctx, servicedef.GetterMethod, nil, "config", true)
	if err != nil {
		return "", err
	}
	var config map[string]interface{}
	if err := json.Unmarshal(raw, &config); err != nil {
		return "", fmt.Errorf("unexpected config from worker: %w", err)
	}
	name, _ := config[egg.ConfigName].(string)
	if name == "" {
		return "", fmt.Errorf("worker config has no %s", egg.ConfigName)
	}
	return name, nil
}

// Router returns a router that resolves named routes on the worker.
func (c *Cluster) Router() egg.Router {
	return clusterRouter{c}
}

type clusterRouter struct {
	c *Cluster
}

func (r clusterRouter) PathFor(name string, pairs ...string) (string, error) {
	params := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		params[pairs[i]] = pairs[i+1]
	}
	raw, err := r.c.CallFunctionOnAppWorker(context.Background(), "pathFor", []interface{}{name, params}, "router", true)
	if err != nil {
		return "", err
	}
	var path string
	if err := json.Unmarshal(raw, &path); err != nil {
		return "", err
	}
	return path, nil
}

// HTTPRequest returns a request builder that sends real requests to the cluster.
func (c *Cluster) HTTPRequest() *supertest.Agent {
	return supertest.NewForURL(c.URL(), c.Router())
}
