package mock

import (
	"context"
	"errors"
	"fmt"

	"github.com/launchdarkly/egg-mock/egg"
	"github.com/launchdarkly/egg-mock/rpc"
)

type targetMethod func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error)

// rpcMethods are the application methods that forwarded calls can invoke.
var rpcMethods = map[string]targetMethod{
	"mockService": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.MockService(argString(args, 0), argString(args, 1), arg(args, 2))
	},
	"mockServiceError": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.MockServiceError(argString(args, 0), argString(args, 1), argError(args, 2))
	},
	"mockSession": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		data, _ := arg(args, 0).(map[string]interface{})
		e.MockSession(data)
		return nil, nil
	},
	"mockCookies": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		e.MockCookies(argStringMap(args, 0))
		return nil, nil
	},
	"mockHeaders": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		e.MockHeaders(argStringMap(args, 0))
		return nil, nil
	},
	"mockCsrf": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		e.MockCsrf()
		return nil, nil
	},
	"mockEnv": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		e.MockEnv(argString(args, 0))
		return nil, nil
	},
	"mockHttpclient": mockHTTPClientMethod,
	"mockHttpClient": mockHTTPClientMethod,
	"mockAgentRestore": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		e.MockAgentRestore()
		return nil, nil
	},
	"mockRestore": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.MockRestore(ctx)
	},
	"mockLog": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.MockLog(argString(args, 0))
	},
	"expectLog": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.ExpectLog(arg(args, 0), argString(args, 1))
	},
	"notExpectLog": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.NotExpectLog(arg(args, 0), argString(args, 1))
	},
	"backgroundTasksFinished": func(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
		return nil, e.BackgroundTasksFinished(ctx)
	},
}

func mockHTTPClientMethod(e *Extension, ctx context.Context, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, errors.New("mockHttpclient expects a url and a result")
	}
	return nil, e.MockHTTPClient(args[0], args[1:]...)
}

// Method implements rpc.Target.
func (e *Extension) Method(property, name string) (rpc.Func, bool) {
	if property == "" {
		if m, ok := rpcMethods[name]; ok {
			return func(ctx context.Context, args []interface{}) (interface{}, error) {
				return m(e, ctx, args)
			}, true
		}
		if field, ok := e.customField(name); ok {
			return func(ctx context.Context, args []interface{}) (interface{}, error) {
				return nil, e.MockCustom(field, argString(args, 0), argString(args, 1), arg(args, 2))
			}, true
		}
		return nil, false
	}

	if property == "router" && name == "pathFor" {
		return func(ctx context.Context, args []interface{}) (interface{}, error) {
			var pairs []string
			if params, ok := arg(args, 1).(map[string]interface{}); ok {
				for k, v := range params {
					pairs = append(pairs, k, fmt.Sprint(v))
				}
			}
			return e.app.Router().PathFor(argString(args, 0), pairs...)
		}, true
	}

	component, ok := e.app.Component(property)
	if !ok {
		return nil, false
	}
	v, _ := component.Get(name)
	method, ok := v.(egg.Method)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, args []interface{}) (interface{}, error) {
		c := egg.FromContext(ctx)
		if c == nil {
			c = e.MockContext(ctx, nil)
		}
		return method(c, args...)
	}, true
}

// Property implements rpc.Target. Property bags are returned as plain maps.
func (e *Extension) Property(name string) (interface{}, bool) {
	var v interface{}
	var ok bool
	if name == "config" {
		v, ok = e.app.Config(), true
	} else {
		v, ok = e.app.Properties().Get(name)
	}
	switch p := v.(type) {
	case *egg.Config:
		return p.Snapshot(), ok
	case *egg.Properties:
		return p.Snapshot(), ok
	}
	return v, ok
}

func arg(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argString(args []interface{}, i int) string {
	s, _ := arg(args, i).(string)
	return s
}

func argError(args []interface{}, i int) error {
	switch v := arg(args, i).(type) {
	case error:
		return v
	case string:
		if v != "" {
			return errors.New(v)
		}
	}
	return nil
}

func argStringMap(args []interface{}, i int) map[string]string {
	m, ok := arg(args, i).(map[string]interface{})
	if !ok {
		return nil
	}
	ret := make(map[string]string, len(m))
	for k, v := range m {
		ret[k] = fmt.Sprint(v)
	}
	return ret
}

var _ rpc.Target = (*Extension)(nil)
