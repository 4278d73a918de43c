package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/launchdarkly/egg-mock/internal/testegg"
)

const testTimeout = 10 * time.Second

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// readyApp boots the named fixture and closes it when the test ends.
func readyApp(t *testing.T, baseDir string) *MockApplication {
	app := newApp(t, Options{BaseDir: baseDir})
	require.NoError(t, app.Ready(testContext(t)))
	return app
}

func newApp(t *testing.T, opts Options) *MockApplication {
	app, err := App(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		assert.NoError(t, Restore(ctx))
		_ = app.Close(ctx)
	})
	return app
}
