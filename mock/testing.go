package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Setup waits for app to be ready, and registers a cleanup that waits for its background tasks
// and then restores every mock.
func Setup(t testing.TB, app *MockApplication) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, app.Ready(ctx))
	t.Cleanup(func() {
		assert.NoError(t, app.BackgroundTasksFinished(ctx))
		assert.NoError(t, Restore(ctx))
	})
}

// RunInScope runs fn as a subtest, inside a mocked context scope of app.
func RunInScope(t *testing.T, app *MockApplication, name string, fn func(t *testing.T, ctx context.Context)) bool {
	return t.Run(name, func(t *testing.T) {
		err := app.MockModuleContextScope(context.Background(), func(ctx context.Context) error {
			fn(t, ctx)
			return nil
		}, nil)
		require.NoError(t, err)
	})
}
