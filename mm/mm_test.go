package mm

import (
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreBringsBackValueBeforeFirstMock(t *testing.T) {
	var tr Tracker
	m := Map{"a": 1}

	tr.Mock(m, "a", 2)
	tr.Mock(m, "a", 3)
	assert.Equal(t, 3, m["a"])

	tr.Restore()
	assert.Equal(t, 1, m["a"])
}

func TestRestoreDeletesKeyThatWasAbsent(t *testing.T) {
	var tr Tracker
	m := Map{}

	tr.Mock(m, "b", "x")
	assert.Equal(t, "x", m["b"])

	tr.Restore()
	_, ok := m["b"]
	assert.False(t, ok)
}

func TestRestoreWithNothingMockedIsNoOp(t *testing.T) {
	var tr Tracker
	assert.NotPanics(t, tr.Restore)
	assert.NotPanics(t, tr.Restore)
	assert.Equal(t, 0, tr.Count())
}

func TestRestoreIsAppliedBeforeReturning(t *testing.T) {
	var tr Tracker
	m := Map{"k": "orig"}
	for i := 0; i < 10; i++ {
		tr.Mock(m, "k", i)
	}
	tr.Restore()
	assert.Equal(t, "orig", m["k"])
	assert.False(t, tr.IsMocked(m, "k"))
}

func TestDistinctMapsAreTrackedSeparately(t *testing.T) {
	var tr Tracker
	m1, m2 := Map{"a": 1}, Map{"a": 10}

	tr.Mock(m1, "a", 2)
	tr.Mock(m2, "a", 20)
	assert.True(t, tr.IsMocked(m1, "a"))
	assert.True(t, tr.IsMocked(m2, "a"))
	assert.Equal(t, 2, tr.Count())

	tr.Restore()
	assert.Equal(t, 1, m1["a"])
	assert.Equal(t, 10, m2["a"])
}

func TestEnvTarget(t *testing.T) {
	var tr Tracker
	const key = "EGG_MOCK_MM_TEST_VAR"
	require.NoError(t, os.Unsetenv(key))

	tr.Mock(Env, key, "on")
	assert.Equal(t, "on", os.Getenv(key))

	tr.Restore()
	_, ok := os.LookupEnv(key)
	assert.False(t, ok)
}

func TestHeaderTargetKeepsRawKeys(t *testing.T) {
	var tr Tracker
	h := http.Header{"X-Foo": []string{"orig"}}

	tr.Mock(Header(h), "x-foo", "lower")
	tr.Mock(Header(h), "X-Foo", []string{"upper"})
	assert.Equal(t, []string{"lower"}, h["x-foo"])
	assert.Equal(t, "upper", h.Get("x-foo"))

	tr.Restore()
	assert.Equal(t, http.Header{"X-Foo": []string{"orig"}}, h)
}

func TestFieldTarget(t *testing.T) {
	var tr Tracker
	name := "before"
	var err error

	tr.Mock(Field(&name), "", "after")
	tr.Mock(Field(&err), "", os.ErrNotExist)
	assert.Equal(t, "after", name)
	assert.Equal(t, os.ErrNotExist, err)

	tr.Restore()
	assert.Equal(t, "before", name)
	assert.Nil(t, err)
}

func TestFieldRequiresPointer(t *testing.T) {
	assert.Panics(t, func() { Field("not a pointer") })
}

func TestPackageLevelFunctionsUseDefaultTracker(t *testing.T) {
	m := Map{}
	Mock(m, "x", true)
	assert.True(t, IsMocked(m, "x"))
	Restore()
	assert.False(t, IsMocked(m, "x"))
	assert.Empty(t, m)
}
