package bootstrap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/launchdarkly/go-test-helpers/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/egg-mock/egg"
	_ "github.com/launchdarkly/egg-mock/internal/testegg"
	"github.com/launchdarkly/egg-mock/servicedef"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func callServer(t *testing.T, status int, resp servicedef.CallResponse) int {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, servicedef.CallFunctionPath, r.URL.Path)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server.Listener.Addr().(*net.TCPAddr).Port
}

func TestRunCallExitCodes(t *testing.T) {
	okPort := callServer(t, 200, servicedef.CallResponse{Success: true, Result: json.RawMessage(`"done"`)})
	failPort := callServer(t, 422, servicedef.CallResponse{Error: "Missing method"})

	assert.Equal(t, servicedef.CallExitOK, Run([]string{"call", fmt.Sprintf(`{"port":%d,"method":"mockService","needResult":true}`, okPort)}))
	assert.Equal(t, servicedef.CallExitCallFailure, Run([]string{"call", fmt.Sprintf(`{"port":%d,"method":"x"}`, failPort)}))
	assert.Equal(t, servicedef.CallExitTransport, Run([]string{"call", "{not json"}))
	assert.Equal(t, 1, Run([]string{"no-such-command"}))
}

func TestCallWritesResult(t *testing.T) {
	port := callServer(t, 200, servicedef.CallResponse{Success: true, Result: json.RawMessage(`{"a":1}`)})
	var stdout, stderr bytes.Buffer
	code := Call(context.Background(), fmt.Sprintf(`{"port":%d,"method":"m","needResult":true}`, port), &stdout, &stderr)
	assert.Equal(t, servicedef.CallExitOK, code)
	assert.Equal(t, "{\"a\":1}\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestStartClusterRejectsBadInput(t *testing.T) {
	helpers.WithTempDir(func(dir string) {
		err := StartCluster(context.Background(), "{", io.Discard)
		assert.Error(t, err)

		err = StartCluster(context.Background(), fmt.Sprintf(`{"baseDir":%q,"framework":"missing"}`, dir), io.Discard)
		assert.EqualError(t, err, `framework "missing" is not registered in this binary`)

		writeFile(t, filepath.Join(dir, egg.ManifestFile), "[eggPlugin]\nname = \"p\"\n")
		err = StartCluster(context.Background(), fmt.Sprintf(`{"baseDir":%q}`, dir), io.Discard)
		assert.EqualError(t, err, "DO NOT USE cluster to start a plugin, use a fixture application instead")
	})
}

func TestStartClusterReportsReadyAndStops(t *testing.T) {
	helpers.WithTempDir(func(dir string) {
		writeFile(t, filepath.Join(dir, "config.toml"), `name = "boot"`)
		r, w := io.Pipe()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() {
			done <- StartCluster(ctx, fmt.Sprintf(`{"baseDir":%q,"port":0}`, dir), w)
			w.Close()
		}()

		lines := make(chan string, 1)
		go func() {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()
		select {
		case line := <-lines:
			var msg egg.Message
			require.NoError(t, json.Unmarshal([]byte(line), &msg))
			assert.Equal(t, egg.ActionEggReady, msg.Action)
		case <-time.After(10 * time.Second):
			require.Fail(t, "timed out waiting for egg-ready")
		}

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			require.Fail(t, "cluster did not stop")
		}
	})
}

func TestCheckCommand(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	helpers.WithTempDir(func(dir string) {
		var out bytes.Buffer
		cmd := NewCommand()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"check", dir, "--framework", "custom"})
		require.NoError(t, cmd.Execute())

		text := out.String()
		assert.Contains(t, text, "baseDir: "+dir+"\n")
		assert.Contains(t, text, "framework: custom (not registered in this binary)\n")
		assert.Contains(t, text, "cache: true\n")
		assert.Contains(t, text, "  egg-mock enable=true\n")
	})
}

func TestCheckCommandInvalidDir(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"check", filepath.Join(os.TempDir(), "egg-mock-missing-dir")})
	assert.Error(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "invalid: baseDir")
}
