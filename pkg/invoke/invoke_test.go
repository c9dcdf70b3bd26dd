package invoke

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes a bash script that connects to the port recorded
// in the "runner script" file it's handed and writes the given raw
// frames (each terminated with \n) before exiting, exercising the real
// accept/decode loop without a Python dependency.
func fakeRunner(t *testing.T, frames ...string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runner script requires bash with /dev/tcp")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-runner.sh")

	body := "#!/bin/bash\n" +
		"read -r port < \"$1\"\n" +
		"cat >/dev/null\n" + // drain stdin payload
		"exec 3<>/dev/tcp/127.0.0.1/$port\n"
	for _, f := range frames {
		body += "printf '%s\\n' '" + f + "' >&3\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func withFixedRunnerScript(t *testing.T) {
	t.Helper()
	orig := writeRunnerScript
	writeRunnerScript = func(toolID string, shape descriptor.Shape, port int) (string, func(), error) {
		f, err := os.CreateTemp("", "toolindex-invoke-port-*")
		require.NoError(t, err)
		_, err = f.WriteString(strconv.Itoa(port))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		return f.Name(), func() { os.Remove(f.Name()) }, nil
	}
	t.Cleanup(func() { writeRunnerScript = orig })
}

func TestCall_PlainReturnsSingleResult(t *testing.T) {
	withFixedRunnerScript(t)
	script := fakeRunner(t, `{"ok":true,"result":"Hello, Ada"}`)

	inv := New(&env.Interpreter{Python: script, SourceDir: t.TempDir()}, "mock.greet", descriptor.Plain)
	result, err := inv.Call(context.Background(), map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", result)
}

func TestCall_ErrorFrameSurfacesAsInvocationError(t *testing.T) {
	withFixedRunnerScript(t)
	script := fakeRunner(t, `{"ok":false,"error":"ValueError: boom"}`)

	inv := New(&env.Interpreter{Python: script, SourceDir: t.TempDir()}, "mock.boom", descriptor.Plain)
	_, err := inv.Call(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock.boom")
	assert.Contains(t, err.Error(), "boom")
}

func TestStream_AsyncGenYieldsInOrder(t *testing.T) {
	withFixedRunnerScript(t)
	script := fakeRunner(t,
		`{"ok":true,"stream":"a"}`,
		`{"ok":true,"stream":"b"}`,
		`{"ok":true,"stream":"c"}`,
		`{"done":true}`,
	)

	inv := New(&env.Interpreter{Python: script, SourceDir: t.TempDir()}, "mock.letters", descriptor.AsyncGen)

	var got []any
	for v, err := range inv.Stream(context.Background(), nil) {
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []any{"a", "b", "c"}, got)
}

func TestCall_AsyncGenDrainsToLastValue(t *testing.T) {
	withFixedRunnerScript(t)
	script := fakeRunner(t,
		`{"ok":true,"stream":"a"}`,
		`{"ok":true,"stream":"b"}`,
		`{"ok":true,"stream":"c"}`,
		`{"done":true}`,
	)

	inv := New(&env.Interpreter{Python: script, SourceDir: t.TempDir()}, "mock.letters", descriptor.AsyncGen)
	last, err := inv.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "c", last)
}

func TestRun_CancellationKillsChildAndStopsQuickly(t *testing.T) {
	withFixedRunnerScript(t)
	// A runner that never writes a frame; relies on cancellation to
	// unblock the waiting Accept/scan loop instead of hanging forever.
	dir := t.TempDir()
	path := filepath.Join(dir, "hang.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\ncat >/dev/null\nsleep 30\n"), 0o755))

	inv := New(&env.Interpreter{Python: path, SourceDir: t.TempDir()}, "mock.hangs", descriptor.Plain)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := inv.Call(ctx, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 5*time.Second, "cancellation should terminate the child promptly")
}
