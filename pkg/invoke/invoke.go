// Package invoke drives remote tool calls: for each call it spawns
// the source's interpreter with a runner program, writes the call's
// arguments to the child's stdin, and reads newline-framed JSON result
// messages back over a dedicated loopback socket.
package invoke

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kadirpekel/toolindex/pkg/descriptor"
	"github.com/kadirpekel/toolindex/pkg/env"
)

// InvocationError reports that the child process raised during a
// call. The formatted traceback is surfaced to the caller naming the
// tool.
type InvocationError struct {
	ToolID string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %q: %v", e.ToolID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// frame is one newline-framed JSON message from the runner.
type frame struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Stream any    `json:"stream,omitempty"`
	Error  string `json:"error,omitempty"`
	Done   bool   `json:"done,omitempty"`
}

// Invoker calls one remote tool inside its prepared interpreter.
type Invoker struct {
	Interp *env.Interpreter
	ToolID string
	Shape  descriptor.Shape

	Logger hclog.Logger
}

// New creates an Invoker for one tool.
func New(interp *env.Interpreter, toolID string, shape descriptor.Shape) *Invoker {
	return &Invoker{
		Interp: interp,
		ToolID: toolID,
		Shape:  shape,
		Logger: hclog.Default().Named("invoke"),
	}
}

// Call runs the tool to its single result. For the SyncGen/AsyncGen
// shapes it drains the stream and returns the last value.
func (inv *Invoker) Call(ctx context.Context, args map[string]any) (any, error) {
	var last any
	var lastErr error
	for v, err := range inv.run(ctx, args) {
		if err != nil {
			lastErr = err
			continue
		}
		last = v
	}
	if lastErr != nil {
		return nil, &InvocationError{ToolID: inv.ToolID, Err: lastErr}
	}
	return last, nil
}

// Stream runs a SyncGen/AsyncGen tool, yielding each value as it
// arrives over the dedicated socket.
func (inv *Invoker) Stream(ctx context.Context, args map[string]any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for v, err := range inv.run(ctx, args) {
			if err != nil {
				yield(nil, &InvocationError{ToolID: inv.ToolID, Err: err})
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// run drives one subprocess call end-to-end and yields every value the
// runner emits (one for Plain/Coroutine, many for the generator
// shapes), honoring ctx cancellation by killing the child and closing
// the socket without retaining any pending stream values.
func (inv *Invoker) run(ctx context.Context, args map[string]any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			yield(nil, fmt.Errorf("opening loopback listener: %w", err))
			return
		}
		defer ln.Close()
		port := ln.Addr().(*net.TCPAddr).Port

		scriptPath, cleanup, err := writeRunnerScript(inv.ToolID, inv.Shape, port)
		if err != nil {
			yield(nil, err)
			return
		}
		defer cleanup()

		cmd := exec.CommandContext(ctx, inv.Interp.Python, scriptPath)
		cmd.Dir = inv.Interp.SourceDir
		cmd.Env = envSlice(inv.Interp.EnvVars)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			yield(nil, fmt.Errorf("opening stdin pipe: %w", err))
			return
		}

		if err := cmd.Start(); err != nil {
			yield(nil, fmt.Errorf("starting interpreter: %w", err))
			return
		}

		payload, err := json.Marshal(map[string]any{"args": []any{}, "kwargs": args})
		if err != nil {
			_ = cmd.Process.Kill()
			yield(nil, fmt.Errorf("encoding call payload: %w", err))
			return
		}
		if _, err := stdin.Write(append(payload, '\n')); err != nil {
			_ = cmd.Process.Kill()
			yield(nil, fmt.Errorf("writing call payload: %w", err))
			return
		}
		stdin.Close()

		if tl, ok := ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(30 * time.Second))
		}

		// A cancelled context must unblock a still-pending Accept, not
		// just the result loop below: exec.CommandContext alone kills
		// the child but does nothing for a listener with no
		// connection yet.
		acceptDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				ln.Close()
			case <-acceptDone:
			}
		}()

		conn, err := ln.Accept()
		close(acceptDone)
		if err != nil {
			_ = cmd.Process.Kill()
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
			} else {
				yield(nil, fmt.Errorf("accepting runner connection: %w", err))
			}
			return
		}
		defer conn.Close()

		reader := bufio.NewScanner(conn)
		done := ctx.Done()

		results := make(chan frame)
		scanErrs := make(chan error, 1)
		go func() {
			defer close(results)
			for reader.Scan() {
				var f frame
				if err := json.Unmarshal(reader.Bytes(), &f); err != nil {
					scanErrs <- fmt.Errorf("decoding result frame: %w", err)
					return
				}
				results <- f
			}
			if err := reader.Err(); err != nil {
				scanErrs <- err
			}
		}()

	loop:
		for {
			select {
			case <-done:
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				yield(nil, ctx.Err())
				return
			case f, ok := <-results:
				if !ok {
					break loop
				}
				if f.Done {
					break loop
				}
				if !f.OK {
					_ = cmd.Wait()
					yield(nil, fmt.Errorf("%s", f.Error))
					return
				}
				var v any
				if f.Stream != nil {
					v = f.Stream
				} else {
					v = f.Result
				}
				if !yield(v, nil) {
					_ = cmd.Process.Kill()
					_ = cmd.Wait()
					return
				}
				if inv.Shape == descriptor.Plain || inv.Shape == descriptor.Coroutine {
					break loop
				}
			}
		}

		select {
		case err := <-scanErrs:
			if err != nil {
				yield(nil, err)
				return
			}
		default:
		}

		_ = cmd.Wait()
	}
}

func envSlice(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}

func writeRunnerScript(toolID string, shape descriptor.Shape, port int) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "toolindex-runner-*.py")
	if err != nil {
		return "", nil, fmt.Errorf("creating runner script: %w", err)
	}
	script := fmt.Sprintf(runnerTemplate, toolID, string(shape), port)
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("writing runner script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("closing runner script: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// runnerTemplate invokes the target symbol with the stdin-supplied
// arguments and streams newline-framed JSON results back over the
// loopback socket, per shape: plain/coroutine emit one {ok,result}
// frame; the generator shapes emit one {ok,stream} frame per item,
// then {done:true}.
const runnerTemplate = `
import asyncio
import importlib
import inspect
import json
import socket
import sys

TOOL_ID = %q
SHAPE = %q
PORT = %d


def send(sock, payload):
    sock.sendall((json.dumps(payload) + "\n").encode("utf-8"))


def main():
    sock = socket.create_connection(("127.0.0.1", PORT))
    try:
        call = json.loads(sys.stdin.readline())
        args = call.get("args", [])
        kwargs = call.get("kwargs", {})

        module_name, _, symbol = TOOL_ID.rpartition(".")
        module = importlib.import_module(module_name)
        fn = getattr(module, symbol)

        try:
            if SHAPE == "plain":
                result = fn(*args, **kwargs)
                send(sock, {"ok": True, "result": result})
            elif SHAPE == "coroutine":
                result = asyncio.run(fn(*args, **kwargs))
                send(sock, {"ok": True, "result": result})
            elif SHAPE == "sync-gen":
                for value in fn(*args, **kwargs):
                    send(sock, {"ok": True, "stream": value})
                send(sock, {"done": True})
            elif SHAPE == "async-gen":
                async def drain():
                    async for value in fn(*args, **kwargs):
                        send(sock, {"ok": True, "stream": value})
                asyncio.run(drain())
                send(sock, {"done": True})
        except Exception as exc:  # noqa: BLE001 - reported across the boundary
            send(sock, {"ok": False, "error": f"{type(exc).__name__}: {exc}"})
    finally:
        sock.close()


if __name__ == "__main__":
    main()
`
