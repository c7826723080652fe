// Package containers runs commands inside the stack's named services through
// the container runtime.
package containers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// State is the inspected state of a named service.
type State struct {
	Exists  bool
	Running bool
}

// Runtime is the container runtime API used by the installer and the dashboard.
type Runtime interface {
	// Exec runs cmd inside service as user and copies combined output to out.
	Exec(ctx context.Context, service string, cmd []string, user string, out io.Writer) (exitCode int, err error)
	Inspect(ctx context.Context, service string) (State, error)
	Restart(ctx context.Context, service string) error
	Logs(ctx context.Context, service string, tail int) (string, error)
}

const DefaultUser = "root"

// Executor runs shell command batches joined with a logical AND.
type Executor struct {
	rt  Runtime
	log *zap.SugaredLogger
}

func NewExecutor(rt Runtime, log *zap.SugaredLogger) *Executor {
	return &Executor{rt: rt, log: log}
}

// Stream forwards output to sink while the command runs and returns once the
// remote process has ended. The exit code is informational: only a failure to
// start the command or to read its output is an error.
func (e *Executor) Stream(ctx context.Context, service, user string, commands []string, sink io.Writer) (int, error) {
	if sink == nil {
		sink = io.Discard
	}
	return e.run(ctx, service, user, commands, sink)
}

// Capture buffers the output for the caller to parse. A non-zero exit is
// logged, not returned; the output is what callers inspect.
func (e *Executor) Capture(ctx context.Context, service, user string, commands ...string) (string, error) {
	var buf bytes.Buffer
	_, err := e.run(ctx, service, user, commands, &buf)
	return buf.String(), err
}

func (e *Executor) Restart(ctx context.Context, service string) error {
	e.log.Infow("restarting service", "service", service)
	return e.rt.Restart(ctx, service)
}

func (e *Executor) run(ctx context.Context, service, user string, commands []string, out io.Writer) (int, error) {
	if user == "" {
		user = DefaultUser
	}
	script := strings.Join(commands, " && ")
	e.log.Debugw("exec", "service", service, "user", user, "cmd", preview(script, 50))
	code, err := e.rt.Exec(ctx, service, []string{"/bin/sh", "-c", script}, user, out)
	if err != nil {
		return code, fmt.Errorf("exec in %s: %w", service, err)
	}
	if code != 0 {
		e.log.Infow("exec exited non-zero", "service", service, "code", code, "cmd", preview(script, 50))
	}
	return code, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Quote wraps s in single quotes for /bin/sh.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// LineWriter calls fn for every complete line written to it. Call Flush to
// emit a trailing partial line.
type LineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(string)
}

func NewLineWriter(fn func(string)) *LineWriter { return &LineWriter{fn: fn} }

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if line != "" {
			w.fn(line)
		}
	}
	return len(p), nil
}

func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.fn(string(w.buf))
		w.buf = nil
	}
}
