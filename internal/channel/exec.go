package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codecrate/codecrate/protocol"
)

// ErrExecutionInProgress rejects a second execution while one is running;
// requests are never queued silently.
var ErrExecutionInProgress = errors.New("execution already in progress")

// ExecHub runs one-shot, cancelable commands per session and streams their
// output. Distinct from the terminal: executions are timeout-bound and
// carry structured results.
type ExecHub struct {
	engine           ShellEngine
	sessions         Sessions
	logger           *slog.Logger
	maxExecTimeoutMs int

	mu       sync.Mutex
	inflight map[string]*execution
}

type execution struct {
	id string

	mu       sync.Mutex
	outcome  protocol.ExecOutcome // set once by whoever ends the run
	killProc func()
}

// end claims the execution's outcome. Only the first caller wins; the race
// between timeout, cancel, and natural completion resolves to exactly one
// result frame.
func (e *execution) end(outcome protocol.ExecOutcome) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outcome != "" {
		return false
	}
	e.outcome = outcome
	return true
}

func (e *execution) result() protocol.ExecOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

func NewExecHub(eng ShellEngine, sessions Sessions, maxExecTimeoutMs int, logger *slog.Logger) *ExecHub {
	return &ExecHub{
		engine:           eng,
		sessions:         sessions,
		logger:           logger,
		maxExecTimeoutMs: maxExecTimeoutMs,
		inflight:         make(map[string]*execution),
	}
}

func (h *ExecHub) begin(sessionID string) (*execution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[sessionID]; busy {
		return nil, ErrExecutionInProgress
	}
	e := &execution{id: uuid.New().String()[:8]}
	h.inflight[sessionID] = e
	return e, nil
}

func (h *ExecHub) finish(sessionID string, e *execution) {
	h.mu.Lock()
	if h.inflight[sessionID] == e {
		delete(h.inflight, sessionID)
	}
	h.mu.Unlock()
}

// Cancel aborts the session's running execution, if any. Same effect as a
// timeout but reported as cancelled.
func (h *ExecHub) Cancel(sessionID string) {
	h.mu.Lock()
	e := h.inflight[sessionID]
	h.mu.Unlock()
	if e == nil {
		return
	}
	if e.end(protocol.OutcomeCancelled) {
		e.mu.Lock()
		kill := e.killProc
		e.mu.Unlock()
		if kill != nil {
			kill()
		}
	}
}

// wsWriter serializes websocket writes; the cancel reader and the output
// stream would otherwise interleave frames.
type wsWriter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (w *wsWriter) send(msg protocol.ExecMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteJSON(msg)
}

// chunkWriter forwards demuxed process output as it is produced, so the
// client renders incrementally instead of waiting for completion.
type chunkWriter struct {
	out     *wsWriter
	written int
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	if c.written >= protocol.MaxOutputBytes {
		return len(p), nil // keep draining, stop forwarding
	}
	chunk := p
	if c.written+len(chunk) > protocol.MaxOutputBytes {
		chunk = chunk[:protocol.MaxOutputBytes-c.written]
	}
	c.written += len(chunk)
	if err := c.out.send(protocol.ExecMessage{Type: protocol.ExecOutput, Data: string(chunk)}); err != nil {
		return len(p), nil // client gone; the execution still finishes
	}
	return len(p), nil
}

// Serve handles one execution-channel websocket: it reads run/cancel
// frames and streams envelope messages back until the socket closes. A
// single goroutine owns reads for the connection's lifetime; cancel frames
// arriving mid-run are routed to the active execution.
func (h *ExecHub) Serve(ctx context.Context, sessionID string, ws *websocket.Conn) error {
	if _, err := h.sessions.ContainerFor(sessionID); err != nil {
		return err
	}
	out := &wsWriter{ws: ws}

	reqCh := make(chan protocol.ExecRequest)
	go func() {
		defer close(reqCh)
		for {
			var req protocol.ExecRequest
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			reqCh <- req
		}
	}()

	// A request the watcher consumed just as a run ended is handed back
	// here and becomes the next execution.
	var pending *protocol.ExecRequest
	for {
		var req protocol.ExecRequest
		if pending != nil {
			req, pending = *pending, nil
		} else {
			var ok bool
			if req, ok = <-reqCh; !ok {
				return nil
			}
		}
		if req.Type == protocol.RequestCancel {
			h.Cancel(sessionID)
			continue
		}
		if strings.TrimSpace(req.Command) == "" {
			out.send(protocol.ExecMessage{Type: protocol.ExecError, Error: "command is required"})
			continue
		}
		pending = h.run(ctx, sessionID, req, reqCh, out)
	}
}

func (h *ExecHub) run(ctx context.Context, sessionID string, req protocol.ExecRequest, reqCh <-chan protocol.ExecRequest, out *wsWriter) *protocol.ExecRequest {
	containerID, err := h.sessions.ContainerFor(sessionID)
	if err != nil {
		out.send(protocol.ExecMessage{Type: protocol.ExecError, Error: err.Error()})
		return nil
	}

	e, err := h.begin(sessionID)
	if err != nil {
		out.send(protocol.ExecMessage{Type: protocol.ExecError, Error: "EXECUTION_IN_PROGRESS"})
		return nil
	}
	defer h.finish(sessionID, e)

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 || timeoutMs > h.maxExecTimeoutMs {
		timeoutMs = h.maxExecTimeoutMs
	}

	pidFile := fmt.Sprintf("/tmp/.codecrate-exec-%s.pid", e.id)
	cmd := buildCommand(req.Language, req.Command, pidFile)

	start := time.Now()
	proc, err := h.engine.StartExec(ctx, containerID, cmd)
	if err != nil {
		out.send(protocol.ExecMessage{Type: protocol.ExecError, Error: err.Error()})
		return nil
	}
	defer proc.Close()

	// Closing the hijacked stream unblocks StdCopy; killing the process
	// group stops the work itself. Both are needed on timeout/cancel.
	e.mu.Lock()
	e.killProc = func() {
		h.killProcessGroup(containerID, pidFile)
		proc.Close()
	}
	e.mu.Unlock()

	// While output streams, frames from the connection still need a
	// consumer: cancel applies to this run, a second run request is
	// rejected rather than queued.
	watchDone := make(chan struct{})
	watcherExited := make(chan struct{})
	stray := make(chan protocol.ExecRequest, 1)
	go h.watchRequests(sessionID, e, reqCh, stray, watchDone, watcherExited, out)

	// stopWatcher retires the watcher and hands back a request it consumed
	// after the run's outcome was already resolved.
	stopWatcher := func() *protocol.ExecRequest {
		close(watchDone)
		<-watcherExited
		select {
		case next := <-stray:
			return &next
		default:
			return nil
		}
	}

	timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		if e.end(protocol.OutcomeTimedOut) {
			e.mu.Lock()
			kill := e.killProc
			e.mu.Unlock()
			kill()
		}
	})
	defer timer.Stop()

	cw := &chunkWriter{out: out}
	_, copyErr := stdcopy.StdCopy(cw, cw, proc.Conn.Reader)

	h.sessions.Touch(sessionID)
	durationMs := time.Since(start).Milliseconds()

	// Natural completion only counts if timeout/cancel didn't get there
	// first.
	if e.end(protocol.OutcomeCompleted) {
		if copyErr != nil && copyErr != io.EOF {
			out.send(protocol.ExecMessage{Type: protocol.ExecError, Error: copyErr.Error()})
			return stopWatcher()
		}
		exitCode := h.waitExitCode(ctx, proc.ExecID)
		out.send(protocol.ExecMessage{
			Type:       protocol.ExecResult,
			Outcome:    protocol.OutcomeCompleted,
			ExitCode:   exitCode,
			DurationMs: durationMs,
		})
		return stopWatcher()
	}

	// timed_out and cancelled carry whatever output made it out before the
	// cutoff; the chunks are already on the wire.
	out.send(protocol.ExecMessage{
		Type:       protocol.ExecResult,
		Outcome:    e.result(),
		ExitCode:   -1,
		DurationMs: durationMs,
	})
	return stopWatcher()
}

// watchRequests consumes connection frames while an execution streams.
// Cancels apply to the active run. A run request arriving mid-run is
// rejected, but once the run's outcome is resolved the request is handed
// back through stray so it starts the next execution instead of getting a
// spurious rejection.
func (h *ExecHub) watchRequests(sessionID string, e *execution, reqCh <-chan protocol.ExecRequest, stray chan<- protocol.ExecRequest, done <-chan struct{}, exited chan<- struct{}, out *wsWriter) {
	defer close(exited)
	for {
		select {
		case <-done:
			return
		case inner, ok := <-reqCh:
			if !ok {
				return
			}
			if inner.Type == protocol.RequestCancel {
				h.Cancel(sessionID)
				return
			}
			if e.result() != "" {
				stray <- inner
				return
			}
			out.send(protocol.ExecMessage{Type: protocol.ExecError, Error: "EXECUTION_IN_PROGRESS"})
		}
	}
}

// killProcessGroup terminates the whole process group started for this
// execution. Runs on a background context: the execution's own context may
// already be done.
func (h *ExecHub) killProcessGroup(containerID, pidFile string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	script := fmt.Sprintf(`[ -f %s ] && kill -KILL -$(cat %s) 2>/dev/null; rm -f %s`, pidFile, pidFile, pidFile)
	if _, err := h.engine.RunCommand(ctx, containerID, []string{"/bin/sh", "-c", script}); err != nil {
		h.logger.Warn("kill process group", "container_id", containerID, "error", err)
	}
}

func (h *ExecHub) waitExitCode(ctx context.Context, execID string) int {
	for attempt := 0; attempt < 20; attempt++ {
		running, code, err := h.engine.ExecExitCode(ctx, execID)
		if err != nil {
			return -1
		}
		if !running {
			return code
		}
		time.Sleep(50 * time.Millisecond)
	}
	return -1
}

// buildCommand wraps the user command so its process-group id lands in
// pidFile (for group kill) and the requested language picks the
// interpreter. setsid makes the shell a fresh group leader; without it
// $$ names no process group and the kill on timeout hits nothing.
func buildCommand(language, command, pidFile string) []string {
	var invocation string
	switch strings.ToLower(language) {
	case "python":
		invocation = "python3 -c " + shellQuote(command)
	case "javascript", "node":
		invocation = "node -e " + shellQuote(command)
	default:
		invocation = command
	}
	script := fmt.Sprintf("echo $$ > %s; %s", pidFile, invocation)
	return []string{"setsid", "/bin/sh", "-c", script}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
