// Package channel implements the two real-time session channels: the
// interactive terminal (raw binary frames) and the execution channel
// (JSON envelope frames). Both attach to a ready session's container and
// outlive individual websocket connections.
package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/codecrate/codecrate/internal/engine"
)

// replayBufferSize bounds the output kept for repainting a reconnecting
// client. Deliberately small: it is a repaint aid, not scrollback.
const replayBufferSize = 256 * 1024

// Terminal is the persistent shell of one session. The shell process lives
// in the container for the session's lifetime; websockets come and go.
type Terminal struct {
	sessionID string
	proc      *engine.ExecProcess

	mu     sync.Mutex
	client *websocket.Conn // current viewer
	replay []byte
	closed bool

	// Serializes websocket writes: an attach's replay and the pump's live
	// output would otherwise interleave on the same connection, which the
	// websocket library treats as a fatal concurrent write.
	writeMu sync.Mutex
}

// send is the single path for writing shell output to a client socket.
func (t *Terminal) send(ws *websocket.Conn, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return ws.WriteMessage(websocket.BinaryMessage, data)
}

// write forwards client keystrokes to the shell's stdin, unmodified.
func (t *Terminal) write(data []byte) error {
	_, err := t.proc.Conn.Conn.Write(data)
	return err
}

// attach makes ws the terminal's current client, replacing (and closing)
// any previous one, and replays buffered output so the screen repaints.
func (t *Terminal) attach(ws *websocket.Conn) {
	t.mu.Lock()
	prev := t.client
	t.client = ws
	replay := make([]byte, len(t.replay))
	copy(replay, t.replay)
	t.mu.Unlock()

	if prev != nil && prev != ws {
		prev.Close()
	}
	if len(replay) > 0 {
		t.send(ws, replay)
	}
}

// detach clears ws if it is still the current client. The shell keeps
// running; only session termination kills it.
func (t *Terminal) detach(ws *websocket.Conn) {
	t.mu.Lock()
	if t.client == ws {
		t.client = nil
	}
	t.mu.Unlock()
}

// pump copies shell output to whichever client is attached, buffering a
// bounded tail for reconnects. Runs until the shell stream closes.
func (t *Terminal) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := t.proc.Conn.Reader.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			t.mu.Lock()
			t.replay = append(t.replay, chunk...)
			if len(t.replay) > replayBufferSize {
				t.replay = t.replay[len(t.replay)-replayBufferSize:]
			}
			client := t.client
			t.mu.Unlock()

			if client != nil {
				// Raw bytes, no envelope: framing cost is keystroke lag.
				if werr := t.send(client, chunk); werr != nil {
					t.detach(client)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (t *Terminal) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil {
		client.Close()
	}
	t.proc.Close()
}

// TerminalHub owns one Terminal per session.
type TerminalHub struct {
	engine   ShellEngine
	sessions Sessions
	logger   *slog.Logger

	mu    sync.Mutex
	terms map[string]*Terminal
}

func NewTerminalHub(eng ShellEngine, sessions Sessions, logger *slog.Logger) *TerminalHub {
	return &TerminalHub{
		engine:   eng,
		sessions: sessions,
		logger:   logger,
		terms:    make(map[string]*Terminal),
	}
}

// Attach binds ws to the session's terminal, creating the shell on first
// use, then blocks pumping client input until the socket closes. Each
// reconnect is a fresh attach to the same underlying shell.
func (h *TerminalHub) Attach(ctx context.Context, sessionID string, ws *websocket.Conn, cols, rows uint) error {
	containerID, err := h.sessions.ContainerFor(sessionID)
	if err != nil {
		return err
	}

	term, err := h.terminal(ctx, sessionID, containerID, cols, rows)
	if err != nil {
		return err
	}
	term.attach(ws)
	h.sessions.Touch(sessionID)

	defer term.detach(ws)
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			// Socket loss, not session loss: the client reconnects with
			// backoff and finds the shell where it left it.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("terminal socket dropped", "session_id", sessionID, "error", err)
			}
			return nil
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		if err := term.write(data); err != nil {
			h.logger.Warn("terminal write failed", "session_id", sessionID, "error", err)
			return err
		}
	}
}

func (h *TerminalHub) terminal(ctx context.Context, sessionID, containerID string, cols, rows uint) (*Terminal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if term, ok := h.terms[sessionID]; ok {
		term.mu.Lock()
		alive := !term.closed
		term.mu.Unlock()
		if alive {
			return term, nil
		}
		delete(h.terms, sessionID)
	}

	proc, err := h.engine.StartShell(ctx, containerID, cols, rows)
	if err != nil {
		return nil, err
	}
	term := &Terminal{sessionID: sessionID, proc: proc}
	h.terms[sessionID] = term

	go func() {
		term.pump()
		h.drop(sessionID, term)
	}()

	h.logger.Info("terminal shell started", "session_id", sessionID)
	return term, nil
}

func (h *TerminalHub) drop(sessionID string, term *Terminal) {
	term.close()
	h.mu.Lock()
	if h.terms[sessionID] == term {
		delete(h.terms, sessionID)
	}
	h.mu.Unlock()
}

// CloseSession tears the terminal down; called on session termination.
func (h *TerminalHub) CloseSession(sessionID string) {
	h.mu.Lock()
	term := h.terms[sessionID]
	delete(h.terms, sessionID)
	h.mu.Unlock()

	if term != nil {
		term.close()
	}
}
