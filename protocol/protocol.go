// Package protocol defines the wire types shared between the codecrate
// daemon and its browser clients: the workspace file tree, the execution
// channel envelope, and the naming conventions for per-session resources.
package protocol

// NodeType classifies a workspace file tree entry.
type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

// FileNode is one entry of the workspace tree. It is a view over the live
// container filesystem, produced by a single enumeration pass; it is never
// stored independently.
type FileNode struct {
	Name     string      `json:"name"`
	Type     NodeType    `json:"type"`
	Path     string      `json:"path"` // workspace-relative, "/" separated
	Size     int64       `json:"size"`
	Children []*FileNode `json:"children,omitempty"` // folders only, stable order
}

// ExecMessageType tags frames on the execution channel. Unlike the terminal
// channel (raw bytes), execution results need structure: exit code, timing,
// and a terminal outcome.
type ExecMessageType string

const (
	ExecOutput ExecMessageType = "output"
	ExecResult ExecMessageType = "result"
	ExecError  ExecMessageType = "error"
)

// ExecOutcome is the terminal status of a single execution.
type ExecOutcome string

const (
	OutcomeCompleted ExecOutcome = "completed"
	OutcomeTimedOut  ExecOutcome = "timed_out"
	OutcomeCancelled ExecOutcome = "cancelled"
	OutcomeError     ExecOutcome = "error"
)

// ExecRequest is the client → server frame opening or cancelling an
// execution on the execution channel.
type ExecRequest struct {
	Type      string `json:"type,omitempty"` // "" or "run", or "cancel"
	Command   string `json:"command,omitempty"`
	Language  string `json:"language,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// ExecMessage is the server → client envelope frame.
type ExecMessage struct {
	Type       ExecMessageType `json:"type"`
	Data       string          `json:"data,omitempty"`    // output chunk
	Outcome    ExecOutcome     `json:"outcome,omitempty"` // result frames
	ExitCode   int             `json:"exit_code,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
	Error      string          `json:"error,omitempty"`
}

const RequestCancel = "cancel"

// WorkspaceVolumePrefix prefixes the per-session Docker volume name.
const WorkspaceVolumePrefix = "codecrate-ws-"

// SentinelPath is where the container entry command writes its readiness
// marker. It lives on tmpfs, outside the workspace mount, so the file tree
// never lists it.
const SentinelPath = "/tmp/.codecrate-ready"

// MaxOutputBytes caps captured execution output.
const MaxOutputBytes = 5 * 1024 * 1024 // 5 MB

// DefaultMaxReadBytes caps file reads unless the caller narrows it.
const DefaultMaxReadBytes = 10 * 1024 * 1024 // 10 MB

// WorkspaceVolumeName returns the deterministic volume name for a session,
// so restarts of the same session re-attach the same workspace.
func WorkspaceVolumeName(sessionID string) string {
	return WorkspaceVolumePrefix + sessionID
}
