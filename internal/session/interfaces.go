package session

import (
	"context"
	"time"

	"github.com/codecrate/codecrate/internal/engine"
	"github.com/codecrate/codecrate/internal/store"
)

// Engine abstracts the container engine operations the orchestrator needs.
// Implemented by engine.Client; mocked in tests.
type Engine interface {
	EnsureImage(ctx context.Context, name string) error
	EnsureWorkspaceVolume(ctx context.Context, sessionID string, opts engine.CloneOpts) (name string, existed bool, cloneErr error)
	RemoveWorkspaceVolume(ctx context.Context, sessionID string) error

	CreateContainer(ctx context.Context, opts engine.CreateOpts) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	WaitReady(ctx context.Context, containerID string, timeout, pollInterval time.Duration) error
	StopAndRemove(ctx context.Context, containerID string) error
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)

	RunCommand(ctx context.Context, containerID string, cmd []string) (*engine.CommandResult, error)
	ReadFile(ctx context.Context, containerID, filePath string, maxBytes int) ([]byte, bool, error)
	WriteFile(ctx context.Context, containerID, filePath string, content []byte) error
	MoveEntry(ctx context.Context, containerID, src, dst string) error
	ListTree(ctx context.Context, containerID, root string, maxEntries int) ([]byte, error)
}

// Journal persists ownership bookkeeping rows. Implemented by store.Store.
type Journal interface {
	CreateSession(rec *store.SessionRecord) error
	GetSession(id string) (*store.SessionRecord, error)
	ListSessionsByUser(userID string) ([]*store.SessionRecord, error)
	UpdateSessionState(id, state, errorCode, containerID string) error
	UpdateSessionVolume(id, volumeName string) error
	TouchSession(id string) error
	DeleteSession(id string) error
}
