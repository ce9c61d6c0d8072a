package channel

import (
	"context"

	"github.com/codecrate/codecrate/internal/engine"
)

// ShellEngine is the slice of the container engine the channels use.
type ShellEngine interface {
	StartShell(ctx context.Context, containerID string, cols, rows uint) (*engine.ExecProcess, error)
	StartExec(ctx context.Context, containerID string, cmd []string) (*engine.ExecProcess, error)
	RunCommand(ctx context.Context, containerID string, cmd []string) (*engine.CommandResult, error)
	ExecExitCode(ctx context.Context, execID string) (running bool, exitCode int, err error)
}

// Sessions resolves a session id to its container, failing unless the
// session is ready.
type Sessions interface {
	ContainerFor(id string) (string, error)
	Touch(id string)
}
