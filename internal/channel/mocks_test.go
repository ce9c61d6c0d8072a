package channel

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/codecrate/codecrate/internal/engine"
)

type MockShellEngine struct {
	mock.Mock
}

func (m *MockShellEngine) StartShell(ctx context.Context, containerID string, cols, rows uint) (*engine.ExecProcess, error) {
	args := m.Called(ctx, containerID, cols, rows)
	if proc := args.Get(0); proc != nil {
		return proc.(*engine.ExecProcess), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockShellEngine) StartExec(ctx context.Context, containerID string, cmd []string) (*engine.ExecProcess, error) {
	args := m.Called(ctx, containerID, cmd)
	if proc := args.Get(0); proc != nil {
		return proc.(*engine.ExecProcess), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockShellEngine) RunCommand(ctx context.Context, containerID string, cmd []string) (*engine.CommandResult, error) {
	args := m.Called(ctx, containerID, cmd)
	if res := args.Get(0); res != nil {
		return res.(*engine.CommandResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockShellEngine) ExecExitCode(ctx context.Context, execID string) (bool, int, error) {
	args := m.Called(ctx, execID)
	return args.Bool(0), args.Int(1), args.Error(2)
}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) ContainerFor(id string) (string, error) {
	args := m.Called(id)
	return args.String(0), args.Error(1)
}

func (m *MockSessions) Touch(id string) {
	m.Called(id)
}
