package session

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/codecrate/codecrate/internal/engine"
	"github.com/codecrate/codecrate/internal/store"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) EnsureImage(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockEngine) EnsureWorkspaceVolume(ctx context.Context, sessionID string, opts engine.CloneOpts) (string, bool, error) {
	args := m.Called(ctx, sessionID, opts)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockEngine) RemoveWorkspaceVolume(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockEngine) CreateContainer(ctx context.Context, opts engine.CreateOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) StartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockEngine) WaitReady(ctx context.Context, containerID string, timeout, pollInterval time.Duration) error {
	args := m.Called(ctx, containerID, timeout, pollInterval)
	return args.Error(0)
}

func (m *MockEngine) StopAndRemove(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockEngine) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	args := m.Called(ctx, containerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) RunCommand(ctx context.Context, containerID string, cmd []string) (*engine.CommandResult, error) {
	args := m.Called(ctx, containerID, cmd)
	if res := args.Get(0); res != nil {
		return res.(*engine.CommandResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEngine) ReadFile(ctx context.Context, containerID, filePath string, maxBytes int) ([]byte, bool, error) {
	args := m.Called(ctx, containerID, filePath, maxBytes)
	if content := args.Get(0); content != nil {
		return content.([]byte), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *MockEngine) WriteFile(ctx context.Context, containerID, filePath string, content []byte) error {
	args := m.Called(ctx, containerID, filePath, content)
	return args.Error(0)
}

func (m *MockEngine) MoveEntry(ctx context.Context, containerID, src, dst string) error {
	args := m.Called(ctx, containerID, src, dst)
	return args.Error(0)
}

func (m *MockEngine) ListTree(ctx context.Context, containerID, root string, maxEntries int) ([]byte, error) {
	args := m.Called(ctx, containerID, root, maxEntries)
	if raw := args.Get(0); raw != nil {
		return raw.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) CreateSession(rec *store.SessionRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockJournal) GetSession(id string) (*store.SessionRecord, error) {
	args := m.Called(id)
	if v := args.Get(0); v != nil {
		return v.(*store.SessionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJournal) ListSessionsByUser(userID string) ([]*store.SessionRecord, error) {
	args := m.Called(userID)
	if v := args.Get(0); v != nil {
		return v.([]*store.SessionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJournal) UpdateSessionState(id, state, errorCode, containerID string) error {
	args := m.Called(id, state, errorCode, containerID)
	return args.Error(0)
}

func (m *MockJournal) UpdateSessionVolume(id, volumeName string) error {
	args := m.Called(id, volumeName)
	return args.Error(0)
}

func (m *MockJournal) TouchSession(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockJournal) DeleteSession(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
