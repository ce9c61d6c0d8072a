package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/codecrate/codecrate/internal/session"
)

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(ctx context.Context, userID string) (*session.View, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.(*session.View), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) EnsureContainer(ctx context.Context, id string) (*session.View, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*session.View), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Status(id string) (*session.View, error) {
	args := m.Called(id)
	if v := args.Get(0); v != nil {
		return v.(*session.View), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) List(userID string) []*session.View {
	args := m.Called(userID)
	if v := args.Get(0); v != nil {
		return v.([]*session.View)
	}
	return nil
}

func (m *MockSessionService) Terminate(ctx context.Context, id string, deleteVolume bool) error {
	args := m.Called(ctx, id, deleteVolume)
	return args.Error(0)
}

func (m *MockSessionService) Remove(id string) {
	m.Called(id)
}

func (m *MockSessionService) Tree(ctx context.Context, id string, maxEntries int) (*session.TreeResult, error) {
	args := m.Called(ctx, id, maxEntries)
	if v := args.Get(0); v != nil {
		return v.(*session.TreeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) ReadFile(ctx context.Context, id, path string, maxBytes int) ([]byte, bool, error) {
	args := m.Called(ctx, id, path, maxBytes)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *MockSessionService) WriteFile(ctx context.Context, id, path string, content []byte) error {
	args := m.Called(ctx, id, path, content)
	return args.Error(0)
}

func (m *MockSessionService) Move(ctx context.Context, id, src, targetParent string) error {
	args := m.Called(ctx, id, src, targetParent)
	return args.Error(0)
}
