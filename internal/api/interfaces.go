package api

import (
	"context"

	"github.com/codecrate/codecrate/internal/session"
)

// SessionService abstracts the orchestrator operations the HTTP handlers
// need.
type SessionService interface {
	Create(ctx context.Context, userID string) (*session.View, error)
	EnsureContainer(ctx context.Context, id string) (*session.View, error)
	Status(id string) (*session.View, error)
	List(userID string) []*session.View
	Terminate(ctx context.Context, id string, deleteVolume bool) error
	Remove(id string)

	Tree(ctx context.Context, id string, maxEntries int) (*session.TreeResult, error)
	ReadFile(ctx context.Context, id, path string, maxBytes int) ([]byte, bool, error)
	WriteFile(ctx context.Context, id, path string, content []byte) error
	Move(ctx context.Context, id, src, targetParent string) error
}
