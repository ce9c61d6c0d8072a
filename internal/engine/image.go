package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// EnsureImage guarantees the image exists locally, pulling it on demand.
// Idempotent; concurrent calls for the same name serialize on a per-image
// mutex so only one pull runs. A "not found" or unauthorized pull failure
// returns ErrImageUnavailable; transient failures return a wrapped error
// the caller may retry.
func (c *Client) EnsureImage(ctx context.Context, name string) error {
	mu := c.pullLock(name)
	mu.Lock()
	defer mu.Unlock()

	_, err := c.docker.ImageInspect(ctx, name)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("image inspect: %w", err)
	}

	reader, err := c.docker.ImagePull(ctx, name, image.PullOptions{})
	if err != nil {
		if isImageUnavailable(err) {
			return fmt.Errorf("pull %s: %w", name, ErrImageUnavailable)
		}
		return fmt.Errorf("image pull: %w", err)
	}
	defer reader.Close()

	// Drain the progress stream so the pull actually completes.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("image pull read: %w", err)
	}

	return nil
}
