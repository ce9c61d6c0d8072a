// Package engine wraps the Docker API for session containers: image
// resolution, workspace volumes, container lifecycle, and in-container
// command execution. All raw Docker errors are mapped to the typed errors
// in errors.go before they leave this package.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker/client"
)

const labelPrefix = "codecrate."

type Client struct {
	docker *client.Client

	// Per-image mutexes so concurrent EnsureImage calls for the same
	// image coalesce into a single pull.
	pullLocks  map[string]*sync.Mutex
	pullLockMu sync.Mutex
}

func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{
		docker:    cli,
		pullLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (c *Client) Close() error {
	return c.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

func (c *Client) pullLock(image string) *sync.Mutex {
	c.pullLockMu.Lock()
	defer c.pullLockMu.Unlock()
	mu, ok := c.pullLocks[image]
	if !ok {
		mu = &sync.Mutex{}
		c.pullLocks[image] = mu
	}
	return mu
}
