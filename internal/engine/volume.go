package engine

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/codecrate/codecrate/protocol"
)

// CloneOpts configures the one-shot template clone for a new workspace
// volume.
type CloneOpts struct {
	TemplateVolume string
	HelperImage    string
}

// EnsureWorkspaceVolume returns the per-session workspace volume, creating
// and bootstrapping it from the template volume on first use. The returned
// bool reports whether the volume already existed, which lets a container
// restart reuse the same workspace without a second clone.
//
// A clone failure is returned alongside a valid volume: an empty workspace
// is still usable, so the caller logs it as a warning instead of failing
// the session.
func (c *Client) EnsureWorkspaceVolume(ctx context.Context, sessionID string, opts CloneOpts) (name string, existed bool, cloneErr error) {
	name = protocol.WorkspaceVolumeName(sessionID)

	_, err := c.docker.VolumeInspect(ctx, name)
	if err == nil {
		return name, true, nil
	}
	if !client.IsErrNotFound(err) {
		return "", false, fmt.Errorf("volume inspect: %w", err)
	}

	_, err = c.docker.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Driver: "local",
		Labels: map[string]string{
			labelPrefix + "session_id": sessionID,
			labelPrefix + "managed":    "true",
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("volume create: %w", err)
	}

	if opts.TemplateVolume != "" {
		cloneErr = c.cloneTemplate(ctx, name, opts)
	}
	return name, false, cloneErr
}

// cloneTemplate copies the template volume into a fresh workspace volume
// using a throwaway helper container. The template is always mounted
// read-only; the helper is removed whether the copy succeeds or not.
func (c *Client) cloneTemplate(ctx context.Context, volumeName string, opts CloneOpts) error {
	if err := c.EnsureImage(ctx, opts.HelperImage); err != nil {
		return fmt.Errorf("helper image: %w", err)
	}

	resp, err := c.docker.ContainerCreate(ctx,
		&container.Config{
			Image: opts.HelperImage,
			// cp -a preserves modes, owners, and timestamps.
			Cmd: []string{"sh", "-c", "cp -a /template/. /workspace/"},
			Labels: map[string]string{
				labelPrefix + "helper": "true",
			},
		},
		&container.HostConfig{
			Mounts: []mount.Mount{
				{Type: mount.TypeVolume, Source: opts.TemplateVolume, Target: "/template", ReadOnly: true},
				{Type: mount.TypeVolume, Source: volumeName, Target: "/workspace"},
			},
			NetworkMode: "none",
		},
		nil, nil, "")
	if err != nil {
		return fmt.Errorf("clone helper create: %w", err)
	}
	defer c.docker.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("clone helper start: %w", err)
	}

	waitCh, errCh := c.docker.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		if status.StatusCode != 0 {
			return fmt.Errorf("clone helper exited with code %d", status.StatusCode)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("clone helper wait: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveWorkspaceVolume force-removes a session's workspace volume.
func (c *Client) RemoveWorkspaceVolume(ctx context.Context, sessionID string) error {
	err := c.docker.VolumeRemove(ctx, protocol.WorkspaceVolumeName(sessionID), true)
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("volume remove: %w", err)
	}
	return nil
}
