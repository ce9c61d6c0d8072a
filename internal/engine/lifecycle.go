package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"

	"github.com/codecrate/codecrate/internal/config"
	"github.com/codecrate/codecrate/protocol"
)

// CreateOpts describes the per-session container.
type CreateOpts struct {
	SessionID     string
	Image         string
	VolumeName    string
	WorkspacePath string
	Limits        config.Limits
}

// entryScript is the readiness-announcing entry command: verify the
// workspace mount, write the sentinel, then idle so the container stays
// alive for exec-based interaction.
func entryScript(workspacePath string) string {
	return fmt.Sprintf(`[ -d %q ] || exit 1; : > %q; exec sleep infinity`,
		workspacePath, protocol.SentinelPath)
}

// CreateContainer creates the session container. It does not start it;
// the lifecycle is create → start → probe, each step owned by the caller.
func (c *Client) CreateContainer(ctx context.Context, opts CreateOpts) (string, error) {
	initTrue := true

	hostCfg := &container.HostConfig{
		Init: &initTrue, // PID 1 reaper for exec'd process trees
		Resources: container.Resources{
			NanoCPUs:  int64(opts.Limits.CPULimit * 1e9),
			Memory:    int64(opts.Limits.MemLimitMB) * units.MiB,
			PidsLimit: int64Ptr(int64(opts.Limits.PidsLimit)),
		},
		LogConfig: container.LogConfig{
			Type: "json-file",
			Config: map[string]string{
				"max-size": "5m",
				"max-file": "2",
			},
		},
		SecurityOpt: []string{"no-new-privileges"},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeVolume,
				Source: opts.VolumeName,
				Target: opts.WorkspacePath,
			},
			{
				Type:   mount.TypeTmpfs,
				Target: "/tmp",
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: 256 * units.MiB,
				},
			},
		},
	}
	if opts.Limits.NetworkMode == "none" {
		hostCfg.NetworkMode = "none"
	}

	containerCfg := &container.Config{
		Image:      opts.Image,
		Tty:        true,
		OpenStdin:  true,
		WorkingDir: opts.WorkspacePath,
		Cmd:        []string{"/bin/sh", "-c", entryScript(opts.WorkspacePath)},
		Labels: map[string]string{
			labelPrefix + "session_id": opts.SessionID,
			labelPrefix + "managed":    "true",
		},
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "codecrate-"+opts.SessionID)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start: %w", err)
	}
	return nil
}

// WaitReady polls for the sentinel file via in-container execs until it
// appears or the deadline passes. The probe is an exec, not a network
// check: it proves the workspace mount and the shell path both work.
func (c *Client) WaitReady(ctx context.Context, containerID string, timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, pollInterval*4)
		res, err := c.RunCommand(probeCtx, containerID, []string{"test", "-f", protocol.SentinelPath})
		cancel()
		if err == nil && res.ExitCode == 0 {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrReadyTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StopAndRemove force-removes the session container. The workspace volume
// is left alone; volume deletion is a separate, explicit call.
func (c *Client) StopAndRemove(ctx context.Context, containerID string) error {
	err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// IsContainerRunning reports whether the container is currently running.
// A missing container is simply not running, not an error.
func (c *Client) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.State.Running, nil
}

// ContainerInfo identifies a managed session container.
type ContainerInfo struct {
	ContainerID string
	SessionID   string
}

// ListSessionContainers returns every container carrying codecrate labels,
// running or not. Used by startup reconciliation.
func (c *Client) ListSessionContainers(ctx context.Context) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", labelPrefix+"managed=true")

	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	var result []ContainerInfo
	for _, ctr := range containers {
		sessionID := ctr.Labels[labelPrefix+"session_id"]
		if sessionID == "" {
			continue
		}
		result = append(result, ContainerInfo{ContainerID: ctr.ID, SessionID: sessionID})
	}
	return result, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}
