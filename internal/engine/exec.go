package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// CommandResult is the captured output of a one-shot in-container command.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// RunCommand executes cmd inside the container and waits for completion,
// capturing demultiplexed stdout/stderr.
func (c *Client) RunCommand(ctx context.Context, containerID string, cmd []string) (*CommandResult, error) {
	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	attach, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	// Force-close the hijacked connection on cancellation so StdCopy can't
	// block past the caller's deadline.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attach.Close()
		case <-done:
		}
	}()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("exec read: %w", err)
	}

	code, err := c.execExitCode(ctx, execResp.ID)
	if err != nil {
		return nil, err
	}
	return &CommandResult{ExitCode: code, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// ExecProcess is a started, still-attached in-container exec. The caller
// owns the hijacked stream and must Close it.
type ExecProcess struct {
	ExecID string
	Conn   types.HijackedResponse
}

func (p *ExecProcess) Close() {
	p.Conn.Close()
}

// StartExec starts cmd inside the container and returns the attached
// process without waiting. Output on Conn.Reader is a multiplexed
// stdout/stderr stream (no TTY); use stdcopy to demux.
func (c *Client) StartExec(ctx context.Context, containerID string, cmd []string) (*ExecProcess, error) {
	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}
	attach, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	return &ExecProcess{ExecID: execResp.ID, Conn: attach}, nil
}

// StartShell starts an interactive login shell with a TTY and open stdin.
// The returned stream carries raw terminal bytes in both directions; there
// is no stdout/stderr multiplexing under a TTY.
func (c *Client) StartShell(ctx context.Context, containerID string, cols, rows uint) (*ExecProcess, error) {
	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-l"},
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Env:          []string{"TERM=xterm-256color"},
	})
	if err != nil {
		return nil, fmt.Errorf("shell exec create: %w", err)
	}

	attach, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, fmt.Errorf("shell exec attach: %w", err)
	}

	if cols > 0 && rows > 0 {
		c.docker.ContainerExecResize(ctx, execResp.ID, container.ResizeOptions{Width: cols, Height: rows})
	}

	return &ExecProcess{ExecID: execResp.ID, Conn: attach}, nil
}

// ExecExitCode reports whether the exec finished and with what code.
func (c *Client) ExecExitCode(ctx context.Context, execID string) (running bool, exitCode int, err error) {
	inspect, err := c.docker.ContainerExecInspect(ctx, execID)
	if err != nil {
		return false, 0, fmt.Errorf("exec inspect: %w", err)
	}
	return inspect.Running, inspect.ExitCode, nil
}

// execExitCode waits briefly for the exec record to settle after stream
// EOF, then returns its exit code.
func (c *Client) execExitCode(ctx context.Context, execID string) (int, error) {
	for attempt := 0; attempt < 20; attempt++ {
		running, code, err := c.ExecExitCode(ctx, execID)
		if err != nil {
			return 0, err
		}
		if !running {
			return code, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return 0, fmt.Errorf("exec %s did not finish", execID)
}
