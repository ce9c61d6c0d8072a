package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/docker/docker/api/types/container"
)

// ReadFile reads a file from the container filesystem via the engine's
// archive API. Returns the content, and whether it was truncated at
// maxBytes.
func (c *Client) ReadFile(ctx context.Context, containerID, filePath string, maxBytes int) ([]byte, bool, error) {
	reader, _, err := c.docker.CopyFromContainer(ctx, containerID, filePath)
	if err != nil {
		return nil, false, fmt.Errorf("copy from container: %w", err)
	}
	defer reader.Close()

	return fileFromArchive(reader, filePath, maxBytes)
}

// fileFromArchive extracts the single regular file of a copy archive. The
// archive for a directory path leads with the directory header, which is a
// caller error, not a file to guess at.
func fileFromArchive(r io.Reader, filePath string, maxBytes int) ([]byte, bool, error) {
	tr := tar.NewReader(r)
	first := true
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, false, fmt.Errorf("no file in archive for %s", filePath)
		}
		if err != nil {
			return nil, false, fmt.Errorf("read archive: %w", err)
		}
		if first && hdr.Typeflag == tar.TypeDir {
			return nil, false, fmt.Errorf("%w: %s", ErrIsDirectory, filePath)
		}
		first = false
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		content, err := io.ReadAll(io.LimitReader(tr, int64(maxBytes)+1))
		if err != nil {
			return nil, false, fmt.Errorf("read file: %w", err)
		}
		if len(content) > maxBytes {
			return content[:maxBytes], true, nil
		}
		return content, false, nil
	}
}

// WriteFile writes content to filePath inside the container, creating
// parent directories as needed. Concurrent writes to the same path are
// last-writer-wins at the engine level.
func (c *Client) WriteFile(ctx context.Context, containerID, filePath string, content []byte) error {
	dir := path.Dir(filePath)
	if res, err := c.RunCommand(ctx, containerID, []string{"mkdir", "-p", dir}); err != nil {
		return err
	} else if res.ExitCode != 0 {
		return fmt.Errorf("mkdir %s: %s", dir, bytes.TrimSpace(res.Stderr))
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: path.Base(filePath),
		Mode: 0o644,
		Size: int64(len(content)),
	}); err != nil {
		return fmt.Errorf("tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("tar write: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("tar close: %w", err)
	}

	if err := c.docker.CopyToContainer(ctx, containerID, dir, &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}
	return nil
}

// MoveEntry moves a file or directory inside the container with a single
// mv call, so a concurrent reader never observes a half-moved subtree.
func (c *Client) MoveEntry(ctx context.Context, containerID, src, dst string) error {
	res, err := c.RunCommand(ctx, containerID, []string{"mv", src, dst})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mv %s %s: %s", src, dst, bytes.TrimSpace(res.Stderr))
	}
	return nil
}

// ListTree enumerates the workspace in one exec call: every entry below
// root as "path<TAB>type<TAB>size" lines, sorted by path, capped at
// maxEntries+1 so the caller can detect truncation rather than silently
// dropping entries.
func (c *Client) ListTree(ctx context.Context, containerID, root string, maxEntries int) ([]byte, error) {
	res, err := c.RunCommand(ctx, containerID, []string{"/bin/sh", "-c", listTreeScript(root, maxEntries+1)})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list tree: %s", bytes.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// listTreeScript builds the in-container enumeration. Sticks to POSIX
// find/stat/printf; busybox-based images have no GNU findutils, so
// find -printf is off the table.
func listTreeScript(root string, limit int) string {
	return fmt.Sprintf(`cd %q || exit 1
find . -mindepth 1 | sort | head -n %s | while IFS= read -r p; do
  rel=${p#./}
  if [ -d "$p" ]; then
    printf '%%s\td\t0\n' "$rel"
  else
    printf '%%s\tf\t%%s\n' "$rel" "$(stat -c %%s "$p" 2>/dev/null || echo 0)"
  fi
done`, root, strconv.Itoa(limit))
}
