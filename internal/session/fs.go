package session

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/codecrate/codecrate/internal/engine"
	"github.com/codecrate/codecrate/protocol"
)

// TreeResult is a full workspace scan. Truncated is set when the workspace
// holds more than the requested cap; entries past the cap are cut, never
// silently dropped.
type TreeResult struct {
	Root      *protocol.FileNode `json:"root"`
	Truncated bool               `json:"truncated"`
}

// Tree enumerates the whole workspace in a single in-container exec and
// assembles the FileNode hierarchy. maxEntries <= 0 falls back to the
// configured cap.
func (m *Manager) Tree(ctx context.Context, id string, maxEntries int) (*TreeResult, error) {
	sess, err := m.readySession(id)
	if err != nil {
		return nil, err
	}
	if maxEntries <= 0 || maxEntries > m.cfg.MaxTreeEntries {
		maxEntries = m.cfg.MaxTreeEntries
	}

	raw, err := m.engine.ListTree(ctx, sess.ContainerID, m.cfg.WorkspacePath, maxEntries)
	if err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}
	m.Touch(id)

	root, truncated := buildTree(raw, maxEntries)
	return &TreeResult{Root: root, Truncated: truncated}, nil
}

// buildTree parses "relpath<TAB>type<TAB>size" lines, sorted by path, into
// the node hierarchy. Sorted input guarantees every parent directory line
// precedes its children.
func buildTree(raw []byte, maxEntries int) (*protocol.FileNode, bool) {
	root := &protocol.FileNode{Name: "/", Type: protocol.NodeFolder, Path: "/"}
	nodes := map[string]*protocol.FileNode{"/": root}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	truncated := false
	if len(lines) > maxEntries {
		lines = lines[:maxEntries]
		truncated = true
	}

	for _, line := range lines {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		rel, kind, sizeStr := parts[0], parts[1], parts[2]
		size, _ := strconv.ParseInt(sizeStr, 10, 64)

		nodePath := "/" + rel
		node := &protocol.FileNode{
			Name: path.Base(nodePath),
			Type: protocol.NodeFile,
			Path: nodePath,
			Size: size,
		}
		if kind == "d" {
			node.Type = protocol.NodeFolder
			node.Size = 0
		}

		parent, ok := nodes[parentPath(nodePath)]
		if !ok {
			// Parent fell past the truncation cap; drop the orphan.
			continue
		}
		parent.Children = append(parent.Children, node)
		if node.Type == protocol.NodeFolder {
			nodes[nodePath] = node
		}
	}

	sortChildren(root)
	return root, truncated
}

// sortChildren orders each folder's children folders-first, then by name,
// so repeated scans of an unchanged workspace render identically.
func sortChildren(node *protocol.FileNode) {
	sort.SliceStable(node.Children, func(i, j int) bool {
		a, b := node.Children[i], node.Children[j]
		if a.Type != b.Type {
			return a.Type == protocol.NodeFolder
		}
		return a.Name < b.Name
	})
	for _, child := range node.Children {
		if child.Type == protocol.NodeFolder {
			sortChildren(child)
		}
	}
}

func parentPath(p string) string {
	parent := path.Dir(p)
	if parent == "." {
		return "/"
	}
	return parent
}

// resolvePath maps a workspace-relative path onto the container filesystem,
// rejecting anything that would escape the workspace root.
func (m *Manager) resolvePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	cleaned := path.Clean("/" + rel)
	if cleaned != "/" && (strings.Contains(cleaned, "..") || !strings.HasPrefix(cleaned, "/")) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return path.Join(m.cfg.WorkspacePath, cleaned), nil
}

// ReadFile returns file content and whether it was truncated at maxBytes.
func (m *Manager) ReadFile(ctx context.Context, id, rel string, maxBytes int) ([]byte, bool, error) {
	sess, err := m.readySession(id)
	if err != nil {
		return nil, false, err
	}
	if maxBytes <= 0 || maxBytes > protocol.DefaultMaxReadBytes {
		maxBytes = protocol.DefaultMaxReadBytes
	}
	abs, err := m.resolvePath(rel)
	if err != nil {
		return nil, false, err
	}

	content, truncated, err := m.engine.ReadFile(ctx, sess.ContainerID, abs, maxBytes)
	if errors.Is(err, engine.ErrIsDirectory) {
		return nil, false, fmt.Errorf("%w: %s is a folder", ErrInvalidPath, rel)
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", rel, err)
	}
	m.Touch(id)
	return content, truncated, nil
}

// WriteFile writes content at the workspace-relative path, creating parent
// directories. Two concurrent writes to the same path are
// last-writer-wins.
func (m *Manager) WriteFile(ctx context.Context, id, rel string, content []byte) error {
	sess, err := m.readySession(id)
	if err != nil {
		return err
	}
	abs, err := m.resolvePath(rel)
	if err != nil {
		return err
	}

	if err := m.engine.WriteFile(ctx, sess.ContainerID, abs, content); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	m.Touch(id)
	return nil
}

// Move relocates src under targetParent ("" or "/" for the workspace
// root). Moving a folder into its own descendant is rejected before any
// engine call; the commit itself is one in-container mv, so concurrent
// readers never see a partially moved subtree.
func (m *Manager) Move(ctx context.Context, id, src, targetParent string) error {
	sess, err := m.readySession(id)
	if err != nil {
		return err
	}

	srcClean := path.Clean("/" + src)
	if srcClean == "/" {
		return fmt.Errorf("%w: cannot move workspace root", ErrInvalidMove)
	}
	if targetParent == "" {
		targetParent = "/"
	}
	parentClean := path.Clean("/" + targetParent)

	// Walk the target's ancestor chain; hitting src means the move would
	// create a cycle. Bounded by tree depth.
	for p := parentClean; ; p = path.Dir(p) {
		if p == srcClean {
			return fmt.Errorf("%w: %s is inside %s", ErrInvalidMove, parentClean, srcClean)
		}
		if p == "/" {
			break
		}
	}

	absSrc, err := m.resolvePath(srcClean)
	if err != nil {
		return err
	}
	absDst, err := m.resolvePath(path.Join(parentClean, path.Base(srcClean)))
	if err != nil {
		return err
	}

	if err := m.engine.MoveEntry(ctx, sess.ContainerID, absSrc, absDst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	m.Touch(id)
	return nil
}
