package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codecrate/codecrate/internal/engine"
)

func newReadyManager(t *testing.T) (*Manager, *MockEngine, *MockJournal) {
	t.Helper()
	mgr, reg, eng, jrnl := newTestManager()
	allowJournalWrites(jrnl)
	registerSession(reg, "sess-1")
	require.NoError(t, reg.SetContainer("sess-1", "container-1"))
	require.NoError(t, reg.SetState("sess-1", "ready", ""))
	return mgr, eng, jrnl
}

func TestTreeBuildsHierarchy(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	raw := []byte("main.py\tf\t30\nsrc\td\t0\nsrc/app.py\tf\t12\nsrc/lib\td\t0\nsrc/lib/util.py\tf\t7\n")
	eng.On("ListTree", mock.Anything, "container-1", "/workspace", 2000).Return(raw, nil)

	result, err := mgr.Tree(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	assert.False(t, result.Truncated)

	root := result.Root
	require.Len(t, root.Children, 2)
	// Folders sort before files.
	assert.Equal(t, "src", root.Children[0].Name)
	assert.Equal(t, "folder", string(root.Children[0].Type))
	assert.Equal(t, "main.py", root.Children[1].Name)
	assert.Equal(t, int64(30), root.Children[1].Size)

	src := root.Children[0]
	require.Len(t, src.Children, 2)
	assert.Equal(t, "lib", src.Children[0].Name)
	assert.Equal(t, "app.py", src.Children[1].Name)
	assert.Equal(t, "/src/app.py", src.Children[1].Path)
}

func TestTreeTruncates(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	raw := []byte("a.txt\tf\t1\nb.txt\tf\t2\nc.txt\tf\t3\n")
	eng.On("ListTree", mock.Anything, "container-1", "/workspace", 2).Return(raw, nil)

	result, err := mgr.Tree(context.Background(), "sess-1", 2)
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Root.Children, 2)
}

func TestTreeNotReady(t *testing.T) {
	mgr, reg, _, _ := newTestManager()
	registerSession(reg, "sess-1")

	_, err := mgr.Tree(context.Background(), "sess-1", 0)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestBuildTreeDropsOrphansPastCap(t *testing.T) {
	// The folder line for "deep" falls past the cap, so its child has no
	// parent node and is dropped rather than misattached.
	raw := []byte("a.txt\tf\t1\ndeep\td\t0\ndeep/file.txt\tf\t5\n")
	root, truncated := buildTree(raw, 1)
	assert.True(t, truncated)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "a.txt", root.Children[0].Name)
}

func TestBuildTreeEmptyWorkspace(t *testing.T) {
	root, truncated := buildTree(nil, 100)
	assert.False(t, truncated)
	assert.Empty(t, root.Children)
	assert.Equal(t, "/", root.Path)
}

func TestReadFilePassesResolvedPath(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	eng.On("ReadFile", mock.Anything, "container-1", "/workspace/src/app.py", 1024).
		Return([]byte("print('hi')"), false, nil)

	content, truncated, err := mgr.ReadFile(context.Background(), "sess-1", "src/app.py", 1024)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, []byte("print('hi')"), content)
}

func TestReadFileDirectoryIsInvalidPath(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	eng.On("ReadFile", mock.Anything, "container-1", "/workspace/src", 1024).
		Return(nil, false, fmt.Errorf("copy: %w", engine.ErrIsDirectory))

	_, _, err := mgr.ReadFile(context.Background(), "sess-1", "src", 1024)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestReadFileTruncated(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	eng.On("ReadFile", mock.Anything, "container-1", "/workspace/big.bin", 10).
		Return([]byte("0123456789"), true, nil)

	_, truncated, err := mgr.ReadFile(context.Background(), "sess-1", "big.bin", 10)
	require.NoError(t, err)
	assert.True(t, truncated)
}

func TestReadFileEmptyPath(t *testing.T) {
	mgr, _, _ := newReadyManager(t)

	_, _, err := mgr.ReadFile(context.Background(), "sess-1", "", 0)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestWriteFileCreatesViaEngine(t *testing.T) {
	mgr, eng, jrnl := newReadyManager(t)

	eng.On("WriteFile", mock.Anything, "container-1", "/workspace/notes/todo.md", []byte("x")).Return(nil)

	require.NoError(t, mgr.WriteFile(context.Background(), "sess-1", "notes/todo.md", []byte("x")))
	eng.AssertExpectations(t)
	jrnl.AssertCalled(t, "TouchSession", "sess-1")
}

func TestWriteFileEngineError(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	eng.On("WriteFile", mock.Anything, "container-1", "/workspace/a.txt", mock.Anything).
		Return(fmt.Errorf("no space left"))

	err := mgr.WriteFile(context.Background(), "sess-1", "a.txt", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write a.txt")
}

func TestMoveIntoOwnDescendantRejected(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	err := mgr.Move(context.Background(), "sess-1", "/src", "/src/lib")
	assert.ErrorIs(t, err, ErrInvalidMove)
	eng.AssertNotCalled(t, "MoveEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMoveOntoItselfRejected(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	err := mgr.Move(context.Background(), "sess-1", "/src", "/src")
	assert.ErrorIs(t, err, ErrInvalidMove)
	eng.AssertNotCalled(t, "MoveEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMoveWorkspaceRootRejected(t *testing.T) {
	mgr, _, _ := newReadyManager(t)

	err := mgr.Move(context.Background(), "sess-1", "/", "/dst")
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestMoveToWorkspaceRoot(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	eng.On("MoveEntry", mock.Anything, "container-1", "/workspace/src/app.py", "/workspace/app.py").Return(nil)

	require.NoError(t, mgr.Move(context.Background(), "sess-1", "/src/app.py", ""))
	eng.AssertExpectations(t)
}

func TestMoveIntoSiblingFolder(t *testing.T) {
	mgr, eng, _ := newReadyManager(t)

	eng.On("MoveEntry", mock.Anything, "container-1", "/workspace/a/file.txt", "/workspace/b/file.txt").Return(nil)

	require.NoError(t, mgr.Move(context.Background(), "sess-1", "a/file.txt", "b"))
	eng.AssertExpectations(t)
}
