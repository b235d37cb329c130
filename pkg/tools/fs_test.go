package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/aria/pkg/security"
)

func testSecurity(t *testing.T) (*security.Context, string) {
	t.Helper()
	root := t.TempDir()
	sec, err := security.New(security.Config{
		AllowedRoots:  []string{root},
		AllowCommands: true,
	})
	require.NoError(t, err)
	return sec, sec.WorkDir()
}

func TestReadFile(t *testing.T) {
	sec, root := testSecurity(t)
	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	tool := NewReadFile(sec)
	out, err := tool.Execute(context.Background(), map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)
}

func TestReadFileTruncates(t *testing.T) {
	sec, root := testSecurity(t)
	path := filepath.Join(root, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0o644))

	tool := NewReadFile(sec)
	out, err := tool.Execute(context.Background(), map[string]any{
		"path":      path,
		"max_bytes": float64(10),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", 10)))
	assert.Contains(t, out, "truncated at 10 bytes")
}

func TestReadFileOutsideRoot(t *testing.T) {
	sec, _ := testSecurity(t)
	tool := NewReadFile(sec)
	_, err := tool.Execute(context.Background(), map[string]any{"path": "/etc/passwd"})
	assert.ErrorIs(t, err, security.ErrPathDenied)
}

func TestReadFileOnDirectory(t *testing.T) {
	sec, root := testSecurity(t)
	tool := NewReadFile(sec)
	_, err := tool.Execute(context.Background(), map[string]any{"path": root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list_directory")
}

func TestWriteFileCreatesParents(t *testing.T) {
	sec, root := testSecurity(t)
	path := filepath.Join(root, "deep", "nested", "out.txt")

	tool := NewWriteFile(sec)
	out, err := tool.Execute(context.Background(), map[string]any{
		"path":    path,
		"content": "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 bytes")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteFileAppend(t *testing.T) {
	sec, root := testSecurity(t)
	path := filepath.Join(root, "log.txt")
	tool := NewWriteFile(sec)

	_, err := tool.Execute(context.Background(), map[string]any{"path": path, "content": "one\n"})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), map[string]any{
		"path": path, "content": "two\n", "append": true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestWriteFileOverwrite(t *testing.T) {
	sec, root := testSecurity(t)
	path := filepath.Join(root, "cfg.txt")
	tool := NewWriteFile(sec)

	_, err := tool.Execute(context.Background(), map[string]any{"path": path, "content": "old content"})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), map[string]any{"path": path, "content": "new"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteFileOutsideRoot(t *testing.T) {
	sec, _ := testSecurity(t)
	tool := NewWriteFile(sec)
	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "/tmp/../etc/evil.txt",
		"content": "x",
	})
	assert.ErrorIs(t, err, security.ErrPathDenied)
}

func TestListDirectory(t *testing.T) {
	sec, root := testSecurity(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	tool := NewListDirectory(sec)
	out, err := tool.Execute(context.Background(), map[string]any{"path": root})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a.txt (1 bytes)", lines[0])
	assert.Equal(t, "b.txt (2 bytes)", lines[1])
	assert.Equal(t, "sub/", lines[2])
}

func TestListDirectoryDefaultsToWorkDir(t *testing.T) {
	sec, root := testSecurity(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "only.txt"), []byte("x"), 0o644))

	tool := NewListDirectory(sec)
	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "only.txt")
}

func TestListDirectoryEmpty(t *testing.T) {
	sec, root := testSecurity(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	tool := NewListDirectory(sec)
	out, err := tool.Execute(context.Background(), map[string]any{"path": filepath.Join(root, "empty")})
	require.NoError(t, err)
	assert.Equal(t, "(empty directory)", out)
}
