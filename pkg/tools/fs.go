package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/halim/aria/pkg/security"
)

const defaultReadLimit = 200_000

// ReadFile reads files inside the allowed roots, with a byte cap so a huge
// file cannot blow the context window.
type ReadFile struct {
	sec *security.Context
}

// NewReadFile builds the read_file tool.
func NewReadFile(sec *security.Context) *ReadFile {
	return &ReadFile{sec: sec}
}

func (t *ReadFile) Name() string { return "read_file" }

func (t *ReadFile) Description() string {
	return "Read a text file from the allowed directories. Returns the file content, truncated past the byte limit."
}

func (t *ReadFile) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Description: "Path to the file to read", Required: true},
		{Name: "max_bytes", Type: "number", Description: "Maximum bytes to return (default 200000)"},
	}
}

func (t *ReadFile) Execute(ctx context.Context, args map[string]any) (string, error) {
	target, err := t.sec.CheckPath(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, use list_directory", target)
	}
	if err := t.sec.CheckSize(info.Size()); err != nil {
		return "", err
	}

	limit := int64(numberArg(args, "max_bytes", defaultReadLimit))
	if limit <= 0 {
		limit = defaultReadLimit
	}

	file, err := os.Open(target)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", target, err)
	}
	defer file.Close()

	data := make([]byte, limit)
	n, err := io.ReadFull(file, data)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read %s: %w", target, err)
	}

	content := string(data[:n])
	if int64(n) == limit && info.Size() > limit {
		content += fmt.Sprintf("\n... [truncated at %d bytes, file is %d bytes]", limit, info.Size())
	}
	return content, nil
}

// WriteFile writes or appends to files inside the allowed roots, creating
// parent directories as needed.
type WriteFile struct {
	sec *security.Context
}

// NewWriteFile builds the write_file tool.
func NewWriteFile(sec *security.Context) *WriteFile {
	return &WriteFile{sec: sec}
}

func (t *WriteFile) Name() string { return "write_file" }

func (t *WriteFile) Description() string {
	return "Write content to a file in the allowed directories, creating parent directories if needed."
}

func (t *WriteFile) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Description: "Path to the file to write", Required: true},
		{Name: "content", Type: "string", Description: "Content to write", Required: true},
		{Name: "append", Type: "boolean", Description: "Append instead of overwrite (default false)"},
	}
}

func (t *WriteFile) Execute(ctx context.Context, args map[string]any) (string, error) {
	target, err := t.sec.CheckPath(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	content := stringArg(args, "content")
	if err := t.sec.CheckSize(int64(len(content))); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}

	flag := os.O_CREATE | os.O_WRONLY
	if boolArg(args, "append") {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	file, err := os.OpenFile(target, flag, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", target, err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	return fmt.Sprintf("wrote %d bytes to %s", len(content), target), nil
}

// ListDirectory lists directory entries inside the allowed roots.
type ListDirectory struct {
	sec *security.Context
}

// NewListDirectory builds the list_directory tool.
func NewListDirectory(sec *security.Context) *ListDirectory {
	return &ListDirectory{sec: sec}
}

func (t *ListDirectory) Name() string { return "list_directory" }

func (t *ListDirectory) Description() string {
	return "List the entries of a directory in the allowed directories. Directories are suffixed with a slash."
}

func (t *ListDirectory) Params() []Param {
	return []Param{
		{Name: "path", Type: "string", Description: "Directory to list (default: the working directory)"},
	}
}

func (t *ListDirectory) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path")
	if path == "" {
		path = t.sec.WorkDir()
	}
	target, err := t.sec.CheckPath(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", target, err)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			lines = append(lines, name+"/")
			continue
		}
		if info, err := entry.Info(); err == nil {
			lines = append(lines, fmt.Sprintf("%s (%d bytes)", name, info.Size()))
		} else {
			lines = append(lines, name)
		}
	}
	sort.Strings(lines)

	if len(lines) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(lines, "\n"), nil
}
