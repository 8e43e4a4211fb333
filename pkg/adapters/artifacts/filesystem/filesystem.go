// Package filesystem stores generated code, tests and the cumulative run log on
// the local filesystem.
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const runLogName = "logs.txt"

var extensions = map[string]string{
	"python":     "py",
	"py":         "py",
	"javascript": "js",
	"js":         "js",
	"c++":        "cpp",
	"cpp":        "cpp",
	"c":          "c",
	"go":         "go",
	"golang":     "go",
	"java":       "java",
	"bash":       "sh",
	"sh":         "sh",
}

// Extension returns the file extension used for a language
func Extension(language string) string {
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(language))]; ok {
		return ext
	}
	return "txt"
}

// Store implements ports.ArtifactStore under a root directory
type Store struct {
	root string

	// serializes appends to the shared run log
	mu sync.Mutex
}

// NewStore creates the root directory if needed
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the artifact directory
func (s *Store) Root() string {
	return s.root
}

// WriteCode writes <root>/<task>/code.<ext>
func (s *Store) WriteCode(taskID, language, code string) (string, error) {
	return s.write(taskID, "code."+Extension(language), code)
}

// WriteTests writes <root>/<task>/test_code.<ext>
func (s *Store) WriteTests(taskID, language, tests string) (string, error) {
	return s.write(taskID, "test_code."+Extension(language), tests)
}

// AppendRunLog appends a block to <root>/logs.txt
func (s *Store) AppendRunLog(taskID, block string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, runLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(block, "\n") {
		block += "\n"
	}
	if _, err := f.WriteString(block + "\n"); err != nil {
		return "", fmt.Errorf("failed to append run log for task %s: %w", taskID, err)
	}
	return path, nil
}

func (s *Store) write(taskID, name, content string) (string, error) {
	if taskID == "" || strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("invalid task id %q", taskID)
	}

	dir := filepath.Join(s.root, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create task directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}
