package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"python":     "py",
		"Python":     "py",
		"py":         "py",
		"javascript": "js",
		"C++":        "cpp",
		"c":          "c",
		"golang":     "go",
		"java":       "java",
		"bash":       "sh",
		"rust":       "txt",
		"":           "txt",
	}
	for lang, want := range tests {
		assert.Equal(t, want, Extension(lang), lang)
	}
}

func TestWriteCodeAndTests(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	codePath, err := s.WriteCode("task-1", "python", "print('hi')")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "task-1", "code.py"), codePath)

	testPath, err := s.WriteTests("task-1", "python", "def test_hi(): pass")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "task-1", "test_code.py"), testPath)

	data, err := os.ReadFile(codePath)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))
}

func TestWriteRejectsPathTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.WriteCode("../escape", "go", "package main")
	assert.Error(t, err)
	_, err = s.WriteCode("", "go", "package main")
	assert.Error(t, err)
}

func TestAppendRunLogIsCumulative(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendRunLog("t", "=== block ===\nline")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	path, err := s.AppendRunLog("t", "last")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(string(data), "=== block ===\nline\n"))
	assert.True(t, strings.HasSuffix(string(data), "last\n\n"))
}
