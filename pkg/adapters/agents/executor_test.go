package agents

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(DefaultInterpreter); err != nil {
		t.Skip("python3 not available")
	}
}

func TestExecutor_Unsupported(t *testing.T) {
	e := NewExecutor(ExecutorConfig{})
	assert.Equal(t, "Execution not supported for language: javascript", e.Run(context.Background(), "javascript", "console.log(1)"))
}

func TestExecutor_CapturesStdoutAndStderr(t *testing.T) {
	requirePython(t)
	e := NewExecutor(ExecutorConfig{})

	out := e.Run(context.Background(), "Python", "import sys\nprint('hello')\nprint('oops', file=sys.stderr)\n")
	// stdout keeps its trailing newline before the separator
	assert.Equal(t, "hello\n\noops", out)
}

func TestExecutor_StdoutOnly(t *testing.T) {
	requirePython(t)
	e := NewExecutor(ExecutorConfig{})

	out := e.Run(context.Background(), "python", "print('hello')\n")
	assert.Equal(t, "hello", out)
}

func TestExecutor_NonZeroExitKeepsOutput(t *testing.T) {
	requirePython(t)
	e := NewExecutor(ExecutorConfig{})

	out := e.Run(context.Background(), "py", "raise ValueError('bad input')\n")
	assert.Contains(t, out, "ValueError: bad input")
}

func TestExecutor_Timeout(t *testing.T) {
	requirePython(t)
	e := NewExecutor(ExecutorConfig{Timeout: 200 * time.Millisecond})

	out := e.Run(context.Background(), "python", "import time\ntime.sleep(5)\n")
	assert.Equal(t, "execution timed out after 200ms", out)
}

func TestExecutor_MissingInterpreter(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Interpreter: "codeforge-no-such-interpreter"})

	out := e.Run(context.Background(), "python", "print(1)")
	assert.Contains(t, out, "executable file not found")
}
