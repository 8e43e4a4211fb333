package agents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultInterpreter      = "python3"
	DefaultExecutionTimeout = 10 * time.Second
)

// ExecutorConfig configures local code execution
type ExecutorConfig struct {
	Interpreter string
	Timeout     time.Duration
	// Languages accepted by the executor, lower case
	Languages []string
}

// Executor runs code in an interpreter subprocess and captures its output.
// It does not sandbox the code.
type Executor struct {
	interpreter string
	timeout     time.Duration
	languages   map[string]struct{}
}

// NewExecutor creates an executor with defaults applied
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutionTimeout
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"python", "py"}
	}

	langs := make(map[string]struct{}, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	return &Executor{
		interpreter: cfg.Interpreter,
		timeout:     cfg.Timeout,
		languages:   langs,
	}
}

// Run executes the code and returns stdout followed by stderr, trimmed. Faults
// (timeouts, missing interpreter, I/O errors) are returned as the output text.
func (e *Executor) Run(ctx context.Context, language, code string) string {
	if _, ok := e.languages[strings.ToLower(strings.TrimSpace(language))]; !ok {
		return fmt.Sprintf("Execution not supported for language: %s", language)
	}

	f, err := os.CreateTemp("", "codeforge-*.py")
	if err != nil {
		return err.Error()
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return err.Error()
	}
	if err := f.Close(); err != nil {
		return err.Error()
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.interpreter, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("execution timed out after %s", e.timeout)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err.Error()
	}

	out := stdout.String()
	if stderr.Len() > 0 {
		out += "\n" + stderr.String()
	}
	return strings.TrimSpace(out)
}
