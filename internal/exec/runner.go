// Package exec provides a testable command execution abstraction.
// All package-manager invocations go through a Runner so the retry
// loop can be exercised without touching the system.
package exec

import (
	"context"
	"errors"
	"os"
	osexec "os/exec"
	"strconv"
	"sync"
)

// Runner defines the interface for executing external commands.
// Inject this instead of calling exec.Command directly.
type Runner interface {
	// Capture executes a command and returns combined stdout/stderr
	// plus the process exit code. A non-zero exit is not an error:
	// err is reserved for failures to start the process at all.
	Capture(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)

	// Run executes a command and returns combined stdout/stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Interactive executes a command wired to the caller's terminal.
	// Used for manual-shell escalations.
	Interactive(ctx context.Context, name string, args ...string) error

	// LookPath reports whether a binary is available, and where.
	LookPath(name string) (string, error)
}

// OSRunner implements Runner using os/exec.
type OSRunner struct {
	// Env overrides environment variables (nil = inherit from parent)
	Env []string
}

// NewOSRunner creates a new OS-based command runner.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Capture executes a command and returns combined output and exit code.
func (r *OSRunner) Capture(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	out, err := cmd.CombinedOutput()
	if err == nil {
		return out, 0, nil
	}
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	return out, -1, err
}

// Run executes a command and returns combined output.
func (r *OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	return cmd.CombinedOutput()
}

// Interactive executes a command attached to the current terminal.
func (r *OSRunner) Interactive(ctx context.Context, name string, args ...string) error {
	cmd := osexec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// LookPath resolves a binary on PATH.
func (r *OSRunner) LookPath(name string) (string, error) {
	return osexec.LookPath(name)
}

// MockRunner implements Runner for testing.
// Responses for a command key are consumed in order, so a test can
// script "fail once, then succeed" retry sequences.
type MockRunner struct {
	mu sync.Mutex

	// Calls records all command invocations.
	Calls []MockCall

	// Responses maps command name to a queue of responses.
	Responses map[string][]MockResponse

	// Missing lists binaries LookPath should report as absent.
	Missing map[string]bool
}

// MockCall records a single command invocation.
type MockCall struct {
	Name string
	Args []string
}

// MockResponse defines one scripted response for a mocked command.
type MockResponse struct {
	Output   []byte
	ExitCode int
	Err      error
}

// NewMockRunner creates a new mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: make(map[string][]MockResponse),
		Missing:   make(map[string]bool),
	}
}

// Script appends a response to the queue for a command name.
func (m *MockRunner) Script(name string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[name] = append(m.Responses[name], resp)
}

// CallsFor returns recorded invocations of a command name.
func (m *MockRunner) CallsFor(name string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, c := range m.Calls {
		if c.Name == name {
			calls = append(calls, c)
		}
	}
	return calls
}

func (m *MockRunner) next(name string, args []string) MockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	queue := m.Responses[name]
	if len(queue) == 0 {
		return MockResponse{}
	}
	resp := queue[0]
	if len(queue) > 1 {
		m.Responses[name] = queue[1:]
	}
	return resp
}

func (m *MockRunner) Capture(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	resp := m.next(name, args)
	return resp.Output, resp.ExitCode, resp.Err
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	resp := m.next(name, args)
	if resp.Err != nil {
		return resp.Output, resp.Err
	}
	if resp.ExitCode != 0 {
		return resp.Output, &ExitError{Code: resp.ExitCode}
	}
	return resp.Output, nil
}

func (m *MockRunner) Interactive(ctx context.Context, name string, args ...string) error {
	resp := m.next(name, args)
	return resp.Err
}

func (m *MockRunner) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Missing[name] {
		return "", &ExitError{Code: 127}
	}
	return "/usr/bin/" + name, nil
}

// ExitError is a portable non-zero-exit error for mocks.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// Default is the default runner used by helper functions.
var Default Runner = NewOSRunner()

// Capture executes using the default runner.
func Capture(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	return Default.Capture(ctx, name, args...)
}
