package clitool

import "context"

// Logger receives progress messages from update strategies.
type Logger interface {
	Log(msg string)
	Warn(msg string)
	Error(msg string)
}

// NopLogger discards all messages.
type NopLogger struct{}

func (NopLogger) Log(string)   {}
func (NopLogger) Warn(string)  {}
func (NopLogger) Error(string) {}

// ExecResult is the outcome of running a process.
type ExecResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs external processes on behalf of tool records.
type Exec interface {
	// Exec runs command with args and waits for it to finish.
	Exec(ctx context.Context, command string, args ...string) (ExecResult, error)

	// LookPath resolves an executable name to a path.
	LookPath(name string) (string, error)
}
