package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// OSExec runs processes on the local machine.
type OSExec struct {
	// Timeout bounds each process run. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Exec runs command and captures its output. A non-zero exit is an error and
// the result still carries the exit code and output.
func (e OSExec) Exec(ctx context.Context, command string, args ...string) (clitool.ExecResult, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := clitool.ExecResult{
		Command: cmd.String(),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%s exited with code %d", command, res.ExitCode)
	}
	if err != nil {
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

// LookPath resolves name against PATH.
func (OSExec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

var _ clitool.Exec = OSExec{}
