package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Invocation is a fully prepared subprocess call.
type Invocation struct {
	Args []string // argv, Args[0] is the program
	Dir  string
	Env  []string // appended to the inherited environment
}

// Completion is what a finished subprocess produced.
type Completion struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a subprocess and waits for it.
// A non-zero exit is reported in Completion, not as an error;
// the error is reserved for processes that could not be started.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Completion, error)
}

// ExecRunner runs invocations with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, inv Invocation) (Completion, error) {
	if len(inv.Args) == 0 {
		return Completion{ExitCode: -1}, errors.New("empty invocation")
	}

	cmd := exec.CommandContext(ctx, inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = append(cmd.Environ(), inv.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	done := Completion{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return done, nil
	case errors.As(err, &exitErr):
		done.ExitCode = exitErr.ExitCode()
		return done, nil
	default:
		done.ExitCode = -1
		return done, err
	}
}
