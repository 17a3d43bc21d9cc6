// Package process runs the external command-line program on behalf of a tool call.
//
// The command text comes from the client and is handed to the interpreter as-is.
// Whoever can call the tool can run anything the interpreter can; the server only
// guarantees that the credential is attached and never echoed back.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aretw0/fastly-mcp/internal/logging"
	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// Environment variables set on every subprocess.
const (
	EnvCredential = "FASTLY_MCP_CREDENTIAL"
	EnvAPIToken   = "FASTLY_API_TOKEN"
)

// Executor builds the interpreter invocation for a CLICallRequest and normalizes its completion.
type Executor struct {
	credential domain.Credential
	program    string
	tokenFlag  string
	shell      []string
	baseDir    string
	service    string
	runner     Runner
	logger     *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithProgram sets the program prefixed to every command.
func WithProgram(name string) Option {
	return func(e *Executor) {
		e.program = name
	}
}

// WithTokenFlag sets the flag that precedes the credential.
func WithTokenFlag(flag string) Option {
	return func(e *Executor) {
		e.tokenFlag = flag
	}
}

// WithShell sets the interpreter argv; the script is appended as the last argument.
func WithShell(argv ...string) Option {
	return func(e *Executor) {
		e.shell = argv
	}
}

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithServiceName sets the label used in error messages.
func WithServiceName(name string) Option {
	return func(e *Executor) {
		e.service = name
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithBaseDir sets the working directory used when a call does not supply one.
func WithBaseDir(dir string) Option {
	return func(e *Executor) {
		e.baseDir = dir
	}
}

// NewExecutor creates an Executor for the stock fastly program.
func NewExecutor(cred domain.Credential, opts ...Option) *Executor {
	e := &Executor{
		credential: cred,
		program:    "fastly",
		tokenFlag:  "--token",
		shell:      []string{"sh", "-c"},
		service:    "Fastly",
		runner:     ExecRunner{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	return e
}

// Execute runs the command and waits for it to finish.
func (e *Executor) Execute(ctx context.Context, call domain.CLICallRequest) (*domain.CLIResult, error) {
	e.logger.Info(fmt.Sprintf("Executing CLI command: %s %s", e.program, call.Command))

	inv := e.Invocation(call)
	done, err := e.runner.Run(ctx, inv)
	if err != nil {
		return nil, e.fail(&domain.CLIError{Service: e.service, ExitCode: -1, Err: err})
	}
	if done.ExitCode != 0 {
		return nil, e.fail(&domain.CLIError{
			Service:  e.service,
			ExitCode: done.ExitCode,
			Stderr:   e.credential.Redact(strings.TrimSpace(done.Stderr)),
			Err:      fmt.Errorf("exit status %d", done.ExitCode),
		})
	}

	e.logger.Info("CLI command completed successfully")
	return &domain.CLIResult{
		Stdout:  strings.TrimSpace(done.Stdout),
		Stderr:  strings.TrimSpace(done.Stderr),
		Success: true,
	}, nil
}

// Invocation prepares the subprocess call for a request.
// The credential travels in the environment and is only referenced by the script.
func (e *Executor) Invocation(call domain.CLICallRequest) Invocation {
	script := e.Script(call.Command)

	args := make([]string, 0, len(e.shell)+1)
	args = append(args, e.shell...)
	args = append(args, script)

	dir := call.WorkingDirectory
	if dir == "" {
		dir = e.baseDir
	}

	return Invocation{
		Args: args,
		Dir:  dir,
		Env: []string{
			EnvCredential + "=" + e.credential.Reveal(),
			EnvAPIToken + "=" + e.credential.Reveal(),
		},
	}
}

// Script returns the interpreter script for command.
func (e *Executor) Script(command string) string {
	return fmt.Sprintf("%s %s %s %s", e.program, command, e.tokenFlag, e.tokenReference())
}

func (e *Executor) tokenReference() string {
	if len(e.shell) == 0 {
		return "$" + EnvCredential
	}
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(e.shell[0]), filepath.Ext(e.shell[0])))
	switch name {
	case "powershell", "pwsh":
		return "$env:" + EnvCredential
	case "cmd":
		return "%" + EnvCredential + "%"
	default:
		return `"$` + EnvCredential + `"`
	}
}

func (e *Executor) fail(err *domain.CLIError) error {
	e.logger.Error(e.credential.Redact("CLI command error: " + err.Error()))
	return err
}
