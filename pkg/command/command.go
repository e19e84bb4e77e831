package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/rs/zerolog"
)

// Cmd describes a single CLI invocation
type Cmd struct {
	Name string
	Args []string
	// Env is appended to the parent environment
	Env   []string
	Dir   string
	Stdin io.Reader
	// Stdout and Stderr, when set, receive a live copy of the output
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and error messages
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished command
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes commands and blocks until they exit
type Runner interface {
	Run(ctx context.Context, c Cmd) (Result, error)
}

// ExecRunner runs commands on the local host with os/exec
type ExecRunner struct {
	logger zerolog.Logger
}

// NewExecRunner creates a runner backed by os/exec
func NewExecRunner() *ExecRunner {
	return &ExecRunner{logger: log.WithComponent("command")}
}

// Run executes the command, capturing stdout and stderr
func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stdout)
	}
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	}

	r.logger.Debug().Str("cmd", c.String()).Msg("Executing")

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		exitCode := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
		}
		return res, NewExitError(c, res, exitCode, err)
	}
	return res, nil
}

// ExitError reports a command that failed to start or exited non-zero
type ExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Kind     Kind
	Err      error
}

// NewExitError builds an ExitError and classifies it from the captured output
func NewExitError(c Cmd, res Result, exitCode int, err error) *ExitError {
	return &ExitError{
		Command:  c.String(),
		ExitCode: exitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Kind:     Classify(err, res.Stderr+"\n"+res.Stdout),
		Err:      err,
	}
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	if out := e.Output(); out != "" {
		msg += "\nOutput: " + out
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Output returns the diagnostic text captured from the command, stderr first
func (e *ExitError) Output() string {
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(e.Stdout)
}

// IsKind reports whether err wraps an ExitError of the given kind
func IsKind(err error, kind Kind) bool {
	var ee *ExitError
	return errors.As(err, &ee) && ee.Kind == kind
}

// Output extracts captured subprocess output from anywhere in err's chain
func Output(err error) string {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Output()
	}
	return ""
}
