// Package commandtest provides a recording command.Runner for tests.
package commandtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cuemby/upgrade-harness/pkg/command"
)

// Runner records every command and answers with Handler
type Runner struct {
	mu    sync.Mutex
	Calls []command.Cmd

	// Handler decides the outcome of a command; nil means success with no output
	Handler func(c command.Cmd) (command.Result, error)
}

// Run records the command and delegates to Handler
func (r *Runner) Run(_ context.Context, c command.Cmd) (command.Result, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, c)
	handler := r.Handler
	r.mu.Unlock()

	if handler == nil {
		return command.Result{}, nil
	}
	return handler(c)
}

// Commands returns the rendered command lines in call order
func (r *Runner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		out = append(out, c.String())
	}
	return out
}

// Matching returns the recorded commands whose rendered line starts with prefix
func (r *Runner) Matching(prefix string) []command.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []command.Cmd
	for _, c := range r.Calls {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Fail builds the error a real runner returns when c exits 1 with stderr
func Fail(c command.Cmd, stderr string) error {
	return command.NewExitError(c, command.Result{Stderr: stderr}, 1, errors.New("exit status 1"))
}
