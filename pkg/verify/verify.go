// Package verify runs the external verification test suite.
//
// The suite is a black box: a child process that exits zero on success.
// Service URLs and other provider settings reach it only through the child's
// environment; the harness process environment is never modified.
package verify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
)

// Request describes one verification step
type Request struct {
	Suites []types.Suite
	Filter string
	Dir    string
	// Env is added to the child environment
	Env map[string]string
}

// Verifier runs verification suites
type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// CommandVerifier runs a configured command once per suite
type CommandVerifier struct {
	runner     command.Runner
	command    []string
	filterArgs []string
	timeout    time.Duration
	stdout     io.Writer
	stderr     io.Writer
	logger     zerolog.Logger
}

// NewCommandVerifier creates a verifier that streams suite output to the terminal
func NewCommandVerifier(runner command.Runner, cfg config.VerifyConfig) *CommandVerifier {
	return &CommandVerifier{
		runner:     runner,
		command:    cfg.Command,
		filterArgs: cfg.FilterArgs,
		timeout:    cfg.Timeout,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     log.WithComponent("verify"),
	}
}

// Verify runs each suite in order and stops at the first failure
func (v *CommandVerifier) Verify(ctx context.Context, req Request) error {
	if len(v.command) == 0 {
		return fmt.Errorf("no verification command configured")
	}

	for _, suite := range req.Suites {
		cmd := v.buildCmd(suite, req)
		v.logger.Info().Str("suite", string(suite)).Str("cmd", cmd.String()).Msg("Running verification suite")

		if err := v.run(ctx, cmd); err != nil {
			return fmt.Errorf("%s suite failed: %w", suite, err)
		}
		v.logger.Info().Str("suite", string(suite)).Msg("Verification suite passed")
	}
	return nil
}

func (v *CommandVerifier) run(ctx context.Context, cmd command.Cmd) error {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	_, err := v.runner.Run(ctx, cmd)
	return err
}

func (v *CommandVerifier) buildCmd(suite types.Suite, req Request) command.Cmd {
	expand := func(s string) string {
		return strings.NewReplacer("${SUITE}", string(suite), "${FILTER}", req.Filter).Replace(s)
	}

	args := make([]string, 0, len(v.command)+len(v.filterArgs))
	for _, a := range v.command {
		args = append(args, expand(a))
	}
	if req.Filter != "" {
		for _, a := range v.filterArgs {
			args = append(args, expand(a))
		}
	}

	return command.Cmd{
		Name:   args[0],
		Args:   args[1:],
		Dir:    req.Dir,
		Env:    childEnv(suite, req),
		Stdout: v.stdout,
		Stderr: v.stderr,
	}
}

func childEnv(suite types.Suite, req Request) []string {
	keys := make([]string, 0, len(req.Env))
	for k := range req.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		env = append(env, k+"="+req.Env[k])
	}
	env = append(env, "TEST_SUITE="+string(suite))
	if req.Filter != "" {
		env = append(env, "TEST_FILTER="+req.Filter)
	}
	return env
}
