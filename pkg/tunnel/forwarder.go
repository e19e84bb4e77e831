package tunnel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
)

// Forwarder starts and stops background port-forward processes
type Forwarder interface {
	// Start launches a detached forward of localPort to resource:remotePort
	// and returns its pid. The process outlives ctx.
	Start(ctx context.Context, resource string, localPort, remotePort int) (int, error)

	// Stop terminates pid; a process that is already gone is success
	Stop(pid int) error

	// Running reports whether pid is alive and still a port-forward
	Running(ctx context.Context, pid int) bool

	// ForceKillPort kills whatever listens on the local port
	ForceKillPort(ctx context.Context, port int) error
}

// KubectlForwarder runs `kubectl port-forward` in its own session
type KubectlForwarder struct {
	target    *types.KubeTarget
	namespace string
	runner    command.Runner
	logger    zerolog.Logger

	// LogDir receives one log file per forward process
	LogDir string
	// StopTimeout bounds the wait between SIGTERM and SIGKILL
	StopTimeout time.Duration

	kill func(pid int, sig syscall.Signal) error
}

// NewKubectlForwarder creates a forwarder for services in namespace
func NewKubectlForwarder(runner command.Runner, target *types.KubeTarget, namespace string) *KubectlForwarder {
	return &KubectlForwarder{
		target:      target,
		namespace:   namespace,
		runner:      runner,
		logger:      log.WithComponent("tunnel"),
		LogDir:      os.TempDir(),
		StopTimeout: 5 * time.Second,
		kill:        syscall.Kill,
	}
}

func (f *KubectlForwarder) args(resource string, localPort, remotePort int) []string {
	args := append(f.target.KubectlFlags(),
		"port-forward",
		"--namespace", f.namespace,
		"--address", "127.0.0.1",
		resource,
		fmt.Sprintf("%d:%d", localPort, remotePort),
	)
	return args
}

// Start launches kubectl port-forward detached from the harness session
func (f *KubectlForwarder) Start(ctx context.Context, resource string, localPort, remotePort int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logFile, err := os.CreateTemp(f.LogDir, fmt.Sprintf("port-forward-%d-*.log", localPort))
	if err != nil {
		return 0, fmt.Errorf("failed to create port-forward log: %w", err)
	}
	defer logFile.Close()

	// not CommandContext: the forward must survive the stage that started it
	cmd := exec.Command("kubectl", f.args(resource, localPort, remotePort)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start port-forward to %s: %w", resource, err)
	}
	pid := cmd.Process.Pid

	// reap the child if it exits while we are still running
	go func() { _ = cmd.Wait() }()

	f.logger.Info().
		Int("pid", pid).
		Str("resource", resource).
		Str("ports", fmt.Sprintf("%d:%d", localPort, remotePort)).
		Str("log", logFile.Name()).
		Msg("Port-forward started")
	return pid, nil
}

// Stop sends SIGTERM to the process group, then SIGKILL after StopTimeout
func (f *KubectlForwarder) Stop(pid int) error {
	if pid <= 0 {
		return nil
	}

	if err := f.kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		// not a group leader, signal the process itself
		if err := f.kill(pid, syscall.SIGTERM); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				return nil
			}
			return fmt.Errorf("failed to send SIGTERM to %d: %w", pid, err)
		}
	}

	deadline := time.Now().Add(f.StopTimeout)
	for time.Now().Before(deadline) {
		if !f.alive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	f.logger.Warn().Int("pid", pid).Msg("Port-forward did not exit after SIGTERM, killing")
	if err := f.kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		if err := f.kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("failed to kill %d: %w", pid, err)
		}
	}
	return nil
}

func (f *KubectlForwarder) alive(pid int) bool {
	return f.kill(pid, 0) == nil
}

// Running checks the process command line so a recycled pid is never mistaken for a tunnel
func (f *KubectlForwarder) Running(ctx context.Context, pid int) bool {
	if pid <= 0 || !f.alive(pid) {
		return false
	}
	res, err := f.runner.Run(ctx, command.Cmd{Name: "ps", Args: []string{"-o", "command=", "-p", strconv.Itoa(pid)}})
	if err != nil {
		return false
	}
	return strings.Contains(res.Stdout, "port-forward")
}

// ForceKillPort sends SIGKILL to every process listening on port
func (f *KubectlForwarder) ForceKillPort(ctx context.Context, port int) error {
	res, err := f.runner.Run(ctx, command.Cmd{
		Name: "lsof",
		Args: []string{"-t", "-i", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN"},
	})
	if err != nil {
		var ee *command.ExitError
		switch {
		case command.IsKind(err, command.KindNotInstalled):
			f.logger.Warn().Int("port", port).Msg("lsof not installed, cannot reclaim port")
			return nil
		case errors.As(err, &ee) && ee.ExitCode == 1 && ee.Output() == "":
			// lsof exits 1 when nothing matches
			return nil
		default:
			return fmt.Errorf("failed to look up listeners on port %d: %w", port, err)
		}
	}

	var errs []error
	for _, field := range strings.Fields(res.Stdout) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid == os.Getpid() {
			continue
		}
		if err := f.kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			errs = append(errs, fmt.Errorf("failed to kill %d on port %d: %w", pid, port, err))
			continue
		}
		f.logger.Info().Int("pid", pid).Int("port", port).Msg("Killed process holding port")
	}
	return errors.Join(errs...)
}
