// Package cluster brings up and tears down the ephemeral kind cluster used
// when no reachable cluster is configured.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
)

// NodeProber reports cluster reachability and node readiness
type NodeProber interface {
	ClusterInfo(ctx context.Context) error
	NodesReady(ctx context.Context) (bool, error)
}

// Options configures a Kind manager
type Options struct {
	Name string
	// Context is the kube context probed first; defaults to kind-<Name>
	Context       string
	Image         string
	ReadyAttempts int
	ReadyInterval time.Duration
	// KubeconfigDir receives the generated kubeconfig; defaults to os.TempDir
	KubeconfigDir string
}

// Kind manages a kind cluster and points the shared kube target at it
type Kind struct {
	runner command.Runner
	nodes  NodeProber
	target *types.KubeTarget
	opts   Options
	logger zerolog.Logger

	kubeconfig string
}

// NewKind creates a Kind manager
func NewKind(runner command.Runner, nodes NodeProber, target *types.KubeTarget, opts Options) *Kind {
	if opts.Context == "" {
		opts.Context = "kind-" + opts.Name
	}
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = 30
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = 5 * time.Second
	}
	if opts.KubeconfigDir == "" {
		opts.KubeconfigDir = os.TempDir()
	}
	if target.Context == "" {
		target.Context = opts.Context
	}

	return &Kind{
		runner: runner,
		nodes:  nodes,
		target: target,
		opts:   opts,
		logger: log.WithComponent("cluster"),
	}
}

// Ensure makes the configured context reachable, creating a kind cluster if needed
func (k *Kind) Ensure(ctx context.Context) error {
	if err := k.nodes.ClusterInfo(ctx); err == nil {
		k.logger.Info().Str("context", k.target.Context).Msg("Cluster reachable")
		return nil
	} else if command.IsKind(err, command.KindNotInstalled) {
		return newBootstrapError(k.opts.Name, "kubectl", err)
	}

	exists, err := k.exists(ctx)
	if err != nil {
		return newBootstrapError(k.opts.Name, "kind", err)
	}

	if !exists {
		if err := k.create(ctx); err != nil {
			return newBootstrapError(k.opts.Name, "kind", err)
		}
	} else {
		k.logger.Info().Str("cluster", k.opts.Name).Msg("Reusing existing kind cluster")
	}

	if err := k.exportKubeconfig(ctx); err != nil {
		return newBootstrapError(k.opts.Name, "kind", err)
	}

	if err := k.waitForReady(ctx); err != nil {
		return &BootstrapError{Reason: ReasonNotReady, Cluster: k.opts.Name, Tool: "kubectl", Err: err}
	}

	k.logger.Info().Str("cluster", k.opts.Name).Str("kubeconfig", k.kubeconfig).Msg("Kind cluster ready")
	return nil
}

// Delete removes the kind cluster; an absent cluster is success
func (k *Kind) Delete(ctx context.Context) error {
	_, err := k.runner.Run(ctx, command.Cmd{Name: "kind", Args: []string{"delete", "cluster", "--name", k.opts.Name}})
	if err != nil && !command.IsKind(err, command.KindNotFound) {
		return fmt.Errorf("failed to delete kind cluster %s: %w", k.opts.Name, err)
	}

	path := k.kubeconfigPath()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		k.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove kubeconfig")
	}
	k.kubeconfig = ""
	k.logger.Info().Str("cluster", k.opts.Name).Msg("Kind cluster deleted")
	return nil
}

// Kubeconfig returns the generated kubeconfig path, empty when none was written
func (k *Kind) Kubeconfig() string {
	return k.kubeconfig
}

func (k *Kind) exists(ctx context.Context) (bool, error) {
	res, err := k.runner.Run(ctx, command.Cmd{Name: "kind", Args: []string{"get", "clusters"}})
	if err != nil {
		return false, err
	}
	for _, name := range strings.Fields(res.Stdout) {
		if name == k.opts.Name {
			return true, nil
		}
	}
	return false, nil
}

func (k *Kind) create(ctx context.Context) error {
	args := []string{"create", "cluster", "--name", k.opts.Name, "--wait", "60s"}
	if k.opts.Image != "" {
		args = append(args, "--image", k.opts.Image)
	}

	k.logger.Info().Str("cluster", k.opts.Name).Msg("Creating kind cluster")
	_, err := k.runner.Run(ctx, command.Cmd{Name: "kind", Args: args})
	return err
}

func (k *Kind) exportKubeconfig(ctx context.Context) error {
	res, err := k.runner.Run(ctx, command.Cmd{Name: "kind", Args: []string{"get", "kubeconfig", "--name", k.opts.Name}})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(k.opts.KubeconfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create kubeconfig directory: %w", err)
	}
	path := k.kubeconfigPath()
	if err := os.WriteFile(path, []byte(res.Stdout), 0600); err != nil {
		return fmt.Errorf("failed to write kubeconfig: %w", err)
	}

	k.kubeconfig = path
	k.target.Kubeconfig = path
	k.target.Context = "kind-" + k.opts.Name
	return nil
}

// kubeconfigPath depends only on the cluster name
func (k *Kind) kubeconfigPath() string {
	return filepath.Join(k.opts.KubeconfigDir, fmt.Sprintf("kubeconfig-%s", k.opts.Name))
}

func (k *Kind) waitForReady(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		ready, err := k.nodes.NodesReady(ctx)
		if err != nil {
			if command.IsKind(err, command.KindNotInstalled) {
				return backoff.Permanent(err)
			}
			k.logger.Debug().Err(err).Int("attempt", attempt).Msg("Node readiness probe failed")
			return err
		}
		if !ready {
			return fmt.Errorf("nodes not ready after %d attempts", attempt)
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(k.opts.ReadyInterval), uint64(k.opts.ReadyAttempts-1)),
		ctx,
	)
	return backoff.Retry(op, b)
}
