package helm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
)

// InstallOptions controls a single `helm upgrade --install`
type InstallOptions struct {
	Namespace       string
	ValuesFiles     []string
	Wait            bool
	CreateNamespace bool
	Version         string
	Set             map[string]string
	ReuseValues     bool
	Timeout         time.Duration
}

// Release is one entry of `helm list`
type Release struct {
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	Revision   string `json:"revision"`
	Status     string `json:"status"`
	Chart      string `json:"chart"`
	AppVersion string `json:"app_version"`
}

// Client wraps the helm CLI for releases and the helm SDK for repositories
type Client struct {
	runner command.Runner
	target *types.KubeTarget
	logger zerolog.Logger

	repoFile  string
	repoCache string
	getters   getter.Providers
}

// NewClient creates a Client using helm's standard repository locations
func NewClient(runner command.Runner, target *types.KubeTarget) *Client {
	settings := cli.New()
	return &Client{
		runner:    runner,
		target:    target,
		logger:    log.WithComponent("helm"),
		repoFile:  settings.RepositoryConfig,
		repoCache: settings.RepositoryCache,
		getters:   getter.All(settings),
	}
}

// WithRepositoryPaths overrides where repositories.yaml and the index cache live
func (c *Client) WithRepositoryPaths(repoFile, repoCache string) *Client {
	c.repoFile = repoFile
	c.repoCache = repoCache
	return c
}

// InstallOrUpgrade installs release from chart, or upgrades it in place
func (c *Client) InstallOrUpgrade(ctx context.Context, release, chart string, opts InstallOptions) error {
	args := []string{"upgrade", "--install", release, chart}
	if opts.Namespace != "" {
		args = append(args, "--namespace", opts.Namespace)
	}
	if opts.CreateNamespace {
		args = append(args, "--create-namespace")
	}
	if opts.Version != "" {
		args = append(args, "--version", opts.Version)
	}
	if opts.ReuseValues {
		args = append(args, "--reuse-values")
	}
	for _, f := range opts.ValuesFiles {
		args = append(args, "-f", f)
	}
	args = append(args, setArgs(opts.Set)...)
	if opts.Wait {
		args = append(args, "--wait")
	}
	if opts.Timeout > 0 {
		args = append(args, "--timeout", opts.Timeout.String())
	}

	c.logger.Info().
		Str("release", release).
		Str("chart", chart).
		Bool("reuse_values", opts.ReuseValues).
		Msg("Installing or upgrading release")

	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("helm install of %s failed: %w", release, err)
	}
	return nil
}

// Uninstall removes release. A release that is already gone is not an error.
func (c *Client) Uninstall(ctx context.Context, release, namespace string) error {
	args := []string{"uninstall", release}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}

	if _, err := c.run(ctx, args...); err != nil {
		if command.IsKind(err, command.KindNotFound) {
			c.logger.Debug().Str("release", release).Msg("Release not found, nothing to uninstall")
			return nil
		}
		return fmt.Errorf("helm uninstall of %s failed: %w", release, err)
	}
	return nil
}

// List returns the releases in namespace
func (c *Client) List(ctx context.Context, namespace string) ([]Release, error) {
	args := []string{"list", "--output", "json"}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}

	res, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("helm list failed: %w", err)
	}

	var releases []Release
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(out), &releases); err != nil {
		return nil, fmt.Errorf("failed to parse helm list output: %w", err)
	}
	return releases, nil
}

func (c *Client) run(ctx context.Context, args ...string) (command.Result, error) {
	return c.runner.Run(ctx, command.Cmd{
		Name: "helm",
		Args: append(args, c.target.HelmFlags()...),
	})
}

func setArgs(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, "--set", k+"="+values[k])
	}
	return args
}
