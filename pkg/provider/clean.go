package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/metrics"
)

type cleanStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Clean removes everything an earlier run may have left behind. Every step
// runs even when an earlier one fails; failures are logged and counted but do
// not fail the stage, since on a fresh machine most of them have nothing to act on.
func (c *Cluster) Clean(ctx context.Context) error {
	if err := c.clean(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Cleanup finished with errors")
	}
	return ctx.Err()
}

func (c *Cluster) clean(ctx context.Context) error {
	steps := []cleanStep{
		{"uninstall releases", c.uninstallReleases},
		{"clean datastore", c.DB.Clean},
		{"delete license secrets", c.deleteSecrets},
		{"reclaim leaked tunnels", c.Tunnels.ReclaimLeaked},
		{"free local ports", c.freePorts},
		{"delete namespace", func(ctx context.Context) error {
			return c.Kube.DeleteNamespace(ctx, c.cfg.Namespace)
		}},
		{"stop tunnels", c.Cleanup},
	}

	var errs []error
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			metrics.CleanupFailures.Inc()
			c.logger.Warn().Err(err).Str("step", s.name).Msg("Cleanup step failed")
			if out := command.Output(err); out != "" {
				c.logger.Debug().Str("step", s.name).Msg(out)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Cluster) uninstallReleases(ctx context.Context) error {
	var errs []error
	for _, u := range c.units {
		if err := c.Charts.Uninstall(ctx, u.name, c.cfg.Namespace); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// secretNames are the derived names followed by legacy names, without duplicates
func (c *Cluster) secretNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, u := range c.units {
		add(u.secretName())
	}
	for _, n := range c.cfg.LegacyLicenseSecrets {
		add(n)
	}
	return names
}

func (c *Cluster) deleteSecrets(ctx context.Context) error {
	var errs []error
	for _, name := range c.secretNames() {
		if err := c.Kube.DeleteSecret(ctx, c.cfg.Namespace, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cluster) freePorts(ctx context.Context) error {
	var errs []error
	for _, s := range c.specs {
		if err := c.Ports.ForceKillPort(ctx, s.LocalPort); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
