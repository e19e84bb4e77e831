package provider

import (
	"context"
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/tunnel"
	"github.com/cuemby/upgrade-harness/pkg/types"
)

func (c *Cluster) specsFor(role types.Role) []tunnel.Spec {
	want := make(map[tunnel.Role]bool)
	for _, r := range tunnelRoles(role) {
		want[r] = true
	}

	var specs []tunnel.Spec
	for _, s := range c.specs {
		if want[s.Role] {
			specs = append(specs, s)
		}
	}
	return specs
}

// startTunnels (re)starts a tunnel per spec and waits until each local port accepts
func (c *Cluster) startTunnels(ctx context.Context, specs []tunnel.Spec) error {
	for _, s := range specs {
		if _, err := c.Tunnels.Start(ctx, s); err != nil {
			return err
		}
	}
	for _, s := range specs {
		if err := c.waitPort(ctx, s.LocalPort); err != nil {
			return fmt.Errorf("%s tunnel to %s not reachable: %w", s.Role, s.Resource, err)
		}
	}
	return nil
}

// PrepareTests makes sure every expected tunnel answers. A port that is
// closed gets its tunnel restarted once.
func (c *Cluster) PrepareTests(ctx context.Context) error {
	for _, s := range c.specs {
		if c.portOpen(ctx, s.LocalPort) {
			continue
		}
		c.logger.Warn().Str("role", string(s.Role)).Int("port", s.LocalPort).Msg("Tunnel not reachable, restarting")
		if err := c.startTunnels(ctx, []tunnel.Spec{s}); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup stops the tunnels this run started
func (c *Cluster) Cleanup(ctx context.Context) error {
	return c.Tunnels.StopAll()
}

// TestEnv exposes the local tunnel endpoints of the configured topology
func (c *Cluster) TestEnv() map[string]string {
	env := make(map[string]string, len(c.specs))
	for _, s := range c.specs {
		env[envKeys[s.Role]] = fmt.Sprintf("http://localhost:%d", s.LocalPort)
	}
	return env
}
