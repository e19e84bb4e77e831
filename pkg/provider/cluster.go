package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/database"
	"github.com/cuemby/upgrade-harness/pkg/health"
	"github.com/cuemby/upgrade-harness/pkg/helm"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/tunnel"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
)

// ChartManager is the subset of helm.Client the cluster backend uses
type ChartManager interface {
	InstallOrUpgrade(ctx context.Context, release, chart string, opts helm.InstallOptions) error
	Uninstall(ctx context.Context, release, namespace string) error
	AddRepository(ctx context.Context, r helm.Repository) error
}

// ClusterCLI is the subset of kubectl.Client the cluster backend uses
type ClusterCLI interface {
	EnsureNamespace(ctx context.Context, namespace string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	ApplySecret(ctx context.Context, namespace, name string, data map[string]string) error
	DeleteSecret(ctx context.Context, namespace, name string) error
	Events(ctx context.Context, namespace string, n int) (string, error)
}

// Bootstrapper makes a cluster reachable
type Bootstrapper interface {
	Ensure(ctx context.Context) error
}

// PortReclaimer frees a local port held by a foreign process
type PortReclaimer interface {
	ForceKillPort(ctx context.Context, port int) error
}

// ClusterDeps are the collaborators of the cluster backend
type ClusterDeps struct {
	Charts    ChartManager
	Kube      ClusterCLI
	Bootstrap Bootstrapper
	DB        database.Strategy
	Versions  VersionChecker
	License   LicenseSource
	Tunnels   *tunnel.Table
	Ports     PortReclaimer
}

// Cluster deploys the product chart into Kubernetes
type Cluster struct {
	cfg    config.ClusterConfig
	images config.ImagesConfig
	ClusterDeps

	units []deployUnit
	specs []tunnel.Spec

	// portOpen is a single probe, waitPort polls until the port accepts
	portOpen func(ctx context.Context, port int) bool
	waitPort func(ctx context.Context, port int) error

	logger zerolog.Logger
}

// NewCluster creates the cluster backend
func NewCluster(cfg config.ClusterConfig, images config.ImagesConfig, deps ClusterDeps) *Cluster {
	units := buildUnits(cfg)
	waiter := health.NewWaiter(30*time.Second, 500*time.Millisecond)

	return &Cluster{
		cfg:         cfg,
		images:      images,
		ClusterDeps: deps,
		units:       units,
		specs:       tunnelSpecs(units, cfg.Ports),
		portOpen: func(ctx context.Context, port int) bool {
			return health.NewLocalPortChecker(port).Check(ctx).Healthy
		},
		waitPort: func(ctx context.Context, port int) error {
			return waiter.WaitFor(ctx, health.NewLocalPortChecker(port), fmt.Sprintf("tunnel on port %d", port))
		},
		logger: log.WithComponent("provider").With().Str("provider", "cluster").Logger(),
	}
}

func (c *Cluster) Name() string {
	return "cluster"
}

// Setup makes the cluster reachable, registers chart repositories and
// brings up the datastore.
func (c *Cluster) Setup(ctx context.Context) error {
	if err := c.Bootstrap.Ensure(ctx); err != nil {
		return err
	}

	repos := []helm.Repository{
		{Name: c.cfg.Repository.Name, URL: c.cfg.Repository.URL},
		c.DB.Repository(),
	}
	for _, r := range repos {
		if err := c.Charts.AddRepository(ctx, r); err != nil {
			return err
		}
	}

	if err := c.Kube.EnsureNamespace(ctx, c.cfg.Namespace); err != nil {
		return err
	}

	c.logger.Info().Str("database", c.DB.Name()).Msg("Deploying datastore")
	if err := c.DB.Deploy(ctx); err != nil {
		return err
	}
	return c.DB.WaitForReady(ctx)
}

// Deploy installs every unit at version and opens all tunnels
func (c *Cluster) Deploy(ctx context.Context, version string) error {
	if err := c.Versions.ValidateAll(ctx, version, artifactsFor(c.images, c.roles()...)...); err != nil {
		return err
	}

	license, err := c.License.Base64()
	if err != nil {
		return err
	}

	if err := c.Kube.EnsureNamespace(ctx, c.cfg.Namespace); err != nil {
		return err
	}

	for _, u := range c.units {
		if err := c.Kube.ApplySecret(ctx, c.cfg.Namespace, u.secretName(), map[string]string{licenseDataKey: license}); err != nil {
			return err
		}

		set := tagValues(c.cfg.TagKeys, version, u.roles...)
		set[c.cfg.LicenseSecretKey] = u.secretName()
		for k, v := range c.DB.ProductValues() {
			set[k] = v
		}

		c.logger.Info().Str("release", u.name).Str("version", version).Msg("Installing release")
		err := c.Charts.InstallOrUpgrade(ctx, u.name, c.cfg.Chart, helm.InstallOptions{
			Namespace:       c.cfg.Namespace,
			ValuesFiles:     u.valuesFiles,
			Wait:            true,
			CreateNamespace: true,
			Version:         c.cfg.ChartVersion,
			Set:             set,
			Timeout:         c.cfg.Timeout,
		})
		if err != nil {
			c.logEvents(ctx)
			return fmt.Errorf("failed to install release %s: %w", u.name, err)
		}
	}

	return c.startTunnels(ctx, c.specs)
}

func (c *Cluster) UpgradeAPI(ctx context.Context, version string) error {
	return c.upgradeRole(ctx, types.RoleControlPlane, version)
}

func (c *Cluster) UpgradeGateway(ctx context.Context, version string) error {
	return c.upgradeRole(ctx, types.RoleDataPlane, version)
}

// upgradeRole moves only the image tags of role to version on every unit
// playing it, keeping all other values.
func (c *Cluster) upgradeRole(ctx context.Context, role types.Role, version string) error {
	var units []deployUnit
	for _, u := range c.units {
		if u.has(role) {
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return fmt.Errorf("no release plays the %s role", role)
	}

	if err := c.Versions.ValidateAll(ctx, version, artifactsFor(c.images, role)...); err != nil {
		return err
	}

	for _, u := range units {
		c.logger.Info().Str("release", u.name).Str("role", string(role)).Str("version", version).Msg("Upgrading release")
		err := c.Charts.InstallOrUpgrade(ctx, u.name, c.cfg.Chart, helm.InstallOptions{
			Namespace:   c.cfg.Namespace,
			Wait:        true,
			Version:     c.cfg.ChartVersion,
			ReuseValues: true,
			Set:         tagValues(c.cfg.TagKeys, version, role),
			Timeout:     c.cfg.Timeout,
		})
		if err != nil {
			c.logEvents(ctx)
			return fmt.Errorf("failed to upgrade release %s: %w", u.name, err)
		}
	}

	// the old pods are gone, so their tunnels are dead
	return c.startTunnels(ctx, c.specsFor(role))
}

func (c *Cluster) roles() []types.Role {
	var roles []types.Role
	for _, role := range []types.Role{types.RoleControlPlane, types.RoleDataPlane} {
		for _, u := range c.units {
			if u.has(role) {
				roles = append(roles, role)
				break
			}
		}
	}
	return roles
}

func (c *Cluster) logEvents(ctx context.Context) {
	events, err := c.Kube.Events(ctx, c.cfg.Namespace, 20)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Failed to fetch events")
		return
	}
	c.logger.Warn().Str("namespace", c.cfg.Namespace).Msg("Recent events:\n" + events)
}
