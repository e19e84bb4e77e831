package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/compose"
	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/health"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/rs/zerolog"
)

// ComposeCLI is the subset of compose.Client the backend uses
type ComposeCLI interface {
	Up(ctx context.Context, env []string, services ...string) error
	Down(ctx context.Context) error
	PS(ctx context.Context, services ...string) ([]compose.ServiceState, error)
}

// Compose runs the product with docker compose
type Compose struct {
	cli      ComposeCLI
	versions VersionChecker
	cfg      config.ComposeConfig
	images   config.ImagesConfig
	waiter   *health.Waiter
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewCompose creates the compose backend. Every configured service must be
// declared in the compose file.
func NewCompose(cli ComposeCLI, versions VersionChecker, cfg config.ComposeConfig, images config.ImagesConfig) (*Compose, error) {
	declared, err := compose.ParseServices(cfg.File)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(declared))
	for _, s := range declared {
		known[s] = true
	}
	for _, s := range append(append([]string{}, cfg.APIServices...), cfg.GatewayServices...) {
		if !known[s] {
			return nil, fmt.Errorf("service %q is not declared in %s", s, cfg.File)
		}
	}

	return &Compose{
		cli:      cli,
		versions: versions,
		cfg:      cfg,
		images:   images,
		waiter:   health.NewWaiter(cfg.HealthTimeout, cfg.HealthInterval),
		sleep:    sleepContext,
		logger:   log.WithComponent("provider").With().Str("provider", "compose").Logger(),
	}, nil
}

func (c *Compose) Name() string {
	return "compose"
}

func (c *Compose) Clean(ctx context.Context) error {
	c.logger.Info().Msg("Removing compose project")
	return c.cli.Down(ctx)
}

func (c *Compose) Deploy(ctx context.Context, version string) error {
	if err := c.versions.ValidateAll(ctx, version, c.images.API, c.images.Gateway, c.images.UI); err != nil {
		return err
	}

	c.logger.Info().Str("version", version).Msg("Starting compose project")
	if err := c.cli.Up(ctx, c.env(version)); err != nil {
		return err
	}
	return c.waitHealthy(ctx, c.allServices())
}

func (c *Compose) UpgradeAPI(ctx context.Context, version string) error {
	if err := c.versions.ValidateAll(ctx, version, c.images.API, c.images.UI); err != nil {
		return err
	}
	return c.recreate(ctx, version, c.cfg.APIServices)
}

func (c *Compose) UpgradeGateway(ctx context.Context, version string) error {
	if err := c.versions.ValidateAll(ctx, version, c.images.Gateway); err != nil {
		return err
	}
	return c.recreate(ctx, version, c.cfg.GatewayServices)
}

// PrepareTests waits for the management endpoint to answer
func (c *Compose) PrepareTests(ctx context.Context) error {
	if c.cfg.URLs.Management == "" {
		return nil
	}
	return c.waiter.WaitFor(ctx, health.NewHTTPChecker(c.cfg.URLs.Management), "management API")
}

func (c *Compose) TestEnv() map[string]string {
	env := make(map[string]string)
	for key, url := range map[string]string{
		EnvManagementURL: c.cfg.URLs.Management,
		EnvUIURL:         c.cfg.URLs.UI,
		EnvGatewayURL:    c.cfg.URLs.Gateway,
		EnvGateway2URL:   c.cfg.URLs.Gateway2,
	} {
		if url != "" {
			env[key] = url
		}
	}
	return env
}

func (c *Compose) recreate(ctx context.Context, version string, services []string) error {
	c.logger.Info().Str("version", version).Strs("services", services).Msg("Recreating services")
	if err := c.cli.Up(ctx, c.env(version), services...); err != nil {
		return err
	}

	// containers report running before the old ones are fully replaced
	if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	return c.waitHealthy(ctx, services)
}

func (c *Compose) waitHealthy(ctx context.Context, services []string) error {
	checker := health.CheckerFunc(func(ctx context.Context) health.Result {
		start := time.Now()
		states, err := c.cli.PS(ctx, services...)
		if err != nil {
			return health.Unhealthy(start, err.Error())
		}
		if ok, msg := compose.Healthy(states, services); !ok {
			return health.Unhealthy(start, msg)
		}
		return health.Healthy(start, "all services healthy")
	})
	return c.waiter.WaitFor(ctx, checker, fmt.Sprintf("services %v", services))
}

func (c *Compose) env(version string) []string {
	return []string{c.cfg.VersionEnv + "=" + version}
}

func (c *Compose) allServices() []string {
	return append(append([]string{}, c.cfg.APIServices...), c.cfg.GatewayServices...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
