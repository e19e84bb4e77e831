// Package database provisions the datastore the product depends on.
//
// Mongo and Postgres differ only in chart source, release name, readiness
// selector and the values that wire the product to them. Every operation is
// idempotent with respect to the installed state.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/helm"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
)

// Strategy deploys, awaits and removes a datastore
type Strategy interface {
	Name() string
	Deploy(ctx context.Context) error
	Clean(ctx context.Context) error
	WaitForReady(ctx context.Context) error

	// Repository is the chart repository that must be registered before Deploy
	Repository() helm.Repository
	// ProductValues are the --set pairs pointing the product at this store
	ProductValues() map[string]string
}

// ChartInstaller is the subset of helm.Client a strategy uses
type ChartInstaller interface {
	InstallOrUpgrade(ctx context.Context, release, chart string, opts helm.InstallOptions) error
	Uninstall(ctx context.Context, release, namespace string) error
}

// PodWaiter is the subset of kubectl.Client a strategy uses
type PodWaiter interface {
	WaitForPods(ctx context.Context, namespace, selector string, timeout time.Duration) error
}

// Deps are shared by every strategy
type Deps struct {
	Charts    ChartInstaller
	Pods      PodWaiter
	Namespace string
	Timeout   time.Duration
}

// New returns the strategy for kind
func New(kind types.DBType, cfg config.DatabaseConfig, deps Deps) (Strategy, error) {
	switch kind {
	case types.DBMongo:
		return NewMongo(cfg.Mongo, deps)
	case types.DBPostgres:
		return NewPostgres(cfg.Postgres, deps)
	default:
		return nil, fmt.Errorf("unknown database type %q", kind)
	}
}

// chartStrategy is the shared chart-backed implementation
type chartStrategy struct {
	name          string
	chart         config.ChartConfig
	values        map[string]string
	productValues map[string]string
	deps          Deps
	logger        zerolog.Logger
}

func newChartStrategy(name string, chart config.ChartConfig, deps Deps) (*chartStrategy, error) {
	values, err := config.ParseSetValues(chart.Values)
	if err != nil {
		return nil, fmt.Errorf("%s values: %w", name, err)
	}
	productValues, err := config.ParseSetValues(chart.ProductValues)
	if err != nil {
		return nil, fmt.Errorf("%s product values: %w", name, err)
	}
	if deps.Timeout == 0 {
		deps.Timeout = 5 * time.Minute
	}

	return &chartStrategy{
		name:          name,
		chart:         chart,
		values:        values,
		productValues: productValues,
		deps:          deps,
		logger:        log.WithComponent("database").With().Str("db", name).Logger(),
	}, nil
}

func (s *chartStrategy) Name() string {
	return s.name
}

func (s *chartStrategy) Deploy(ctx context.Context) error {
	s.logger.Info().Str("release", s.chart.Release).Str("chart", s.chart.Chart).Msg("Deploying datastore")

	err := s.deps.Charts.InstallOrUpgrade(ctx, s.chart.Release, s.chart.Chart, helm.InstallOptions{
		Namespace:       s.deps.Namespace,
		CreateNamespace: true,
		Version:         s.chart.Version,
		Set:             s.values,
		Wait:            true,
		Timeout:         s.deps.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to deploy %s: %w", s.name, err)
	}
	return nil
}

func (s *chartStrategy) Clean(ctx context.Context) error {
	if err := s.deps.Charts.Uninstall(ctx, s.chart.Release, s.deps.Namespace); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.name, err)
	}
	return nil
}

func (s *chartStrategy) WaitForReady(ctx context.Context) error {
	if err := s.deps.Pods.WaitForPods(ctx, s.deps.Namespace, s.chart.Selector, s.deps.Timeout); err != nil {
		return fmt.Errorf("%s not ready: %w", s.name, err)
	}
	s.logger.Info().Msg("Datastore ready")
	return nil
}

func (s *chartStrategy) Repository() helm.Repository {
	return helm.Repository{Name: s.chart.Repository.Name, URL: s.chart.Repository.URL}
}

func (s *chartStrategy) ProductValues() map[string]string {
	out := make(map[string]string, len(s.productValues))
	for k, v := range s.productValues {
		out[k] = v
	}
	return out
}
