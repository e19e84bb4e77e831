package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/provider"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/cuemby/upgrade-harness/pkg/verify"
)

var (
	allSuites        = []types.Suite{types.SuiteManagement, types.SuiteGateway}
	managementSuites = []types.Suite{types.SuiteManagement}
)

// stageSuites maps each verification stage to the suites it runs
var stageSuites = map[types.Stage][]types.Suite{
	types.StageVerifyBaseline:          allSuites,
	types.StageVerifyAPI:               managementSuites,
	types.StageVerifyAll:               allSuites,
	types.StageVerifyAfterDowngradeAPI: managementSuites,
	types.StageVerifyAfterDowngrade:    allSuites,
}

// handler resolves the single operation a stage runs
func (o *Orchestrator) handler(stage types.Stage) (stageFunc, error) {
	p := o.provider

	switch stage {
	case types.StageClean:
		return p.Clean, nil
	case types.StageClusterSetup:
		return o.setup, nil
	case types.StageDeployFrom:
		return withVersion(p.Deploy, o.opts.FromTag), nil
	case types.StageUpgradeAPI:
		return withVersion(p.UpgradeAPI, o.opts.ToTag), nil
	case types.StageUpgradeGateway:
		return withVersion(p.UpgradeGateway, o.opts.ToTag), nil
	case types.StageDowngradeAPI:
		return withVersion(p.UpgradeAPI, o.opts.FromTag), nil
	case types.StageDowngradeGateway:
		return withVersion(p.UpgradeGateway, o.opts.FromTag), nil
	}

	if suites, ok := stageSuites[stage]; ok {
		return func(ctx context.Context) error { return o.verify(ctx, suites) }, nil
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

func withVersion(fn func(context.Context, string) error, version string) stageFunc {
	return func(ctx context.Context) error {
		return fn(ctx, version)
	}
}

func (o *Orchestrator) setup(ctx context.Context) error {
	s, ok := o.provider.(provider.Setuper)
	if !ok {
		o.logger.Info().Str("provider", o.provider.Name()).Msg("Provider needs no setup, skipping")
		return nil
	}
	return s.Setup(ctx)
}

func (o *Orchestrator) verify(ctx context.Context, suites []types.Suite) error {
	if tp, ok := o.provider.(provider.TestPreparer); ok {
		if err := tp.PrepareTests(ctx); err != nil {
			return fmt.Errorf("failed to prepare tests: %w", err)
		}
	}

	var env map[string]string
	if ep, ok := o.provider.(provider.TestEnvProvider); ok {
		env = ep.TestEnv()
	}

	return o.verifier.Verify(ctx, verify.Request{
		Suites: suites,
		Filter: o.opts.TestFilter,
		Dir:    o.opts.TestDir,
		Env:    env,
	})
}
