// Package orchestrator executes an ordered list of stages against a
// provider and guarantees that the provider's resources are released.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/metrics"
	"github.com/cuemby/upgrade-harness/pkg/provider"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/cuemby/upgrade-harness/pkg/verify"
	"github.com/rs/zerolog"
)

// RunOptions control a single Run
type RunOptions struct {
	// SkipCleanup leaves infrastructure running, for manual testing
	SkipCleanup bool
}

type stageFunc func(ctx context.Context) error

// Orchestrator dispatches stages to a provider and a verifier
type Orchestrator struct {
	provider provider.Provider
	verifier verify.Verifier
	opts     types.Options
	logger   zerolog.Logger
}

// New creates an Orchestrator. opts must already be validated.
func New(p provider.Provider, v verify.Verifier, opts types.Options) *Orchestrator {
	return &Orchestrator{
		provider: p,
		verifier: v,
		opts:     opts,
		logger:   log.WithComponent("orchestrator"),
	}
}

// Run executes stages in order. The first failure abandons the remaining
// stages. Unless ro.SkipCleanup is set, the provider's Cleanup runs exactly
// once afterwards, even when ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context, stages []types.Stage, ro RunOptions) (err error) {
	defer func() {
		metrics.RunsTotal.WithLabelValues(o.provider.Name(), metrics.ResultLabel(err)).Inc()
	}()

	if !ro.SkipCleanup {
		defer func() {
			cerr := o.cleanup(context.WithoutCancel(ctx))
			switch {
			case cerr == nil:
			case err != nil:
				o.logger.Warn().Err(cerr).Msg("Cleanup failed after stage failure")
			default:
				err = fmt.Errorf("cleanup failed: %w", cerr)
			}
		}()
	}

	handlers := make([]stageFunc, len(stages))
	for i, stage := range stages {
		h, err := o.handler(stage)
		if err != nil {
			return err
		}
		handlers[i] = h
	}

	o.logger.Info().
		Str("provider", o.provider.Name()).
		Str("from", o.opts.FromTag).
		Str("to", o.opts.ToTag).
		Int("stages", len(stages)).
		Msg("Starting pipeline")

	for i, stage := range stages {
		if err := o.runStage(ctx, i, len(stages), stage, handlers[i]); err != nil {
			return err
		}
	}

	o.logger.Info().Msg("All stages completed")
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, i, n int, stage types.Stage, fn stageFunc) error {
	logger := log.WithStage(string(stage))
	logger.Info().Msgf("[%d/%d] Running stage: %s", i+1, n, stage)

	timer := metrics.NewTimer()
	err := fn(ctx)

	result := metrics.ResultLabel(err)
	timer.ObserveDurationVec(metrics.StageDuration, string(stage), result)
	metrics.StagesTotal.WithLabelValues(string(stage), result).Inc()

	if err != nil {
		logger.Error().Err(err).Dur("duration", timer.Duration()).Msg("Stage failed")
		if out := command.Output(err); out != "" {
			logger.Error().Msg("Command output:\n" + out)
		}
		return fmt.Errorf("stage %s failed: %w", stage, err)
	}

	logger.Info().Dur("duration", timer.Duration()).Msg("Stage completed")
	return nil
}

func (o *Orchestrator) cleanup(ctx context.Context) error {
	c, ok := o.provider.(provider.Cleaner)
	if !ok {
		return nil
	}
	o.logger.Info().Msg("Running cleanup")
	return c.Cleanup(ctx)
}
