package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/license"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/metrics"
	"github.com/cuemby/upgrade-harness/pkg/orchestrator"
	"github.com/cuemby/upgrade-harness/pkg/provider"
	"github.com/cuemby/upgrade-harness/pkg/state"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/cuemby/upgrade-harness/pkg/verify"
	"github.com/cuemby/upgrade-harness/pkg/version"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const dotEnvFile = ".env"

// app holds what every command needs: configuration, a run id and a runner
type app struct {
	cfg    *config.Config
	runID  string
	runner command.Runner
}

func newApp(cmd *cobra.Command) (*app, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log.WithRunID(runID)

	return &app{
		cfg:    cfg,
		runID:  runID,
		runner: command.NewExecRunner(),
	}, nil
}

// loadDotEnv exports path into the process environment; a missing file is fine
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Logger.Debug().Str("file", path).Msg("Loaded environment file")
	return nil
}

func (a *app) run(ctx context.Context, opts types.Options, stages []types.Stage, ro orchestrator.RunOptions) error {
	if forward, ok := opts.IsForwardUpgrade(); ok && !forward {
		log.Logger.Warn().Str("from", opts.FromTag).Str("to", opts.ToTag).Msg("from-tag is not older than to-tag")
	}

	var store state.Store
	if opts.Provider == types.ProviderCluster {
		bolt, err := state.Open(a.cfg.Cluster.StateFile)
		if err != nil {
			return err
		}
		defer bolt.Close()
		store = bolt
	}

	p, err := provider.New(opts.Provider, provider.Deps{
		Config:   a.cfg,
		Runner:   a.runner,
		Versions: a.versionValidator(),
		License:  license.NewResolver(a.cfg.License.File),
		DBType:   opts.DBType,
		Store:    store,
	})
	if err != nil {
		return err
	}

	verifier := verify.NewCommandVerifier(a.runner, a.cfg.Verify)
	err = orchestrator.New(p, verifier, opts).Run(ctx, stages, ro)

	a.pushMetrics(ctx)
	return err
}

func (a *app) versionValidator() *version.Validator {
	r := a.cfg.Registry
	return version.NewValidator(version.Options{
		BaseURL:    r.URL,
		Namespace:  r.Namespace,
		RetryCount: r.RetryCount,
		Timeout:    r.Timeout,
	})
}

func (a *app) pushMetrics(ctx context.Context) {
	m := a.cfg.Metrics
	if m.Pushgateway == "" {
		return
	}
	if err := metrics.Push(context.WithoutCancel(ctx), m.Pushgateway, m.Job, a.runID); err != nil {
		log.Logger.Warn().Err(err).Str("pushgateway", m.Pushgateway).Msg("Failed to push metrics")
	}
}
