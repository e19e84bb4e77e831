package provider

import (
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/cluster"
	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/compose"
	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/database"
	"github.com/cuemby/upgrade-harness/pkg/helm"
	"github.com/cuemby/upgrade-harness/pkg/kubectl"
	"github.com/cuemby/upgrade-harness/pkg/state"
	"github.com/cuemby/upgrade-harness/pkg/tunnel"
	"github.com/cuemby/upgrade-harness/pkg/types"
)

// Deps are the collaborators shared by every backend
type Deps struct {
	Config   *config.Config
	Runner   command.Runner
	Versions VersionChecker
	License  LicenseSource
	DBType   types.DBType
	// Store records tunnel pids; nil keeps them in memory
	Store state.Store
}

// New builds the provider for kind
func New(kind types.ProviderKind, d Deps) (Provider, error) {
	switch kind {
	case types.ProviderCompose:
		cli := compose.NewClient(d.Runner, d.Config.Compose.File, d.Config.Compose.Project)
		return NewCompose(cli, d.Versions, d.Config.Compose, d.Config.Registry.Images)
	case types.ProviderCluster:
		return newClusterFromConfig(d)
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: %s, %s)", kind, types.ProviderCompose, types.ProviderCluster)
	}
}

func newClusterFromConfig(d Deps) (*Cluster, error) {
	cfg := d.Config.Cluster
	target := &types.KubeTarget{Context: cfg.Context}

	charts := helm.NewClient(d.Runner, target)
	kube := kubectl.NewClient(d.Runner, target)

	db, err := database.New(d.DBType, d.Config.Database, database.Deps{
		Charts:    charts,
		Pods:      kube,
		Namespace: cfg.Namespace,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	kind := cluster.NewKind(d.Runner, kube, target, cluster.Options{
		Name:          cfg.Name,
		Context:       cfg.Context,
		Image:         cfg.KindImage,
		ReadyAttempts: cfg.ReadyAttempts,
		ReadyInterval: cfg.ReadyInterval,
	})

	fwd := tunnel.NewKubectlForwarder(d.Runner, target, cfg.Namespace)

	return NewCluster(cfg, d.Config.Registry.Images, ClusterDeps{
		Charts:    charts,
		Kube:      kube,
		Bootstrap: kind,
		DB:        db,
		Versions:  d.Versions,
		License:   d.License,
		Tunnels:   tunnel.NewTable(fwd, d.Store),
		Ports:     fwd,
	}), nil
}
