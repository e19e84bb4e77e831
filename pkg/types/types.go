package types

import (
	"fmt"
	"strings"
)

// Stage is one named step of the upgrade pipeline
type Stage string

const (
	StageClean                   Stage = "clean"
	StageClusterSetup            Stage = "cluster-setup"
	StageDeployFrom              Stage = "deploy-from"
	StageVerifyBaseline          Stage = "verify-baseline"
	StageUpgradeAPI              Stage = "upgrade-api"
	StageVerifyAPI               Stage = "verify-api"
	StageUpgradeGateway          Stage = "upgrade-gateway"
	StageVerifyAll               Stage = "verify-all"
	StageDowngradeAPI            Stage = "downgrade-api"
	StageVerifyAfterDowngradeAPI Stage = "verify-after-downgrade-api"
	StageDowngradeGateway        Stage = "downgrade-gateway"
	StageVerifyAfterDowngrade    Stage = "verify-after-downgrade"
)

var (
	upgradeStages = []Stage{
		StageClean,
		StageClusterSetup,
		StageDeployFrom,
		StageVerifyBaseline,
		StageUpgradeAPI,
		StageVerifyAPI,
		StageUpgradeGateway,
		StageVerifyAll,
	}

	downgradeStages = []Stage{
		StageDowngradeAPI,
		StageVerifyAfterDowngradeAPI,
		StageDowngradeGateway,
		StageVerifyAfterDowngrade,
	}
)

// Pipeline returns the full ordered stage list for a run
func Pipeline(withDowngrade bool) []Stage {
	stages := make([]Stage, 0, len(upgradeStages)+len(downgradeStages))
	stages = append(stages, upgradeStages...)
	if withDowngrade {
		stages = append(stages, downgradeStages...)
	}
	return stages
}

// AllStages returns every stage name the pipeline knows about
func AllStages() []Stage {
	return Pipeline(true)
}

// stageAliases maps the component-neutral stage vocabulary onto stage names.
// Component A is the management API, component B the gateway.
var stageAliases = map[string]Stage{
	"upgrade-component-A":      StageUpgradeAPI,
	"verify-A":                 StageVerifyAPI,
	"upgrade-component-B":      StageUpgradeGateway,
	"downgrade-component-A":    StageDowngradeAPI,
	"verify-after-downgrade-A": StageVerifyAfterDowngradeAPI,
	"downgrade-component-B":    StageDowngradeGateway,
}

// ParseStage validates a stage name. Component-neutral aliases are accepted.
func ParseStage(s string) (Stage, error) {
	for _, st := range AllStages() {
		if string(st) == s {
			return st, nil
		}
	}
	if st, ok := stageAliases[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown stage %q (valid: %s)", s, joinStages(AllStages()))
}

func joinStages(stages []Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// Role is the component role a release plays
type Role string

const (
	RoleControlPlane Role = "control-plane"
	RoleDataPlane    Role = "data-plane"
)

// Release is one independently deployable unit under the cluster backend
type Release struct {
	Name        string
	ValuesFiles []string
	Role        Role
}

// Suite names a verification test suite
type Suite string

const (
	SuiteManagement Suite = "management"
	SuiteGateway    Suite = "gateway"
)

// DBType selects the datastore strategy
type DBType string

const (
	DBMongo    DBType = "mongo"
	DBPostgres DBType = "postgres"
)

// ProviderKind selects the infrastructure backend
type ProviderKind string

const (
	ProviderCompose ProviderKind = "compose"
	ProviderCluster ProviderKind = "cluster"
)

// KubeTarget identifies the cluster every kube-facing wrapper talks to.
// It is shared by pointer so that a freshly bootstrapped cluster is picked up
// by all wrappers at once.
type KubeTarget struct {
	Kubeconfig string
	Context    string
}

// KubectlFlags renders the target as kubectl global flags
func (t *KubeTarget) KubectlFlags() []string {
	if t == nil {
		return nil
	}
	var flags []string
	if t.Kubeconfig != "" {
		flags = append(flags, "--kubeconfig", t.Kubeconfig)
	}
	if t.Context != "" {
		flags = append(flags, "--context", t.Context)
	}
	return flags
}

// HelmFlags renders the target as helm global flags
func (t *KubeTarget) HelmFlags() []string {
	if t == nil {
		return nil
	}
	var flags []string
	if t.Kubeconfig != "" {
		flags = append(flags, "--kubeconfig", t.Kubeconfig)
	}
	if t.Context != "" {
		flags = append(flags, "--kube-context", t.Context)
	}
	return flags
}
