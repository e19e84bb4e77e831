package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline(t *testing.T) {
	assert.Equal(t, []Stage{
		StageClean,
		StageClusterSetup,
		StageDeployFrom,
		StageVerifyBaseline,
		StageUpgradeAPI,
		StageVerifyAPI,
		StageUpgradeGateway,
		StageVerifyAll,
	}, Pipeline(false))

	withDowngrade := Pipeline(true)
	require.Len(t, withDowngrade, 12)
	assert.Equal(t, []Stage{
		StageDowngradeAPI,
		StageVerifyAfterDowngradeAPI,
		StageDowngradeGateway,
		StageVerifyAfterDowngrade,
	}, withDowngrade[8:])
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("upgrade-gateway")
	require.NoError(t, err)
	assert.Equal(t, StageUpgradeGateway, st)

	aliases := map[string]Stage{
		"upgrade-component-A":      StageUpgradeAPI,
		"verify-A":                 StageVerifyAPI,
		"upgrade-component-B":      StageUpgradeGateway,
		"downgrade-component-A":    StageDowngradeAPI,
		"verify-after-downgrade-A": StageVerifyAfterDowngradeAPI,
		"downgrade-component-B":    StageDowngradeGateway,
	}
	for name, want := range aliases {
		st, err := ParseStage(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, st, name)
	}

	_, err = ParseStage("upgrade-everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "upgrade-everything"`)
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{
		FromTag:  "4.10.0",
		ToTag:    "4.11.0",
		DBType:   DBMongo,
		Provider: ProviderCluster,
		TestDir:  "./tests",
	}

	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{name: "valid", mutate: func(o *Options) {}},
		{name: "missing from tag", mutate: func(o *Options) { o.FromTag = "" }, wantErr: true},
		{name: "unknown database", mutate: func(o *Options) { o.DBType = "mysql" }, wantErr: true},
		{name: "unknown provider", mutate: func(o *Options) { o.Provider = "nomad" }, wantErr: true},
		{name: "known single stage", mutate: func(o *Options) { o.Stage = StageVerifyAll }},
		{name: "unknown single stage", mutate: func(o *Options) { o.Stage = "deploy-to" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptionsStages(t *testing.T) {
	o := Options{WithDowngrade: true}
	assert.Len(t, o.Stages(), 12)

	o.Stage = StageDeployFrom
	assert.Equal(t, []Stage{StageDeployFrom}, o.Stages())

	o.Stage = "upgrade-component-B"
	assert.Equal(t, []Stage{StageUpgradeGateway}, o.Stages())
}

func TestIsForwardUpgrade(t *testing.T) {
	forward, ok := Options{FromTag: "4.10.0", ToTag: "4.11.2"}.IsForwardUpgrade()
	assert.True(t, ok)
	assert.True(t, forward)

	forward, ok = Options{FromTag: "4.11.0", ToTag: "4.10.0"}.IsForwardUpgrade()
	assert.True(t, ok)
	assert.False(t, forward)

	_, ok = Options{FromTag: "latest", ToTag: "4.10.0"}.IsForwardUpgrade()
	assert.False(t, ok)
}

func TestKubeTargetFlags(t *testing.T) {
	var nilTarget *KubeTarget
	assert.Nil(t, nilTarget.KubectlFlags())

	target := &KubeTarget{Kubeconfig: "/tmp/kc", Context: "kind-upgrade"}
	assert.Equal(t, []string{"--kubeconfig", "/tmp/kc", "--context", "kind-upgrade"}, target.KubectlFlags())
	assert.Equal(t, []string{"--kubeconfig", "/tmp/kc", "--kube-context", "kind-upgrade"}, target.HelmFlags())
}
