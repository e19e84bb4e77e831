package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/cuemby/upgrade-harness/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coreProvider implements only the required operations
type coreProvider struct {
	calls []string
	fail  map[string]error
}

func (p *coreProvider) call(name string) error {
	p.calls = append(p.calls, name)
	return p.fail[name]
}

func (p *coreProvider) Name() string { return "fake" }

func (p *coreProvider) Clean(ctx context.Context) error { return p.call("clean") }

func (p *coreProvider) Deploy(ctx context.Context, version string) error {
	return p.call("deploy " + version)
}

func (p *coreProvider) UpgradeAPI(ctx context.Context, version string) error {
	return p.call("upgrade-api " + version)
}

func (p *coreProvider) UpgradeGateway(ctx context.Context, version string) error {
	return p.call("upgrade-gateway " + version)
}

// fullProvider adds every optional capability
type fullProvider struct {
	coreProvider
	cleanupCtxErr error
}

func (p *fullProvider) Setup(ctx context.Context) error        { return p.call("setup") }
func (p *fullProvider) PrepareTests(ctx context.Context) error { return p.call("prepare") }

func (p *fullProvider) Cleanup(ctx context.Context) error {
	p.cleanupCtxErr = ctx.Err()
	return p.call("cleanup")
}

func (p *fullProvider) TestEnv() map[string]string {
	return map[string]string{"MANAGEMENT_URL": "http://localhost:8083"}
}

type fakeVerifier struct {
	requests []verify.Request
	err      error
}

func (v *fakeVerifier) Verify(ctx context.Context, req verify.Request) error {
	v.requests = append(v.requests, req)
	return v.err
}

func testOptions() types.Options {
	return types.Options{
		FromTag:    "4.10.0",
		ToTag:      "4.11.0",
		DBType:     types.DBMongo,
		Provider:   types.ProviderCluster,
		TestFilter: "apis",
		TestDir:    "tests",
	}
}

func newFull() *fullProvider {
	return &fullProvider{coreProvider: coreProvider{fail: map[string]error{}}}
}

func count(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestRun_CleanThenDeploy(t *testing.T) {
	p := newFull()
	o := New(p, &fakeVerifier{}, testOptions())

	err := o.Run(context.Background(), []types.Stage{types.StageClean, types.StageDeployFrom}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"clean", "deploy 4.10.0", "cleanup"}, p.calls)
}

func TestRun_FullPipelineVersions(t *testing.T) {
	p := newFull()
	v := &fakeVerifier{}
	o := New(p, v, testOptions())

	require.NoError(t, o.Run(context.Background(), types.Pipeline(true), RunOptions{}))

	assert.Equal(t, []string{
		"clean",
		"setup",
		"deploy 4.10.0",
		"prepare",
		"upgrade-api 4.11.0",
		"prepare",
		"upgrade-gateway 4.11.0",
		"prepare",
		"upgrade-api 4.10.0",
		"prepare",
		"upgrade-gateway 4.10.0",
		"prepare",
		"cleanup",
	}, p.calls)
	assert.Len(t, v.requests, 5)
}

func TestRun_SuiteMapping(t *testing.T) {
	tests := []struct {
		stage types.Stage
		want  []types.Suite
	}{
		{types.StageVerifyBaseline, []types.Suite{types.SuiteManagement, types.SuiteGateway}},
		{types.StageVerifyAPI, []types.Suite{types.SuiteManagement}},
		{types.StageVerifyAll, []types.Suite{types.SuiteManagement, types.SuiteGateway}},
		{types.StageVerifyAfterDowngradeAPI, []types.Suite{types.SuiteManagement}},
		{types.StageVerifyAfterDowngrade, []types.Suite{types.SuiteManagement, types.SuiteGateway}},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			v := &fakeVerifier{}
			o := New(newFull(), v, testOptions())

			require.NoError(t, o.Run(context.Background(), []types.Stage{tt.stage}, RunOptions{}))
			require.Len(t, v.requests, 1)
			req := v.requests[0]
			assert.Equal(t, tt.want, req.Suites)
			assert.Equal(t, "apis", req.Filter)
			assert.Equal(t, "tests", req.Dir)
			assert.Equal(t, "http://localhost:8083", req.Env["MANAGEMENT_URL"])
		})
	}
}

func TestRun_FailureAbortsAndStillCleansUp(t *testing.T) {
	p := newFull()
	p.fail["clean"] = errors.New("helm unreachable")
	o := New(p, &fakeVerifier{}, testOptions())

	err := o.Run(context.Background(), []types.Stage{types.StageClean, types.StageDeployFrom}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage clean failed")
	assert.Contains(t, err.Error(), "helm unreachable")

	assert.Equal(t, []string{"clean", "cleanup"}, p.calls)
}

func TestRun_VerifyFailureAborts(t *testing.T) {
	p := newFull()
	v := &fakeVerifier{err: fmt.Errorf("management suite failed: exit 1")}
	o := New(p, v, testOptions())

	err := o.Run(context.Background(), []types.Stage{types.StageVerifyBaseline, types.StageUpgradeAPI}, RunOptions{})
	require.ErrorIs(t, err, v.err)
	assert.Zero(t, count(p.calls, "upgrade-api 4.11.0"))
	assert.Equal(t, 1, count(p.calls, "cleanup"))
}

func TestRun_PrepareFailureSkipsVerifier(t *testing.T) {
	p := newFull()
	p.fail["prepare"] = errors.New("tunnel down")
	v := &fakeVerifier{}
	o := New(p, v, testOptions())

	err := o.Run(context.Background(), []types.Stage{types.StageVerifyAll}, RunOptions{})
	require.Error(t, err)
	assert.Empty(t, v.requests)
}

func TestRun_SkipCleanup(t *testing.T) {
	for _, failing := range []bool{false, true} {
		p := newFull()
		if failing {
			p.fail["deploy 4.10.0"] = errors.New("install failed")
		}
		o := New(p, &fakeVerifier{}, testOptions())

		err := o.Run(context.Background(), []types.Stage{types.StageDeployFrom}, RunOptions{SkipCleanup: true})
		assert.Equal(t, failing, err != nil)
		assert.Zero(t, count(p.calls, "cleanup"))
	}
}

func TestRun_UnknownStage(t *testing.T) {
	p := newFull()
	o := New(p, &fakeVerifier{}, testOptions())

	err := o.Run(context.Background(), []types.Stage{types.StageClean, "rollback"}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")

	assert.Equal(t, []string{"cleanup"}, p.calls)
}

func TestRun_CleanupErrorReturnedOnlyOnSuccess(t *testing.T) {
	p := newFull()
	p.fail["cleanup"] = errors.New("tunnel stop failed")
	o := New(p, &fakeVerifier{}, testOptions())

	err := o.Run(context.Background(), []types.Stage{types.StageClean}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup failed")

	p = newFull()
	p.fail["cleanup"] = errors.New("tunnel stop failed")
	p.fail["clean"] = errors.New("uninstall failed")
	o = New(p, &fakeVerifier{}, testOptions())

	err = o.Run(context.Background(), []types.Stage{types.StageClean}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uninstall failed")
	assert.NotContains(t, err.Error(), "tunnel stop failed")
}

func TestRun_CleanupSurvivesCancellation(t *testing.T) {
	p := newFull()
	ctx, cancel := context.WithCancel(context.Background())
	p.fail["deploy 4.10.0"] = context.Canceled
	cancel()

	o := New(p, &fakeVerifier{}, testOptions())
	err := o.Run(ctx, []types.Stage{types.StageDeployFrom}, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, count(p.calls, "cleanup"))
	assert.NoError(t, p.cleanupCtxErr)
}

func TestRun_CoreProviderSkipsOptionalCapabilities(t *testing.T) {
	p := &coreProvider{fail: map[string]error{}}
	v := &fakeVerifier{}
	o := New(p, v, testOptions())

	stages := []types.Stage{types.StageClean, types.StageClusterSetup, types.StageDeployFrom, types.StageVerifyBaseline}
	require.NoError(t, o.Run(context.Background(), stages, RunOptions{}))

	assert.Equal(t, []string{"clean", "deploy 4.10.0"}, p.calls)
	require.Len(t, v.requests, 1)
	assert.Nil(t, v.requests[0].Env)
}
