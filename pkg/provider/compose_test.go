package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/compose"
	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const composeYAML = `
services:
  mongodb:
    image: mongo:6
  management_api:
    image: graviteeio/am-management-api:${AM_VERSION}
  management_ui:
    image: graviteeio/am-management-ui:${AM_VERSION}
  gateway:
    image: graviteeio/am-gateway:${AM_VERSION}
`

func testComposeConfig(t *testing.T) config.ComposeConfig {
	t.Helper()
	file := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(file, []byte(composeYAML), 0644))

	return config.ComposeConfig{
		File:            file,
		Project:         "am-upgrade",
		VersionEnv:      "AM_VERSION",
		APIServices:     []string{"management_api", "management_ui"},
		GatewayServices: []string{"gateway"},
		SettleDelay:     time.Second,
		HealthTimeout:   time.Second,
		HealthInterval:  10 * time.Millisecond,
		URLs: config.ComposeURLs{
			Management: "http://localhost:8083",
			Gateway:    "http://localhost:8082",
		},
	}
}

func running(services ...string) []compose.ServiceState {
	var states []compose.ServiceState
	for _, s := range services {
		states = append(states, compose.ServiceState{Name: "am-" + s + "-1", Service: s, State: "running", Health: "healthy"})
	}
	return states
}

func newTestCompose(t *testing.T) (*Compose, *fakeComposeCLI, *fakeVersions, *[]time.Duration) {
	t.Helper()
	rec := newRecorder()
	cli := &fakeComposeCLI{rec: rec, states: running("management_api", "management_ui", "gateway")}
	versions := &fakeVersions{rec: rec, missing: map[string]bool{}}

	c, err := NewCompose(cli, versions, testComposeConfig(t), testImages())
	require.NoError(t, err)

	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, cli, versions, &slept
}

func TestNewCompose_RejectsUndeclaredService(t *testing.T) {
	cfg := testComposeConfig(t)
	cfg.GatewayServices = []string{"gateway", "gateway_2"}

	_, err := NewCompose(&fakeComposeCLI{rec: newRecorder()}, &fakeVersions{rec: newRecorder()}, cfg, testImages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway_2")
}

func TestCompose_Deploy(t *testing.T) {
	c, cli, _, slept := newTestCompose(t)

	require.NoError(t, c.Deploy(context.Background(), "4.4.0"))

	assert.Equal(t, []string{"up AM_VERSION=4.4.0 "}, cli.rec.with("up"))
	assert.Equal(t, []string{"validate 4.4.0 am-gateway,am-management-api,am-management-ui"}, cli.rec.with("validate"))
	assert.Equal(t, []string{"ps management_api,management_ui,gateway"}, cli.rec.with("ps"))
	assert.Empty(t, *slept)
}

func TestCompose_UpgradeAPIRecreatesOnlyAPIServices(t *testing.T) {
	c, cli, _, slept := newTestCompose(t)

	require.NoError(t, c.UpgradeAPI(context.Background(), "4.5.0"))

	assert.Equal(t, []string{"up AM_VERSION=4.5.0 management_api,management_ui"}, cli.rec.with("up"))
	assert.Equal(t, []string{"validate 4.5.0 am-management-api,am-management-ui"}, cli.rec.with("validate"))
	assert.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestCompose_UpgradeGateway(t *testing.T) {
	c, cli, _, _ := newTestCompose(t)

	require.NoError(t, c.UpgradeGateway(context.Background(), "4.5.0"))

	assert.Equal(t, []string{"up AM_VERSION=4.5.0 gateway"}, cli.rec.with("up"))
	assert.Equal(t, []string{"ps gateway"}, cli.rec.with("ps"))
}

func TestCompose_UnknownVersionStartsNothing(t *testing.T) {
	c, cli, versions, _ := newTestCompose(t)
	versions.missing["9.9.9"] = true

	require.Error(t, c.UpgradeGateway(context.Background(), "9.9.9"))
	assert.Empty(t, cli.rec.with("up"))
}

func TestCompose_WaitsUntilHealthy(t *testing.T) {
	c, cli, _, _ := newTestCompose(t)
	cli.states = []compose.ServiceState{{Service: "gateway", State: "running", Health: "starting"}}

	err := c.UpgradeGateway(context.Background(), "4.5.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service gateway is starting")
	assert.Greater(t, len(cli.rec.with("ps")), 1)
}

func TestCompose_Clean(t *testing.T) {
	c, cli, _, _ := newTestCompose(t)

	require.NoError(t, c.Clean(context.Background()))
	assert.Equal(t, []string{"down"}, cli.rec.calls)
}

func TestCompose_TestEnvSkipsEmptyURLs(t *testing.T) {
	c, _, _, _ := newTestCompose(t)

	assert.Equal(t, map[string]string{
		EnvManagementURL: "http://localhost:8083",
		EnvGatewayURL:    "http://localhost:8082",
	}, c.TestEnv())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
