package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/upgrade-harness/pkg/compose"
	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/helm"
	"github.com/cuemby/upgrade-harness/pkg/tunnel"
)

// recorder is a call log shared by the fakes so tests can assert ordering
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := fmt.Sprintf(format, args...)
	r.calls = append(r.calls, call)
	for prefix, err := range r.fail {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (r *recorder) with(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) index(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

type installCall struct {
	release string
	chart   string
	opts    helm.InstallOptions
}

type fakeCharts struct {
	rec      *recorder
	installs []installCall
}

func (f *fakeCharts) InstallOrUpgrade(ctx context.Context, release, chart string, opts helm.InstallOptions) error {
	f.installs = append(f.installs, installCall{release, chart, opts})
	return f.rec.record("install %s", release)
}

func (f *fakeCharts) Uninstall(ctx context.Context, release, namespace string) error {
	return f.rec.record("uninstall %s", release)
}

func (f *fakeCharts) AddRepository(ctx context.Context, r helm.Repository) error {
	return f.rec.record("repo add %s", r.Name)
}

type fakeKube struct {
	rec     *recorder
	secrets map[string]map[string]string
}

func (f *fakeKube) EnsureNamespace(ctx context.Context, namespace string) error {
	return f.rec.record("namespace ensure %s", namespace)
}

func (f *fakeKube) DeleteNamespace(ctx context.Context, namespace string) error {
	return f.rec.record("namespace delete %s", namespace)
}

func (f *fakeKube) ApplySecret(ctx context.Context, namespace, name string, data map[string]string) error {
	if f.secrets == nil {
		f.secrets = make(map[string]map[string]string)
	}
	f.secrets[name] = data
	return f.rec.record("secret apply %s", name)
}

func (f *fakeKube) DeleteSecret(ctx context.Context, namespace, name string) error {
	return f.rec.record("secret delete %s", name)
}

func (f *fakeKube) Events(ctx context.Context, namespace string, n int) (string, error) {
	return "LAST SEEN   TYPE", f.rec.record("events")
}

type fakeBootstrap struct{ rec *recorder }

func (f *fakeBootstrap) Ensure(ctx context.Context) error {
	return f.rec.record("cluster ensure")
}

type fakeDB struct{ rec *recorder }

func (f *fakeDB) Name() string                     { return "mongo" }
func (f *fakeDB) Deploy(ctx context.Context) error { return f.rec.record("db deploy") }
func (f *fakeDB) Clean(ctx context.Context) error  { return f.rec.record("db clean") }
func (f *fakeDB) WaitForReady(ctx context.Context) error {
	return f.rec.record("db wait")
}
func (f *fakeDB) Repository() helm.Repository {
	return helm.Repository{Name: "bitnami", URL: "https://charts.bitnami.com/bitnami"}
}
func (f *fakeDB) ProductValues() map[string]string {
	return map[string]string{"mongo.uri": "mongodb://mongo-mongodb:27017/gravitee"}
}

type fakeVersions struct {
	rec     *recorder
	missing map[string]bool
}

func (f *fakeVersions) ValidateAll(ctx context.Context, tag string, artifacts ...string) error {
	sorted := append([]string{}, artifacts...)
	sort.Strings(sorted)
	if err := f.rec.record("validate %s %s", tag, strings.Join(sorted, ",")); err != nil {
		return err
	}
	if f.missing[tag] {
		return fmt.Errorf("tag %s not found", tag)
	}
	return nil
}

type fakeLicense struct{ err error }

func (f fakeLicense) Base64() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "bGljZW5zZQ==", nil
}

// fakeForwarder satisfies tunnel.Forwarder and PortReclaimer
type fakeForwarder struct {
	rec     *recorder
	mu      sync.Mutex
	nextPID int
	live    map[int]bool
}

func newFakeForwarder(rec *recorder) *fakeForwarder {
	return &fakeForwarder{rec: rec, nextPID: 1000, live: make(map[int]bool)}
}

func (f *fakeForwarder) Start(ctx context.Context, resource string, localPort, remotePort int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rec.record("tunnel start %s %d:%d", resource, localPort, remotePort); err != nil {
		return 0, err
	}
	f.nextPID++
	f.live[f.nextPID] = true
	return f.nextPID, nil
}

func (f *fakeForwarder) Stop(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, pid)
	return f.rec.record("tunnel stop %d", pid)
}

func (f *fakeForwarder) Running(ctx context.Context, pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[pid]
}

func (f *fakeForwarder) ForceKillPort(ctx context.Context, port int) error {
	return f.rec.record("port kill %d", port)
}

var _ tunnel.Forwarder = (*fakeForwarder)(nil)

type fakeComposeCLI struct {
	rec    *recorder
	states []compose.ServiceState
	psErr  error
}

func (f *fakeComposeCLI) Up(ctx context.Context, env []string, services ...string) error {
	return f.rec.record("up %s %s", strings.Join(env, " "), strings.Join(services, ","))
}

func (f *fakeComposeCLI) Down(ctx context.Context) error {
	return f.rec.record("down")
}

func (f *fakeComposeCLI) PS(ctx context.Context, services ...string) ([]compose.ServiceState, error) {
	if err := f.rec.record("ps %s", strings.Join(services, ",")); err != nil {
		return nil, err
	}
	return f.states, f.psErr
}

var errBoom = errors.New("boom")

func testImages() config.ImagesConfig {
	return config.ImagesConfig{API: "am-management-api", Gateway: "am-gateway", UI: "am-management-ui"}
}

func testClusterConfig(releases ...config.ReleaseConfig) config.ClusterConfig {
	return config.ClusterConfig{
		Name:                 "am-upgrade",
		Namespace:            "am-upgrade",
		Chart:                "graviteeio/am",
		Repository:           config.RepositoryConfig{Name: "graviteeio", URL: "https://helm.gravitee.io"},
		FallbackRelease:      "am",
		ValuesFiles:          []string{"values.yaml"},
		Releases:             releases,
		LegacyLicenseSecrets: []string{"licensekey", "am-license"},
		TagKeys: config.TagKeys{
			API:     "api.image.tag",
			Gateway: "gateway.image.tag",
			UI:      "ui.image.tag",
		},
		LicenseSecretKey: "license.name",
		Ports: config.PortsConfig{
			API:      config.PortConfig{Suffix: "api", Local: 8083, Remote: 83},
			UI:       config.PortConfig{Suffix: "ui", Local: 8084, Remote: 8002},
			Gateway1: config.PortConfig{Suffix: "gateway", Local: 8082, Remote: 82},
			Gateway2: config.PortConfig{Suffix: "gateway", Local: 8092, Remote: 82},
		},
	}
}

type clusterFixture struct {
	rec      *recorder
	charts   *fakeCharts
	kube     *fakeKube
	fwd      *fakeForwarder
	versions *fakeVersions
	provider *Cluster
	open     map[int]bool
}

func newClusterFixture(cfg config.ClusterConfig) *clusterFixture {
	rec := newRecorder()
	f := &clusterFixture{
		rec:      rec,
		charts:   &fakeCharts{rec: rec},
		kube:     &fakeKube{rec: rec},
		fwd:      newFakeForwarder(rec),
		versions: &fakeVersions{rec: rec, missing: map[string]bool{}},
		open:     make(map[int]bool),
	}
	f.provider = NewCluster(cfg, testImages(), ClusterDeps{
		Charts:    f.charts,
		Kube:      f.kube,
		Bootstrap: &fakeBootstrap{rec: rec},
		DB:        &fakeDB{rec: rec},
		Versions:  f.versions,
		License:   fakeLicense{},
		Tunnels:   tunnel.NewTable(f.fwd, nil),
		Ports:     f.fwd,
	})
	f.provider.portOpen = func(ctx context.Context, port int) bool { return f.open[port] }
	f.provider.waitPort = func(ctx context.Context, port int) error {
		f.open[port] = true
		return nil
	}
	return f
}
