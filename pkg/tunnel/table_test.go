package tunnel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cuemby/upgrade-harness/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeForwarder hands out increasing pids and tracks which are live
type fakeForwarder struct {
	mu      sync.Mutex
	nextPID int
	live    map[int]bool
	stopped []int
	stopErr error
}

func newFakeForwarder() *fakeForwarder {
	return &fakeForwarder{nextPID: 100, live: make(map[int]bool)}
}

func (f *fakeForwarder) Start(ctx context.Context, resource string, localPort, remotePort int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	f.live[f.nextPID] = true
	return f.nextPID, nil
}

func (f *fakeForwarder) Stop(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	delete(f.live, pid)
	f.stopped = append(f.stopped, pid)
	return nil
}

func (f *fakeForwarder) Running(ctx context.Context, pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[pid]
}

func (f *fakeForwarder) ForceKillPort(ctx context.Context, port int) error { return nil }

func (f *fakeForwarder) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func apiSpec() Spec {
	return Spec{Role: RoleAPI, Resource: "svc/am-api", LocalPort: 8083, RemotePort: 83}
}

func TestStartReplacesExistingHandle(t *testing.T) {
	fwd := newFakeForwarder()
	store := state.NewMemoryStore()
	table := NewTable(fwd, store)
	ctx := context.Background()

	first, err := table.Start(ctx, apiSpec())
	require.NoError(t, err)
	second, err := table.Start(ctx, apiSpec())
	require.NoError(t, err)

	assert.NotEqual(t, first.PID, second.PID)
	assert.Equal(t, []int{first.PID}, fwd.stopped)
	assert.Equal(t, 1, fwd.liveCount(), "at most one live tunnel per role")

	h, ok := table.Handle(RoleAPI)
	require.True(t, ok)
	assert.Equal(t, second.PID, h.PID)

	records, _ := store.ListTunnels()
	require.Len(t, records, 1)
	assert.Equal(t, second.PID, records[0].PID)
}

func TestStartStopsTunnelRecordedByEarlierRun(t *testing.T) {
	fwd := newFakeForwarder()
	fwd.live[42] = true
	store := state.NewMemoryStore()
	require.NoError(t, store.PutTunnel(&state.Tunnel{Role: string(RoleAPI), PID: 42, Resource: "svc/am-api", LocalPort: 8083}))
	require.NoError(t, store.PutTunnel(&state.Tunnel{Role: string(RoleUI), PID: 43, Resource: "svc/am-ui", LocalPort: 8084}))
	fwd.live[43] = true

	table := NewTable(fwd, store)
	h, err := table.Start(context.Background(), apiSpec())
	require.NoError(t, err)

	assert.Equal(t, []int{42}, fwd.stopped)
	assert.Equal(t, 2, fwd.liveCount(), "new api tunnel plus the untouched ui tunnel")

	records, err := store.ListTunnels()
	require.NoError(t, err)
	pids := map[string]int{}
	for _, r := range records {
		pids[r.Role] = r.PID
	}
	assert.Equal(t, map[string]int{"api": h.PID, "ui": 43}, pids)
}

func TestStartIgnoresDeadRecordedTunnel(t *testing.T) {
	fwd := newFakeForwarder()
	store := state.NewMemoryStore()
	require.NoError(t, store.PutTunnel(&state.Tunnel{Role: string(RoleAPI), PID: 42}))

	table := NewTable(fwd, store)
	_, err := table.Start(context.Background(), apiSpec())
	require.NoError(t, err)
	assert.Empty(t, fwd.stopped)
}

func TestStartFailsWhenRecordedTunnelCannotStop(t *testing.T) {
	fwd := newFakeForwarder()
	fwd.live[42] = true
	fwd.stopErr = errors.New("operation not permitted")
	store := state.NewMemoryStore()
	require.NoError(t, store.PutTunnel(&state.Tunnel{Role: string(RoleAPI), PID: 42}))

	table := NewTable(fwd, store)
	_, err := table.Start(context.Background(), apiSpec())
	require.Error(t, err)
	assert.Equal(t, 1, fwd.liveCount(), "no second tunnel started")
}

func TestStartFailsWhenPreviousCannotStop(t *testing.T) {
	fwd := newFakeForwarder()
	table := NewTable(fwd, nil)
	ctx := context.Background()

	_, err := table.Start(ctx, apiSpec())
	require.NoError(t, err)

	fwd.stopErr = errors.New("operation not permitted")
	_, err = table.Start(ctx, apiSpec())
	require.Error(t, err)
	assert.Equal(t, 1, fwd.liveCount(), "no second tunnel started")
}

func TestStopLeavesOtherRoles(t *testing.T) {
	fwd := newFakeForwarder()
	table := NewTable(fwd, nil)
	ctx := context.Background()

	for _, spec := range []Spec{
		{Role: RoleGateway2, Resource: "svc/gw2-gateway", LocalPort: 8092, RemotePort: 82},
		apiSpec(),
		{Role: RoleGateway1, Resource: "svc/gw1-gateway", LocalPort: 8082, RemotePort: 82},
	} {
		_, err := table.Start(ctx, spec)
		require.NoError(t, err)
	}

	assert.Equal(t, []Role{RoleAPI, RoleGateway1, RoleGateway2}, table.Roles())

	require.NoError(t, table.Stop(RoleGateway1))
	require.NoError(t, table.Stop(RoleGateway1))
	assert.Equal(t, []Role{RoleAPI, RoleGateway2}, table.Roles())

	require.NoError(t, table.StopAll())
	assert.Empty(t, table.Roles())
	assert.Equal(t, 0, fwd.liveCount())
}

func TestReclaimLeaked(t *testing.T) {
	fwd := newFakeForwarder()
	store := state.NewMemoryStore()

	// a previous run left a live tunnel and a stale record behind
	fwd.live[42] = true
	require.NoError(t, store.PutTunnel(&state.Tunnel{Role: "ui", PID: 42}))
	require.NoError(t, store.PutTunnel(&state.Tunnel{Role: "gateway-2", PID: 43}))

	table := NewTable(fwd, store)
	owned, err := table.Start(context.Background(), apiSpec())
	require.NoError(t, err)

	require.NoError(t, table.ReclaimLeaked(context.Background()))

	assert.Equal(t, []int{42}, fwd.stopped, "only the live leaked pid is signalled")
	records, _ := store.ListTunnels()
	require.Len(t, records, 1)
	assert.Equal(t, owned.PID, records[0].PID)
}
