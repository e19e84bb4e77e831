package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/metrics"
	"github.com/cuemby/upgrade-harness/pkg/state"
	"github.com/rs/zerolog"
)

// Role is the logical endpoint a tunnel serves
type Role string

const (
	RoleAPI      Role = "api"
	RoleUI       Role = "ui"
	RoleGateway1 Role = "gateway-1"
	RoleGateway2 Role = "gateway-2"
)

// AllRoles lists every role in display order
var AllRoles = []Role{RoleAPI, RoleUI, RoleGateway1, RoleGateway2}

func roleIndex(r Role) int {
	for i, known := range AllRoles {
		if known == r {
			return i
		}
	}
	return len(AllRoles)
}

// Spec describes the tunnel wanted for a role
type Spec struct {
	Role       Role
	Resource   string
	LocalPort  int
	RemotePort int
}

// Handle is a live tunnel
type Handle struct {
	Spec
	PID       int
	StartedAt time.Time
}

// Table owns at most one live Handle per Role
type Table struct {
	fwd    Forwarder
	store  state.Store
	logger zerolog.Logger

	mu      sync.Mutex
	handles map[Role]*Handle
}

// NewTable creates a Table. A nil store keeps records in memory only.
func NewTable(fwd Forwarder, store state.Store) *Table {
	if store == nil {
		store = state.NewMemoryStore()
	}
	return &Table{
		fwd:     fwd,
		store:   store,
		logger:  log.WithComponent("tunnel"),
		handles: make(map[Role]*Handle),
	}
}

// Start launches a tunnel for spec.Role, stopping any existing one for that role first
func (t *Table) Start(ctx context.Context, spec Spec) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.handles[spec.Role]; ok {
		if err := t.stopLocked(old); err != nil {
			return Handle{}, fmt.Errorf("failed to stop previous %s tunnel: %w", spec.Role, err)
		}
		metrics.TunnelRestarts.WithLabelValues(string(spec.Role)).Inc()
	} else if err := t.stopRecordedLocked(ctx, spec.Role); err != nil {
		return Handle{}, err
	}

	pid, err := t.fwd.Start(ctx, spec.Resource, spec.LocalPort, spec.RemotePort)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to start %s tunnel: %w", spec.Role, err)
	}

	h := &Handle{Spec: spec, PID: pid, StartedAt: time.Now()}
	t.handles[spec.Role] = h

	if err := t.store.PutTunnel(&state.Tunnel{
		Role:      string(spec.Role),
		PID:       pid,
		Resource:  spec.Resource,
		LocalPort: spec.LocalPort,
		StartedAt: h.StartedAt,
	}); err != nil {
		t.logger.Warn().Err(err).Str("role", string(spec.Role)).Msg("Failed to record tunnel")
	}
	return *h, nil
}

// stopRecordedLocked stops a tunnel for role that an earlier process left
// running. It still holds the local port and points at the old pods.
func (t *Table) stopRecordedLocked(ctx context.Context, role Role) error {
	records, err := t.store.ListTunnels()
	if err != nil {
		return fmt.Errorf("failed to list recorded tunnels: %w", err)
	}

	for _, rec := range records {
		if Role(rec.Role) != role || !t.fwd.Running(ctx, rec.PID) {
			continue
		}
		t.logger.Info().Str("role", rec.Role).Int("pid", rec.PID).Msg("Stopping tunnel left by an earlier run")
		if err := t.fwd.Stop(rec.PID); err != nil {
			return fmt.Errorf("failed to stop recorded %s tunnel %d: %w", rec.Role, rec.PID, err)
		}
		metrics.TunnelRestarts.WithLabelValues(rec.Role).Inc()
	}
	return nil
}

// Stop terminates the tunnel for role; no tunnel is success
func (t *Table) Stop(role Role) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[role]
	if !ok {
		return nil
	}
	return t.stopLocked(h)
}

func (t *Table) stopLocked(h *Handle) error {
	if err := t.fwd.Stop(h.PID); err != nil {
		return err
	}
	delete(t.handles, h.Role)
	if err := t.store.DeleteTunnel(string(h.Role)); err != nil {
		t.logger.Warn().Err(err).Str("role", string(h.Role)).Msg("Failed to remove tunnel record")
	}
	t.logger.Debug().Str("role", string(h.Role)).Int("pid", h.PID).Msg("Tunnel stopped")
	return nil
}

// StopAll stops every tunnel, continuing past failures
func (t *Table) StopAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, role := range t.rolesLocked() {
		if err := t.stopLocked(t.handles[role]); err != nil {
			errs = append(errs, fmt.Errorf("stop %s tunnel: %w", role, err))
		}
	}
	return errors.Join(errs...)
}

// Handle returns the live handle for role
func (t *Table) Handle(role Role) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[role]
	if !ok {
		return Handle{}, false
	}
	return *h, true
}

// Roles returns the roles with a live handle in display order
func (t *Table) Roles() []Role {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolesLocked()
}

func (t *Table) rolesLocked() []Role {
	roles := make([]Role, 0, len(t.handles))
	for r := range t.handles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roleIndex(roles[i]) < roleIndex(roles[j]) })
	return roles
}

// ReclaimLeaked stops tunnels recorded by an earlier run that this table does not own
func (t *Table) ReclaimLeaked(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.store.ListTunnels()
	if err != nil {
		return fmt.Errorf("failed to list recorded tunnels: %w", err)
	}

	var errs []error
	for _, rec := range records {
		role := Role(rec.Role)
		if h, ok := t.handles[role]; ok && h.PID == rec.PID {
			continue
		}

		if t.fwd.Running(ctx, rec.PID) {
			t.logger.Info().Str("role", rec.Role).Int("pid", rec.PID).Msg("Stopping leaked tunnel")
			if err := t.fwd.Stop(rec.PID); err != nil {
				errs = append(errs, fmt.Errorf("stop leaked %s tunnel %d: %w", rec.Role, rec.PID, err))
				continue
			}
		}
		if _, owned := t.handles[role]; !owned {
			if err := t.store.DeleteTunnel(rec.Role); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
