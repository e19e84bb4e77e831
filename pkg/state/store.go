package state

import "time"

// Tunnel is the persisted record of a running port-forward process
type Tunnel struct {
	Role      string    `json:"role"`
	PID       int       `json:"pid"`
	Resource  string    `json:"resource"`
	LocalPort int       `json:"local_port"`
	StartedAt time.Time `json:"started_at"`
}

// Store persists harness state between runs
type Store interface {
	PutTunnel(t *Tunnel) error
	DeleteTunnel(role string) error
	ListTunnels() ([]*Tunnel, error)
	Close() error
}
