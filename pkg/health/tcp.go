package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPChecker reports whether an address accepts TCP connections
type TCPChecker struct {
	// Address is the TCP address to connect to (e.g., "127.0.0.1:8083")
	Address string

	// Timeout is the connection timeout (default: 2 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP health checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 2 * time.Second,
	}
}

// NewLocalPortChecker checks a port on the loopback interface, where tunnels listen
func NewLocalPortChecker(port int) *TCPChecker {
	return NewTCPChecker(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
}

// Check dials the address once
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Unhealthy(start, fmt.Sprintf("connection to %s failed: %v", t.Address, err))
	}
	conn.Close()

	return Healthy(start, fmt.Sprintf("TCP connection to %s successful", t.Address))
}

// Type returns the health check type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
