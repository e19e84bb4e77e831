package health

import (
	"context"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeFunc CheckType = "func"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// CheckerFunc adapts a probe function to Checker
type CheckerFunc func(ctx context.Context) Result

// Check calls f
func (f CheckerFunc) Check(ctx context.Context) Result {
	return f(ctx)
}

// Type returns CheckTypeFunc
func (f CheckerFunc) Type() CheckType {
	return CheckTypeFunc
}

// Healthy builds a successful Result
func Healthy(start time.Time, msg string) Result {
	return Result{Healthy: true, Message: msg, CheckedAt: start, Duration: time.Since(start)}
}

// Unhealthy builds a failed Result
func Unhealthy(start time.Time, msg string) Result {
	return Result{Healthy: false, Message: msg, CheckedAt: start, Duration: time.Since(start)}
}
