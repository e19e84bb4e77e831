package provider

import (
	"context"
)

// Provider stands up and mutates one product deployment
type Provider interface {
	Name() string
	Clean(ctx context.Context) error
	Deploy(ctx context.Context, version string) error
	// UpgradeAPI moves the control plane (management API and UI) to version
	UpgradeAPI(ctx context.Context, version string) error
	// UpgradeGateway moves the data plane to version
	UpgradeGateway(ctx context.Context, version string) error
}

// Setuper is implemented by providers that need infrastructure before Deploy
type Setuper interface {
	Setup(ctx context.Context) error
}

// TestPreparer is implemented by providers with per-verification fixtures
type TestPreparer interface {
	PrepareTests(ctx context.Context) error
}

// Cleaner is implemented by providers that hold resources to release at the end of a run
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// TestEnvProvider is implemented by providers that expose settings to the test suite
type TestEnvProvider interface {
	TestEnv() map[string]string
}

// VersionChecker confirms artifact tags before they are deployed
type VersionChecker interface {
	ValidateAll(ctx context.Context, tag string, artifacts ...string) error
}

// LicenseSource yields base64 license material
type LicenseSource interface {
	Base64() (string, error)
}

// Test environment keys exported to the verification suite
const (
	EnvManagementURL = "MANAGEMENT_URL"
	EnvUIURL         = "UI_URL"
	EnvGatewayURL    = "GATEWAY_URL"
	EnvGateway2URL   = "GATEWAY_2_URL"
)
