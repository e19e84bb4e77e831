// Package config loads harness configuration from an optional YAML file
// overlaid with HARNESS_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the root configuration
type Config struct {
	Registry RegistryConfig `koanf:"registry"`
	License  LicenseConfig  `koanf:"license"`
	Cluster  ClusterConfig  `koanf:"cluster"`
	Compose  ComposeConfig  `koanf:"compose"`
	Database DatabaseConfig `koanf:"database"`
	Verify   VerifyConfig   `koanf:"verify"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	CI       CIConfig       `koanf:"ci"`
}

// RegistryConfig points at the public artifact registry
type RegistryConfig struct {
	URL        string        `koanf:"url" validate:"required,url"`
	Namespace  string        `koanf:"namespace" validate:"required"`
	Images     ImagesConfig  `koanf:"images"`
	RetryCount int           `koanf:"retry_count" validate:"gte=0"`
	Timeout    time.Duration `koanf:"timeout"`
}

// ImagesConfig names the artifact of each product component
type ImagesConfig struct {
	API     string `koanf:"api" validate:"required"`
	Gateway string `koanf:"gateway" validate:"required"`
	UI      string `koanf:"ui" validate:"required"`
}

// LicenseConfig configures the on-disk license fallback
type LicenseConfig struct {
	File string `koanf:"file"`
}

// RepositoryConfig is a chart repository
type RepositoryConfig struct {
	Name string `koanf:"name" validate:"required"`
	URL  string `koanf:"url" validate:"required,url"`
}

// ReleaseConfig is the file form of types.Release
type ReleaseConfig struct {
	Name        string   `koanf:"name" validate:"required"`
	ValuesFiles []string `koanf:"values_files"`
	Role        string   `koanf:"role" validate:"required,oneof=control-plane data-plane"`
}

// TagKeys are the chart value paths of the image tags
type TagKeys struct {
	API     string `koanf:"api" validate:"required"`
	Gateway string `koanf:"gateway" validate:"required"`
	UI      string `koanf:"ui" validate:"required"`
}

// PortConfig maps one tunnel role to a service and a local port
type PortConfig struct {
	// Suffix is appended to the unit name to form the service name
	Suffix string `koanf:"suffix" validate:"required"`
	Local  int    `koanf:"local" validate:"gt=0,lt=65536"`
	Remote int    `koanf:"remote" validate:"gt=0,lt=65536"`
}

// PortsConfig holds one PortConfig per tunnel role
type PortsConfig struct {
	API      PortConfig `koanf:"api"`
	UI       PortConfig `koanf:"ui"`
	Gateway1 PortConfig `koanf:"gateway1"`
	Gateway2 PortConfig `koanf:"gateway2"`
}

// ClusterConfig configures the cluster backend
type ClusterConfig struct {
	Name                 string           `koanf:"name" validate:"required"`
	Context              string           `koanf:"context"`
	Namespace            string           `koanf:"namespace" validate:"required"`
	Chart                string           `koanf:"chart" validate:"required"`
	ChartVersion         string           `koanf:"chart_version"`
	Repository           RepositoryConfig `koanf:"repository"`
	FallbackRelease      string           `koanf:"fallback_release" validate:"required"`
	ValuesFiles          []string         `koanf:"values_files"`
	Releases             []ReleaseConfig  `koanf:"releases" validate:"dive"`
	LegacyLicenseSecrets []string         `koanf:"legacy_license_secrets"`
	TagKeys              TagKeys          `koanf:"tag_keys"`
	LicenseSecretKey     string           `koanf:"license_secret_key" validate:"required"`
	Timeout              time.Duration    `koanf:"timeout"`
	ReadyAttempts        int              `koanf:"ready_attempts" validate:"gt=0"`
	ReadyInterval        time.Duration    `koanf:"ready_interval"`
	StateFile            string           `koanf:"state_file" validate:"required"`
	KindImage            string           `koanf:"kind_image"`
	Ports                PortsConfig      `koanf:"ports"`
}

// ComposeURLs are the service URLs exported to the test suite
type ComposeURLs struct {
	Management string `koanf:"management"`
	UI         string `koanf:"ui"`
	Gateway    string `koanf:"gateway"`
	Gateway2   string `koanf:"gateway2"`
}

// ComposeConfig configures the compose backend
type ComposeConfig struct {
	File            string        `koanf:"file" validate:"required"`
	Project         string        `koanf:"project" validate:"required"`
	VersionEnv      string        `koanf:"version_env" validate:"required"`
	APIServices     []string      `koanf:"api_services" validate:"min=1"`
	GatewayServices []string      `koanf:"gateway_services" validate:"min=1"`
	SettleDelay     time.Duration `koanf:"settle_delay"`
	HealthTimeout   time.Duration `koanf:"health_timeout"`
	HealthInterval  time.Duration `koanf:"health_interval"`
	URLs            ComposeURLs   `koanf:"urls"`
}

// ChartConfig describes a datastore chart
type ChartConfig struct {
	Release    string           `koanf:"release" validate:"required"`
	Chart      string           `koanf:"chart" validate:"required"`
	Version    string           `koanf:"version"`
	Repository RepositoryConfig `koanf:"repository"`
	Selector   string           `koanf:"selector" validate:"required"`
	// Values and ProductValues are key=value pairs passed as --set
	Values        []string `koanf:"values"`
	ProductValues []string `koanf:"product_values"`
}

// DatabaseConfig holds one chart per datastore flavor
type DatabaseConfig struct {
	Mongo    ChartConfig `koanf:"mongo"`
	Postgres ChartConfig `koanf:"postgres"`
}

// VerifyConfig describes how the external test suite is launched.
// ${SUITE} and ${FILTER} are expanded in Command and FilterArgs.
type VerifyConfig struct {
	Command    []string      `koanf:"command" validate:"min=1"`
	FilterArgs []string      `koanf:"filter_args"`
	Timeout    time.Duration `koanf:"timeout"`
}

// MetricsConfig configures the optional Pushgateway push
type MetricsConfig struct {
	Pushgateway string `koanf:"pushgateway" validate:"omitempty,url"`
	Job         string `koanf:"job"`
}

// CIConfig configures the remote CI trigger
type CIConfig struct {
	URL     string `koanf:"url" validate:"required,url"`
	Project string `koanf:"project" validate:"required"`
	Branch  string `koanf:"branch"`
	Token   string `koanf:"token"`
}

// Validate checks field constraints and release topology
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var controlPlane, dataPlane int
	seen := make(map[string]bool)
	for _, r := range c.Cluster.Releases {
		if seen[r.Name] {
			return fmt.Errorf("cluster.releases: duplicate release name %q", r.Name)
		}
		seen[r.Name] = true

		switch types.Role(r.Role) {
		case types.RoleControlPlane:
			controlPlane++
		case types.RoleDataPlane:
			dataPlane++
		}
	}
	if controlPlane > 1 {
		return fmt.Errorf("cluster.releases: at most one control-plane release is supported, got %d", controlPlane)
	}
	if dataPlane > 2 {
		return fmt.Errorf("cluster.releases: at most two data-plane releases are supported, got %d", dataPlane)
	}
	if len(c.Cluster.Releases) > 0 && controlPlane == 0 {
		return fmt.Errorf("cluster.releases: a control-plane release is required when releases are configured")
	}
	return nil
}

// ReleaseList converts the configured releases
func (c ClusterConfig) ReleaseList() []types.Release {
	out := make([]types.Release, 0, len(c.Releases))
	for _, r := range c.Releases {
		out = append(out, types.Release{
			Name:        r.Name,
			ValuesFiles: append([]string(nil), r.ValuesFiles...),
			Role:        types.Role(r.Role),
		})
	}
	return out
}

// ParseSetValues turns key=value pairs into a map, rejecting malformed entries
func ParseSetValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid value %q: expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
