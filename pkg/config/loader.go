package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables that override config keys
	EnvPrefix = "HARNESS_"

	// DefaultFile is read when no --config path is given and it exists
	DefaultFile = "upgrade-harness.yaml"

	maxConfigFileSize = 1024 * 1024
)

// Load reads configuration with precedence env > file > defaults.
//
// An explicit path must exist. An empty path falls back to DefaultFile when
// present and to pure defaults otherwise.
//
// Environment variables are matched against the koanf keys of Config, so
// nested sections resolve even when their names contain underscores:
//
//	HARNESS_CLUSTER_NAMESPACE      -> cluster.namespace
//	HARNESS_CLUSTER_TAG_KEYS_API   -> cluster.tag_keys.api
//	HARNESS_CLUSTER_PORTS_UI_LOCAL -> cluster.ports.ui.local
//
// Unknown names fall back to a split on the first underscore.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func readConfigFile(path string) ([]byte, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return content, nil
}

// envKeys maps the underscore form of every leaf key to its dotted path
var envKeys = collectEnvKeys(reflect.TypeOf(Config{}), "", map[string]string{})

func collectEnvKeys(t reflect.Type, prefix string, keys map[string]string) map[string]string {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			collectEnvKeys(f.Type, path, keys)
			continue
		}
		keys[strings.ReplaceAll(path, ".", "_")] = path
	}
	return keys
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if path, ok := envKeys[lower]; ok {
		return path
	}
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) {
	r := &cfg.Registry
	setString(&r.URL, "https://hub.docker.com")
	setString(&r.Namespace, "graviteeio")
	setString(&r.Images.API, "am-management-api")
	setString(&r.Images.Gateway, "am-gateway")
	setString(&r.Images.UI, "am-management-ui")
	if r.RetryCount == 0 {
		r.RetryCount = 2
	}
	setDuration(&r.Timeout, 15*time.Second)

	setString(&cfg.License.File, "license.key")

	c := &cfg.Cluster
	setString(&c.Name, "am-upgrade")
	setString(&c.Namespace, "am-upgrade")
	setString(&c.Chart, "graviteeio/am")
	setString(&c.Repository.Name, "graviteeio")
	setString(&c.Repository.URL, "https://helm.gravitee.io")
	setString(&c.FallbackRelease, "am")
	if c.LegacyLicenseSecrets == nil {
		c.LegacyLicenseSecrets = []string{"licensekey", "am-license"}
	}
	setString(&c.TagKeys.API, "api.image.tag")
	setString(&c.TagKeys.Gateway, "gateway.image.tag")
	setString(&c.TagKeys.UI, "ui.image.tag")
	setString(&c.LicenseSecretKey, "license.name")
	setDuration(&c.Timeout, 10*time.Minute)
	if c.ReadyAttempts == 0 {
		c.ReadyAttempts = 30
	}
	setDuration(&c.ReadyInterval, 5*time.Second)
	setString(&c.StateFile, ".upgrade-harness.db")
	setPort(&c.Ports.API, PortConfig{Suffix: "api", Local: 8083, Remote: 83})
	setPort(&c.Ports.UI, PortConfig{Suffix: "ui", Local: 8084, Remote: 8002})
	setPort(&c.Ports.Gateway1, PortConfig{Suffix: "gateway", Local: 8082, Remote: 82})
	setPort(&c.Ports.Gateway2, PortConfig{Suffix: "gateway", Local: 8092, Remote: 82})

	co := &cfg.Compose
	setString(&co.File, "docker-compose.yml")
	setString(&co.Project, "am-upgrade")
	setString(&co.VersionEnv, "AM_VERSION")
	if len(co.APIServices) == 0 {
		co.APIServices = []string{"management_api", "management_ui"}
	}
	if len(co.GatewayServices) == 0 {
		co.GatewayServices = []string{"gateway"}
	}
	setDuration(&co.SettleDelay, 10*time.Second)
	setDuration(&co.HealthTimeout, 3*time.Minute)
	setDuration(&co.HealthInterval, 5*time.Second)
	setString(&co.URLs.Management, "http://localhost:8083")
	setString(&co.URLs.UI, "http://localhost:8084")
	setString(&co.URLs.Gateway, "http://localhost:8082")

	m := &cfg.Database.Mongo
	setString(&m.Release, "mongo")
	setString(&m.Chart, "bitnami/mongodb")
	setString(&m.Repository.Name, "bitnami")
	setString(&m.Repository.URL, "https://charts.bitnami.com/bitnami")
	setString(&m.Selector, "app.kubernetes.io/name=mongodb")
	if m.Values == nil {
		m.Values = []string{"architecture=standalone", "auth.enabled=false"}
	}
	if m.ProductValues == nil {
		m.ProductValues = []string{
			"mongo.uri=mongodb://mongo-mongodb:27017/gravitee?serverSelectionTimeoutMS=5000&connectTimeoutMS=5000",
		}
	}

	p := &cfg.Database.Postgres
	setString(&p.Release, "postgres")
	setString(&p.Chart, "bitnami/postgresql")
	setString(&p.Repository.Name, "bitnami")
	setString(&p.Repository.URL, "https://charts.bitnami.com/bitnami")
	setString(&p.Selector, "app.kubernetes.io/name=postgresql")
	if p.Values == nil {
		p.Values = []string{
			"auth.username=gravitee",
			"auth.password=gravitee",
			"auth.database=gravitee",
		}
	}
	if p.ProductValues == nil {
		p.ProductValues = []string{
			"management.type=jdbc",
			"oauth2.type=jdbc",
			"jdbc.url=jdbc:postgresql://postgres-postgresql:5432/gravitee",
			"jdbc.username=gravitee",
			"jdbc.password=gravitee",
		}
	}

	v := &cfg.Verify
	if len(v.Command) == 0 {
		v.Command = []string{"npm", "run", "test:${SUITE}", "--"}
	}
	if v.FilterArgs == nil {
		v.FilterArgs = []string{"--testPathPattern", "${FILTER}"}
	}
	setDuration(&v.Timeout, 30*time.Minute)

	setString(&cfg.Metrics.Job, "upgrade_harness")

	ci := &cfg.CI
	setString(&ci.URL, "https://circleci.com")
	setString(&ci.Project, "gh/gravitee-io/gravitee-access-management")
	setString(&ci.Branch, "master")
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}

func setPort(dst *PortConfig, def PortConfig) {
	setString(&dst.Suffix, def.Suffix)
	if dst.Local == 0 {
		dst.Local = def.Local
	}
	if dst.Remote == 0 {
		dst.Remote = def.Remote
	}
}
