// Package license resolves the product license once per run.
package license

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// EnvVar holds the license, raw or base64 encoded
const EnvVar = "LICENSE_KEY"

// ErrNoLicense is returned when no source provides license material
var ErrNoLicense = errors.New("no license found")

// Resolver resolves license material from the environment, then a file.
// The first successful resolution is cached for the life of the Resolver.
type Resolver struct {
	file string

	lookupEnv func(string) (string, bool)
	readFile  func(string) ([]byte, error)

	once    sync.Once
	encoded string
	source  string
	err     error
}

// NewResolver creates a Resolver falling back to file
func NewResolver(file string) *Resolver {
	return &Resolver{
		file:      file,
		lookupEnv: os.LookupEnv,
		readFile:  os.ReadFile,
	}
}

// Base64 returns the license as base64, resolving it on first use
func (r *Resolver) Base64() (string, error) {
	r.once.Do(r.resolve)
	return r.encoded, r.err
}

// Source names where the license came from, empty before resolution
func (r *Resolver) Source() string {
	return r.source
}

func (r *Resolver) resolve() {
	if v, ok := r.lookupEnv(EnvVar); ok && strings.TrimSpace(v) != "" {
		r.encoded = normalize([]byte(v))
		r.source = "env:" + EnvVar
		return
	}

	if r.file != "" {
		data, err := r.readFile(r.file)
		switch {
		case err == nil && len(strings.TrimSpace(string(data))) > 0:
			r.encoded = normalize(data)
			r.source = "file:" + r.file
			return
		case err != nil && !errors.Is(err, os.ErrNotExist):
			r.err = fmt.Errorf("failed to read license file %s: %w", r.file, err)
			return
		}
	}

	r.err = fmt.Errorf("%w: set %s or provide %s", ErrNoLicense, EnvVar, r.file)
}

// normalize returns base64 regardless of the input encoding. Input that
// already decodes as standard base64, possibly wrapped over several lines,
// is kept as-is. Anything else is encoded byte for byte.
func normalize(data []byte) string {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	s := strings.Join(lines, "")
	if !strings.ContainsAny(s, " \t") {
		if _, err := base64.StdEncoding.DecodeString(s); err == nil {
			return s
		}
	}
	return base64.StdEncoding.EncodeToString(data)
}
