package command

import (
	"errors"
	"os/exec"
	"strings"
)

// Kind is an actionable failure category derived from a tool's error text
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindNotInstalled      Kind = "not-installed"
	KindDaemonUnavailable Kind = "daemon-unavailable"
	KindAlreadyExists     Kind = "already-exists"
	KindNotFound          Kind = "not-found"
)

var (
	daemonPatterns = []string{
		"cannot connect to the docker daemon",
		"is the docker daemon running",
		"docker daemon is not running",
		"failed to connect to the docker api",
		"error during connect",
	}
	existsPatterns = []string{
		"already exists",
		"already exist",
		"cannot re-use a name that is still in use",
	}
	notFoundPatterns = []string{
		"not found",
		"notfound",
		"no such",
	}
)

// Classify maps an exec error and its output onto a Kind.
// Order matters: a missing binary wins over anything in the output.
func Classify(err error, output string) Kind {
	if errors.Is(err, exec.ErrNotFound) {
		return KindNotInstalled
	}

	lower := strings.ToLower(output)
	switch {
	case containsAny(lower, daemonPatterns):
		return KindDaemonUnavailable
	case containsAny(lower, existsPatterns):
		return KindAlreadyExists
	case containsAny(lower, notFoundPatterns):
		return KindNotFound
	}
	return KindUnknown
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
