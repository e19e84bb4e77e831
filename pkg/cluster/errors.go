package cluster

import (
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/command"
)

// Reason classifies a bootstrap failure
type Reason string

const (
	ReasonDaemonUnavailable Reason = "daemon-unavailable"
	ReasonNameTaken         Reason = "name-taken"
	ReasonNotInstalled      Reason = "not-installed"
	ReasonNotReady          Reason = "not-ready"
	ReasonUnknown           Reason = "unknown"
)

// BootstrapError reports why a local cluster could not be brought up
type BootstrapError struct {
	Reason  Reason
	Cluster string
	Tool    string
	Err     error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("failed to bootstrap cluster %q: %v\nHint: %s", e.Cluster, e.Err, e.Hint())
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Hint returns an operator-facing remediation for the failure
func (e *BootstrapError) Hint() string {
	switch e.Reason {
	case ReasonDaemonUnavailable:
		return "the container runtime is not running; start Docker and retry"
	case ReasonNameTaken:
		return fmt.Sprintf("a cluster named %q already exists but is unreachable; run `upgrade-harness teardown` or `kind delete cluster --name %s`", e.Cluster, e.Cluster)
	case ReasonNotInstalled:
		return fmt.Sprintf("%s is not installed or not on PATH", e.Tool)
	case ReasonNotReady:
		return "nodes did not become Ready; inspect with `kubectl get nodes` and `docker ps`"
	default:
		return "see the command output above"
	}
}

func newBootstrapError(cluster, tool string, err error) *BootstrapError {
	reason := ReasonUnknown
	switch {
	case command.IsKind(err, command.KindDaemonUnavailable):
		reason = ReasonDaemonUnavailable
	case command.IsKind(err, command.KindAlreadyExists):
		reason = ReasonNameTaken
	case command.IsKind(err, command.KindNotInstalled):
		reason = ReasonNotInstalled
	}
	return &BootstrapError{Reason: reason, Cluster: cluster, Tool: tool, Err: err}
}
