// Package kubectl wraps the kubectl CLI for the few cluster operations the
// harness needs: secrets, namespaces, pods, events and readiness.
package kubectl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/rs/zerolog"
)

// Pod is the subset of pod status the harness reports on
type Pod struct {
	Name     string
	Phase    string
	Ready    bool
	Restarts int
}

// Client runs kubectl against a shared kube target
type Client struct {
	runner command.Runner
	target *types.KubeTarget
	logger zerolog.Logger
}

// NewClient creates a Client
func NewClient(runner command.Runner, target *types.KubeTarget) *Client {
	return &Client{
		runner: runner,
		target: target,
		logger: log.WithComponent("kubectl"),
	}
}

// ClusterInfo probes API server reachability
func (c *Client) ClusterInfo(ctx context.Context) error {
	_, err := c.run(ctx, nil, "cluster-info", "--request-timeout=10s")
	return err
}

// NodesReady reports whether every node has the Ready condition
func (c *Client) NodesReady(ctx context.Context) (bool, error) {
	res, err := c.run(ctx, nil, "get", "nodes", "-o",
		`jsonpath={range .items[*]}{.status.conditions[?(@.type=="Ready")].status}{"\n"}{end}`)
	if err != nil {
		return false, err
	}

	lines := strings.Fields(res.Stdout)
	if len(lines) == 0 {
		return false, nil
	}
	for _, status := range lines {
		if status != "True" {
			return false, nil
		}
	}
	return true, nil
}

// SecretExists reports whether the named secret exists
func (c *Client) SecretExists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.run(ctx, nil, "get", "secret", name, "--namespace", namespace, "-o", "name")
	if err != nil {
		if command.IsKind(err, command.KindNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	return true, nil
}

// ApplySecret creates or replaces an Opaque secret. Values are already base64 encoded.
func (c *Client) ApplySecret(ctx context.Context, namespace, name string, data map[string]string) error {
	manifest := map[string]any{
		"apiVersion": "v1",
		"kind":       "Secret",
		"type":       "Opaque",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
			"labels": map[string]string{
				"app.kubernetes.io/managed-by": "upgrade-harness",
			},
		},
		"data": data,
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode secret %s: %w", name, err)
	}

	if _, err := c.run(ctx, bytes.NewReader(body), "apply", "-f", "-"); err != nil {
		return fmt.Errorf("failed to apply secret %s: %w", name, err)
	}
	c.logger.Debug().Str("secret", name).Str("namespace", namespace).Msg("Secret applied")
	return nil
}

// DeleteSecret deletes the named secret; absent is success
func (c *Client) DeleteSecret(ctx context.Context, namespace, name string) error {
	_, err := c.run(ctx, nil, "delete", "secret", name, "--namespace", namespace, "--ignore-not-found")
	if err != nil && !command.IsKind(err, command.KindNotFound) {
		return fmt.Errorf("failed to delete secret %s: %w", name, err)
	}
	return nil
}

// EnsureNamespace creates namespace unless it already exists
func (c *Client) EnsureNamespace(ctx context.Context, namespace string) error {
	_, err := c.run(ctx, nil, "create", "namespace", namespace)
	if err != nil && !command.IsKind(err, command.KindAlreadyExists) {
		return fmt.Errorf("failed to create namespace %s: %w", namespace, err)
	}
	return nil
}

// DeleteNamespace deletes namespace and waits for it to go; absent is success
func (c *Client) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := c.run(ctx, nil, "delete", "namespace", namespace, "--ignore-not-found", "--wait=true")
	if err != nil && !command.IsKind(err, command.KindNotFound) {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

type podList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Phase             string `json:"phase"`
			ContainerStatuses []struct {
				Ready        bool `json:"ready"`
				RestartCount int  `json:"restartCount"`
			} `json:"containerStatuses"`
		} `json:"status"`
	} `json:"items"`
}

// Pods lists pods matching selector
func (c *Client) Pods(ctx context.Context, namespace, selector string) ([]Pod, error) {
	res, err := c.run(ctx, nil, "get", "pods", "--namespace", namespace, "--selector", selector, "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	var list podList
	if err := json.Unmarshal([]byte(res.Stdout), &list); err != nil {
		return nil, fmt.Errorf("failed to parse pod list: %w", err)
	}

	pods := make([]Pod, 0, len(list.Items))
	for _, item := range list.Items {
		p := Pod{Name: item.Metadata.Name, Phase: item.Status.Phase, Ready: len(item.Status.ContainerStatuses) > 0}
		for _, cs := range item.Status.ContainerStatuses {
			p.Ready = p.Ready && cs.Ready
			p.Restarts += cs.RestartCount
		}
		pods = append(pods, p)
	}
	return pods, nil
}

// Events returns the last n namespace events, oldest first
func (c *Client) Events(ctx context.Context, namespace string, n int) (string, error) {
	res, err := c.run(ctx, nil, "get", "events", "--namespace", namespace, "--sort-by=.lastTimestamp")
	if err != nil {
		return "", fmt.Errorf("failed to get events: %w", err)
	}

	lines := strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n")
	if n > 0 && len(lines) > n+1 {
		// keep the header row
		lines = append(lines[:1], lines[len(lines)-n:]...)
	}
	return strings.Join(lines, "\n"), nil
}

// WaitForPods blocks until pods matching selector are Ready or timeout passes
func (c *Client) WaitForPods(ctx context.Context, namespace, selector string, timeout time.Duration) error {
	_, err := c.run(ctx, nil, "wait", "pod",
		"--namespace", namespace,
		"--selector", selector,
		"--for=condition=Ready",
		"--timeout", timeout.String())
	if err != nil {
		return fmt.Errorf("pods %q not ready in %s: %w", selector, namespace, err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, stdin *bytes.Reader, args ...string) (command.Result, error) {
	cmd := command.Cmd{
		Name: "kubectl",
		Args: append(c.target.KubectlFlags(), args...),
	}
	if stdin != nil {
		cmd.Stdin = stdin
	}
	return c.runner.Run(ctx, cmd)
}
