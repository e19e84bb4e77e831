// Package compose wraps the `docker compose` CLI.
package compose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cuemby/upgrade-harness/pkg/command"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ServiceState is one container row of `docker compose ps`
type ServiceState struct {
	Name     string `json:"Name"`
	Service  string `json:"Service"`
	State    string `json:"State"`
	Health   string `json:"Health"`
	ExitCode int    `json:"ExitCode"`
}

// Client runs compose commands against one project and file
type Client struct {
	runner  command.Runner
	file    string
	project string
	logger  zerolog.Logger
}

// NewClient creates a Client
func NewClient(runner command.Runner, file, project string) *Client {
	return &Client{
		runner:  runner,
		file:    file,
		project: project,
		logger:  log.WithComponent("compose"),
	}
}

// Up starts the project detached. With services given, only those are
// (re)created and their dependencies are left alone.
func (c *Client) Up(ctx context.Context, env []string, services ...string) error {
	args := []string{"up", "-d"}
	if len(services) > 0 {
		args = append(args, "--no-deps")
		args = append(args, services...)
	}

	c.logger.Info().Strs("services", services).Msg("Starting compose services")
	if _, err := c.run(ctx, env, args...); err != nil {
		return fmt.Errorf("compose up failed: %w", err)
	}
	return nil
}

// Down removes containers, named volumes and orphans
func (c *Client) Down(ctx context.Context) error {
	if _, err := c.run(ctx, nil, "down", "-v", "--remove-orphans"); err != nil {
		return fmt.Errorf("compose down failed: %w", err)
	}
	return nil
}

// PS lists container states for services, or for the whole project
func (c *Client) PS(ctx context.Context, services ...string) ([]ServiceState, error) {
	args := append([]string{"ps", "--all", "--format", "json"}, services...)
	res, err := c.run(ctx, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("compose ps failed: %w", err)
	}
	return parsePS(res.Stdout)
}

func (c *Client) run(ctx context.Context, env []string, args ...string) (command.Result, error) {
	return c.runner.Run(ctx, command.Cmd{
		Name: "docker",
		Args: append([]string{"compose", "-p", c.project, "-f", c.file}, args...),
		Env:  env,
	})
}

// parsePS accepts both the JSON array printed by older compose releases and
// the one-object-per-line form printed by newer ones
func parsePS(out string) ([]ServiceState, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	if strings.HasPrefix(out, "[") {
		var states []ServiceState
		if err := json.Unmarshal([]byte(out), &states); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
		return states, nil
	}

	var states []ServiceState
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var s ServiceState
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps line %q: %w", line, err)
		}
		states = append(states, s)
	}
	return states, scanner.Err()
}

// Healthy reports whether every service has a running container whose
// healthcheck, if any, passes. The message names the first service that is not.
func Healthy(states []ServiceState, services []string) (bool, string) {
	byService := make(map[string][]ServiceState)
	for _, s := range states {
		byService[s.Service] = append(byService[s.Service], s)
	}

	for _, svc := range services {
		containers := byService[svc]
		if len(containers) == 0 {
			return false, fmt.Sprintf("service %s has no containers", svc)
		}
		for _, ct := range containers {
			if ct.State != "running" {
				return false, fmt.Sprintf("service %s is %s (exit code %d)", svc, ct.State, ct.ExitCode)
			}
			if ct.Health != "" && ct.Health != "healthy" {
				return false, fmt.Sprintf("service %s is %s", svc, ct.Health)
			}
		}
	}
	return true, "all services healthy"
}

type composeFile struct {
	Services map[string]yaml.Node `yaml:"services"`
}

// ParseServices returns the sorted service names declared in a compose file
func ParseServices(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}

	var f composeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse compose file %s: %w", path, err)
	}

	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
