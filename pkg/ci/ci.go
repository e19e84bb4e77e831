// Package ci triggers a remote run of the upgrade pipeline on CircleCI.
package ci

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrMissingToken is returned when no API token is configured
var ErrMissingToken = errors.New("CI token is required (set HARNESS_CI_TOKEN)")

// Pipeline is the pipeline created by a trigger
type Pipeline struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type triggerRequest struct {
	Branch     string         `json:"branch,omitempty"`
	Parameters map[string]any `json:"parameters"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client posts pipeline triggers
type Client struct {
	client  *resty.Client
	project string
	branch  string
	logger  zerolog.Logger
}

// NewClient creates a Client. The token is checked when Trigger is called.
func NewClient(cfg config.CIConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Circle-Token", cfg.Token).
		SetTimeout(30 * time.Second)

	return &Client{
		client:  client,
		project: cfg.Project,
		branch:  cfg.Branch,
		logger:  log.WithComponent("ci"),
	}
}

// Trigger starts a pipeline running the upgrade with opts. runID ties the
// remote run to local logs.
func (c *Client) Trigger(ctx context.Context, opts types.Options, runID string) (*Pipeline, error) {
	if c.client.Header.Get("Circle-Token") == "" {
		return nil, ErrMissingToken
	}

	var (
		pipeline Pipeline
		apiErr   apiError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetRawPathParam("project", c.project).
		SetBody(triggerRequest{Branch: c.branch, Parameters: Parameters(opts, runID)}).
		SetResult(&pipeline).
		SetError(&apiErr).
		Post("/api/v2/project/{project}/pipeline")
	if err != nil {
		return nil, fmt.Errorf("failed to trigger pipeline: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("failed to trigger pipeline: HTTP %d: %s", resp.StatusCode(), msg)
	}

	c.logger.Info().
		Str("project", c.project).
		Int("number", pipeline.Number).
		Str("id", pipeline.ID).
		Msg("Pipeline triggered")
	return &pipeline, nil
}

// Parameters are the pipeline parameters for opts. Empty optional values are omitted.
func Parameters(opts types.Options, runID string) map[string]any {
	params := map[string]any{
		"upgrade_from_tag":       opts.FromTag,
		"upgrade_to_tag":         opts.ToTag,
		"upgrade_db_type":        string(opts.DBType),
		"upgrade_provider":       string(opts.Provider),
		"upgrade_with_downgrade": opts.WithDowngrade,
	}
	if opts.TestFilter != "" {
		params["upgrade_test_filter"] = opts.TestFilter
	}
	if opts.Stage != "" {
		params["upgrade_stage"] = string(opts.Stage)
	}
	if runID != "" {
		params["upgrade_run_id"] = runID
	}
	return params
}
