// Package version checks that product image tags exist in the public
// registry before any deployment references them.
package version

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/upgrade-harness/pkg/log"
	"github.com/cuemby/upgrade-harness/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// NotFoundError reports a tag that could not be confirmed in the registry
type NotFoundError struct {
	Namespace string
	Artifact  string
	Tag       string
	Reason    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %s/%s:%s not found in registry (%s); check available tags at https://hub.docker.com/r/%s/%s/tags",
		e.Namespace, e.Artifact, e.Tag, e.Reason, e.Namespace, e.Artifact)
}

// Options configures a Validator
type Options struct {
	BaseURL    string
	Namespace  string
	RetryCount int
	Timeout    time.Duration
}

// Validator looks tags up in a Docker Hub compatible registry API
type Validator struct {
	client    *resty.Client
	namespace string
	logger    zerolog.Logger

	mu        sync.Mutex
	confirmed map[string]bool
}

// NewValidator creates a Validator
func NewValidator(opts Options) *Validator {
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &Validator{
		client:    client,
		namespace: opts.Namespace,
		logger:    log.WithComponent("version"),
		confirmed: make(map[string]bool),
	}
}

// Validate returns nil when artifact:tag exists. Any other outcome, including
// a transport failure, yields a *NotFoundError.
func (v *Validator) Validate(ctx context.Context, tag, artifact string) error {
	key := artifact + ":" + tag

	v.mu.Lock()
	ok := v.confirmed[key]
	v.mu.Unlock()
	if ok {
		return nil
	}

	notFound := &NotFoundError{Namespace: v.namespace, Artifact: artifact, Tag: tag}

	resp, err := v.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"namespace": v.namespace,
			"artifact":  artifact,
			"tag":       tag,
		}).
		Get("/v2/namespaces/{namespace}/repositories/{artifact}/tags/{tag}")
	if err != nil {
		metrics.VersionChecks.WithLabelValues(artifact, metrics.ResultFailure).Inc()
		notFound.Reason = fmt.Sprintf("registry lookup failed: %v", err)
		return notFound
	}

	if resp.StatusCode() != http.StatusOK {
		metrics.VersionChecks.WithLabelValues(artifact, metrics.ResultFailure).Inc()
		notFound.Reason = fmt.Sprintf("registry returned HTTP %d", resp.StatusCode())
		return notFound
	}

	metrics.VersionChecks.WithLabelValues(artifact, metrics.ResultSuccess).Inc()
	v.logger.Debug().Str("artifact", artifact).Str("tag", tag).Msg("Tag confirmed in registry")

	v.mu.Lock()
	v.confirmed[key] = true
	v.mu.Unlock()
	return nil
}

// ValidateAll validates tag for each artifact in order and stops at the first failure
func (v *Validator) ValidateAll(ctx context.Context, tag string, artifacts ...string) error {
	for _, a := range artifacts {
		if err := v.Validate(ctx, tag, a); err != nil {
			return err
		}
	}
	return nil
}
