package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends every registered metric to a Pushgateway, grouped by run id
func Push(ctx context.Context, url, job, runID string) error {
	pusher := push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("run_id", runID)

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
