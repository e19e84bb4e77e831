package database

import (
	"github.com/cuemby/upgrade-harness/pkg/config"
)

// Postgres is the relational-store strategy. The product reaches it over
// JDBC, so its product values also switch the management and rate-limit
// repositories away from their Mongo default.
type Postgres struct {
	*chartStrategy
}

// NewPostgres creates the Postgres strategy
func NewPostgres(cfg config.ChartConfig, deps Deps) (*Postgres, error) {
	s, err := newChartStrategy("postgres", cfg, deps)
	if err != nil {
		return nil, err
	}
	if _, ok := s.productValues["mongo.enabled"]; !ok {
		s.productValues["mongo.enabled"] = "false"
	}
	return &Postgres{chartStrategy: s}, nil
}
