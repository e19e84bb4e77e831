package database

import "github.com/cuemby/upgrade-harness/pkg/config"

// Mongo is the document-store strategy
type Mongo struct {
	*chartStrategy
}

// NewMongo creates the Mongo strategy
func NewMongo(cfg config.ChartConfig, deps Deps) (*Mongo, error) {
	s, err := newChartStrategy("mongo", cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Mongo{chartStrategy: s}, nil
}
