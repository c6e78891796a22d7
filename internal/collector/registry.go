package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
)

// Registry holds the registered collectors in registration order and runs
// them sequentially.
type Registry struct {
	collectors []Collector
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		collectors: make([]Collector, 0),
		logger:     logger,
	}
}

// Register adds a collector if it's available on the current platform.
// Unavailable collectors are logged and skipped.
func (r *Registry) Register(c Collector) {
	if c.IsAvailable() {
		r.collectors = append(r.collectors, c)
		r.logger.Info("Registered collector", zap.String("name", c.Name()))
	} else {
		r.logger.Warn("Collector not available, skipping", zap.String("name", c.Name()))
	}
}

// CollectAll runs every collector in order, one after the other, and returns
// their samples in that order. A failed collector is logged and contributes
// nothing for this round; the others still run.
func (r *Registry) CollectAll(ctx context.Context) []models.MetricSample {
	samples := make([]models.MetricSample, 0, len(r.collectors))
	for _, c := range r.collectors {
		sample, err := c.Collect(ctx)
		if err != nil {
			r.logger.Error("Collection failed",
				zap.String("collector", c.Name()),
				zap.Error(err))
			continue
		}
		samples = append(samples, sample)
	}
	return samples
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}
