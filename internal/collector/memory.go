// RAM usage collector.
// Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/shelteragent/agent/internal/models"
)

// MemoryCollector collects virtual memory usage percent.
type MemoryCollector struct{}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Name returns the collector identifier.
func (c *MemoryCollector) Name() string { return "memory" }

// Collect reads the used-memory percentage.
func (c *MemoryCollector) Collect(ctx context.Context) (models.MetricSample, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.MetricSample{}, err
	}
	return models.MetricSample{
		MetricType: models.MetricMemory,
		Value:      round2(v.UsedPercent),
		Unit:       "%",
	}, nil
}

// IsAvailable returns true: memory metrics are available on all platforms.
func (c *MemoryCollector) IsAvailable() bool { return true }
