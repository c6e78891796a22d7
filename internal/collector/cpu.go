// CPU usage collector: overall utilization sampled over one second.
// Uses gopsutil for cross-platform CPU metrics.
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/shelteragent/agent/internal/models"
)

const cpuSampleWindow = time.Second

// CPUCollector collects overall CPU usage.
type CPUCollector struct{}

// NewCPUCollector creates a new CPU collector.
func NewCPUCollector() *CPUCollector {
	return &CPUCollector{}
}

// Name returns the collector identifier.
func (c *CPUCollector) Name() string { return "cpu" }

// Collect measures overall CPU usage. It blocks for one second.
func (c *CPUCollector) Collect(ctx context.Context) (models.MetricSample, error) {
	overall, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return models.MetricSample{}, err
	}
	if len(overall) == 0 {
		return models.MetricSample{}, errors.New("cpu: no reading")
	}
	return models.MetricSample{
		MetricType: models.MetricCPU,
		Value:      round2(overall[0]),
		Unit:       "%",
	}, nil
}

// IsAvailable returns true: CPU metrics are available on all platforms.
func (c *CPUCollector) IsAvailable() bool { return true }
