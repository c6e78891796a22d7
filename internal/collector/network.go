// Network throughput collector: combined send+receive rate in Mbit/s.
// Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/shelteragent/agent/internal/models"
)

// NetworkCollector reports total interface throughput. It keeps the previous
// counter reading, so the first collection reports 0.
type NetworkCollector struct {
	rate RateSampler
	now  func() time.Time
}

// NewNetworkCollector creates a new network collector.
func NewNetworkCollector() *NetworkCollector {
	return &NetworkCollector{now: time.Now}
}

// Name returns the collector identifier.
func (c *NetworkCollector) Name() string { return "network" }

// Collect reads the aggregate byte counters and converts the delta to Mbit/s.
func (c *NetworkCollector) Collect(ctx context.Context) (models.MetricSample, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return models.MetricSample{}, err
	}

	var total uint64
	if len(counters) > 0 {
		total = counters[0].BytesSent + counters[0].BytesRecv
	}

	return models.MetricSample{
		MetricType: models.MetricNetwork,
		Value:      round2(bytesPerSecToMbps(c.rate.Observe(total, c.now()))),
		Unit:       "Mbps",
	}, nil
}

// IsAvailable returns true: network metrics are available on all platforms.
func (c *NetworkCollector) IsAvailable() bool { return true }

func bytesPerSecToMbps(bps float64) float64 {
	return bps * 8 / 1024 / 1024
}
