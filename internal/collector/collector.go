// Package collector defines the Collector interface and provides the
// resource collectors, the process (service) snapshot and host inventory.
package collector

import (
	"context"
	"math"

	"github.com/shelteragent/agent/internal/models"
)

// Collector is the interface that all metric collectors must implement.
// Each collector produces one sample of a single resource type per call.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect gathers one sample.
	// The context allows for cancellation and timeout control.
	Collect(ctx context.Context) (models.MetricSample, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}

// Defaults returns the standard collectors in reporting order:
// cpu, memory, disk, network, io.
func Defaults() []Collector {
	return []Collector{
		NewCPUCollector(),
		NewMemoryCollector(),
		NewDiskCollector(),
		NewNetworkCollector(),
		NewDiskIOCollector(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
