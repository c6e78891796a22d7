// Disk usage collectors: used/total percent across local partitions and
// combined read+write throughput.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/shelteragent/agent/internal/models"
)

// skippedFSTypes lists virtual, container and network filesystems that do not
// represent local storage and are left out of usage totals.
var skippedFSTypes = []string{
	"autofs", "binfmt_misc", "bpf", "cgroup", "cgroup2", "configfs", "debugfs",
	"devfs", "devtmpfs", "efivarfs", "fusectl", "hugetlbfs", "mqueue", "nsfs",
	"nullfs", "overlay", "proc", "procfs", "pstore", "ramfs", "securityfs",
	"squashfs", "sysfs", "tmpfs", "tracefs", "fuse.snapfuse",
	"9p", "afs", "ceph", "cifs", "davfs2", "glusterfs", "lustre", "nfs", "nfs4",
	"smbfs", "fuse.sshfs", "fuse.rclone", "fuse.s3fs", "fuse.gcsfuse",
}

var pseudoFSTypes = func() map[string]bool {
	m := make(map[string]bool, len(skippedFSTypes))
	for _, fs := range skippedFSTypes {
		m[fs] = true
	}
	return m
}()

// systemMountPrefixes are OS-internal volumes (macOS) excluded from totals.
var systemMountPrefixes = []string{"/System/Volumes/", "/private/var/vm"}

func isSystemMount(mount string) bool {
	for _, prefix := range systemMountPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// PartitionUsage is the outcome of querying one mounted partition.
// Err is set when the usage query failed; such partitions are skipped.
type PartitionUsage struct {
	Mount string
	Total uint64
	Used  uint64
	Err   error
}

// partitionUsages queries every local, non-pseudo partition.
func partitionUsages(ctx context.Context) ([]PartitionUsage, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	results := make([]PartitionUsage, 0, len(partitions))
	for _, p := range partitions {
		if pseudoFSTypes[p.Fstype] || isSystemMount(p.Mountpoint) {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			results = append(results, PartitionUsage{Mount: p.Mountpoint, Err: err})
			continue
		}
		results = append(results, PartitionUsage{
			Mount: p.Mountpoint,
			Total: usage.Total,
			Used:  usage.Used,
		})
	}
	return results, nil
}

// SumUsage adds up the partitions whose query succeeded.
func SumUsage(results []PartitionUsage) (used, total uint64, skipped int) {
	for _, r := range results {
		if r.Err != nil {
			skipped++
			continue
		}
		used += r.Used
		total += r.Total
	}
	return used, total, skipped
}

// DiskCollector collects used-space percent summed across partitions.
type DiskCollector struct{}

// NewDiskCollector creates a new disk collector.
func NewDiskCollector() *DiskCollector {
	return &DiskCollector{}
}

// Name returns the collector identifier.
func (c *DiskCollector) Name() string { return "disk" }

// Collect sums usage over all accessible partitions.
// Inaccessible partitions are skipped.
func (c *DiskCollector) Collect(ctx context.Context) (models.MetricSample, error) {
	results, err := partitionUsages(ctx)
	if err != nil {
		return models.MetricSample{}, err
	}
	used, total, _ := SumUsage(results)

	var percent float64
	if total > 0 {
		percent = float64(used) / float64(total) * 100
	}
	return models.MetricSample{
		MetricType: models.MetricDisk,
		Value:      round2(percent),
		Unit:       "%",
	}, nil
}

// IsAvailable returns true: disk metrics are available on all platforms.
func (c *DiskCollector) IsAvailable() bool { return true }

// DiskIOCollector reports combined disk read+write throughput in MB/s.
// The first collection reports 0 while establishing a baseline.
type DiskIOCollector struct {
	rate RateSampler
	now  func() time.Time
}

// NewDiskIOCollector creates a new disk I/O collector.
func NewDiskIOCollector() *DiskIOCollector {
	return &DiskIOCollector{now: time.Now}
}

// Name returns the collector identifier.
func (c *DiskIOCollector) Name() string { return "io" }

// Collect reads per-device counters and converts the summed delta to MB/s.
func (c *DiskIOCollector) Collect(ctx context.Context) (models.MetricSample, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return models.MetricSample{}, err
	}

	var total uint64
	for _, stat := range counters {
		total += stat.ReadBytes + stat.WriteBytes
	}

	return models.MetricSample{
		MetricType: models.MetricIO,
		Value:      round2(c.rate.Observe(total, c.now()) / 1024 / 1024),
		Unit:       "MB/s",
	}, nil
}

// IsAvailable returns true: disk counters are available on all platforms.
func (c *DiskIOCollector) IsAvailable() bool { return true }
