// Service snapshot collector: the busiest processes by CPU usage.
// Uses gopsutil for cross-platform process listing.
package collector

import (
	"context"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
)

// DefaultServiceLimit caps the number of processes in one snapshot.
const DefaultServiceLimit = 50

const (
	statusRunning = "running"
	statusStopped = "stopped"
)

// normalizeStatus maps a raw gopsutil status to running/stopped. Only a
// process the OS reports as running counts as running.
func normalizeStatus(raw []string) string {
	if len(raw) > 0 && strings.EqualFold(strings.TrimSpace(raw[0]), process.Running) {
		return statusRunning
	}
	return statusStopped
}

// ServiceCollector snapshots the top N processes sorted by CPU usage.
type ServiceCollector struct {
	limit  int
	logger *zap.Logger
}

// NewServiceCollector creates a collector returning at most limit records.
func NewServiceCollector(limit int, logger *zap.Logger) *ServiceCollector {
	if limit <= 0 {
		limit = DefaultServiceLimit
	}
	return &ServiceCollector{limit: limit, logger: logger}
}

// Collect enumerates processes, skipping PID 0 and any process that vanishes
// or denies access to its name, then returns the busiest ones.
func (c *ServiceCollector) Collect(ctx context.Context) ([]models.ServiceRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]models.ServiceRecord, 0, len(procs))
	skipped := 0
	for _, p := range procs {
		if p.Pid == 0 {
			continue
		}
		rec, err := snapshotProcess(ctx, p)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		c.logger.Debug("Skipped inaccessible processes", zap.Int("count", skipped))
	}

	return TopByCPU(records, c.limit), nil
}

// TopByCPU sorts records by CPU percent descending, keeping enumeration order
// among ties, and truncates to limit.
func TopByCPU(records []models.ServiceRecord, limit int) []models.ServiceRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CPUPercent > records[j].CPUPercent
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

// snapshotProcess reads one process. Only a missing name is fatal for the
// record; every other attribute falls back to its zero value.
func snapshotProcess(ctx context.Context, p *process.Process) (models.ServiceRecord, error) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return models.ServiceRecord{}, err
	}
	if name == "" {
		name = "unknown"
	}

	rec := models.ServiceRecord{
		Name: name,
		PID:  p.Pid,
		User: "unknown",
	}

	if cpuPct, err := p.CPUPercentWithContext(ctx); err == nil {
		rec.CPUPercent = round2(cpuPct)
	}
	if memPct, err := p.MemoryPercentWithContext(ctx); err == nil {
		rec.MemoryPercent = round2(float64(memPct))
	}
	if info, err := p.MemoryInfoWithContext(ctx); err == nil && info != nil {
		rec.MemoryMB = round2(bytesToMB(info.RSS))
	}
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		rec.DiskReadMB = round2(bytesToMB(io.ReadBytes))
		rec.DiskWriteMB = round2(bytesToMB(io.WriteBytes))
	}
	if user, err := p.UsernameWithContext(ctx); err == nil && user != "" {
		rec.User = user
	}
	if cmd, err := p.CmdlineSliceWithContext(ctx); err == nil {
		rec.Command = strings.Join(cmd, " ")
	}

	status, _ := p.StatusWithContext(ctx)
	rec.Status = normalizeStatus(status)

	return rec, nil
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
