package collector

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
)

const (
	fallbackIP = "127.0.0.1"

	// probeAddr is only used to select the outbound interface; UDP dial
	// sends no packets.
	probeAddr = "8.8.8.8:80"
)

var osTypeNames = map[string]string{
	"linux":   "Linux",
	"darwin":  "Darwin",
	"windows": "Windows",
	"freebsd": "FreeBSD",
}

// HostInventory gathers the registration inventory. Every field is best
// effort: a failing probe leaves its zero value and is logged.
func HostInventory(ctx context.Context, logger *zap.Logger) models.Inventory {
	inv := models.Inventory{
		IPAddress: OutboundIP(ctx),
		OSType:    osTypeName(runtime.GOOS),
		OSVersion: runtime.GOOS,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		inv.OSVersion = formatOSVersion(info.Platform, info.PlatformVersion, info.KernelVersion, info.KernelArch)
	} else {
		logger.Warn("Host info unavailable", zap.Error(err))
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		inv.CPUCores = n
	} else {
		logger.Warn("CPU count unavailable", zap.Error(err))
	}

	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		inv.TotalMemory = v.Total
	} else {
		logger.Warn("Memory total unavailable", zap.Error(err))
	}

	if results, err := partitionUsages(ctx); err == nil {
		_, total, skipped := SumUsage(results)
		inv.TotalDisk = total
		if skipped > 0 {
			logger.Debug("Skipped partitions in disk total", zap.Int("count", skipped))
		}
	} else {
		logger.Warn("Disk partitions unavailable", zap.Error(err))
	}

	return inv
}

// OutboundIP returns the local address the OS would route external traffic
// from, or 127.0.0.1.
func OutboundIP(ctx context.Context) string {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", probeAddr)
	if err != nil {
		return fallbackIP
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}
	return fallbackIP
}

func osTypeName(goos string) string {
	if name, ok := osTypeNames[goos]; ok {
		return name
	}
	return goos
}

func formatOSVersion(platform, version, kernel, arch string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{platform, version} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := strings.Join(parts, " ")
	if kernel != "" {
		out = strings.TrimSpace(fmt.Sprintf("%s (kernel %s", out, kernel))
		if arch != "" {
			out += " " + arch
		}
		out += ")"
	}
	if out == "" {
		return runtime.GOOS
	}
	return out
}
