// Package identity derives the agent's hardware identifier, composes its
// external identity, and generates API tokens.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"
)

const (
	hwidLength = 16

	// fallbackHardwareAddr stands in for the MAC when no interface exposes one.
	fallbackHardwareAddr = "00:00:00:00:00:00"

	fallbackHostname = "localhost"

	tokenEntropyBytes = 32
)

// machineIDPaths are checked in order; the first readable one wins.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// Identity is the agent's external identity. AgentID is HWID + "-" + Hostname.
type Identity struct {
	HWID     string
	Hostname string
	AgentID  string
}

// New composes an Identity from a hardware id and hostname.
func New(hwid, hostname string) Identity {
	return Identity{
		HWID:     hwid,
		Hostname: hostname,
		AgentID:  hwid + "-" + hostname,
	}
}

// Resolve builds the Identity, deriving the hardware id and reading the OS
// hostname for whichever of the pinned values are empty.
func Resolve(ctx context.Context, hwid, hostname string) Identity {
	if hwid == "" {
		hwid = HWID(ctx)
	}
	if hostname == "" {
		name, err := os.Hostname()
		if err != nil || name == "" {
			name = fallbackHostname
		}
		hostname = name
	}
	return New(hwid, hostname)
}

// Fingerprint is the hardware input to the HWID hash.
type Fingerprint struct {
	HardwareAddr string
	MachineID    string
	Arch         string
}

// Probe gathers the fingerprint of the current host. Missing parts are left
// empty; probing never fails.
func Probe(ctx context.Context) Fingerprint {
	return Fingerprint{
		HardwareAddr: primaryHardwareAddr(ctx),
		MachineID:    readMachineID(machineIDPaths),
		Arch:         kernelArch(ctx),
	}
}

// Derive hashes a fingerprint into a 16-hex-character identifier.
func Derive(f Fingerprint) string {
	mac := f.HardwareAddr
	if mac == "" {
		mac = fallbackHardwareAddr
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", mac, f.MachineID, f.Arch)))
	return hex.EncodeToString(sum[:])[:hwidLength]
}

// HWID returns the stable hardware identifier of the current host.
func HWID(ctx context.Context) string {
	return Derive(Probe(ctx))
}

// GenerateAPIToken returns a 64-hex-character token hashed from the identity
// and 32 bytes from crypto/rand.
func GenerateAPIToken(hwid, hostname string) (string, error) {
	return generateAPIToken(rand.Reader, hwid, hostname)
}

func generateAPIToken(entropy io.Reader, hwid, hostname string) (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		return "", fmt.Errorf("reading token entropy: %w", err)
	}
	source := fmt.Sprintf("%s-%s-%s", hwid, hostname, hex.EncodeToString(buf))
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:]), nil
}

// primaryHardwareAddr picks the non-loopback interface with the lowest index
// that has a non-zero hardware address.
func primaryHardwareAddr(ctx context.Context) string {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return ""
	}
	sort.SliceStable(ifaces, func(i, j int) bool { return ifaces[i].Index < ifaces[j].Index })

	for _, iface := range ifaces {
		if isLoopback(iface.Flags) {
			continue
		}
		addr := strings.ToLower(iface.HardwareAddr)
		if addr == "" || addr == fallbackHardwareAddr {
			continue
		}
		return addr
	}
	return ""
}

func isLoopback(flags []string) bool {
	for _, f := range flags {
		if f == "loopback" {
			return true
		}
	}
	return false
}

// readMachineID returns the trimmed content of the first readable path, or "".
func readMachineID(paths []string) string {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	return ""
}

func kernelArch(ctx context.Context) string {
	arch, err := host.KernelArch()
	if err != nil || arch == "" {
		return runtime.GOARCH
	}
	return arch
}
