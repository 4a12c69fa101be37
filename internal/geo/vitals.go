package geo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/net"
)

// Network types reported in snapshots.
const (
	NetworkWiFi     = "wifi"
	NetworkCellular = "cellular"
	NetworkEthernet = "ethernet"
	NetworkNone     = "none"
	NetworkUnknown  = "unknown"
)

// DefaultPowerSupplyDir is where Linux exposes battery state.
const DefaultPowerSupplyDir = "/sys/class/power_supply"

// SystemVitals reads vitals from the host: network type from the active
// interfaces and battery state from the power supply class.
type SystemVitals struct {
	powerSupplyDir string
}

// NewSystemVitals creates a reader rooted at powerSupplyDir (DefaultPowerSupplyDir if empty).
func NewSystemVitals(powerSupplyDir string) *SystemVitals {
	if powerSupplyDir == "" {
		powerSupplyDir = DefaultPowerSupplyDir
	}
	return &SystemVitals{powerSupplyDir: powerSupplyDir}
}

// ReadVitals returns the current battery and network state. A host without a
// battery reports level 100 and charging.
func (s *SystemVitals) ReadVitals(ctx context.Context) (Vitals, error) {
	v := Vitals{BatteryLevel: 100, IsCharging: true, NetworkType: NetworkUnknown}

	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return v, fmt.Errorf("failed to list network interfaces: %w", err)
	}
	v.NetworkType = classifyNetwork(ifaces)

	level, charging, ok := s.readBattery()
	if ok {
		v.BatteryLevel = level
		v.IsCharging = charging
	}
	return v, nil
}

// classifyNetwork picks the best connectivity among interfaces that are up,
// preferring wifi, then ethernet, then cellular.
func classifyNetwork(ifaces net.InterfaceStatList) string {
	rank := map[string]int{NetworkWiFi: 3, NetworkEthernet: 2, NetworkCellular: 1}
	best := NetworkNone
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		kind := interfaceKind(iface.Name)
		if rank[kind] > rank[best] {
			best = kind
		}
	}
	return best
}

func interfaceKind(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"):
		return NetworkWiFi
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ccmni"):
		return NetworkCellular
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return NetworkEthernet
	}
	return NetworkNone
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// readBattery reads the first BAT* supply. ok is false when no battery exists.
func (s *SystemVitals) readBattery() (level int, charging bool, ok bool) {
	matches, err := filepath.Glob(filepath.Join(s.powerSupplyDir, "BAT*"))
	if err != nil || len(matches) == 0 {
		return 0, false, false
	}
	raw, err := os.ReadFile(filepath.Join(matches[0], "capacity"))
	if err != nil {
		return 0, false, false
	}
	level, err = strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false, false
	}
	if level < 0 {
		level = 0
	} else if level > 100 {
		level = 100
	}
	status, _ := os.ReadFile(filepath.Join(matches[0], "status"))
	switch strings.TrimSpace(string(status)) {
	case "Charging", "Full":
		charging = true
	}
	return level, charging, true
}
