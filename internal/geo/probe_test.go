package geo

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/shirou/gopsutil/v3/net"
)

type blockingLocator struct{}

func (blockingLocator) Locate(ctx context.Context) (*models.Location, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubbornLocator struct{ release chan struct{} }

// Locate ignores its context entirely.
func (s stubbornLocator) Locate(ctx context.Context) (*models.Location, error) {
	<-s.release
	return &models.Location{Latitude: 1, Longitude: 1}, nil
}

type failingLocator struct{}

func (failingLocator) Locate(ctx context.Context) (*models.Location, error) {
	return nil, errors.New("no gps fix")
}

type fixedVitals struct{}

func (fixedVitals) ReadVitals(ctx context.Context) (Vitals, error) {
	return Vitals{BatteryLevel: 42, IsCharging: false, NetworkType: NetworkCellular}, nil
}

func TestProbe_SnapshotWithLocation(t *testing.T) {
	p := NewProbe(NewStaticLocator(37.7749, -122.4194, 12, "San Francisco"), fixedVitals{})
	snap := p.Snapshot(context.Background())
	if !snap.HasLocation() {
		t.Fatal("expected location")
	}
	if snap.Location.Latitude != 37.7749 || snap.Location.Longitude != -122.4194 {
		t.Errorf("unexpected location: %+v", snap.Location)
	}
	if snap.BatteryLevel != 42 || snap.NetworkType != NetworkCellular {
		t.Errorf("unexpected vitals: %+v", snap)
	}
}

func TestProbe_TimeoutYieldsAbsentLocation(t *testing.T) {
	p := NewProbe(blockingLocator{}, fixedVitals{}, WithTimeout(20*time.Millisecond))
	start := time.Now()
	snap := p.Snapshot(context.Background())
	if snap.HasLocation() {
		t.Error("timed out locate must leave location absent")
	}
	if time.Since(start) > time.Second {
		t.Error("probe did not honor its timeout")
	}
	if snap.BatteryLevel != 42 {
		t.Error("vitals should still be captured")
	}
}

func TestProbe_LocatorIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := NewProbe(stubbornLocator{release: release}, nil, WithTimeout(20*time.Millisecond))
	snap := p.Snapshot(context.Background())
	if snap.HasLocation() {
		t.Error("expected absent location")
	}
	if snap.BatteryLevel != -1 || snap.NetworkType != NetworkUnknown {
		t.Errorf("missing vitals reader should leave unknown vitals, got %+v", snap)
	}
}

func TestProbe_LocatorError(t *testing.T) {
	p := NewProbe(failingLocator{}, nil)
	if p.Snapshot(context.Background()).HasLocation() {
		t.Error("locator error must yield absent location")
	}
	if NewProbe(nil, nil).Snapshot(context.Background()).HasLocation() {
		t.Error("nil locator must yield absent location")
	}
}

func TestDistance(t *testing.T) {
	// San Francisco to Los Angeles is roughly 559 km.
	d := Distance(37.7749, -122.4194, 34.0522, -118.2437)
	if math.Abs(d-559000) > 5000 {
		t.Errorf("unexpected distance %f", d)
	}
	if Distance(10, 10, 10, 10) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestClassifyNetwork(t *testing.T) {
	ifaces := net.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}},
		{Name: "rmnet0", Flags: []string{"up"}},
		{Name: "wlan0", Flags: []string{"broadcast"}},
	}
	if got := classifyNetwork(ifaces); got != NetworkCellular {
		t.Errorf("expected cellular, got %s", got)
	}
	ifaces[2].Flags = []string{"up", "broadcast"}
	if got := classifyNetwork(ifaces); got != NetworkWiFi {
		t.Errorf("expected wifi, got %s", got)
	}
	if got := classifyNetwork(nil); got != NetworkNone {
		t.Errorf("expected none, got %s", got)
	}
}

func TestSystemVitals_ReadBattery(t *testing.T) {
	dir := t.TempDir()
	bat := filepath.Join(dir, "BAT0")
	if err := os.MkdirAll(bat, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(bat, "capacity"), []byte("57\n"), 0644)
	os.WriteFile(filepath.Join(bat, "status"), []byte("Charging\n"), 0644)

	level, charging, ok := NewSystemVitals(dir).readBattery()
	if !ok || level != 57 || !charging {
		t.Errorf("unexpected battery read: level=%d charging=%v ok=%v", level, charging, ok)
	}

	if _, _, ok := NewSystemVitals(t.TempDir()).readBattery(); ok {
		t.Error("host without battery should report ok=false")
	}
}
