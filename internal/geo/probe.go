// Package geo acquires best-effort device snapshots: a position fix from a
// Locator and battery/network vitals from a VitalsReader.
package geo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

// DefaultLocateTimeout bounds a single location acquisition.
const DefaultLocateTimeout = 5 * time.Second

// Locator is the location capability supplied by the host platform.
type Locator interface {
	Locate(ctx context.Context) (*models.Location, error)
}

// Vitals is the battery and network state of the device.
type Vitals struct {
	BatteryLevel int
	IsCharging   bool
	NetworkType  string
}

// VitalsReader reads device vitals.
type VitalsReader interface {
	ReadVitals(ctx context.Context) (Vitals, error)
}

// Opts holds configuration options for the Probe.
type Opts struct {
	Timeout time.Duration
	Now     func() time.Time
}

// Option defines a configuration option for the Probe.
type Option func(*Opts)

// WithTimeout overrides the location acquisition timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithNow overrides the time source used to stamp snapshots.
func WithNow(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Probe composes a Locator and a VitalsReader into DeviceSnapshots.
// It is a pure query and holds no state between calls.
type Probe struct {
	locator Locator
	vitals  VitalsReader
	timeout time.Duration
	now     func() time.Time
}

// NewProbe creates a Probe. Either capability may be nil; the corresponding
// snapshot fields are then left absent.
func NewProbe(locator Locator, vitals VitalsReader, opts ...Option) *Probe {
	cfg := Opts{Timeout: DefaultLocateTimeout, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Probe created", "hasLocator", locator != nil, "hasVitals", vitals != nil, "timeout", cfg.Timeout)
	return &Probe{locator: locator, vitals: vitals, timeout: cfg.Timeout, now: cfg.Now}
}

// Snapshot captures the current device state. It never fails: a locator error or
// timeout yields a snapshot without location.
func (p *Probe) Snapshot(ctx context.Context) models.DeviceSnapshot {
	snap := models.DeviceSnapshot{BatteryLevel: -1, NetworkType: NetworkUnknown, CapturedAt: p.now()}

	if p.vitals != nil {
		v, err := p.vitals.ReadVitals(ctx)
		if err != nil {
			slog.Warn("Probe vitals unavailable", "error", err)
		} else {
			snap.BatteryLevel = v.BatteryLevel
			snap.IsCharging = v.IsCharging
			snap.NetworkType = v.NetworkType
		}
	}

	loc, err := p.locate(ctx)
	if err != nil {
		slog.Warn("Probe location unavailable", "error", err)
		return snap
	}
	snap.Location = loc
	slog.Debug("Probe snapshot acquired", "lat", loc.Latitude, "lon", loc.Longitude, "accuracy", loc.Accuracy)
	return snap
}

// locate runs the locator in its own goroutine so a locator that ignores its
// context still cannot hold the caller past the timeout.
func (p *Probe) locate(ctx context.Context) (*models.Location, error) {
	if p.locator == nil {
		return nil, &models.TransientError{Capability: "location", Err: models.ErrLocationUnavailable}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		loc *models.Location
		err error
	}
	done := make(chan result, 1)
	go func() {
		loc, err := p.locator.Locate(ctx)
		done <- result{loc, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, &models.TransientError{Capability: "location", Err: r.err}
		}
		if r.loc == nil {
			return nil, &models.TransientError{Capability: "location", Err: models.ErrLocationUnavailable}
		}
		return r.loc, nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(models.ErrLocationUnavailable, err)
		}
		return nil, &models.TransientError{Capability: "location", Err: err}
	}
}
