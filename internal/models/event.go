package models

import "time"

// Location is a best-effort position fix. Accuracy is in meters.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Address   string  `json:"address,omitempty"`
}

// DeviceSnapshot is a point-in-time capture of location and device vitals.
// Location is nil when no fix could be acquired.
type DeviceSnapshot struct {
	Location     *Location `json:"location,omitempty"`
	BatteryLevel int       `json:"battery_level"`
	IsCharging   bool      `json:"is_charging"`
	NetworkType  string    `json:"network_type"`
	CapturedAt   time.Time `json:"captured_at"`
}

// HasLocation reports whether the snapshot carries a position fix.
func (s DeviceSnapshot) HasLocation() bool {
	return s.Location != nil
}

// EventStatus is the lifecycle status of an SOSEvent.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusResolved  EventStatus = "resolved"
	EventStatusCancelled EventStatus = "cancelled"
)

// IsValidEventStatus checks if the given status is a known event status.
func IsValidEventStatus(s EventStatus) bool {
	switch s {
	case EventStatusActive, EventStatusResolved, EventStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an event may move from s to next.
// Only Active -> {Resolved, Cancelled} is legal.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	return s == EventStatusActive && (next == EventStatusResolved || next == EventStatusCancelled)
}

// SOSEvent is the durable record of one emergency activation.
// Location fields are nil when the activation had no position fix.
type SOSEvent struct {
	ID           int64       `json:"id"`
	TriggerType  TriggerKind `json:"trigger_type"`
	Latitude     *float64    `json:"latitude,omitempty"`
	Longitude    *float64    `json:"longitude,omitempty"`
	Accuracy     *float64    `json:"accuracy,omitempty"`
	Address      string      `json:"address,omitempty"`
	BatteryLevel int         `json:"battery_level"`
	IsCharging   bool        `json:"is_charging"`
	NetworkType  string      `json:"network_type"`
	Status       EventStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
}

// NewSOSEvent builds an Active event from a snapshot. The ID is assigned by the store.
func NewSOSEvent(kind TriggerKind, snap DeviceSnapshot, createdAt time.Time) SOSEvent {
	ev := SOSEvent{
		TriggerType:  kind,
		BatteryLevel: snap.BatteryLevel,
		IsCharging:   snap.IsCharging,
		NetworkType:  snap.NetworkType,
		Status:       EventStatusActive,
		CreatedAt:    createdAt,
	}
	if loc := snap.Location; loc != nil {
		lat, lon, acc := loc.Latitude, loc.Longitude, loc.Accuracy
		ev.Latitude = &lat
		ev.Longitude = &lon
		ev.Accuracy = &acc
		ev.Address = loc.Address
	}
	return ev
}

// Location returns the event position, if recorded.
func (e SOSEvent) Location() (lat, lon float64, ok bool) {
	if e.Latitude == nil || e.Longitude == nil {
		return 0, 0, false
	}
	return *e.Latitude, *e.Longitude, true
}
