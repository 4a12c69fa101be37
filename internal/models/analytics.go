package models

import "time"

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Hotspot is a geographic cluster of historical events.
type Hotspot struct {
	Centroid    Coordinate `json:"centroid"`
	MemberCount int        `json:"member_count"`
	EventIDs    []int64    `json:"event_ids"`
}

// SafetyReport bundles the analytics shown by the UI layer. PeakHour and
// StreakDays are -1 when there are no events.
type SafetyReport struct {
	Score       int                 `json:"score"`
	PeakHour    int                 `json:"peak_hour"`
	StreakDays  int                 `json:"streak_days"`
	Hotspots    []Hotspot           `json:"hotspots"`
	TotalEvents int                 `json:"total_events"`
	ByStatus    map[EventStatus]int `json:"by_status"`
	GeneratedAt time.Time           `json:"generated_at"`
}
