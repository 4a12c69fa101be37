// Package analytics derives safety statistics from the SOS event log.
//
// The functions in this file are pure: they take a snapshot of events and never
// touch the store. Service adds caching on top.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/geo"
	"github.com/BTreeMap/SafeSignal/internal/models"
)

const (
	MaxScore        = 100
	PenaltyPerEvent = 10
	// DefaultWindow is the trailing period counted by Score.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultHotspotRadius is the cluster join distance in meters.
	DefaultHotspotRadius = 500.0
)

// Score starts at MaxScore and loses PenaltyPerEvent for every event created
// within window before now, floored at 0.
func Score(events []models.SOSEvent, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	recent := 0
	for _, ev := range events {
		if !ev.CreatedAt.Before(cutoff) {
			recent++
		}
	}
	score := MaxScore - PenaltyPerEvent*recent
	if score < 0 {
		return 0
	}
	return score
}

// PeakHour returns the hour of day (0-23, in loc) with the most events. Ties go to
// the lowest hour. It returns -1 when there are no events.
func PeakHour(events []models.SOSEvent, loc *time.Location) int {
	if len(events) == 0 {
		return -1
	}
	if loc == nil {
		loc = time.Local
	}
	var counts [24]int
	for _, ev := range events {
		counts[ev.CreatedAt.In(loc).Hour()]++
	}
	peak := 0
	for h := 1; h < 24; h++ {
		if counts[h] > counts[peak] {
			peak = h
		}
	}
	return peak
}

// StreakDays returns the whole days elapsed since the most recent event, or -1
// when there are no events.
func StreakDays(events []models.SOSEvent, now time.Time) int {
	if len(events) == 0 {
		return -1
	}
	latest := events[0].CreatedAt
	for _, ev := range events[1:] {
		if ev.CreatedAt.After(latest) {
			latest = ev.CreatedAt
		}
	}
	elapsed := now.Sub(latest)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// Hotspots clusters located events greedily in creation order. An event joins the
// nearest cluster whose running centroid is within radius meters, otherwise it
// starts a new cluster. Events without a position are skipped.
func Hotspots(events []models.SOSEvent, radius float64) []models.Hotspot {
	ordered := make([]models.SOSEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var clusters []models.Hotspot
	for _, ev := range ordered {
		lat, lon, ok := ev.Location()
		if !ok {
			continue
		}
		best, bestDist := -1, math.Inf(1)
		for i, c := range clusters {
			d := geo.Distance(c.Centroid.Latitude, c.Centroid.Longitude, lat, lon)
			if d <= radius && d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			clusters = append(clusters, models.Hotspot{
				Centroid:    models.Coordinate{Latitude: lat, Longitude: lon},
				MemberCount: 1,
				EventIDs:    []int64{ev.ID},
			})
			continue
		}
		c := &clusters[best]
		n := float64(c.MemberCount)
		c.Centroid.Latitude = (c.Centroid.Latitude*n + lat) / (n + 1)
		c.Centroid.Longitude = (c.Centroid.Longitude*n + lon) / (n + 1)
		c.MemberCount++
		c.EventIDs = append(c.EventIDs, ev.ID)
	}
	return clusters
}

// Opts holds configuration options for report generation.
type Opts struct {
	Window   time.Duration
	Radius   float64
	Location *time.Location
}

// Option defines a configuration option for report generation.
type Option func(*Opts)

// WithWindow overrides the Score window.
func WithWindow(d time.Duration) Option {
	return func(o *Opts) { o.Window = d }
}

// WithHotspotRadius overrides the clustering radius in meters.
func WithHotspotRadius(meters float64) Option {
	return func(o *Opts) { o.Radius = meters }
}

// WithLocation sets the time zone used for peak hours.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{Window: DefaultWindow, Radius: DefaultHotspotRadius, Location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Report computes every statistic over events.
func Report(events []models.SOSEvent, now time.Time, opts ...Option) models.SafetyReport {
	cfg := buildOpts(opts)
	byStatus := make(map[models.EventStatus]int)
	for _, ev := range events {
		byStatus[ev.Status]++
	}
	hotspots := Hotspots(events, cfg.Radius)
	if hotspots == nil {
		hotspots = []models.Hotspot{}
	}
	return models.SafetyReport{
		Score:       Score(events, now, cfg.Window),
		PeakHour:    PeakHour(events, cfg.Location),
		StreakDays:  StreakDays(events, now),
		Hotspots:    hotspots,
		TotalEvents: len(events),
		ByStatus:    byStatus,
		GeneratedAt: now,
	}
}
