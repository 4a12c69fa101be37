package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/recovery"
)

const (
	// DefaultCacheTTL bounds how stale a cached report may get; StreakDays moves
	// with the clock even when no events change.
	DefaultCacheTTL = 10 * time.Minute
	reportKey       = "safety_report"
)

// EventLister is the read side of the event log.
type EventLister interface {
	ListEvents() ([]models.SOSEvent, error)
}

// Service serves cached safety reports. It never writes to the event log.
type Service struct {
	events EventLister
	cache  *gocache.Cache
	now    func() time.Time
	opts   []Option
	// gen counts invalidations so a refresh that raced one is not cached.
	mu  sync.Mutex
	gen uint64
}

// NewService creates a Service over events.
func NewService(events EventLister, ttl time.Duration, now func() time.Time, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		events: events,
		cache:  gocache.New(ttl, 2*ttl),
		now:    now,
		opts:   opts,
	}
}

// Report returns the cached report, computing it on a miss.
func (s *Service) Report() (models.SafetyReport, error) {
	if v, ok := s.cache.Get(reportKey); ok {
		return v.(models.SafetyReport), nil
	}
	return s.Refresh()
}

// Refresh recomputes the report and caches it. The report is returned but not
// cached when the log was invalidated while it was being computed.
func (s *Service) Refresh() (models.SafetyReport, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	events, err := s.events.ListEvents()
	if err != nil {
		slog.Error("Analytics failed to list events", "error", err)
		return models.SafetyReport{}, fmt.Errorf("failed to list events: %w", err)
	}
	report := Report(events, s.now(), s.opts...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		slog.Debug("Analytics report superseded by invalidation, not caching", "events", report.TotalEvents)
		return report, nil
	}
	s.cache.SetDefault(reportKey, report)
	slog.Debug("Analytics report refreshed", "events", report.TotalEvents, "score", report.Score, "hotspots", len(report.Hotspots))
	return report, nil
}

// Invalidate drops the cached report. The engine calls it when the log changes.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cache.Delete(reportKey)
}

// RecoverState warms the cache after a restart. It runs after the engine so the
// report reflects events closed during recovery.
func (s *Service) RecoverState(ctx context.Context, registry *recovery.Registry) error {
	_, err := s.Refresh()
	return err
}
