// Package recovery restores component state after a restart. Components register
// a Recoverable and the Manager runs them once at startup, before the engine
// accepts input.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/store"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context, registry *Registry) error
}

// Registry provides services that components can use during recovery
type Registry struct {
	events store.EventStore
	now    func() time.Time
}

// NewRegistry creates a new recovery registry
func NewRegistry(events store.EventStore, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{events: events, now: now}
}

// OpenEvents returns the events still Active in the store, oldest first.
func (r *Registry) OpenEvents() ([]models.SOSEvent, error) {
	all, err := r.events.ListEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	var open []models.SOSEvent
	for _, ev := range all {
		if ev.Status == models.EventStatusActive {
			open = append(open, ev)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

// CloseEvent marks an open event with a final status at the registry's current time.
func (r *Registry) CloseEvent(id int64, status models.EventStatus) error {
	if err := r.events.UpdateEventStatus(id, status, r.now()); err != nil {
		return fmt.Errorf("failed to close event %d: %w", id, err)
	}
	slog.Info("Recovery closed stale event", "eventID", id, "status", status)
	return nil
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Manager orchestrates recovery of all registered components
type Manager struct {
	registry     *Registry
	recoverables []Recoverable
}

// NewManager creates a new recovery manager
func NewManager(events store.EventStore, now func() time.Time) *Manager {
	return &Manager{registry: NewRegistry(events, now)}
}

// Register adds a component that can be recovered. Components run in
// registration order.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RecoverAll performs recovery of all registered components. A failing component
// does not stop the others.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting application recovery", "components", len(m.recoverables))

	recoveredCount := 0
	errorCount := 0
	for _, r := range m.recoverables {
		if err := r.RecoverState(ctx, m.registry); err != nil {
			slog.Error("Component recovery failed", "error", err, "component", fmt.Sprintf("%T", r))
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("Application recovery completed", "recovered", recoveredCount, "errors", errorCount)
	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(m.recoverables))
	}
	return nil
}

// Registry exposes the recovery registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}
