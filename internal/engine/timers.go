package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/clock"
)

// Timer names used by the engine. Scheduling a name replaces any pending timer
// with the same name.
const (
	timerCountdown = "countdown"
	timerFollowUp  = "follow_up"
)

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	stopper     clock.Stopper
	scheduledAt time.Time
	expiresAt   time.Time
}

// TimerInfo describes a pending engine timer.
type TimerInfo struct {
	Name        string    `json:"name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// timerSet is a registry of named one-shot timers on an injectable clock.
type timerSet struct {
	clock  clock.Clock
	mu     sync.Mutex
	timers map[string]*timerEntry
}

func newTimerSet(c clock.Clock) *timerSet {
	return &timerSet{clock: c, timers: make(map[string]*timerEntry)}
}

// ScheduleAfter runs fn after delay under the given name.
func (t *timerSet) ScheduleAfter(name string, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[name]; ok {
		old.stopper.Stop()
	}
	now := t.clock.Now()
	entry := &timerEntry{scheduledAt: now, expiresAt: now.Add(delay)}
	entry.stopper = t.clock.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.timers[name] == entry {
			delete(t.timers, name)
		}
		t.mu.Unlock()
		fn()
	})
	t.timers[name] = entry
	slog.Debug("engine timer scheduled", "name", name, "delay", delay)
}

// Cancel stops a pending timer by name.
func (t *timerSet) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.timers[name]; ok {
		entry.stopper.Stop()
		delete(t.timers, name)
		slog.Debug("engine timer cancelled", "name", name)
	}
}

// Stop cancels all pending timers.
func (t *timerSet) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, entry := range t.timers {
		entry.stopper.Stop()
		slog.Debug("engine timer stopped", "name", name)
	}
	t.timers = make(map[string]*timerEntry)
}

// List returns the pending timers.
func (t *timerSet) List() []TimerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimerInfo, 0, len(t.timers))
	for name, entry := range t.timers {
		out = append(out, TimerInfo{Name: name, ScheduledAt: entry.scheduledAt, ExpiresAt: entry.expiresAt})
	}
	return out
}
