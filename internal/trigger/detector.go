// Package trigger recognizes emergency gestures in a stream of raw input tokens.
package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

type stampedToken struct {
	token models.InputToken
	at    time.Time
}

// matcher holds the rolling state for one configured pattern.
type matcher struct {
	pattern models.TriggerPattern
	buf     []stampedToken
	count   int
	last    time.Time
}

// Detector matches raw input tokens against configured trigger patterns.
// It is safe for concurrent use.
type Detector struct {
	mu       sync.Mutex
	matchers []*matcher
}

// NewDetector creates a detector for the given patterns. Malformed patterns are
// skipped and returned as configuration warnings.
func NewDetector(patterns []models.TriggerPattern) (*Detector, []error) {
	d := &Detector{}
	var warnings []error
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			slog.Warn("Detector skipping malformed trigger pattern", "kind", p.Kind, "error", err)
			warnings = append(warnings, err)
			continue
		}
		d.matchers = append(d.matchers, &matcher{pattern: p})
	}
	slog.Debug("Detector created", "patterns", len(d.matchers), "skipped", len(warnings))
	return d, warnings
}

// Observe feeds one raw token into every matcher. It returns the trigger event when
// a pattern completes. All matchers are reset after a match so a single physical
// gesture never fires twice.
func (d *Detector) Observe(token models.InputToken, at time.Time) (models.TriggerEvent, bool) {
	if !models.IsValidInputToken(token) {
		slog.Debug("Detector ignoring unknown input token", "token", token)
		return models.TriggerEvent{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, m := range d.matchers {
		if !m.accepts(token) {
			continue
		}
		if m.observe(token, at) {
			for _, other := range d.matchers {
				other.reset()
			}
			slog.Info("Detector pattern matched", "kind", m.pattern.Kind, "at", at)
			return models.TriggerEvent{Kind: m.pattern.Kind, FiredAt: at}, true
		}
	}
	return models.TriggerEvent{}, false
}

// Reset clears every matcher.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.matchers {
		m.reset()
	}
}

// Patterns returns the active (validated) patterns.
func (d *Detector) Patterns() []models.TriggerPattern {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.TriggerPattern, 0, len(d.matchers))
	for _, m := range d.matchers {
		out = append(out, m.pattern)
	}
	return out
}

func (m *matcher) accepts(token models.InputToken) bool {
	switch m.pattern.Kind {
	case models.TriggerButtonSequence:
		return token == models.TokenVolumeUp || token == models.TokenVolumeDown
	case models.TriggerShakeCount:
		return token == models.TokenShake
	case models.TriggerPowerPressCount:
		return token == models.TokenPowerPress
	}
	return false
}

func (m *matcher) observe(token models.InputToken, at time.Time) bool {
	if m.pattern.Kind == models.TriggerButtonSequence {
		return m.observeSequence(token, at)
	}
	return m.observeCount(at)
}

// observeSequence appends the token, drops the stale prefix and tests the suffix.
func (m *matcher) observeSequence(token models.InputToken, at time.Time) bool {
	m.buf = append(m.buf, stampedToken{token: token, at: at})

	cut := 0
	for cut < len(m.buf) && at.Sub(m.buf[cut].at) > m.pattern.Window {
		cut++
	}
	// Only the last len(sequence) tokens can ever take part in a match.
	if over := len(m.buf) - len(m.pattern.Sequence); over > cut {
		cut = over
	}
	m.buf = m.buf[cut:]

	seq := m.pattern.Sequence
	if len(m.buf) < len(seq) {
		return false
	}
	tail := m.buf[len(m.buf)-len(seq):]
	for i := range seq {
		if tail[i].token != seq[i] {
			return false
		}
	}
	return true
}

func (m *matcher) observeCount(at time.Time) bool {
	if m.count > 0 && at.Sub(m.last) > m.pattern.Window {
		m.count = 0
	}
	m.count++
	m.last = at
	return m.count >= m.pattern.Count
}

func (m *matcher) reset() {
	m.buf = m.buf[:0]
	m.count = 0
	m.last = time.Time{}
}
