// Package engine implements the emergency state machine.
//
// The Engine owns the Idle -> Countdown -> Active -> Resolving lifecycle. Every
// transition runs under a single mutex, including the I/O it performs, so at most
// one transition is in flight. Readers never take that mutex: every transition
// publishes its resulting state under a separate lock. Timers carry the epoch in which they were
// scheduled; leaving a session bumps the epoch, which invalidates every pending
// countdown tick and follow-up atomically with the transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/clock"
	"github.com/BTreeMap/SafeSignal/internal/compose"
	"github.com/BTreeMap/SafeSignal/internal/metrics"
	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/store"
	"github.com/BTreeMap/SafeSignal/internal/trigger"
)

// ErrEngineClosed is returned by transitions requested after Close.
var ErrEngineClosed = errors.New("engine closed")

const (
	// DefaultQueueSize bounds detected triggers waiting for the consumer.
	DefaultQueueSize = 8
	// TickInterval is the countdown resolution.
	TickInterval = time.Second
)

// Snapshotter captures device state. geo.Probe satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context) models.DeviceSnapshot
}

// Notifier delivers alerts to contacts. dispatch.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, contacts []models.EmergencyContact, message string) models.DispatchResult
	Call(ctx context.Context, contacts []models.EmergencyContact, message string) models.DispatchResult
	HasSender() bool
	HasCaller() bool
}

// Opts holds configuration options for the Engine.
type Opts struct {
	Clock      clock.Clock
	Settings   models.UserSettings
	Personal   models.PersonalInfo
	Patterns   []models.TriggerPattern
	VoiceCalls bool
	QueueSize  int
	// OnEventChange is called after an SOSEvent is created or changes status.
	OnEventChange func()
}

// Option defines a configuration option for the Engine.
type Option func(*Opts)

// WithClock sets the time source; defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithSettings sets the initial user settings.
func WithSettings(s models.UserSettings) Option {
	return func(o *Opts) { o.Settings = s }
}

// WithPersonalInfo sets the personal details that may be appended to alerts.
func WithPersonalInfo(p models.PersonalInfo) Option {
	return func(o *Opts) { o.Personal = p }
}

// WithTriggerPatterns sets the gesture patterns recognized by SubmitRawInput.
func WithTriggerPatterns(p []models.TriggerPattern) Option {
	return func(o *Opts) { o.Patterns = p }
}

// WithVoiceCalls enables calling contacts with EnableCall on activation.
func WithVoiceCalls(enabled bool) Option {
	return func(o *Opts) { o.VoiceCalls = enabled }
}

// WithQueueSize sets the capacity of the detected-trigger queue.
func WithQueueSize(n int) Option {
	return func(o *Opts) { o.QueueSize = n }
}

// WithEventChangeHook registers a callback for event log changes.
func WithEventChangeHook(fn func()) Option {
	return func(o *Opts) { o.OnEventChange = fn }
}

// Engine is the emergency state machine. Construct it with New and release it with Close.
type Engine struct {
	mu       sync.Mutex
	state    models.EngineState
	epoch    uint64
	settings models.UserSettings
	session  models.UserSettings // settings frozen at activation
	personal models.PersonalInfo
	closed   bool

	clock    clock.Clock
	timers   *timerSet
	probe    Snapshotter
	notifier Notifier
	events   store.EventStore
	contacts store.ContactStore
	detector *trigger.Detector
	voice    bool
	onChange func()

	queue  chan models.TriggerEvent
	ctx    context.Context
	cancel context.CancelFunc

	// pubMu guards the published view and the subscriber set.
	pubMu     sync.RWMutex
	published models.EngineState
	last      *models.ActivationReport
	subs      map[int]chan models.EngineState
	nextSub   int
}

// New creates an idle Engine. Invalid settings or trigger patterns are replaced or
// skipped and reported as ConfigurationError warnings.
func New(events store.EventStore, contacts store.ContactStore, probe Snapshotter, notifier Notifier, opts ...Option) (*Engine, []error) {
	cfg := Opts{
		Clock:     clock.Real(),
		Settings:  models.DefaultUserSettings(),
		Patterns:  models.DefaultTriggerPatterns(),
		QueueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	settings, warnings := cfg.Settings.Normalize()
	detector, patternWarnings := trigger.NewDetector(cfg.Patterns)
	warnings = append(warnings, patternWarnings...)
	for _, w := range warnings {
		slog.Warn("Engine configuration warning", "error", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		state:     models.IdleState(),
		published: models.IdleState(),
		settings:  settings,
		personal: cfg.Personal,
		clock:    cfg.Clock,
		timers:   newTimerSet(cfg.Clock),
		probe:    probe,
		notifier: notifier,
		events:   events,
		contacts: contacts,
		detector: detector,
		voice:    cfg.VoiceCalls,
		onChange: cfg.OnEventChange,
		queue:    make(chan models.TriggerEvent, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]chan models.EngineState),
	}
	metrics.SetPhase(string(models.PhaseIdle))
	slog.Debug("Engine created", "countdownSeconds", settings.CountdownSeconds, "patterns", len(detector.Patterns()), "voiceCalls", cfg.VoiceCalls)
	return e, warnings
}

// State returns the state published by the latest transition. It does not wait
// for a transition in flight.
func (e *Engine) State() models.EngineState {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	return e.published
}

// Settings returns the settings applied to the next activation.
func (e *Engine) Settings() models.UserSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings replaces the user settings. A running session keeps the
// settings it started with.
func (e *Engine) UpdateSettings(s models.UserSettings) []error {
	s, warnings := s.Normalize()
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	slog.Info("Engine settings updated", "countdownSeconds", s.CountdownSeconds, "silentMode", s.SilentMode, "warnings", len(warnings))
	return warnings
}

// SetPersonalInfo replaces the personal details used by future alerts.
func (e *Engine) SetPersonalInfo(p models.PersonalInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.personal = p
}

// LastActivation returns the report of the most recent activation, if any.
func (e *Engine) LastActivation() *models.ActivationReport {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	return e.last
}

// Timers lists pending countdown and follow-up timers.
func (e *Engine) Timers() []TimerInfo {
	return e.timers.List()
}

// Trigger starts an emergency. With silentOverride, silent mode or a zero
// countdown the engine activates immediately and the result carries the
// activation report; otherwise it enters Countdown.
func (e *Engine) Trigger(ctx context.Context, kind models.TriggerKind, silentOverride bool) (models.TriggerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return models.TriggerResult{State: e.state}, ErrEngineClosed
	}
	if e.state.Phase != models.PhaseIdle {
		err := &models.InvariantError{Op: "trigger", State: e.state.Phase}
		slog.Warn("Engine rejected transition", "op", "trigger", "state", e.state.Phase)
		return models.TriggerResult{State: e.state}, err
	}

	silent := silentOverride || e.settings.SilentMode
	slog.Info("Engine trigger", "trigger", kind, "silent", silent, "countdownSeconds", e.settings.CountdownSeconds)
	if silent || e.settings.CountdownSeconds == 0 {
		report, err := e.activate(ctx, kind, silent)
		return models.TriggerResult{State: e.state, Activation: report}, err
	}

	e.setState(models.EngineState{
		Phase:     models.PhaseCountdown,
		Remaining: e.settings.CountdownSeconds,
		StartedAt: e.clock.Now(),
		Trigger:   kind,
	})
	e.scheduleTick(e.epoch)
	return models.TriggerResult{State: e.state}, nil
}

// Cancel aborts a countdown without creating a record, or ends an active
// emergency with status Cancelled.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Phase {
	case models.PhaseCountdown:
		e.endSession()
		slog.Info("Engine countdown cancelled")
		return nil
	case models.PhaseActive:
		return e.finish(ctx, models.EventStatusCancelled)
	default:
		slog.Warn("Engine rejected transition", "op", "cancel", "state", e.state.Phase)
		return &models.InvariantError{Op: "cancel", State: e.state.Phase}
	}
}

// Resolve ends an active emergency with status Resolved.
func (e *Engine) Resolve(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != models.PhaseActive {
		slog.Warn("Engine rejected transition", "op", "resolve", "state", e.state.Phase)
		return &models.InvariantError{Op: "resolve", State: e.state.Phase}
	}
	return e.finish(ctx, models.EventStatusResolved)
}

// SubmitRawInput feeds one input token to the trigger detector. A match is queued
// for Run and reported as true. The call never blocks on engine I/O.
func (e *Engine) SubmitRawInput(token models.InputToken, at time.Time) bool {
	ev, ok := e.detector.Observe(token, at)
	if !ok {
		return false
	}
	metrics.IncTriggerMatched(string(ev.Kind))
	select {
	case e.queue <- ev:
		slog.Debug("Engine trigger queued", "kind", ev.Kind, "firedAt", ev.FiredAt)
	default:
		slog.Warn("Engine trigger queue full, dropping trigger", "kind", ev.Kind)
	}
	return true
}

// Run consumes detected triggers until ctx is done or the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("Engine trigger consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case ev := <-e.queue:
			if _, err := e.Trigger(ctx, ev.Kind, false); err != nil {
				slog.Warn("Engine ignored detected trigger", "kind", ev.Kind, "error", err)
			}
		}
	}
}

// Subscribe returns a channel that receives the state after every transition.
// Slow readers only see the latest state. The returned func unsubscribes.
func (e *Engine) Subscribe() (<-chan models.EngineState, func()) {
	ch := make(chan models.EngineState, 1)

	e.pubMu.Lock()
	ch <- e.published
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.pubMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.pubMu.Lock()
			defer e.pubMu.Unlock()
			if _, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(ch)
			}
		})
	}
}

// Close stops timers and the trigger consumer. An active emergency stays open in
// the event store.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	e.closed = true
	e.epoch++
	e.timers.Stop()
	e.mu.Unlock()

	e.pubMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.pubMu.Unlock()
	slog.Info("Engine closed")
}

// setState replaces the state, publishes it to readers and notifies
// subscribers. Callers hold e.mu.
func (e *Engine) setState(s models.EngineState) {
	e.state = s
	metrics.SetPhase(string(s.Phase))
	slog.Debug("Engine state", "state", s.Phase, "remaining", s.Remaining, "eventID", s.EventID, "updatesSent", s.UpdatesSent)

	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.published = s
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// endSession returns to Idle and invalidates every pending timer. Callers hold e.mu.
func (e *Engine) endSession() {
	e.epoch++
	e.timers.Stop()
	e.setState(models.IdleState())
}

func (e *Engine) scheduleTick(epoch uint64) {
	e.timers.ScheduleAfter(timerCountdown, TickInterval, func() { e.tick(epoch) })
}

func (e *Engine) tick(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch || e.state.Phase != models.PhaseCountdown {
		return
	}

	next := e.state
	next.Remaining--
	if next.Remaining > 0 {
		e.setState(next)
		e.scheduleTick(epoch)
		return
	}
	if _, err := e.activate(e.ctx, next.Trigger, false); err != nil {
		slog.Error("Engine activation after countdown failed", "error", err)
	}
}

// activate performs Active entry. Callers hold e.mu and the engine is Idle or in
// Countdown. The event is written before any alert is sent. If the write fails
// the alert still goes out, the engine returns to Idle and the error is returned.
func (e *Engine) activate(ctx context.Context, kind models.TriggerKind, silent bool) (*models.ActivationReport, error) {
	settings := e.settings
	start := e.clock.Now()
	snap := e.probe.Snapshot(ctx)
	metrics.ObserveLocation(snap.HasLocation(), e.clock.Now().Sub(start))

	report := &models.ActivationReport{Snapshot: snap}
	if !snap.HasLocation() {
		report.Warnings = append(report.Warnings, (&models.TransientError{Capability: "location", Err: models.ErrLocationUnavailable}).Error())
	}

	saved, storeErr := e.events.AppendEvent(models.NewSOSEvent(kind, snap, e.clock.Now()))
	if storeErr != nil {
		slog.Error("Engine failed to record sos event", "error", storeErr, "trigger", kind)
	} else {
		report.EventID = saved.ID
		e.session = settings
		e.setState(models.EngineState{
			Phase:        models.PhaseActive,
			EventID:      saved.ID,
			LastUpdateAt: e.clock.Now(),
			Silent:       silent,
			Trigger:      kind,
		})
		metrics.IncActivation(string(kind))
		e.eventChanged()
	}

	contacts, warnings := e.loadContacts()
	report.Warnings = append(report.Warnings, warnings...)
	report.Message = compose.Compose(settings, snap, e.personal)

	recipients := models.OrderForDispatch(contacts, models.SMSEnabled)
	if len(recipients) == 0 {
		report.Warnings = append(report.Warnings, (&models.ConfigurationError{Field: "contacts", Reason: "no SMS-enabled emergency contacts"}).Error())
	} else if !e.notifier.HasSender() {
		report.Warnings = append(report.Warnings, (&models.ConfigurationError{Field: "messaging", Reason: models.ErrNoMessagingCapability.Error()}).Error())
	}
	if len(recipients) > 0 {
		report.Dispatch = e.notifier.Dispatch(ctx, recipients, report.Message)
		metrics.AddDeliveries("sms", report.Dispatch.Sent, report.Dispatch.Failed)
	}

	if e.voice {
		callees := models.OrderForDispatch(contacts, models.CallEnabled)
		if len(callees) > 0 && e.notifier.HasCaller() {
			report.Calls = e.notifier.Call(ctx, callees, report.Message)
			metrics.AddDeliveries("call", report.Calls.Sent, report.Calls.Failed)
		}
	}
	e.pubMu.Lock()
	e.last = report
	e.pubMu.Unlock()

	if storeErr != nil {
		e.endSession()
		return report, fmt.Errorf("failed to record sos event: %w", storeErr)
	}

	epoch := e.epoch
	e.timers.ScheduleAfter(timerFollowUp, settings.FollowUpInterval(), func() { e.followUp(epoch) })
	slog.Info("Engine activated", "eventID", report.EventID, "trigger", kind, "silent", silent,
		"hasLocation", snap.HasLocation(), "sent", report.Dispatch.Sent, "failed", report.Dispatch.Failed)
	return report, nil
}

func (e *Engine) loadContacts() ([]models.EmergencyContact, []string) {
	if e.contacts == nil {
		return nil, nil
	}
	contacts, err := e.contacts.ListContacts()
	if err != nil {
		slog.Error("Engine failed to load contacts", "error", err)
		return nil, []string{fmt.Sprintf("contacts unavailable: %v", err)}
	}
	return contacts, nil
}

func (e *Engine) followUp(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch || e.state.Phase != models.PhaseActive {
		return
	}
	limit := e.session.MaxLocationUpdates
	if e.state.UpdatesSent >= limit {
		return
	}

	n := e.state.UpdatesSent + 1
	snap := e.probe.Snapshot(e.ctx)
	msg := compose.ComposeFollowUp(e.session, snap, n, limit)
	contacts, _ := e.loadContacts()
	recipients := models.OrderForDispatch(contacts, models.LiveLocationEnabled)
	if len(recipients) > 0 {
		result := e.notifier.Dispatch(e.ctx, recipients, msg)
		metrics.AddDeliveries("follow_up", result.Sent, result.Failed)
	}
	metrics.IncFollowUp()

	next := e.state
	next.UpdatesSent = n
	next.LastUpdateAt = e.clock.Now()
	e.setState(next)
	slog.Info("Engine follow-up sent", "eventID", next.EventID, "update", n, "max", limit, "recipients", len(recipients))

	if n < limit {
		e.timers.ScheduleAfter(timerFollowUp, e.session.FollowUpInterval(), func() { e.followUp(epoch) })
	}
}

// finish moves an Active emergency to a final status. If the store rejects the
// update the engine stays Active.
func (e *Engine) finish(ctx context.Context, status models.EventStatus) error {
	prev := e.state
	e.setState(models.EngineState{Phase: models.PhaseResolving, EventID: prev.EventID, Trigger: prev.Trigger})

	if err := e.events.UpdateEventStatus(prev.EventID, status, e.clock.Now()); err != nil {
		slog.Error("Engine failed to update sos event", "error", err, "eventID", prev.EventID, "status", status)
		e.setState(prev)
		return fmt.Errorf("failed to update sos event %d: %w", prev.EventID, err)
	}
	e.endSession()
	metrics.IncTermination(string(status))
	e.eventChanged()
	slog.Info("Engine emergency ended", "eventID", prev.EventID, "status", status, "updatesSent", prev.UpdatesSent)
	return nil
}

func (e *Engine) eventChanged() {
	if e.onChange != nil {
		e.onChange()
	}
}
