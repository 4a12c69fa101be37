// Package dispatch fans a composed alert out to emergency contacts with
// per-contact timeouts and a single bounded retry.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/messaging"
	"github.com/BTreeMap/SafeSignal/internal/models"
)

// Dispatcher defaults
const (
	DefaultSendTimeout  = 10 * time.Second
	DefaultRetryBackoff = 2 * time.Second
	// MaxAttempts is the initial try plus one retry.
	MaxAttempts = 2
)

// Opts holds configuration options for the Dispatcher.
type Opts struct {
	SendTimeout  time.Duration
	RetryBackoff time.Duration
	OnOutcome    func(models.ContactOutcome)
}

// Option defines a configuration option for the Dispatcher.
type Option func(*Opts)

// WithSendTimeout bounds every single send attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SendTimeout = d }
}

// WithRetryBackoff sets the fixed pause before the retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Opts) { o.RetryBackoff = d }
}

// WithOutcomeHook registers a callback invoked once per contact outcome.
func WithOutcomeHook(fn func(models.ContactOutcome)) Option {
	return func(o *Opts) { o.OnOutcome = fn }
}

// sendFunc abstracts over message sends and voice calls.
type sendFunc func(ctx context.Context, to, body string) error

// Dispatcher sends messages to contacts via the external messaging capability.
type Dispatcher struct {
	sender  messaging.Sender
	caller  messaging.Caller
	timeout time.Duration
	backoff time.Duration
	hook    func(models.ContactOutcome)
}

// NewDispatcher creates a Dispatcher. sender or caller may be nil when the host
// has no such capability; every contact is then reported as failed.
func NewDispatcher(sender messaging.Sender, caller messaging.Caller, opts ...Option) *Dispatcher {
	cfg := Opts{SendTimeout: DefaultSendTimeout, RetryBackoff: DefaultRetryBackoff}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{
		sender:  sender,
		caller:  caller,
		timeout: cfg.SendTimeout,
		backoff: cfg.RetryBackoff,
		hook:    cfg.OnOutcome,
	}
}

// HasSender reports whether a messaging capability is configured.
func (d *Dispatcher) HasSender() bool { return d.sender != nil }

// HasCaller reports whether a voice capability is configured.
func (d *Dispatcher) HasCaller() bool { return d.caller != nil }

// Dispatch sends message to every contact in order and returns once all sends have
// completed or timed out. The contacts must already be filtered and ordered.
func (d *Dispatcher) Dispatch(ctx context.Context, contacts []models.EmergencyContact, message string) models.DispatchResult {
	var send sendFunc
	if d.sender != nil {
		send = d.sender.SendMessage
	}
	return d.fanOut(ctx, "sms", contacts, message, send)
}

// Call places a voice call to every contact in order.
func (d *Dispatcher) Call(ctx context.Context, contacts []models.EmergencyContact, message string) models.DispatchResult {
	var send sendFunc
	if d.caller != nil {
		send = d.caller.PlaceCall
	}
	return d.fanOut(ctx, "call", contacts, message, send)
}

func (d *Dispatcher) fanOut(ctx context.Context, channel string, contacts []models.EmergencyContact, message string, send sendFunc) models.DispatchResult {
	outcomes := make([]models.ContactOutcome, len(contacts))

	var wg sync.WaitGroup
	for i, c := range contacts {
		wg.Add(1)
		go func(i int, c models.EmergencyContact) {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, channel, c, message, send)
			if d.hook != nil {
				d.hook(outcomes[i])
			}
		}(i, c)
	}
	wg.Wait()

	result := models.DispatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status == models.MessageStatusSent {
			result.Sent++
			continue
		}
		result.Failed++
		result.FailedContactIDs = append(result.FailedContactIDs, o.ContactID)
	}

	if result.Failed > 0 {
		slog.Warn("Dispatcher partial delivery", "channel", channel, "sent", result.Sent, "failed", result.Failed, "failedContactIDs", result.FailedContactIDs)
	} else {
		slog.Info("Dispatcher delivered", "channel", channel, "sent", result.Sent)
	}
	return result
}

// deliver tries once, waits the fixed backoff, and tries once more.
func (d *Dispatcher) deliver(ctx context.Context, channel string, c models.EmergencyContact, message string, send sendFunc) models.ContactOutcome {
	outcome := models.ContactOutcome{ContactID: c.ID, Status: models.MessageStatusFailed}
	if send == nil {
		outcome.Error = models.ErrNoMessagingCapability.Error()
		return outcome
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := pause(ctx, d.backoff); err != nil {
				lastErr = err
				break
			}
		}
		outcome.Attempts = attempt

		err := d.attempt(ctx, send, c.PhoneNumber, message)
		if err == nil {
			outcome.Status = models.MessageStatusSent
			outcome.Error = ""
			slog.Debug("Dispatcher send succeeded", "channel", channel, "contactID", c.ID, "attempt", attempt)
			return outcome
		}
		lastErr = &models.TransientError{Capability: channel, Err: err}
		slog.Warn("Dispatcher send failed", "channel", channel, "contactID", c.ID, "attempt", attempt, "error", err)
	}
	if lastErr != nil {
		outcome.Error = lastErr.Error()
	}
	return outcome
}

// attempt runs one send bounded by the per-contact timeout. Senders that
// ignore their context are abandoned at the deadline and their late result is
// discarded, so a send that completes after the deadline counts as failed.
func (d *Dispatcher) attempt(ctx context.Context, send sendFunc, to, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send(sendCtx, to, body)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return sendCtx.Err()
	}
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
