package engine

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/recovery"
)

// RecoverState resumes an emergency left Active by a previous process. The newest
// open event becomes the Active session with a fresh follow-up schedule and no
// repeated initial alert. Older open events are closed as Cancelled.
func (e *Engine) RecoverState(ctx context.Context, registry *recovery.Registry) error {
	open, err := registry.OpenEvents()
	if err != nil {
		return err
	}
	if len(open) == 0 {
		slog.Debug("Engine recovery found no open events")
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.state.Phase != models.PhaseIdle {
		return &models.InvariantError{Op: "recover", State: e.state.Phase}
	}

	for _, ev := range open[:len(open)-1] {
		if err := registry.CloseEvent(ev.ID, models.EventStatusCancelled); err != nil {
			slog.Warn("Engine recovery could not close stale event", "eventID", ev.ID, "error", err)
		}
	}

	resume := open[len(open)-1]
	e.session = e.settings
	e.setState(models.EngineState{
		Phase:        models.PhaseActive,
		EventID:      resume.ID,
		LastUpdateAt: e.clock.Now(),
		Trigger:      resume.TriggerType,
	})
	epoch := e.epoch
	e.timers.ScheduleAfter(timerFollowUp, e.session.FollowUpInterval(), func() { e.followUp(epoch) })
	e.eventChanged()
	slog.Info("Engine resumed open emergency", "eventID", resume.ID, "trigger", resume.TriggerType,
		"createdAt", resume.CreatedAt, "closedStale", len(open)-1)
	return nil
}
