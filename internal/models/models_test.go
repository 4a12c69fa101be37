package models

import (
	"errors"
	"testing"
	"time"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		phone string
		valid bool
	}{
		{"+14155550100", true},
		{"4155550100", true},
		{"", false},
		{"+", false},
		{"415-555-0100", false},
		{"++1415", false},
		{"1+415", false},
	}
	for _, tt := range tests {
		err := ValidatePhoneNumber(tt.phone)
		if tt.valid && err != nil {
			t.Errorf("ValidatePhoneNumber(%q) unexpected error: %v", tt.phone, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("ValidatePhoneNumber(%q) expected ErrInvalidPhoneNumber, got %v", tt.phone, err)
		}
	}
}

func TestOrderForDispatch_PrimaryFirstStable(t *testing.T) {
	contacts := []EmergencyContact{
		{ID: "a", EnableSMS: true},
		{ID: "b", EnableSMS: false},
		{ID: "c", EnableSMS: true, IsPrimary: true},
		{ID: "d", EnableSMS: true},
	}
	got := OrderForDispatch(contacts, SMSEnabled)
	want := []string{"c", "a", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d contacts, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestEventStatusTransitions(t *testing.T) {
	if !EventStatusActive.CanTransitionTo(EventStatusResolved) {
		t.Error("active -> resolved should be legal")
	}
	if !EventStatusActive.CanTransitionTo(EventStatusCancelled) {
		t.Error("active -> cancelled should be legal")
	}
	if EventStatusResolved.CanTransitionTo(EventStatusActive) {
		t.Error("resolved -> active must never be legal")
	}
	if EventStatusCancelled.CanTransitionTo(EventStatusResolved) {
		t.Error("cancelled -> resolved must never be legal")
	}
	if EventStatusActive.CanTransitionTo(EventStatusActive) {
		t.Error("active -> active is not a transition")
	}
}

func TestTriggerPatternValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern TriggerPattern
		wantErr bool
	}{
		{"valid sequence", ButtonSequence(time.Second, TokenVolumeUp, TokenVolumeDown), false},
		{"empty sequence", ButtonSequence(time.Second), true},
		{"shake token in sequence", ButtonSequence(time.Second, TokenShake), true},
		{"valid shake", ShakeCount(3, time.Second), false},
		{"zero shakes", ShakeCount(0, time.Second), true},
		{"zero window", PowerPressCount(3, 0), true},
		{"unknown kind", TriggerPattern{Kind: "wave", Window: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var cfgErr *ConfigurationError
			if err != nil && !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigurationError, got %T", err)
			}
		})
	}
}

func TestUserSettingsNormalize(t *testing.T) {
	s, warnings := UserSettings{CountdownSeconds: -1, MaxLocationUpdates: 0, FollowUpIntervalMinutes: -3}.Normalize()
	if len(warnings) != 4 {
		t.Errorf("expected 4 warnings, got %d: %v", len(warnings), warnings)
	}
	if s.CountdownSeconds != DefaultCountdownSeconds || s.MaxLocationUpdates != DefaultMaxLocationUpdates {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.IncludePersonalInfo {
		t.Error("personal info must stay off unless explicitly enabled")
	}

	ok, warnings := DefaultUserSettings().Normalize()
	if len(warnings) != 0 {
		t.Errorf("default settings should not produce warnings: %v", warnings)
	}
	if ok.FollowUpInterval() != 2*time.Minute {
		t.Errorf("expected 2m interval, got %v", ok.FollowUpInterval())
	}
}

func TestInvariantErrorIs(t *testing.T) {
	err := error(&InvariantError{Op: "resolve", State: PhaseIdle})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Error("InvariantError should match ErrInvariantViolation")
	}
}

func TestNewSOSEventWithoutLocation(t *testing.T) {
	now := time.Now()
	ev := NewSOSEvent(TriggerManual, DeviceSnapshot{BatteryLevel: 40, NetworkType: "wifi"}, now)
	if _, _, ok := ev.Location(); ok {
		t.Error("event without fix should have no location")
	}
	if ev.Status != EventStatusActive {
		t.Errorf("expected active status, got %s", ev.Status)
	}
}
