package models

import (
	"fmt"
	"time"
)

// InputToken is a raw input delivered by the host platform's sensor/input layer.
type InputToken string

const (
	TokenVolumeUp   InputToken = "up"
	TokenVolumeDown InputToken = "down"
	TokenShake      InputToken = "shake"
	TokenPowerPress InputToken = "power"
)

// IsValidInputToken checks if the given token is one the detector understands.
func IsValidInputToken(t InputToken) bool {
	switch t {
	case TokenVolumeUp, TokenVolumeDown, TokenShake, TokenPowerPress:
		return true
	default:
		return false
	}
}

// TriggerKind tags the variant of a TriggerPattern.
type TriggerKind string

const (
	TriggerButtonSequence  TriggerKind = "button_sequence"
	TriggerShakeCount      TriggerKind = "shake_count"
	TriggerPowerPressCount TriggerKind = "power_press_count"
	// TriggerManual is used for activations requested directly through the API.
	TriggerManual TriggerKind = "manual"
)

// TriggerPattern is an immutable gesture configuration. Sequence is used by
// button sequences, Count by shake and power press patterns.
type TriggerPattern struct {
	Kind     TriggerKind   `json:"kind" yaml:"kind"`
	Sequence []InputToken  `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Count    int           `json:"count,omitempty" yaml:"count,omitempty"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// Validate checks the pattern is well formed for its kind.
func (p TriggerPattern) Validate() error {
	if p.Window <= 0 {
		return &ConfigurationError{Field: "trigger.window", Reason: "must be positive"}
	}
	switch p.Kind {
	case TriggerButtonSequence:
		if len(p.Sequence) == 0 {
			return &ConfigurationError{Field: "trigger.sequence", Reason: "button sequence is empty"}
		}
		for _, tok := range p.Sequence {
			if tok != TokenVolumeUp && tok != TokenVolumeDown {
				return &ConfigurationError{Field: "trigger.sequence", Reason: fmt.Sprintf("unsupported button token %q", tok)}
			}
		}
	case TriggerShakeCount, TriggerPowerPressCount:
		if p.Count <= 0 {
			return &ConfigurationError{Field: "trigger.count", Reason: "must be positive"}
		}
	default:
		return &ConfigurationError{Field: "trigger.kind", Reason: fmt.Sprintf("unknown pattern kind %q", p.Kind)}
	}
	return nil
}

// ButtonSequence builds a button sequence pattern.
func ButtonSequence(window time.Duration, seq ...InputToken) TriggerPattern {
	return TriggerPattern{Kind: TriggerButtonSequence, Sequence: seq, Window: window}
}

// ShakeCount builds a shake count pattern.
func ShakeCount(required int, window time.Duration) TriggerPattern {
	return TriggerPattern{Kind: TriggerShakeCount, Count: required, Window: window}
}

// PowerPressCount builds a power press count pattern.
func PowerPressCount(required int, window time.Duration) TriggerPattern {
	return TriggerPattern{Kind: TriggerPowerPressCount, Count: required, Window: window}
}

// DefaultTriggerPatterns returns the patterns used when none are configured.
func DefaultTriggerPatterns() []TriggerPattern {
	return []TriggerPattern{
		ButtonSequence(3*time.Second, TokenVolumeUp, TokenVolumeDown, TokenVolumeUp, TokenVolumeDown),
		ShakeCount(5, 2*time.Second),
		PowerPressCount(5, 3*time.Second),
	}
}

// TriggerEvent is emitted by the detector when a pattern matches. It is consumed
// once by the engine.
type TriggerEvent struct {
	Kind    TriggerKind `json:"kind"`
	FiredAt time.Time   `json:"fired_at"`
}
