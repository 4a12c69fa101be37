package models

import "time"

// Placeholders understood by the alert composer.
const (
	PlaceholderLocation = "{LOCATION}"
	PlaceholderMapsLink = "{MAPS_LINK}"
	PlaceholderUpdateN  = "{N}"
	PlaceholderUpdateOf = "{MAX}"
)

// Settings defaults
const (
	DefaultCountdownSeconds        = 5
	DefaultMaxLocationUpdates      = 5
	DefaultFollowUpIntervalMinutes = 2
	DefaultMessageTemplate         = "EMERGENCY! I need help. " + PlaceholderLocation + " " + PlaceholderMapsLink
	DefaultFollowUpTemplate        = "Location update " + PlaceholderUpdateN + "/" + PlaceholderUpdateOf + ": " + PlaceholderLocation + " " + PlaceholderMapsLink
)

// UserSettings is read-only to the engine; it is mutated by the settings layer.
type UserSettings struct {
	CountdownSeconds        int    `json:"countdown_seconds" yaml:"countdown_seconds"`
	SilentMode              bool   `json:"silent_mode" yaml:"silent_mode"`
	MaxLocationUpdates      int    `json:"max_location_updates" yaml:"max_location_updates"`
	FollowUpIntervalMinutes int    `json:"follow_up_interval_minutes" yaml:"follow_up_interval_minutes"`
	MessageTemplate         string `json:"message_template" yaml:"message_template"`
	FollowUpTemplate        string `json:"follow_up_template" yaml:"follow_up_template"`
	IncludeBatteryInfo      bool   `json:"include_battery_info" yaml:"include_battery_info"`
	IncludePersonalInfo     bool   `json:"include_personal_info" yaml:"include_personal_info"`
}

// DefaultUserSettings returns the settings used on first launch.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		CountdownSeconds:        DefaultCountdownSeconds,
		MaxLocationUpdates:      DefaultMaxLocationUpdates,
		FollowUpIntervalMinutes: DefaultFollowUpIntervalMinutes,
		MessageTemplate:         DefaultMessageTemplate,
		FollowUpTemplate:        DefaultFollowUpTemplate,
		IncludeBatteryInfo:      true,
	}
}

// Normalize replaces out-of-range values with defaults and returns one
// ConfigurationError per replaced field.
func (s UserSettings) Normalize() (UserSettings, []error) {
	var warnings []error
	if s.CountdownSeconds < 0 {
		warnings = append(warnings, &ConfigurationError{Field: "countdown_seconds", Reason: "must be >= 0"})
		s.CountdownSeconds = DefaultCountdownSeconds
	}
	if s.MaxLocationUpdates <= 0 {
		warnings = append(warnings, &ConfigurationError{Field: "max_location_updates", Reason: "must be > 0"})
		s.MaxLocationUpdates = DefaultMaxLocationUpdates
	}
	if s.FollowUpIntervalMinutes <= 0 {
		warnings = append(warnings, &ConfigurationError{Field: "follow_up_interval_minutes", Reason: "must be > 0"})
		s.FollowUpIntervalMinutes = DefaultFollowUpIntervalMinutes
	}
	if s.MessageTemplate == "" {
		warnings = append(warnings, &ConfigurationError{Field: "message_template", Reason: "empty template"})
		s.MessageTemplate = DefaultMessageTemplate
	}
	if s.FollowUpTemplate == "" {
		s.FollowUpTemplate = DefaultFollowUpTemplate
	}
	return s, warnings
}

// FollowUpInterval returns the follow-up period as a duration.
func (s UserSettings) FollowUpInterval() time.Duration {
	return time.Duration(s.FollowUpIntervalMinutes) * time.Minute
}
