// Package config loads the SafeSignal settings file and environment helpers.
//
// The settings file is YAML. Every section is optional: missing keys keep their
// defaults, out-of-range values are replaced and reported as warnings, and invalid
// trigger patterns or contacts are skipped with a warning.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/SafeSignal/internal/messaging"
	"github.com/BTreeMap/SafeSignal/internal/models"
)

// DefaultFileName is looked up in the state directory when no path is given.
const DefaultFileName = "safesignal.yaml"

// Config is the decoded settings file.
type Config struct {
	Settings models.UserSettings       `yaml:"settings"`
	Triggers []models.TriggerPattern   `yaml:"triggers"`
	Contacts []models.EmergencyContact `yaml:"contacts"`
	Personal models.PersonalInfo       `yaml:"personal_info"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Settings: models.DefaultUserSettings(),
		Triggers: models.DefaultTriggerPatterns(),
	}
}

// Load reads path. A missing file yields Default. Decoding errors are returned;
// semantic problems are returned as warnings alongside a usable Config.
func Load(path string) (Config, []error, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("Settings file not found, using defaults", "path", path)
		return cfg, nil, nil
	}
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	cfg, warnings, err := Parse(data)
	if err != nil {
		return Default(), nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	slog.Info("Settings file loaded", "path", path, "triggers", len(cfg.Triggers), "contacts", len(cfg.Contacts), "warnings", len(warnings))
	return cfg, warnings, nil
}

// Parse decodes YAML settings over the defaults and validates them.
func Parse(data []byte) (Config, []error, error) {
	cfg := Default()
	cfg.Triggers = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), nil, err
	}

	settings, warnings := cfg.Settings.Normalize()
	cfg.Settings = settings

	var patterns []models.TriggerPattern
	for i, p := range cfg.Triggers {
		if err := p.Validate(); err != nil {
			warnings = append(warnings, fmt.Errorf("trigger %d skipped: %w", i, err))
			continue
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		if len(cfg.Triggers) > 0 {
			warnings = append(warnings, &models.ConfigurationError{Field: "triggers", Reason: "no valid trigger patterns, using defaults"})
		}
		patterns = models.DefaultTriggerPatterns()
	}
	cfg.Triggers = patterns

	var contacts []models.EmergencyContact
	primary := false
	for i, c := range cfg.Contacts {
		phone, err := messaging.CanonicalizeRecipient(c.PhoneNumber)
		if err == nil {
			c.PhoneNumber = phone
			err = c.Validate()
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("contact %d (%q) skipped: %w", i, c.Name, err))
			continue
		}
		if c.IsPrimary {
			if primary {
				warnings = append(warnings, &models.ConfigurationError{Field: "contacts", Reason: fmt.Sprintf("%q demoted, only one primary contact is kept", c.Name)})
				c.IsPrimary = false
			}
			primary = true
		}
		contacts = append(contacts, c)
	}
	cfg.Contacts = contacts
	return cfg, warnings, nil
}
